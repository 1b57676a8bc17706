package storage

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
)

// Local implements Store on top of the local filesystem.
type Local struct {
	root string
}

// NewLocal creates a Local store rooted at dir, creating it if needed.
func NewLocal(dir string) (*Local, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}

	if err = os.MkdirAll(abs, 0o755); err != nil {
		return nil, err
	}

	return &Local{root: abs}, nil
}

func (l *Local) resolve(name string) string {
	return filepath.Join(l.root, filepath.FromSlash(name))
}

// Get reads the named file.
func (l *Local) Get(_ context.Context, name string) ([]byte, error) {
	return os.ReadFile(l.resolve(name))
}

// Put writes to a temporary sibling then renames it over the target, so readers never see a partial file.
func (l *Local) Put(_ context.Context, name string, data []byte) error {
	full := l.resolve(name)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(full), "."+filepath.Base(full)+".*")
	if err != nil {
		return err
	}

	defer func() {
		_ = os.Remove(tmp.Name())
	}()

	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()

		return err
	}

	if err = tmp.Close(); err != nil {
		return err
	}

	return os.Rename(tmp.Name(), full)
}

// Exists reports whether the named file exists.
func (l *Local) Exists(_ context.Context, name string) (bool, error) {
	_, err := os.Stat(l.resolve(name))
	if err == nil {
		return true, nil
	}

	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}

	return false, err
}

// Delete removes the named file.
func (l *Local) Delete(_ context.Context, name string) error {
	err := os.Remove(l.resolve(name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}

	return err
}

func (l *Local) String() string {
	return l.root
}

var _ Store = (*Local)(nil)
