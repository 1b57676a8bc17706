package classifier

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/farcloser/tocsin/internal/features"
	"github.com/farcloser/tocsin/internal/storage"
)

// Handle is the process wide slot holding the loaded classifier. Readers never block; reloads are serialized and
// replace the classifier whole.
type Handle struct {
	current atomic.Pointer[Classifier]
	mu      sync.Mutex
	store   storage.Store
	layout  features.Layout
}

// NewHandle returns an empty handle loading from store. A nil store means the handle can only be Set.
func NewHandle(store storage.Store, layout features.Layout) *Handle {
	return &Handle{store: store, layout: layout}
}

// Get returns the loaded classifier or ErrModelNotLoaded.
func (h *Handle) Get() (*Classifier, error) {
	if c := h.current.Load(); c != nil {
		return c, nil
	}

	return nil, ErrModelNotLoaded
}

// Loaded reports whether a classifier is available.
func (h *Handle) Loaded() bool {
	return h.current.Load() != nil
}

// Set installs c directly. Like Reload, it refuses a classifier fitted on another layout and keeps the current one.
func (h *Handle) Set(c *Classifier) error {
	if c == nil {
		return ErrModelNotLoaded
	}

	if c.Layout() != h.layout {
		return fmt.Errorf("%w: classifier was fitted on %+v, serving %+v", ErrArtifactMismatch, c.Layout(), h.layout)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.current.Store(c)

	return nil
}

// Reload loads the artifact set from the store and swaps it in. On failure the previous classifier, if any,
// stays in place.
func (h *Handle) Reload(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.store == nil {
		return ErrModelNotFound
	}

	loaded, err := Load(ctx, h.store, h.layout)
	if err != nil {
		slog.Warn("classifier.Reload", "store", h.store.String(), "error", err, "kept_previous", h.current.Load() != nil)

		return err
	}

	h.current.Store(loaded)

	return nil
}

// Layout returns the serving layout.
func (h *Handle) Layout() features.Layout {
	return h.layout
}

// Store returns the artifact store, which may be nil.
func (h *Handle) Store() storage.Store {
	return h.store
}
