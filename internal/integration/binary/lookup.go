// Package binary locates the external helpers the decoder shells out to.
package binary

import (
	"fmt"
	"os/exec"
	"sync"

	"github.com/farcloser/primordium/fault"
)

//nolint:gochecknoglobals // process wide lookup cache
var resolved sync.Map

// Require returns the resolved path of name from PATH, or an error wrapping fault.ErrMissingRequirements.
// Successful lookups are cached for the life of the process.
func Require(name string) (string, error) {
	if path, ok := resolved.Load(name); ok {
		return path.(string), nil //nolint:forcetypeassert // only strings are stored
	}

	path, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", fault.ErrMissingRequirements, name, err)
	}

	resolved.Store(name, path)

	return path, nil
}
