// Package version exposes build metadata injected at link time.
package version

//nolint:gochecknoglobals // set through -ldflags -X
var (
	name    = "tocsin"
	version = "dev"
	commit  = "unknown"
)

// Name returns the binary name.
func Name() string {
	return name
}

// Version returns the release version.
func Version() string {
	return version
}

// Commit returns the git commit the binary was built from.
func Commit() string {
	return commit
}
