// Package loader reads configuration sources into nested maps: TOML files
// with @include support and STORMWM_* environment variables.
package loader

import "os"

// Loader is implemented by every configuration source.
type Loader interface {
	// Load returns the source as a nested map. A source that does not
	// exist yields nil, nil.
	Load() (map[string]any, error)
}

// FileSystem is the part of the file system the loaders read.
type FileSystem interface {
	ReadFile(path string) ([]byte, error)
}

// OSFS reads the real file system.
type OSFS struct{}

// ReadFile implements FileSystem.
func (OSFS) ReadFile(path string) ([]byte, error) { return os.ReadFile(path) }

// DefaultFS returns the OS file system.
func DefaultFS() FileSystem {
	return OSFS{}
}
