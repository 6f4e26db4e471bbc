// Package storage defines the build output tree abstraction.
package storage

// Provider is the interface for build output operations. Every path is
// relative to the output root and uses forward slashes.
type Provider interface {
	// Root returns the absolute output directory.
	Root() string
	// Rel converts an absolute path under Root to a relative slash path.
	Rel(abs string) (string, error)
	// Write atomically writes content to path.
	Write(path string, content []byte) error
	// Read returns the raw bytes of the file at path.
	Read(path string) ([]byte, error)
	// CopyTree copies the directory src (absolute, outside the root) to path.
	CopyTree(src, path string) ([]string, error)
	// Files returns every regular file under the root.
	Files() ([]string, error)
	// Delete removes the file at path. Missing files are not an error.
	Delete(path string) error
}
