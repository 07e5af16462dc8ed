package ports

import "io"

// TempFile is a scratch file that is removed on Close.
type TempFile interface {
	io.ReadWriteSeeker
	io.Closer
	Name() string
}

// FileSystem abstracts file system operations.
type FileSystem interface {
	// ReadFile reads the entire contents of a file.
	ReadFile(path string) ([]byte, error)

	// WriteFile writes data to a file, creating it if necessary.
	WriteFile(path string, data []byte) error

	// Open opens a file for random-access reading.
	Open(path string) (io.ReadSeekCloser, error)

	// OpenAppend opens a file for appending, creating it if necessary.
	OpenAppend(path string) (io.WriteCloser, error)

	// CreateTemp creates a scratch file in the system temp directory.
	CreateTemp(pattern string) (TempFile, error)

	// MkdirAll creates a directory and all parent directories.
	MkdirAll(path string) error

	// Exists checks if a file or directory exists.
	Exists(path string) (bool, error)

	// Remove deletes a file or empty directory.
	Remove(path string) error
}
