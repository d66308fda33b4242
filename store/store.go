// Package store defines the content-addressed store the archiver writes
// fetched items into. A store accepts raw bytes and returns their content
// identifier, and keeps a mutable file namespace (MFS) in which directories
// are assembled from already stored content.
package store

import (
	"context"
	"fmt"
	"io"
	"regexp"

	"github.com/ipfs/go-cid"
)

// Store is the interface the archive pipeline uses to persist content and
// assemble directories.
type Store interface {
	// Name returns the human-readable "name" of the driver, useful in error
	// messages and logging. By convention, this will just be the registration
	// name, but drivers may provide other information here.
	Name() string

	// Mkdir creates the directory at path in the mutable namespace, creating
	// parents as needed. Creating an existing directory is not an error.
	Mkdir(ctx context.Context, path string) error

	// Add stores the content read from r and returns its identifier.
	Add(ctx context.Context, r io.Reader) (cid.Cid, error)

	// Copy links already stored content src into the mutable namespace at
	// dest. The parent of dest must exist.
	Copy(ctx context.Context, src cid.Cid, dest string) error

	// Stat describes the entry at path in the mutable namespace.
	Stat(ctx context.Context, path string) (FileInfo, error)
}

// FileInfo describes an entry of the mutable namespace.
type FileInfo struct {
	// Path is the namespace path that was queried.
	Path string

	// Hash is the content identifier of the entry.
	Hash cid.Cid

	// Size is the size of the file data, zero for directories.
	Size uint64

	// CumulativeSize is the size of the entry including all linked blocks.
	CumulativeSize uint64

	// Blocks is the number of direct links of the entry.
	Blocks int

	// Type is either "file" or "directory".
	Type string
}

// IsDir reports whether the entry is a directory.
func (fi FileInfo) IsDir() bool {
	return fi.Type == "directory"
}

// PathRegexp is the regular expression which each mutable namespace path
// must match. A path is absolute and made of one or more components of
// alphanumerics, dots, dashes and underscores.
var PathRegexp = regexp.MustCompile(`^/([A-Za-z0-9._-]+(/[A-Za-z0-9._-]+)*)?$`)

// PathNotFoundError is returned when operating on a nonexistent path.
type PathNotFoundError struct {
	Path       string
	DriverName string
}

func (err PathNotFoundError) Error() string {
	return fmt.Sprintf("%s: Path not found: %s", err.DriverName, err.Path)
}

// InvalidPathError is returned when the provided path is malformed.
type InvalidPathError struct {
	Path       string
	DriverName string
}

func (err InvalidPathError) Error() string {
	return fmt.Sprintf("%s: invalid path: %s", err.DriverName, err.Path)
}

// Error is a catch-all error type which captures an error string and
// the driver type on which it occurred.
type Error struct {
	DriverName string
	Detail     error
}

func (err Error) Error() string {
	return fmt.Sprintf("%s: %s", err.DriverName, err.Detail)
}

func (err Error) Unwrap() error {
	return err.Detail
}
