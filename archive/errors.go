package archive

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNoLinks is returned when a batch has no links.
	ErrNoLinks = errors.New("no links provided")

	// ErrTooManyLinks is returned when a batch exceeds the configured
	// maximum number of links.
	ErrTooManyLinks = errors.New("too many links")

	// ErrItemTooLarge is returned when a fetched payload exceeds the
	// configured maximum item size. It is not retried.
	ErrItemTooLarge = errors.New("item exceeds maximum size")

	// ErrInvalidLink is wrapped by the fetch error of a link that is not an
	// absolute http or https URL. Such a link is never retried.
	ErrInvalidLink = errors.New("invalid link")

	errUndefinedHash = errors.New("store returned an undefined cid")
)

// transientFetchError is one failed fetch attempt. It never leaves the
// retry loop on its own; FetchError carries the last one.
type transientFetchError struct {
	Attempt    int
	StatusCode int
	Err        error
}

func (e *transientFetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("attempt %d: unexpected status %d %s", e.Attempt+1, e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("attempt %d: %v", e.Attempt+1, e.Err)
}

func (e *transientFetchError) Unwrap() error {
	return e.Err
}

// FetchError is the terminal failure to retrieve a link.
type FetchError struct {
	Link     string
	Attempts int
	Err      error
}

func (e *FetchError) Error() string {
	if e.Attempts == 0 {
		return fmt.Sprintf("fetch %s failed: %v", e.Link, e.Err)
	}
	return fmt.Sprintf("fetch %s failed after %d attempt(s): %v", e.Link, e.Attempts, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// UploadError is returned when the store rejects a fetched payload.
type UploadError struct {
	Link string
	Err  error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload of %s failed: %v", e.Link, e.Err)
}

func (e *UploadError) Unwrap() error {
	return e.Err
}

// LinkError is returned when stored content cannot be linked into the batch
// directory.
type LinkError struct {
	Link string
	Path string
	Err  error
}

func (e *LinkError) Error() string {
	return fmt.Sprintf("linking %s at %s failed: %v", e.Link, e.Path, e.Err)
}

func (e *LinkError) Unwrap() error {
	return e.Err
}

// DirectoryCreateError is returned when the scratch directory of a batch
// cannot be created. The batch is aborted before any link is fetched.
type DirectoryCreateError struct {
	Path string
	Err  error
}

func (e *DirectoryCreateError) Error() string {
	return fmt.Sprintf("failed to create directory %s: %v", e.Path, e.Err)
}

func (e *DirectoryCreateError) Unwrap() error {
	return e.Err
}

// FinalizeError is returned when the assembled directory cannot be resolved
// to its identifier.
type FinalizeError struct {
	Path string
	Err  error
}

func (e *FinalizeError) Error() string {
	return fmt.Sprintf("failed to finalize directory %s: %v", e.Path, e.Err)
}

func (e *FinalizeError) Unwrap() error {
	return e.Err
}

// InvalidCIDError is returned by the status reporter for a malformed
// content identifier.
type InvalidCIDError struct {
	Value string
	Err   error
}

func (e *InvalidCIDError) Error() string {
	return fmt.Sprintf("invalid cid %q: %v", e.Value, e.Err)
}

func (e *InvalidCIDError) Unwrap() error {
	return e.Err
}
