// Package uuid generates the identifiers used for requests, batches and
// scratch directories.
package uuid

import (
	"strings"

	"github.com/google/uuid"
)

// NewString returns a new V7 UUID string. V7 UUIDs are time-ordered, so
// scratch directories and log lines sort by creation time.
func NewString() string {
	return uuid.Must(uuid.NewV7()).String()
}

// NewToken returns a V7 UUID without dashes, suitable as a path segment.
func NewToken() string {
	return strings.ReplaceAll(NewString(), "-", "")
}
