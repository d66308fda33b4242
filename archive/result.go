package archive

import (
	"fmt"

	"github.com/ipfs/go-cid"
	"github.com/opencontainers/go-digest"
)

// Outcome is the terminal state of one link of a batch.
type Outcome int

const (
	// OutcomeSucceeded means the item is linked into the directory.
	OutcomeSucceeded Outcome = iota
	// OutcomeFetchFailed means every fetch attempt failed.
	OutcomeFetchFailed
	// OutcomeUploadFailed means the store rejected the payload.
	OutcomeUploadFailed
	// OutcomeLinkFailed means the item could not be placed in the directory.
	OutcomeLinkFailed
)

var outcomeNames = map[Outcome]string{
	OutcomeSucceeded:    "succeeded",
	OutcomeFetchFailed:  "fetch_failed",
	OutcomeUploadFailed: "upload_failed",
	OutcomeLinkFailed:   "link_failed",
}

func (o Outcome) String() string {
	if name, ok := outcomeNames[o]; ok {
		return name
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// MarshalText encodes the outcome by name.
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// UnmarshalText decodes an outcome name.
func (o *Outcome) UnmarshalText(text []byte) error {
	for outcome, name := range outcomeNames {
		if name == string(text) {
			*o = outcome
			return nil
		}
	}
	return fmt.Errorf("unknown outcome %q", text)
}

// ItemResult reports what happened to one link.
type ItemResult struct {
	Position int           `json:"position"`
	Link     string        `json:"link"`
	Outcome  Outcome       `json:"outcome"`
	Filename string        `json:"filename,omitempty"`
	CID      cid.Cid       `json:"cid,omitempty"`
	Digest   digest.Digest `json:"digest,omitempty"`
	Size     int           `json:"size,omitempty"`
	Error    string        `json:"error,omitempty"`

	// Err is the failure of the item, nil on success.
	Err error `json:"-"`
}

// BatchResult is the aggregate result of RunBatch.
type BatchResult struct {
	// DirectoryCID identifies the finalized directory. It is defined even
	// when every item failed.
	DirectoryCID cid.Cid

	// Path is the scratch directory the batch was assembled in.
	Path string

	// FailedLinks are the links whose fetch failed, in completion order.
	FailedLinks []string

	// DroppedLinks are the links that were fetched but could not be uploaded
	// or linked, in completion order.
	DroppedLinks []string

	// Items holds one entry per input link, in input order.
	Items []ItemResult
}

// Succeeded returns the number of items linked into the directory.
func (r *BatchResult) Succeeded() int {
	n := 0
	for _, item := range r.Items {
		if item.Outcome == OutcomeSucceeded {
			n++
		}
	}
	return n
}
