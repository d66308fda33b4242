package archive

import (
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/ipfs/go-cid"
)

// batchState accumulates item outcomes of one batch. Tasks of the batch
// write to it concurrently.
type batchState struct {
	mu      sync.Mutex
	items   []ItemResult
	failed  []string
	dropped []string
	errs    *multierror.Error
}

func newBatchState(links []string) *batchState {
	items := make([]ItemResult, len(links))
	for i, link := range links {
		items[i] = ItemResult{Position: i + 1, Link: link}
	}
	return &batchState{items: items}
}

func (s *batchState) succeed(position int, filename string, c cid.Cid, payload *Payload) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item := &s.items[position-1]
	item.Outcome = OutcomeSucceeded
	item.Filename = filename
	item.CID = c
	item.Digest = payload.Digest
	item.Size = len(payload.Data)
	itemOutcomes.WithValues(OutcomeSucceeded.String()).Inc(1)
}

func (s *batchState) fail(position int, outcome Outcome, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item := &s.items[position-1]
	item.Outcome = outcome
	item.Err = err
	item.Error = err.Error()

	if outcome == OutcomeFetchFailed {
		s.failed = append(s.failed, item.Link)
	} else {
		s.dropped = append(s.dropped, item.Link)
	}
	s.errs = multierror.Append(s.errs, err)
	itemOutcomes.WithValues(outcome.String()).Inc(1)
}

func (s *batchState) result(path string, c cid.Cid) *BatchResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	return &BatchResult{
		DirectoryCID: c,
		Path:         path,
		FailedLinks:  append([]string{}, s.failed...),
		DroppedLinks: append([]string{}, s.dropped...),
		Items:        append([]ItemResult(nil), s.items...),
	}
}

// err returns the combined failures of the batch, or nil.
func (s *batchState) err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errs.ErrorOrNil()
}
