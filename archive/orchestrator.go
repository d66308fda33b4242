// Package archive implements the batch pipeline: links are fetched with
// retries, uploaded to the content store, linked into a per-batch scratch
// directory under positional filenames, and the finished directory is
// pinned on the cluster.
package archive

import (
	"context"
	"fmt"
	"time"

	"github.com/ipfs/go-cid"
	"golang.org/x/sync/errgroup"

	"github.com/distribution/archiver/cluster"
	"github.com/distribution/archiver/internal/dcontext"
	"github.com/distribution/archiver/internal/uuid"
	"github.com/distribution/archiver/store"
)

// Orchestrator runs batches against one store and one cluster. It is safe
// for concurrent use; every batch gets its own scratch directory and state.
type Orchestrator struct {
	opts     Options
	fetcher  *Fetcher
	uploader *Uploader
	pinner   *Pinner
	store    store.Store

	newToken func() string
}

// NewOrchestrator validates opts and returns an orchestrator.
func NewOrchestrator(s store.Store, c cluster.Cluster, opts Options) (*Orchestrator, error) {
	if s == nil {
		return nil, fmt.Errorf("archive: store is required")
	}
	if c == nil {
		return nil, fmt.Errorf("archive: cluster is required")
	}
	if err := opts.validate(); err != nil {
		return nil, fmt.Errorf("archive: %w", err)
	}

	return &Orchestrator{
		opts:     opts,
		fetcher:  NewFetcher(opts),
		uploader: NewUploader(s),
		pinner:   NewPinner(c),
		store:    s,
		newToken: uuid.NewToken,
	}, nil
}

// RunBatch archives links into a fresh directory and returns its identifier
// with the outcome of every link. Item failures, malformed links included,
// are reported in the result. Errors are returned only for an empty or
// oversized batch, or when the directory cannot be created or finalized.
func (o *Orchestrator) RunBatch(ctx context.Context, links []string) (*BatchResult, error) {
	if err := o.validate(links); err != nil {
		return nil, err
	}

	token := o.newToken()
	ctx = dcontext.WithBatch(ctx, token)
	logger := dcontext.GetLogger(ctx)

	start := time.Now()
	defer batchTimer.UpdateSince(start)

	dir := NewAssembler(o.store, "/"+token)
	if err := dir.Create(ctx); err != nil {
		logger.WithError(err).Error("batch aborted")
		return nil, err
	}
	logger.WithField("batch.links", len(links)).Info("batch started")

	state := newBatchState(links)

	var g errgroup.Group
	g.SetLimit(o.opts.Concurrency)
	for i, link := range links {
		position := i + 1
		g.Go(func() error {
			o.process(ctx, dir, state, position, link)
			return nil
		})
	}
	_ = g.Wait()

	c, err := dir.Finalize(ctx)
	if err != nil {
		logger.WithError(err).Error("batch aborted")
		return nil, err
	}

	result := state.result(dir.Path(), c)
	entry := logger.WithFields(map[string]any{
		"batch.cid":       c.String(),
		"batch.succeeded": result.Succeeded(),
		"batch.failed":    len(result.FailedLinks),
		"batch.dropped":   len(result.DroppedLinks),
		"batch.duration":  time.Since(start).String(),
	})
	if err := state.err(); err != nil {
		entry.WithError(err).Warn("batch finished with failures")
	} else {
		entry.Info("batch finished")
	}

	return result, nil
}

// PinDirectory asks the cluster to pin c. It never fails; false means the
// pin was not accepted.
func (o *Orchestrator) PinDirectory(ctx context.Context, c cid.Cid) bool {
	return o.pinner.Pin(ctx, c)
}

func (o *Orchestrator) process(ctx context.Context, dir *Assembler, state *batchState, position int, link string) {
	inflight.Inc(1)
	defer inflight.Dec(1)

	logger := dcontext.GetLoggerWithFields(ctx, map[any]any{
		"link.position": position,
		"link.url":      link,
	})

	payload, err := o.fetcher.Fetch(ctx, link, o.opts.Retries, o.opts.RetryDelay)
	if err != nil {
		logger.WithError(err).Warn("fetch failed")
		state.fail(position, OutcomeFetchFailed, err)
		return
	}

	c, err := o.uploader.Upload(ctx, link, payload.Data)
	if err != nil {
		logger.WithError(err).Warn("upload failed")
		state.fail(position, OutcomeUploadFailed, err)
		return
	}

	filename := Filename(position, o.opts.Extension, payload.ContentType, link)
	if err := dir.Link(ctx, link, filename, c); err != nil {
		logger.WithError(err).Warn("link failed")
		state.fail(position, OutcomeLinkFailed, err)
		return
	}

	logger.WithFields(map[string]any{
		"item.cid":    c.String(),
		"item.digest": payload.Digest.String(),
		"item.size":   len(payload.Data),
	}).Debug("item archived")
	state.succeed(position, filename, c, payload)
}

func (o *Orchestrator) validate(links []string) error {
	if len(links) == 0 {
		return ErrNoLinks
	}
	if o.opts.MaxLinks > 0 && len(links) > o.opts.MaxLinks {
		return fmt.Errorf("%w: %d links, limit %d", ErrTooManyLinks, len(links), o.opts.MaxLinks)
	}
	return nil
}
