package archive

import (
	"context"
	"sync"
	"time"

	"github.com/ipfs/go-cid"
	"github.com/jellydator/ttlcache/v3"

	"github.com/distribution/archiver/cluster"
	"github.com/distribution/archiver/internal/dcontext"
)

// StatusReporter answers pin status queries from the cluster. Answers are
// cached for a short time when a ttl is configured.
type StatusReporter struct {
	cluster cluster.Cluster
	cache   *ttlcache.Cache[string, *cluster.PinStatus]
	ttl     time.Duration

	startOnce sync.Once
	stopOnce  sync.Once
	stop      chan struct{}
	done      chan struct{}
}

// NewStatusReporter returns a reporter querying c. A zero ttl disables
// caching.
func NewStatusReporter(c cluster.Cluster, ttl time.Duration) *StatusReporter {
	r := &StatusReporter{
		cluster: c,
		ttl:     ttl,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	if ttl > 0 {
		r.cache = ttlcache.New[string, *cluster.PinStatus](
			ttlcache.WithTTL[string, *cluster.PinStatus](ttl),
			ttlcache.WithDisableTouchOnHit[string, *cluster.PinStatus](),
		)
	}
	return r
}

// Start launches the expiry loop of the cache in the background. Calls
// after the first, or after Stop, do nothing.
func (r *StatusReporter) Start() {
	r.startOnce.Do(func() {
		if r.cache == nil {
			close(r.done)
			return
		}
		go r.expire()
	})
}

// Stop ends the expiry loop and waits for it to exit. It is safe to call
// more than once, and without a prior Start.
func (r *StatusReporter) Stop() {
	r.stopOnce.Do(func() {
		close(r.stop)
	})
	r.startOnce.Do(func() {
		close(r.done)
	})
	<-r.done
}

func (r *StatusReporter) expire() {
	defer close(r.done)

	ticker := time.NewTicker(r.ttl)
	defer ticker.Stop()

	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
			r.cache.DeleteExpired()
		}
	}
}

// Status returns the pin status of the content identified by id.
func (r *StatusReporter) Status(ctx context.Context, id string) (*cluster.PinStatus, error) {
	c, err := cid.Decode(id)
	if err != nil {
		return nil, &InvalidCIDError{Value: id, Err: err}
	}

	key := c.String()
	if r.cache != nil {
		if item := r.cache.Get(key); item != nil {
			dcontext.GetLoggerWithField(ctx, "cid", key).Debug("pin status served from cache")
			return item.Value(), nil
		}
	}

	status, err := r.cluster.Status(ctx, c)
	if err != nil {
		return nil, err
	}

	if r.cache != nil {
		r.cache.Set(key, status, ttlcache.DefaultTTL)
	}
	return status, nil
}
