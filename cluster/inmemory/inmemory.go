// Package inmemory provides a cluster.Cluster that keeps pins in process
// memory, as a single peer that pins instantly. Intended for development
// and tests.
package inmemory

import (
	"context"
	"sync"
	"time"

	"github.com/distribution/archiver/cluster"
	"github.com/ipfs/go-cid"
)

const (
	driverName = "inmemory"
	peerID     = "inmemory"
)

func init() {
	cluster.Register(driverName, &factory{})
}

type factory struct{}

func (f *factory) Create(ctx context.Context, parameters map[string]interface{}) (cluster.Cluster, error) {
	return New(), nil
}

// Driver is an in-memory single-peer cluster.
type Driver struct {
	mu   sync.Mutex
	pins map[cid.Cid]time.Time
	now  func() time.Time
}

var _ cluster.Cluster = &Driver{}

// New returns an empty cluster.
func New() *Driver {
	return &Driver{
		pins: make(map[cid.Cid]time.Time),
		now:  time.Now,
	}
}

// Name returns the driver name.
func (d *Driver) Name() string {
	return driverName
}

// Pin records c as pinned.
func (d *Driver) Pin(ctx context.Context, c cid.Cid) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.pins[c]; !ok {
		d.pins[c] = d.now()
	}
	return nil
}

// Status reports c as pinned or unpinned on the single peer.
func (d *Driver) Status(ctx context.Context, c cid.Cid) (*cluster.PinStatus, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	pinnedAt, ok := d.pins[c]
	d.mu.Unlock()

	peer := cluster.PeerStatus{
		PeerName:  peerID,
		Status:    cluster.StatusUnpinned,
		Timestamp: d.now().UTC(),
	}
	if ok {
		peer.Status = cluster.StatusPinned
		peer.Timestamp = pinnedAt.UTC()
	}

	return &cluster.PinStatus{
		Cid:     c.String(),
		PeerMap: map[string]cluster.PeerStatus{peerID: peer},
	}, nil
}

// Ping always succeeds.
func (d *Driver) Ping(ctx context.Context) error {
	return nil
}

// Pinned reports whether c has been pinned.
func (d *Driver) Pinned(c cid.Cid) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	_, ok := d.pins[c]
	return ok
}
