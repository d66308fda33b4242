package archive

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ipfs/go-cid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/distribution/archiver/cluster"
	clusterinmemory "github.com/distribution/archiver/cluster/inmemory"
)

type countingCluster struct {
	*clusterinmemory.Driver
	statuses atomic.Int32
}

func (c *countingCluster) Status(ctx context.Context, id cid.Cid) (*cluster.PinStatus, error) {
	c.statuses.Add(1)
	return c.Driver.Status(ctx, id)
}

func TestStatusReporter(t *testing.T) {
	c := &countingCluster{Driver: clusterinmemory.New()}
	id, err := cid.Decode(emptyDirectoryCID)
	require.NoError(t, err)
	require.NoError(t, c.Pin(context.Background(), id))

	r := NewStatusReporter(c, 0)
	for i := 0; i < 2; i++ {
		status, err := r.Status(context.Background(), emptyDirectoryCID)
		require.NoError(t, err)
		assert.Equal(t, cluster.StatusPinned, status.Summary())
	}
	assert.EqualValues(t, 2, c.statuses.Load())
}

func TestStatusReporterCache(t *testing.T) {
	c := &countingCluster{Driver: clusterinmemory.New()}
	r := NewStatusReporter(c, time.Minute)
	r.Start()
	defer r.Stop()

	first, err := r.Status(context.Background(), emptyDirectoryCID)
	require.NoError(t, err)
	second, err := r.Status(context.Background(), emptyDirectoryCID)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.EqualValues(t, 1, c.statuses.Load())
}

func TestStatusReporterLifecycle(t *testing.T) {
	stopped := func(r *StatusReporter) bool {
		done := make(chan struct{})
		go func() {
			r.Stop()
			close(done)
		}()
		select {
		case <-done:
			return true
		case <-time.After(5 * time.Second):
			return false
		}
	}

	// Stop right after Start, before the loop had a chance to run.
	for i := 0; i < 100; i++ {
		r := NewStatusReporter(clusterinmemory.New(), time.Millisecond)
		r.Start()
		require.True(t, stopped(r))
		require.True(t, stopped(r))
	}

	// Stop without Start, then a late Start stays stopped.
	r := NewStatusReporter(clusterinmemory.New(), time.Minute)
	require.True(t, stopped(r))
	r.Start()
	require.True(t, stopped(r))

	// Without a cache there is no loop.
	r = NewStatusReporter(clusterinmemory.New(), 0)
	r.Start()
	require.True(t, stopped(r))
}

func TestStatusReporterExpiry(t *testing.T) {
	c := &countingCluster{Driver: clusterinmemory.New()}
	r := NewStatusReporter(c, 10*time.Millisecond)
	r.Start()
	defer r.Stop()

	_, err := r.Status(context.Background(), emptyDirectoryCID)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return r.cache.Len() == 0
	}, 5*time.Second, 5*time.Millisecond)

	_, err = r.Status(context.Background(), emptyDirectoryCID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, c.statuses.Load())
}

func TestStatusReporterInvalidCID(t *testing.T) {
	c := &countingCluster{Driver: clusterinmemory.New()}
	r := NewStatusReporter(c, time.Minute)

	_, err := r.Status(context.Background(), "not-a-cid")
	var invalid *InvalidCIDError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "not-a-cid", invalid.Value)
	assert.Zero(t, c.statuses.Load())
}

func TestStatusReporterClusterError(t *testing.T) {
	r := NewStatusReporter(&failingCluster{}, time.Minute)
	_, err := r.Status(context.Background(), emptyDirectoryCID)
	assert.Error(t, err)
}
