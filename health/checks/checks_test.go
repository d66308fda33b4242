package checks

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/distribution/archiver/cluster"
	clusterinmemory "github.com/distribution/archiver/cluster/inmemory"
	"github.com/distribution/archiver/store"
	"github.com/distribution/archiver/store/inmemory"
)

type brokenStore struct {
	store.Store
	err error
}

func (b brokenStore) Stat(ctx context.Context, path string) (store.FileInfo, error) {
	return store.FileInfo{}, b.err
}

type unreachableCluster struct {
	cluster.Cluster
}

func (unreachableCluster) Ping(ctx context.Context) error {
	return errors.New("connection refused")
}

func TestStoreChecker(t *testing.T) {
	assert.NoError(t, StoreChecker(inmemory.New(inmemory.DriverParameters{})).Check(context.Background()))

	missing := brokenStore{err: store.PathNotFoundError{Path: "/", DriverName: "broken"}}
	assert.NoError(t, StoreChecker(missing).Check(context.Background()))

	down := brokenStore{err: store.Error{DriverName: "broken", Detail: errors.New("connection refused")}}
	assert.Error(t, StoreChecker(down).Check(context.Background()))
}

func TestClusterChecker(t *testing.T) {
	assert.NoError(t, ClusterChecker(clusterinmemory.New()).Check(context.Background()))
	assert.EqualError(t, ClusterChecker(unreachableCluster{}).Check(context.Background()), "connection refused")
}
