// Package checks provides the health checks of the archiver's
// collaborators.
package checks

import (
	"context"

	"github.com/distribution/archiver/cluster"
	"github.com/distribution/archiver/health"
	"github.com/distribution/archiver/store"
)

// StoreChecker stats the root of the mutable namespace of s. A missing root
// still proves the store answers.
func StoreChecker(s store.Store) health.Checker {
	return health.CheckFunc(func(ctx context.Context) error {
		_, err := s.Stat(ctx, "/")
		if _, ok := err.(store.PathNotFoundError); err != nil && !ok {
			return err
		}
		return nil
	})
}

// ClusterChecker pings the cluster API.
func ClusterChecker(c cluster.Cluster) health.Checker {
	return health.CheckFunc(func(ctx context.Context) error {
		return c.Ping(ctx)
	})
}
