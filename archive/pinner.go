package archive

import (
	"context"

	"github.com/ipfs/go-cid"

	"github.com/distribution/archiver/cluster"
	"github.com/distribution/archiver/internal/dcontext"
)

// Pinner requests replication of finished directories.
type Pinner struct {
	cluster cluster.Cluster
}

// NewPinner returns a pinner using c.
func NewPinner(c cluster.Cluster) *Pinner {
	return &Pinner{cluster: c}
}

// Pin asks the cluster to pin c and reports whether it accepted. Failures
// are logged and never returned.
func (p *Pinner) Pin(ctx context.Context, c cid.Cid) bool {
	logger := dcontext.GetLoggerWithField(ctx, "cid", c.String())
	if err := p.cluster.Pin(ctx, c); err != nil {
		pins.WithValues("failure").Inc(1)
		logger.WithError(err).Error("pinning directory failed")
		return false
	}
	pins.WithValues("success").Inc(1)
	logger.Info("directory pinned")
	return true
}
