package cluster

import (
	"context"
	"time"

	"github.com/docker/go-metrics"
	"github.com/ipfs/go-cid"

	prometheus "github.com/distribution/archiver/metrics"
)

// clusterAction is the latency of cluster calls by driver and operation
var clusterAction = prometheus.ClusterNamespace.NewLabeledTimer("action", "The number of seconds that the cluster action takes", "driver", "operation")

func init() {
	metrics.Register(prometheus.ClusterNamespace)
}

type prometheusCluster struct {
	Cluster
	latencyTimer metrics.LabeledTimer
}

// NewPrometheusCluster wraps c so that the latency of every call is
// recorded.
func NewPrometheusCluster(wrap Cluster) Cluster {
	return &prometheusCluster{wrap, clusterAction}
}

func (p *prometheusCluster) Pin(ctx context.Context, c cid.Cid) error {
	start := time.Now()
	e := p.Cluster.Pin(ctx, c)
	p.latencyTimer.WithValues(p.Name(), "Pin").UpdateSince(start)
	return e
}

func (p *prometheusCluster) Status(ctx context.Context, c cid.Cid) (*PinStatus, error) {
	start := time.Now()
	s, e := p.Cluster.Status(ctx, c)
	p.latencyTimer.WithValues(p.Name(), "Status").UpdateSince(start)
	return s, e
}

func (p *prometheusCluster) Ping(ctx context.Context) error {
	start := time.Now()
	e := p.Cluster.Ping(ctx)
	p.latencyTimer.WithValues(p.Name(), "Ping").UpdateSince(start)
	return e
}
