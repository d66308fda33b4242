package metrics

import "github.com/docker/go-metrics"

const (
	// NamespacePrefix is the namespace of prometheus metrics
	NamespacePrefix = "archiver"
)

var (
	// ArchiveNamespace is the prometheus namespace of batch pipeline operations
	ArchiveNamespace = metrics.NewNamespace(NamespacePrefix, "archive", nil)

	// StoreNamespace is the prometheus namespace of content store operations
	StoreNamespace = metrics.NewNamespace(NamespacePrefix, "store", nil)

	// ClusterNamespace is the prometheus namespace of pinning cluster operations
	ClusterNamespace = metrics.NewNamespace(NamespacePrefix, "cluster", nil)

	// HTTPNamespace is the prometheus namespace of http request handling
	HTTPNamespace = metrics.NewNamespace(NamespacePrefix, "http", nil)
)
