// Package cluster defines the pinning cluster the archiver replicates
// finished directories to, and a registry of cluster drivers.
package cluster

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/ipfs/go-cid"
)

// Cluster replicates content across the peers of a pinning cluster.
type Cluster interface {
	// Name returns the registration name of the driver.
	Name() string

	// Pin requests that every peer of the cluster pins c.
	Pin(ctx context.Context, c cid.Cid) error

	// Status reports the pin status of c on every peer.
	Status(ctx context.Context, c cid.Cid) (*PinStatus, error)

	// Ping checks that the cluster API is reachable.
	Ping(ctx context.Context) error
}

// Tracker status values reported per peer.
const (
	StatusPinned       = "pinned"
	StatusPinning      = "pinning"
	StatusQueued       = "pin_queued"
	StatusPinError     = "pin_error"
	StatusUnpinned     = "unpinned"
	StatusRemote       = "remote"
	StatusClusterError = "cluster_error"
)

// PeerStatus is the pin state of a content identifier on one peer.
type PeerStatus struct {
	PeerName     string    `json:"peername"`
	IPFSPeerID   string    `json:"ipfs_peer_id,omitempty"`
	Status       string    `json:"status"`
	Timestamp    time.Time `json:"timestamp"`
	Error        string    `json:"error"`
	AttemptCount int       `json:"attempt_count,omitempty"`
	PriorityPin  bool      `json:"priority_pin,omitempty"`
}

// PinStatus is the global pin state of a content identifier. When it was
// decoded from a cluster answer, Raw keeps that answer so it can be relayed
// verbatim.
type PinStatus struct {
	Cid     string                `json:"cid"`
	Name    string                `json:"name"`
	PeerMap map[string]PeerStatus `json:"peer_map"`

	Raw json.RawMessage `json:"-"`
}

// MarshalJSON relays the original cluster answer when there is one.
func (s *PinStatus) MarshalJSON() ([]byte, error) {
	if len(s.Raw) > 0 {
		return s.Raw, nil
	}
	type plain PinStatus
	return json.Marshal((*plain)(s))
}

// UnmarshalJSON decodes a cluster answer and keeps a copy in Raw.
func (s *PinStatus) UnmarshalJSON(data []byte) error {
	type plain PinStatus
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*s = PinStatus(p)
	s.Raw = append(json.RawMessage(nil), data...)
	return nil
}

// Summary folds the per-peer states into one. An error on any peer wins,
// then any peer still working, then "pinned" when every peer that tracks
// the content has it.
func (s *PinStatus) Summary() string {
	if len(s.PeerMap) == 0 {
		return StatusUnpinned
	}

	counts := make(map[string]int)
	for _, peer := range s.PeerMap {
		counts[peer.Status]++
	}

	for _, status := range []string{StatusClusterError, StatusPinError, StatusPinning, StatusQueued} {
		if counts[status] > 0 {
			return status
		}
	}
	if counts[StatusPinned] > 0 {
		return StatusPinned
	}
	if counts[StatusRemote] == len(s.PeerMap) {
		return StatusRemote
	}
	return StatusUnpinned
}

// Peers returns the peer ids in sorted order.
func (s *PinStatus) Peers() []string {
	peers := make([]string, 0, len(s.PeerMap))
	for id := range s.PeerMap {
		peers = append(peers, id)
	}
	sort.Strings(peers)
	return peers
}

// Factory creates cluster drivers from configuration parameters.
type Factory interface {
	Create(ctx context.Context, parameters map[string]interface{}) (Cluster, error)
}

var factories = make(map[string]Factory)

// Register makes a cluster driver available by the provided name.
// If Register is called twice with the same name or if factory is nil, it panics.
func Register(name string, factory Factory) {
	if factory == nil {
		panic("Must not provide nil cluster Factory")
	}
	if _, registered := factories[name]; registered {
		panic(fmt.Sprintf("cluster Factory named %s already registered", name))
	}
	factories[name] = factory
}

// Create constructs the cluster driver registered under name.
func Create(ctx context.Context, name string, parameters map[string]interface{}) (Cluster, error) {
	factory, ok := factories[name]
	if !ok {
		return nil, InvalidClusterDriverError{name}
	}
	return factory.Create(ctx, parameters)
}

// InvalidClusterDriverError records an attempt to construct an unregistered
// cluster driver.
type InvalidClusterDriverError struct {
	Name string
}

func (err InvalidClusterDriverError) Error() string {
	return fmt.Sprintf("cluster driver not registered: %s", err.Name)
}
