package v1

import (
	"github.com/distribution/archiver/archive"
	"github.com/distribution/archiver/cluster"
)

// AddRequest is the body of a batch request.
type AddRequest struct {
	Links []string `json:"links"`
}

// AddResponse is the body answered to a batch request.
type AddResponse struct {
	Data AddResult `json:"data"`
}

// AddResult describes an archived batch.
type AddResult struct {
	// IpfsHash is the identifier of the batch directory.
	IpfsHash string `json:"IpfsHash"`

	// Pin reports whether the cluster accepted the pin request.
	Pin bool `json:"pin"`

	// FailedLinks are links that could not be fetched.
	FailedLinks []string `json:"failedLinks"`

	// DroppedLinks are links that were fetched but could not be stored.
	DroppedLinks []string `json:"droppedLinks"`

	// Items is the outcome of every link, only present when requested.
	Items []archive.ItemResult `json:"items,omitempty"`
}

// CheckStatusRequest is the body of a pin status request.
type CheckStatusRequest struct {
	CID string `json:"cid"`
}

// CheckStatusResponse relays the pin status reported by the cluster.
type CheckStatusResponse struct {
	Status *cluster.PinStatus `json:"status"`
}
