package archive

import (
	"bytes"
	"context"

	"github.com/ipfs/go-cid"

	"github.com/distribution/archiver/store"
)

// Uploader submits payloads to the content store.
type Uploader struct {
	store store.Store
}

// NewUploader returns an uploader writing to s.
func NewUploader(s store.Store) *Uploader {
	return &Uploader{store: s}
}

// Upload adds data to the store and returns its identifier. Failures are
// returned as *UploadError and are never retried.
func (u *Uploader) Upload(ctx context.Context, link string, data []byte) (cid.Cid, error) {
	c, err := u.store.Add(ctx, bytes.NewReader(data))
	if err != nil {
		return cid.Undef, &UploadError{Link: link, Err: err}
	}
	return c, nil
}
