package archive

import (
	"context"
	"path"

	"github.com/ipfs/go-cid"

	"github.com/distribution/archiver/store"
)

// Assembler builds the scratch directory of one batch in the mutable
// namespace of the store.
type Assembler struct {
	store store.Store
	path  string
}

// NewAssembler returns an assembler for the directory at p.
func NewAssembler(s store.Store, p string) *Assembler {
	return &Assembler{store: s, path: p}
}

// Path returns the directory path.
func (a *Assembler) Path() string {
	return a.path
}

// Create makes the directory and its parents.
func (a *Assembler) Create(ctx context.Context) error {
	if err := a.store.Mkdir(ctx, a.path); err != nil {
		return &DirectoryCreateError{Path: a.path, Err: err}
	}
	return nil
}

// Link places the content c at filename inside the directory.
func (a *Assembler) Link(ctx context.Context, link, filename string, c cid.Cid) error {
	dest := path.Join(a.path, filename)
	if err := a.store.Copy(ctx, c, dest); err != nil {
		return &LinkError{Link: link, Path: dest, Err: err}
	}
	return nil
}

// Finalize resolves the directory to its identifier. It must only be called
// once every Link call has returned.
func (a *Assembler) Finalize(ctx context.Context) (cid.Cid, error) {
	fi, err := a.store.Stat(ctx, a.path)
	if err != nil {
		return cid.Undef, &FinalizeError{Path: a.path, Err: err}
	}
	if !fi.Hash.Defined() {
		return cid.Undef, &FinalizeError{Path: a.path, Err: errUndefinedHash}
	}
	return fi.Hash, nil
}
