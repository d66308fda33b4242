package base

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/distribution/archiver/store"
	"github.com/ipfs/go-cid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubStore struct {
	mkdirs []string
	err    error
}

func (s *stubStore) Name() string { return "stub" }

func (s *stubStore) Mkdir(ctx context.Context, path string) error {
	s.mkdirs = append(s.mkdirs, path)
	return s.err
}

func (s *stubStore) Add(ctx context.Context, r io.Reader) (cid.Cid, error) {
	return cid.Undef, s.err
}

func (s *stubStore) Copy(ctx context.Context, src cid.Cid, dest string) error {
	return s.err
}

func (s *stubStore) Stat(ctx context.Context, path string) (store.FileInfo, error) {
	if s.err != nil {
		return store.FileInfo{}, s.err
	}
	return store.FileInfo{Path: path, Type: "directory"}, nil
}

func TestBaseRejectsInvalidPaths(t *testing.T) {
	inner := &stubStore{}
	b := &Base{Store: inner}
	ctx := context.Background()

	for _, path := range []string{"", "relative", "/with space", "/a//b", "/a/"} {
		err := b.Mkdir(ctx, path)
		var invalid store.InvalidPathError
		require.ErrorAs(t, err, &invalid, path)
		assert.Equal(t, "stub", invalid.DriverName)
	}
	assert.Empty(t, inner.mkdirs)

	err := b.Copy(ctx, cid.Undef, "/")
	assert.ErrorAs(t, err, new(store.InvalidPathError))

	require.NoError(t, b.Mkdir(ctx, "/batch-1"))
	assert.Equal(t, []string{"/batch-1"}, inner.mkdirs)
}

func TestBaseWrapsErrors(t *testing.T) {
	cause := errors.New("connection refused")
	b := &Base{Store: &stubStore{err: cause}}

	_, err := b.Stat(context.Background(), "/batch-1")
	var serr store.Error
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "stub", serr.DriverName)
	assert.ErrorIs(t, err, cause)
}

func TestBaseKeepsNotFound(t *testing.T) {
	b := &Base{Store: &stubStore{err: store.PathNotFoundError{Path: "/missing"}}}

	_, err := b.Stat(context.Background(), "/missing")
	var notFound store.PathNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "stub", notFound.DriverName)
	assert.Equal(t, "/missing", notFound.Path)
}
