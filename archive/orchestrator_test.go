package archive

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ipfs/go-cid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	clusterinmemory "github.com/distribution/archiver/cluster/inmemory"
	"github.com/distribution/archiver/store"
)

func TestRunBatchAllSucceed(t *testing.T) {
	origin := newOrigin(t)
	s := newSpyStore()
	opts := testOptions()
	opts.Concurrency = 2
	o, sleeper := newTestOrchestrator(t, s, nil, opts)

	links := []string{origin.link("/ok/a"), origin.link("/ok/b"), origin.link("/ok/c")}
	result, err := o.RunBatch(context.Background(), links)
	require.NoError(t, err)

	require.True(t, result.DirectoryCID.Defined())
	assert.Empty(t, result.FailedLinks)
	assert.Empty(t, result.DroppedLinks)
	assert.Empty(t, sleeper.Delays())
	assert.Equal(t, 3, result.Succeeded())
	require.Len(t, result.Items, 3)

	for i, item := range result.Items {
		assert.Equal(t, i+1, item.Position)
		assert.Equal(t, links[i], item.Link)
		assert.Equal(t, OutcomeSucceeded, item.Outcome)
		assert.Equal(t, fmt.Sprintf("%d.png", i+1), item.Filename)
		assert.NoError(t, item.Err)

		fi, err := s.Stat(context.Background(), result.Path+"/"+item.Filename)
		require.NoError(t, err)
		assert.Equal(t, item.CID, fi.Hash)
		assert.Equal(t, uint64(item.Size), fi.Size)
	}
	assert.Equal(t, "sha256", string(result.Items[0].Digest.Algorithm()))

	dir, err := s.Stat(context.Background(), result.Path)
	require.NoError(t, err)
	assert.True(t, dir.IsDir())
	assert.Equal(t, 3, dir.Blocks)
	assert.Equal(t, result.DirectoryCID, dir.Hash)
}

func TestRunBatchFetchFailure(t *testing.T) {
	origin := newOrigin(t)
	s := newSpyStore()
	opts := testOptions()
	opts.RetryDelay = time.Second
	o, sleeper := newTestOrchestrator(t, s, nil, opts)

	link := origin.link("/missing")
	result, err := o.RunBatch(context.Background(), []string{link})
	require.NoError(t, err)

	assert.Equal(t, []string{link}, result.FailedLinks)
	assert.Empty(t, result.DroppedLinks)
	assert.Equal(t, emptyDirectoryCID, result.DirectoryCID.String())
	assert.EqualValues(t, 3, origin.hits.Load())
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, sleeper.Delays())

	require.Len(t, result.Items, 1)
	item := result.Items[0]
	assert.Equal(t, OutcomeFetchFailed, item.Outcome)
	var fetchErr *FetchError
	require.ErrorAs(t, item.Err, &fetchErr)
	assert.Equal(t, 3, fetchErr.Attempts)
	assert.Contains(t, item.Error, "404")
}

func TestRunBatchEmpty(t *testing.T) {
	s := newSpyStore()
	o, _ := newTestOrchestrator(t, s, nil, testOptions())

	for _, links := range [][]string{nil, {}} {
		result, err := o.RunBatch(context.Background(), links)
		assert.ErrorIs(t, err, ErrNoLinks)
		assert.Nil(t, result)
	}
	assert.Empty(t, s.Events())
}

func TestRunBatchInvalidLink(t *testing.T) {
	origin := newOrigin(t)
	o, sleeper := newTestOrchestrator(t, newSpyStore(), nil, testOptions())

	for _, bad := range []string{"", "   ", "ftp://example.com/a.png", "/relative/path", "http://", "http://%zz"} {
		ok := origin.link("/ok/a")
		result, err := o.RunBatch(context.Background(), []string{ok, bad})
		require.NoError(t, err, bad)

		assert.Equal(t, 1, result.Succeeded(), bad)
		assert.NotEqual(t, emptyDirectoryCID, result.DirectoryCID.String())
		assert.Equal(t, []string{bad}, result.FailedLinks)
		assert.Empty(t, result.DroppedLinks)

		require.Len(t, result.Items, 2)
		assert.Equal(t, OutcomeSucceeded, result.Items[0].Outcome)
		item := result.Items[1]
		assert.Equal(t, OutcomeFetchFailed, item.Outcome)
		assert.ErrorIs(t, item.Err, ErrInvalidLink)
		var fetchErr *FetchError
		require.ErrorAs(t, item.Err, &fetchErr)
		assert.Zero(t, fetchErr.Attempts)
	}
	assert.EqualValues(t, 6, origin.hits.Load())
	assert.Empty(t, sleeper.Delays())
}

func TestRunBatchUntrustedContentLength(t *testing.T) {
	origin := newOrigin(t)
	opts := testOptions()
	opts.MaxItemSize = 0
	opts.Retries = 1
	o, _ := newTestOrchestrator(t, newSpyStore(), nil, opts)

	huge := origin.link("/huge")
	var (
		result *BatchResult
		err    error
	)
	require.NotPanics(t, func() {
		result, err = o.RunBatch(context.Background(), []string{origin.link("/ok/a"), huge})
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Succeeded())
	assert.Equal(t, []string{huge}, result.FailedLinks)
}

func TestRunBatchTooManyLinks(t *testing.T) {
	s := newSpyStore()
	opts := testOptions()
	opts.MaxLinks = 2
	o, _ := newTestOrchestrator(t, s, nil, opts)

	_, err := o.RunBatch(context.Background(), []string{"http://a/1", "http://a/2", "http://a/3"})
	assert.ErrorIs(t, err, ErrTooManyLinks)
	assert.Empty(t, s.Events())
}

func TestRunBatchDirectoryCreateFailure(t *testing.T) {
	origin := newOrigin(t)
	s := newSpyStore()
	s.mkdirErr = errors.New("store is read-only")
	o, _ := newTestOrchestrator(t, s, nil, testOptions())

	result, err := o.RunBatch(context.Background(), []string{origin.link("/ok/a"), origin.link("/ok/b")})
	assert.Nil(t, result)

	var createErr *DirectoryCreateError
	require.ErrorAs(t, err, &createErr)
	assert.ErrorIs(t, err, s.mkdirErr)
	assert.Zero(t, origin.hits.Load())
	assert.Len(t, s.Events(), 1)
}

func TestRunBatchFinalizeFailure(t *testing.T) {
	origin := newOrigin(t)
	s := &statFailStore{spyStore: newSpyStore()}
	o, _ := newTestOrchestrator(t, s, nil, testOptions())
	o.newToken = func() string { return "batch" }

	result, err := o.RunBatch(context.Background(), []string{origin.link("/ok/a")})
	assert.Nil(t, result)

	var finalizeErr *FinalizeError
	require.ErrorAs(t, err, &finalizeErr)
	assert.Equal(t, "/batch", finalizeErr.Path)
	assert.EqualValues(t, 1, origin.hits.Load())
}

type statFailStore struct {
	*spyStore
}

func (s *statFailStore) Stat(ctx context.Context, path string) (store.FileInfo, error) {
	return store.FileInfo{}, errors.New("stat unavailable")
}

func TestRunBatchPartition(t *testing.T) {
	origin := newOrigin(t)
	s := newSpyStore()
	s.addErr = func(data []byte) error {
		if strings.Contains(string(data), "reject") {
			return errors.New("add refused")
		}
		return nil
	}
	s.copyErr = func(dest string) error {
		if strings.HasSuffix(dest, "/5.png") {
			return errors.New("copy refused")
		}
		return nil
	}
	opts := testOptions()
	opts.Concurrency = 3
	o, _ := newTestOrchestrator(t, s, nil, opts)

	links := []string{
		origin.link("/ok/a"),
		origin.link("/missing"),
		origin.link("/ok/reject"),
		origin.link("/flaky/1/x"),
		origin.link("/ok/e"),
		origin.link("/ok/f"),
	}
	result, err := o.RunBatch(context.Background(), links)
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{links[1]}, result.FailedLinks)
	assert.ElementsMatch(t, []string{links[2], links[4]}, result.DroppedLinks)
	assert.Equal(t, 3, result.Succeeded())
	assert.Equal(t, len(links), result.Succeeded()+len(result.FailedLinks)+len(result.DroppedLinks))

	want := []Outcome{OutcomeSucceeded, OutcomeFetchFailed, OutcomeUploadFailed, OutcomeSucceeded, OutcomeLinkFailed, OutcomeSucceeded}
	for i, item := range result.Items {
		assert.Equal(t, want[i], item.Outcome, "position %d", i+1)
	}

	var uploadErr *UploadError
	assert.ErrorAs(t, result.Items[2].Err, &uploadErr)
	var linkErr *LinkError
	require.ErrorAs(t, result.Items[4].Err, &linkErr)
	assert.Equal(t, result.Path+"/5.png", linkErr.Path)

	dir, err := s.Stat(context.Background(), result.Path)
	require.NoError(t, err)
	assert.Equal(t, 3, dir.Blocks)
	for _, name := range []string{"1.png", "4.png", "6.png"} {
		_, err := s.Stat(context.Background(), result.Path+"/"+name)
		assert.NoError(t, err, name)
	}
}

func TestRunBatchConcurrencyLimit(t *testing.T) {
	const limit = 3

	origin := newOrigin(t)
	var current, peak atomic.Int32
	origin.gate = func() {
		n := current.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		current.Add(-1)
	}

	opts := testOptions()
	opts.Concurrency = limit
	o, _ := newTestOrchestrator(t, newSpyStore(), nil, opts)

	links := make([]string, 12)
	for i := range links {
		links[i] = origin.link(fmt.Sprintf("/ok/%d", i))
	}
	result, err := o.RunBatch(context.Background(), links)
	require.NoError(t, err)

	assert.Equal(t, len(links), result.Succeeded())
	assert.LessOrEqual(t, peak.Load(), int32(limit))
	assert.GreaterOrEqual(t, peak.Load(), int32(1))
}

func TestRunBatchAdmitsInInputOrder(t *testing.T) {
	origin := newOrigin(t)
	origin.gate = func() {
		time.Sleep(time.Millisecond)
	}

	opts := testOptions()
	opts.Concurrency = 1
	o, _ := newTestOrchestrator(t, newSpyStore(), nil, opts)

	links := make([]string, 8)
	expected := make([]string, len(links))
	for i := range links {
		expected[i] = fmt.Sprintf("/ok/%d", len(links)-i)
		links[i] = origin.link(expected[i])
	}
	result, err := o.RunBatch(context.Background(), links)
	require.NoError(t, err)
	assert.Equal(t, len(links), result.Succeeded())
	assert.Equal(t, expected, origin.Paths())
}

func TestRunBatchFinalizesAfterAllItems(t *testing.T) {
	origin := newOrigin(t)
	s := newSpyStore()
	opts := testOptions()
	opts.Concurrency = 4
	o, _ := newTestOrchestrator(t, s, nil, opts)
	o.newToken = func() string { return "ordered" }

	links := make([]string, 8)
	for i := range links {
		links[i] = origin.link(fmt.Sprintf("/ok/%d", i))
	}
	_, err := o.RunBatch(context.Background(), links)
	require.NoError(t, err)

	events := s.Events()
	require.NotEmpty(t, events)
	assert.Equal(t, "mkdir /ordered", events[0])
	assert.Equal(t, "stat /ordered", events[len(events)-1])

	var copies int
	for _, event := range events[:len(events)-1] {
		assert.False(t, strings.HasPrefix(event, "stat"), event)
		if strings.HasPrefix(event, "copy") {
			copies++
		}
	}
	assert.Equal(t, len(links), copies)
}

func TestRunBatchFilenamesFollowInputOrder(t *testing.T) {
	origin := newOrigin(t)
	// Later links answer first.
	var n atomic.Int32
	origin.gate = func() {
		time.Sleep(time.Duration(5-n.Add(1)) * 5 * time.Millisecond)
	}

	opts := testOptions()
	opts.Concurrency = 4
	opts.Extension = ExtensionAuto
	s := newSpyStore()
	o, _ := newTestOrchestrator(t, s, nil, opts)

	links := []string{origin.link("/ok/1"), origin.link("/ok/2"), origin.link("/ok/3"), origin.link("/ok/4")}
	result, err := o.RunBatch(context.Background(), links)
	require.NoError(t, err)

	for i, item := range result.Items {
		assert.Equal(t, fmt.Sprintf("%d.png", i+1), item.Filename)
		fi, err := s.Stat(context.Background(), result.Path+"/"+item.Filename)
		require.NoError(t, err)
		assert.Equal(t, item.CID, fi.Hash)
	}
}

func TestRunBatchRetriesRecover(t *testing.T) {
	origin := newOrigin(t)
	opts := testOptions()
	opts.RetryDelay = 50 * time.Millisecond
	o, sleeper := newTestOrchestrator(t, newSpyStore(), nil, opts)

	result, err := o.RunBatch(context.Background(), []string{origin.link("/flaky/2/a")})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Succeeded())
	assert.Equal(t, []time.Duration{50 * time.Millisecond, 100 * time.Millisecond}, sleeper.Delays())
	assert.EqualValues(t, 3, origin.hits.Load())
}

func TestRunBatchIdenticalContent(t *testing.T) {
	origin := newOrigin(t)
	s := newSpyStore()
	o, _ := newTestOrchestrator(t, s, nil, testOptions())

	first, err := o.RunBatch(context.Background(), []string{origin.link("/ok/a"), origin.link("/ok/b")})
	require.NoError(t, err)
	second, err := o.RunBatch(context.Background(), []string{origin.link("/ok/a"), origin.link("/ok/b")})
	require.NoError(t, err)

	assert.NotEqual(t, first.Path, second.Path)
	assert.Equal(t, first.DirectoryCID, second.DirectoryCID)
}

func TestPinDirectory(t *testing.T) {
	origin := newOrigin(t)

	c := clusterinmemory.New()
	o, _ := newTestOrchestrator(t, newSpyStore(), c, testOptions())
	result, err := o.RunBatch(context.Background(), []string{origin.link("/ok/a")})
	require.NoError(t, err)

	assert.True(t, o.PinDirectory(context.Background(), result.DirectoryCID))
	assert.True(t, c.Pinned(result.DirectoryCID))
}

func TestPinDirectoryFailure(t *testing.T) {
	origin := newOrigin(t)

	failing := &failingCluster{}
	o, _ := newTestOrchestrator(t, newSpyStore(), failing, testOptions())
	result, err := o.RunBatch(context.Background(), []string{origin.link("/ok/a")})
	require.NoError(t, err)
	before := result.DirectoryCID

	assert.False(t, o.PinDirectory(context.Background(), result.DirectoryCID))
	assert.EqualValues(t, 1, failing.pins.Load())
	assert.Equal(t, before, result.DirectoryCID)
	assert.NotEqual(t, cid.Undef, result.DirectoryCID)
}

func TestNewOrchestratorValidation(t *testing.T) {
	for _, tc := range []struct {
		name   string
		modify func(*Options)
	}{
		{"concurrency", func(o *Options) { o.Concurrency = 0 }},
		{"retries", func(o *Options) { o.Retries = 0 }},
		{"delay", func(o *Options) { o.RetryDelay = -time.Second }},
		{"extension", func(o *Options) { o.Extension = "" }},
	} {
		t.Run(tc.name, func(t *testing.T) {
			opts := DefaultOptions()
			tc.modify(&opts)
			_, err := NewOrchestrator(newSpyStore(), clusterinmemory.New(), opts)
			assert.Error(t, err)
		})
	}

	_, err := NewOrchestrator(nil, clusterinmemory.New(), DefaultOptions())
	assert.Error(t, err)
	_, err = NewOrchestrator(newSpyStore(), nil, DefaultOptions())
	assert.Error(t, err)
}
