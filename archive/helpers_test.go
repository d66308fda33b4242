package archive

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ipfs/go-cid"
	"github.com/stretchr/testify/require"

	"github.com/distribution/archiver/cluster"
	clusterinmemory "github.com/distribution/archiver/cluster/inmemory"
	"github.com/distribution/archiver/store"
	"github.com/distribution/archiver/store/inmemory"
)

// spyStore records calls made to an in-memory store and injects failures.
type spyStore struct {
	store.Store

	mkdirErr error
	addErr   func(data []byte) error
	copyErr  func(dest string) error

	mu     sync.Mutex
	events []string
}

func newSpyStore() *spyStore {
	return &spyStore{Store: inmemory.New(inmemory.DriverParameters{})}
}

func (s *spyStore) record(event string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

func (s *spyStore) Events() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.events...)
}

func (s *spyStore) Mkdir(ctx context.Context, path string) error {
	s.record("mkdir " + path)
	if s.mkdirErr != nil {
		return s.mkdirErr
	}
	return s.Store.Mkdir(ctx, path)
}

func (s *spyStore) Add(ctx context.Context, r io.Reader) (cid.Cid, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return cid.Undef, err
	}
	s.record("add")
	if s.addErr != nil {
		if err := s.addErr(data); err != nil {
			return cid.Undef, err
		}
	}
	return s.Store.Add(ctx, bytes.NewReader(data))
}

func (s *spyStore) Copy(ctx context.Context, src cid.Cid, dest string) error {
	s.record("copy " + dest)
	if s.copyErr != nil {
		if err := s.copyErr(dest); err != nil {
			return err
		}
	}
	return s.Store.Copy(ctx, src, dest)
}

func (s *spyStore) Stat(ctx context.Context, path string) (store.FileInfo, error) {
	s.record("stat " + path)
	return s.Store.Stat(ctx, path)
}

// failingCluster rejects every request.
type failingCluster struct {
	pins atomic.Int32
}

var _ cluster.Cluster = &failingCluster{}

func (f *failingCluster) Name() string { return "failing" }

func (f *failingCluster) Pin(ctx context.Context, c cid.Cid) error {
	f.pins.Add(1)
	return errors.New("cluster unavailable")
}

func (f *failingCluster) Status(ctx context.Context, c cid.Cid) (*cluster.PinStatus, error) {
	return nil, errors.New("cluster unavailable")
}

func (f *failingCluster) Ping(ctx context.Context) error {
	return errors.New("cluster unavailable")
}

// origin serves test content:
//
//	/ok/<name>     200 with body "content of <name>"
//	/missing       404
//	/flaky/<n>/..  500 for the first n requests of that path, then 200
//	/huge          200 declaring an enormous Content-Length, then 1 byte
type origin struct {
	*httptest.Server

	hits atomic.Int32

	mu     sync.Mutex
	counts map[string]int
	paths  []string

	// gate, when set, is called before answering.
	gate func()
}

func newOrigin(t *testing.T) *origin {
	o := &origin{counts: make(map[string]int)}
	o.Server = httptest.NewServer(http.HandlerFunc(o.serve))
	t.Cleanup(o.Close)
	return o
}

func (o *origin) serve(w http.ResponseWriter, r *http.Request) {
	o.hits.Add(1)
	o.mu.Lock()
	o.counts[r.URL.Path]++
	count := o.counts[r.URL.Path]
	o.paths = append(o.paths, r.URL.Path)
	o.mu.Unlock()

	if o.gate != nil {
		o.gate()
	}

	switch {
	case strings.HasPrefix(r.URL.Path, "/ok/"):
		w.Header().Set("Content-Type", "image/png")
		_, _ = io.WriteString(w, "content of "+strings.TrimPrefix(r.URL.Path, "/ok/"))
	case strings.HasPrefix(r.URL.Path, "/flaky/"):
		var failures int
		switch {
		case strings.HasPrefix(r.URL.Path, "/flaky/1/"):
			failures = 1
		case strings.HasPrefix(r.URL.Path, "/flaky/2/"):
			failures = 2
		}
		if count <= failures {
			http.Error(w, "try again", http.StatusInternalServerError)
			return
		}
		_, _ = io.WriteString(w, "flaky "+r.URL.Path)
	case r.URL.Path == "/huge":
		w.Header().Set("Content-Length", "1125899906842624")
		_, _ = io.WriteString(w, "x")
	default:
		http.NotFound(w, r)
	}
}

// Paths returns the requested paths in arrival order.
func (o *origin) Paths() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.paths...)
}

func (o *origin) link(path string) string {
	return o.URL + path
}

// recordSleep replaces the backoff wait and records requested delays.
type recordSleep struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *recordSleep) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.delays = append(r.delays, d)
	r.mu.Unlock()
	return ctx.Err()
}

func (r *recordSleep) Delays() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.delays...)
}

func testOptions() Options {
	opts := DefaultOptions()
	opts.RetryDelay = 10 * time.Millisecond
	return opts
}

func newTestOrchestrator(t *testing.T, s store.Store, c cluster.Cluster, opts Options) (*Orchestrator, *recordSleep) {
	t.Helper()
	if c == nil {
		c = clusterinmemory.New()
	}
	o, err := NewOrchestrator(s, c, opts)
	require.NoError(t, err)

	sleeper := &recordSleep{}
	o.fetcher.sleep = sleeper.sleep
	return o, sleeper
}

// emptyDirectoryCID is the CIDv0 of an empty unixfs directory.
const emptyDirectoryCID = "QmUNLLsPACCz1vLxQVkXqqLX5R1X345qqfHbsf67hvA3Nn"
