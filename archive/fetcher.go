package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/opencontainers/go-digest"

	"github.com/distribution/archiver/internal/dcontext"
)

// Payload is the body of a successfully fetched link.
type Payload struct {
	Data        []byte
	ContentType string
	Digest      digest.Digest
}

// Fetcher retrieves links over http, retrying failed attempts with
// exponential backoff.
type Fetcher struct {
	client    *http.Client
	userAgent string
	timeout   time.Duration
	maxSize   int64

	// sleep waits for d or until ctx is done.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewFetcher returns a fetcher configured from opts.
func NewFetcher(opts Options) *Fetcher {
	client := opts.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	return &Fetcher{
		client:    client,
		userAgent: opts.UserAgent,
		timeout:   opts.FetchTimeout,
		maxSize:   opts.MaxItemSize,
		sleep:     sleepContext,
	}
}

// Fetch retrieves link, making at most maxAttempts attempts. After failed
// attempt i (counting from zero) it waits baseDelay * 2^i, except after the
// last one. A link that is not an absolute http or https URL fails without
// any attempt. The returned error is always a *FetchError.
func (f *Fetcher) Fetch(ctx context.Context, link string, maxAttempts int, baseDelay time.Duration) (*Payload, error) {
	if err := validateLink(link); err != nil {
		return nil, &FetchError{Link: link, Err: err}
	}
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		payload, err := f.attempt(ctx, link)
		if err == nil {
			fetchAttempts.WithValues("success").Inc(1)
			return payload, nil
		}
		fetchAttempts.WithValues("failure").Inc(1)

		if errors.Is(err, ErrItemTooLarge) {
			return nil, &FetchError{Link: link, Attempts: attempt + 1, Err: err}
		}
		lastErr = &transientFetchError{Attempt: attempt, StatusCode: statusOf(err), Err: err}

		if attempt == maxAttempts-1 {
			break
		}

		delay := baseDelay * time.Duration(1<<attempt)
		dcontext.GetLoggerWithFields(ctx, map[any]any{
			"link.url":      link,
			"fetch.attempt": attempt + 1,
			"fetch.delay":   delay.String(),
		}).WithError(err).Warn("fetch attempt failed, retrying")

		if err := f.sleep(ctx, delay); err != nil {
			return nil, &FetchError{Link: link, Attempts: attempt + 1, Err: err}
		}
	}

	return nil, &FetchError{Link: link, Attempts: maxAttempts, Err: lastErr}
}

func validateLink(link string) error {
	if strings.TrimSpace(link) == "" {
		return fmt.Errorf("%w: blank", ErrInvalidLink)
	}
	u, err := url.Parse(link)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidLink, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: unsupported scheme %q", ErrInvalidLink, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: missing host", ErrInvalidLink)
	}
	return nil
}

type statusError int

func (e statusError) Error() string {
	return fmt.Sprintf("unexpected status %d", int(e))
}

func statusOf(err error) int {
	var se statusError
	if errors.As(err, &se) {
		return int(se)
	}
	return 0
}

func (f *Fetcher) attempt(ctx context.Context, link string) (*Payload, error) {
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return nil, err
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return nil, statusError(resp.StatusCode)
	}

	if f.maxSize > 0 && resp.ContentLength > f.maxSize {
		return nil, fmt.Errorf("%w: content length %d, limit %d", ErrItemTooLarge, resp.ContentLength, f.maxSize)
	}

	var body io.Reader = resp.Body
	if f.maxSize > 0 {
		body = io.LimitReader(resp.Body, f.maxSize+1)
	}

	// The declared length is only trusted up to the item limit.
	var buf bytes.Buffer
	if f.maxSize > 0 && resp.ContentLength > 0 && resp.ContentLength <= f.maxSize {
		buf.Grow(int(resp.ContentLength))
	}
	if _, err := buf.ReadFrom(body); err != nil {
		return nil, err
	}
	if f.maxSize > 0 && int64(buf.Len()) > f.maxSize {
		return nil, fmt.Errorf("%w: limit %d", ErrItemTooLarge, f.maxSize)
	}

	data := buf.Bytes()
	return &Payload{
		Data:        data,
		ContentType: resp.Header.Get("Content-Type"),
		Digest:      digest.FromBytes(data),
	}, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
