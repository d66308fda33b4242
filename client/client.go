// Package client implements a client for the archiver http api.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	v1 "github.com/distribution/archiver/api/v1"
	"github.com/distribution/archiver/cluster"
	internalclient "github.com/distribution/archiver/internal/client"
)

// Client implements the client interface to the archiver http api
type Client interface {
	// Ping checks that the archiver answers on its base route.
	Ping(ctx context.Context) error

	// Add archives a batch of links into a new directory. When verbose is
	// set the result carries the outcome of every link.
	Add(ctx context.Context, links []string, verbose bool) (*v1.AddResult, error)

	// CheckStatus returns the pin status of a content identifier.
	CheckStatus(ctx context.Context, cid string) (*cluster.PinStatus, error)
}

// Option configures a Client.
type Option func(*clientImpl)

// WithHTTPClient sets the http client used for requests.
func WithHTTPClient(c *http.Client) Option {
	return func(r *clientImpl) {
		r.client = c
	}
}

// WithBasicAuth sets the credentials sent with every request.
func WithBasicAuth(username, password string) Option {
	return func(r *clientImpl) {
		r.username = username
		r.password = password
	}
}

// New returns a new Client which operates against an archiver with the
// given base endpoint, including any path prefix the archiver is served
// under.
func New(endpoint string, opts ...Option) (Client, error) {
	ub, err := v1.NewURLBuilderFromString(endpoint)
	if err != nil {
		return nil, err
	}

	r := &clientImpl{
		ub:     ub,
		client: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(r)
	}

	return r, nil
}

// clientImpl is the default implementation of the Client interface
type clientImpl struct {
	ub       *v1.URLBuilder
	client   *http.Client
	username string
	password string
}

func (r *clientImpl) Ping(ctx context.Context) error {
	u, err := r.ub.BuildBaseURL()
	if err != nil {
		return err
	}

	resp, err := r.do(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return internalclient.HandleHTTPResponseError(resp)
}

func (r *clientImpl) Add(ctx context.Context, links []string, verbose bool) (*v1.AddResult, error) {
	u, err := r.ub.BuildAddURL(true, verbose)
	if err != nil {
		return nil, err
	}

	var resp v1.AddResponse
	if err := r.postJSON(ctx, u, v1.AddRequest{Links: links}, &resp); err != nil {
		return nil, err
	}

	return &resp.Data, nil
}

func (r *clientImpl) CheckStatus(ctx context.Context, cid string) (*cluster.PinStatus, error) {
	u, err := r.ub.BuildCheckStatusURL()
	if err != nil {
		return nil, err
	}

	var resp v1.CheckStatusResponse
	if err := r.postJSON(ctx, u, v1.CheckStatusRequest{CID: cid}, &resp); err != nil {
		return nil, err
	}
	if resp.Status == nil {
		return nil, &internalclient.UnexpectedHTTPResponseError{
			ParseErr:   io.ErrUnexpectedEOF,
			StatusCode: http.StatusOK,
		}
	}

	return resp.Status, nil
}

func (r *clientImpl) postJSON(ctx context.Context, u string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}

	resp, err := r.do(ctx, http.MethodPost, u, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := internalclient.HandleHTTPResponseError(resp); err != nil {
		return err
	}

	p, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(p, out); err != nil {
		return &internalclient.UnexpectedHTTPResponseError{
			ParseErr:   err,
			StatusCode: resp.StatusCode,
			Response:   p,
		}
	}

	return nil
}

func (r *clientImpl) do(ctx context.Context, method, u string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, u, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if r.username != "" {
		req.SetBasicAuth(r.username, r.password)
	}

	return r.client.Do(req)
}
