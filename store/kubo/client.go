package kubo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"

	"github.com/distribution/archiver/internal/client"
	"github.com/distribution/archiver/version"
)

const apiPrefix = "/api/v0/"

type args = url.Values

type addResponse struct {
	Name string `json:"Name"`
	Hash string `json:"Hash"`
	Size string `json:"Size"`
}

type statResponse struct {
	Hash           string `json:"Hash"`
	Size           uint64 `json:"Size"`
	CumulativeSize uint64 `json:"CumulativeSize"`
	Blocks         int    `json:"Blocks"`
	Type           string `json:"Type"`
}

// rpcClient issues Kubo RPC calls. Every command is a POST with its
// arguments in the query string.
type rpcClient struct {
	baseURL  string
	username string
	password string
	client   *http.Client
}

func newRPCClient(baseURL, username, password string, httpClient *http.Client) *rpcClient {
	return &rpcClient{
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		username: username,
		password: password,
		client:   httpClient,
	}
}

func (c *rpcClient) newRequest(ctx context.Context, command string, q args, body io.Reader) (*http.Request, error) {
	u := c.baseURL + apiPrefix + command
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", version.UserAgent())
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}
	return req, nil
}

func (c *rpcClient) call(ctx context.Context, command string, q args, body io.Reader, out any) error {
	req, err := c.newRequest(ctx, command, q, body)
	if err != nil {
		return err
	}
	return c.do(req, command, out)
}

// upload streams r as the multipart "file" field of the request.
func (c *rpcClient) upload(ctx context.Context, command string, q args, r io.Reader, out any) error {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		part, err := mw.CreateFormFile("file", "file")
		if err == nil {
			_, err = io.Copy(part, r)
		}
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()

	req, err := c.newRequest(ctx, command, q, pr)
	if err != nil {
		pr.CloseWithError(err)
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	err = c.do(req, command, out)
	// Unblock the writer if the request ended before the body was consumed.
	pr.CloseWithError(errors.New("request finished"))
	return err
}

func (c *rpcClient) do(req *http.Request, command string, out any) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := client.HandleHTTPResponseError(resp); err != nil {
		return fmt.Errorf("%s: %w", command, err)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decoding response: %w", command, err)
	}
	return nil
}

// isNotExist reports whether err is the node's answer for a missing MFS path.
func isNotExist(err error) bool {
	var upstream *client.UpstreamError
	if !errors.As(err, &upstream) {
		return false
	}
	return strings.Contains(upstream.Message, "does not exist")
}
