// Package ipfscluster provides a cluster.Cluster backed by the REST API of
// an IPFS Cluster peer.
package ipfscluster

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/distribution/archiver/cluster"
	"github.com/distribution/archiver/internal/client"
	"github.com/distribution/archiver/internal/dcontext"
	"github.com/distribution/archiver/version"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/ipfs/go-cid"
	"github.com/mitchellh/mapstructure"
)

const (
	driverName          = "ipfscluster"
	defaultURL          = "http://localhost:9094"
	defaultRetryMax     = 3
	defaultRetryWaitMin = 500 * time.Millisecond
	defaultRetryWaitMax = 10 * time.Second
	defaultTimeout      = time.Minute
)

func init() {
	cluster.Register(driverName, &factory{})
}

type factory struct{}

func (f *factory) Create(ctx context.Context, parameters map[string]interface{}) (cluster.Cluster, error) {
	return FromParameters(ctx, parameters)
}

// Parameters represents all configuration options available for the
// ipfscluster driver.
type Parameters struct {
	// URL is the base URL of the cluster REST API.
	URL string `mapstructure:"url"`

	// Username and Password enable basic auth on the REST API.
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`

	// RetryMax is the number of retries of a failed call.
	RetryMax int `mapstructure:"retrymax"`

	// RetryWaitMin and RetryWaitMax bound the backoff between retries.
	RetryWaitMin time.Duration `mapstructure:"retrywaitmin"`
	RetryWaitMax time.Duration `mapstructure:"retrywaitmax"`

	// Timeout bounds a single call.
	Timeout time.Duration `mapstructure:"timeout"`

	// ReplicationMin and ReplicationMax are passed with every pin. Zero
	// leaves the cluster defaults in place.
	ReplicationMin int `mapstructure:"replicationmin"`
	ReplicationMax int `mapstructure:"replicationmax"`

	// PinName is the name given to pins; it is prefixed to the batch id
	// when one is known.
	PinName string `mapstructure:"pinname"`
}

// Driver talks to an IPFS Cluster REST API.
type Driver struct {
	baseURL string
	params  Parameters
	client  *retryablehttp.Client
}

var _ cluster.Cluster = &Driver{}

// FromParameters constructs a new Driver with a given parameters map
// Optional Parameters:
// - url
// - username, password
// - retrymax, retrywaitmin, retrywaitmax
// - timeout
// - replicationmin, replicationmax
// - pinname
func FromParameters(ctx context.Context, parameters map[string]interface{}) (*Driver, error) {
	params := Parameters{
		URL:          defaultURL,
		RetryMax:     defaultRetryMax,
		RetryWaitMin: defaultRetryWaitMin,
		RetryWaitMax: defaultRetryWaitMax,
		Timeout:      defaultTimeout,
		PinName:      "archiver",
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		Result:           &params,
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(parameters); err != nil {
		return nil, fmt.Errorf("ipfscluster parameters: %w", err)
	}

	if params.URL == "" {
		return nil, fmt.Errorf("ipfscluster parameters: url must not be empty")
	}
	if params.RetryMax < 0 {
		return nil, fmt.Errorf("ipfscluster parameters: retrymax must not be negative")
	}

	return New(ctx, params), nil
}

// New constructs a Driver. The logger found in ctx receives retry messages.
func New(ctx context.Context, params Parameters) *Driver {
	c := retryablehttp.NewClient()
	c.HTTPClient = &http.Client{Timeout: params.Timeout}
	c.RetryMax = params.RetryMax
	c.RetryWaitMin = params.RetryWaitMin
	c.RetryWaitMax = params.RetryWaitMax
	c.ErrorHandler = retryablehttp.PassthroughErrorHandler
	c.Logger = &leveledLogger{logger: dcontext.GetLoggerWithField(ctx, "cluster.driver", driverName)}

	return &Driver{
		baseURL: strings.TrimSuffix(params.URL, "/"),
		params:  params,
		client:  c,
	}
}

// Name returns the driver name.
func (d *Driver) Name() string {
	return driverName
}

// Pin issues POST /pins/<cid>.
func (d *Driver) Pin(ctx context.Context, c cid.Cid) error {
	q := url.Values{}
	name := d.params.PinName
	if batch := dcontext.GetBatchID(ctx); batch != "" {
		name = name + "-" + batch
	}
	if name != "" {
		q.Set("name", name)
	}
	if d.params.ReplicationMin != 0 {
		q.Set("replication-min", fmt.Sprint(d.params.ReplicationMin))
	}
	if d.params.ReplicationMax != 0 {
		q.Set("replication-max", fmt.Sprint(d.params.ReplicationMax))
	}

	return d.do(ctx, http.MethodPost, "/pins/"+c.String(), q, nil)
}

// Status issues GET /pins/<cid>.
func (d *Driver) Status(ctx context.Context, c cid.Cid) (*cluster.PinStatus, error) {
	var status cluster.PinStatus
	if err := d.do(ctx, http.MethodGet, "/pins/"+c.String(), nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// Ping issues GET /id.
func (d *Driver) Ping(ctx context.Context) error {
	return d.do(ctx, http.MethodGet, "/id", nil, nil)
}

func (d *Driver) do(ctx context.Context, method, path string, q url.Values, out any) error {
	u := d.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", version.UserAgent())
	req.Header.Set("Accept", "application/json")
	if d.params.Username != "" {
		req.SetBasicAuth(d.params.Username, d.params.Password)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if err := client.HandleHTTPResponseError(resp); err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s %s: decoding response: %w", method, path, err)
	}
	return nil
}
