// Package kubo provides a store.Store implementation backed by the RPC API of
// a Kubo (go-ipfs) node. Content is added with /api/v0/add and directories
// are assembled in the node's mutable file system with the /api/v0/files
// commands.
package kubo

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/distribution/archiver/store"
	"github.com/distribution/archiver/store/base"
	"github.com/distribution/archiver/store/factory"
	"github.com/ipfs/go-cid"
	"github.com/mitchellh/mapstructure"
)

const (
	driverName        = "kubo"
	defaultURL        = "http://localhost:5001"
	defaultMaxThreads = uint64(64)
	defaultTimeout    = 5 * time.Minute

	// minThreads is the minimum value for the maxthreads configuration
	// parameter. If the driver's parameters are less than this we set the
	// parameters to minThreads
	minThreads = uint64(4)
)

// DriverParameters represents all configuration options available for the
// kubo driver
type DriverParameters struct {
	// URL is the base URL of the node's RPC API.
	URL string `mapstructure:"url"`

	// MaxThreads bounds the number of concurrent RPC calls.
	MaxThreads uint64 `mapstructure:"-"`

	// Timeout bounds a single RPC call.
	Timeout time.Duration `mapstructure:"timeout"`

	// CIDVersion selects the identifier version of added content.
	CIDVersion int `mapstructure:"cidversion"`

	// Pin controls whether added content is pinned on the node itself.
	Pin bool `mapstructure:"pin"`

	// Username and Password set basic auth on RPC calls, for nodes behind
	// an authenticating proxy.
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

func init() {
	factory.Register(driverName, &kuboDriverFactory{})
}

// kuboDriverFactory implements the factory.StoreFactory interface
type kuboDriverFactory struct{}

func (factory *kuboDriverFactory) Create(ctx context.Context, parameters map[string]interface{}) (store.Store, error) {
	return FromParameters(parameters)
}

type driver struct {
	client *rpcClient
	params DriverParameters
}

type baseEmbed struct {
	base.Base
}

// Driver is a store.Store implementation backed by a Kubo node.
type Driver struct {
	baseEmbed
}

// FromParameters constructs a new Driver with a given parameters map
// Optional Parameters:
// - url
// - maxthreads
// - timeout
// - cidversion
// - pin
// - username
// - password
func FromParameters(parameters map[string]interface{}) (*Driver, error) {
	params, err := fromParametersImpl(parameters)
	if err != nil || params == nil {
		return nil, err
	}
	return New(*params), nil
}

func fromParametersImpl(parameters map[string]interface{}) (*DriverParameters, error) {
	params := DriverParameters{
		URL:     defaultURL,
		Timeout: defaultTimeout,
		Pin:     true,
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
		return nil, fmt.Errorf("kubo parameters: %w", err)
	}

	params.MaxThreads, err = base.GetLimitFromParameter(parameters["maxthreads"], minThreads, defaultMaxThreads)
	if err != nil {
		return nil, fmt.Errorf("maxthreads config error: %s", err.Error())
	}

	if params.URL == "" {
		return nil, fmt.Errorf("kubo parameters: url must not be empty")
	}
	if params.CIDVersion != 0 && params.CIDVersion != 1 {
		return nil, fmt.Errorf("kubo parameters: cidversion must be 0 or 1, got %d", params.CIDVersion)
	}

	return &params, nil
}

// New constructs a new Driver with the given parameters.
func New(params DriverParameters) *Driver {
	d := &driver{
		client: newRPCClient(params.URL, params.Username, params.Password, &http.Client{Timeout: params.Timeout}),
		params: params,
	}

	return &Driver{
		baseEmbed: baseEmbed{
			Base: base.Base{
				Store: base.NewRegulator(d, params.MaxThreads),
			},
		},
	}
}

// Implement the store.Store interface

func (d *driver) Name() string {
	return driverName
}

// Mkdir creates the directory and its parents in the node's MFS.
func (d *driver) Mkdir(ctx context.Context, path string) error {
	return d.client.call(ctx, "files/mkdir", args{"arg": {path}, "parents": {"true"}}, nil, nil)
}

// Add uploads the content as a single file.
func (d *driver) Add(ctx context.Context, r io.Reader) (cid.Cid, error) {
	var out addResponse
	q := args{
		"cid-version": {fmt.Sprint(d.params.CIDVersion)},
		"pin":         {fmt.Sprint(d.params.Pin)},
		"quieter":     {"true"},
	}
	if err := d.client.upload(ctx, "add", q, r, &out); err != nil {
		return cid.Undef, err
	}

	c, err := cid.Decode(out.Hash)
	if err != nil {
		return cid.Undef, fmt.Errorf("add returned invalid cid %q: %w", out.Hash, err)
	}
	return c, nil
}

// Copy links /ipfs/<src> at dest.
func (d *driver) Copy(ctx context.Context, src cid.Cid, dest string) error {
	return d.client.call(ctx, "files/cp", args{"arg": {"/ipfs/" + src.String(), dest}}, nil, nil)
}

// Stat describes the MFS entry at path.
func (d *driver) Stat(ctx context.Context, path string) (store.FileInfo, error) {
	var out statResponse
	if err := d.client.call(ctx, "files/stat", args{"arg": {path}}, nil, &out); err != nil {
		if isNotExist(err) {
			return store.FileInfo{}, store.PathNotFoundError{Path: path, DriverName: driverName}
		}
		return store.FileInfo{}, err
	}

	c, err := cid.Decode(out.Hash)
	if err != nil {
		return store.FileInfo{}, fmt.Errorf("stat returned invalid cid %q: %w", out.Hash, err)
	}

	return store.FileInfo{
		Path:           path,
		Hash:           c,
		Size:           out.Size,
		CumulativeSize: out.CumulativeSize,
		Blocks:         out.Blocks,
		Type:           out.Type,
	}, nil
}
