package archive

import (
	"fmt"
	"net/http"
	"time"

	"github.com/distribution/archiver/configuration"
	"github.com/distribution/archiver/version"
)

const (
	// ExtensionAuto derives filename extensions from the fetched content.
	ExtensionAuto = "auto"

	// DefaultMaxItemSize caps a single payload when nothing is configured.
	DefaultMaxItemSize = 150 << 20
)

// Options tunes the batch pipeline. It is built once at startup.
type Options struct {
	// Concurrency is the number of link pipelines running at once.
	Concurrency int

	// Retries is the maximum number of fetch attempts per link.
	Retries int

	// RetryDelay is the base of the exponential backoff: the wait after
	// failed attempt i is RetryDelay * 2^i.
	RetryDelay time.Duration

	// FetchTimeout bounds one fetch attempt. Zero means no bound.
	FetchTimeout time.Duration

	// Extension is the filename extension of every item, or ExtensionAuto.
	Extension string

	// UserAgent is sent with every fetch.
	UserAgent string

	// MaxItemSize caps a single payload. A negative value means no limit.
	MaxItemSize int64

	// MaxLinks caps the number of links of a batch. Zero means no limit.
	MaxLinks int

	// HTTPClient fetches links. http.DefaultClient is used when nil.
	HTTPClient *http.Client
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		Concurrency: 10,
		Retries:     3,
		RetryDelay:  time.Second,
		Extension:   "png",
		UserAgent:   version.UserAgent(),
		MaxItemSize: DefaultMaxItemSize,
	}
}

// OptionsFromConfiguration converts the archive section of the
// configuration.
func OptionsFromConfiguration(config configuration.Archive) Options {
	opts := DefaultOptions()
	if config.Concurrency > 0 {
		opts.Concurrency = config.Concurrency
	}
	if config.Retries > 0 {
		opts.Retries = config.Retries
	}
	if config.RetryDelay > 0 {
		opts.RetryDelay = config.RetryDelay
	}
	if config.Extension != "" {
		opts.Extension = config.Extension
	}
	if config.UserAgent != "" {
		opts.UserAgent = config.UserAgent
	}
	opts.FetchTimeout = config.FetchTimeout
	if config.MaxItemSize != 0 {
		opts.MaxItemSize = config.MaxItemSize
	}
	opts.MaxLinks = config.MaxLinks
	return opts
}

func (o Options) validate() error {
	if o.Concurrency < 1 {
		return fmt.Errorf("concurrency must be positive, got %d", o.Concurrency)
	}
	if o.Retries < 1 {
		return fmt.Errorf("retries must be positive, got %d", o.Retries)
	}
	if o.RetryDelay < 0 {
		return fmt.Errorf("retry delay must not be negative, got %s", o.RetryDelay)
	}
	if o.Extension == "" {
		return fmt.Errorf("extension must not be empty")
	}
	return nil
}
