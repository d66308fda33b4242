package configuration

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"
	"time"
)

// Configuration is a versioned archiver configuration, intended to be provided
// by a yaml file, and optionally modified by environment variables.
//
// Note that yaml field names should never include _ characters, since this is
// the separator used in environment variable names.
type Configuration struct {
	// Version is the version which defines the format of the rest of the configuration
	Version Version `yaml:"version"`

	// Log supports setting various parameters related to the logging
	// subsystem.
	Log struct {
		// AccessLog configures access logging.
		AccessLog struct {
			// Disabled disables access logging.
			Disabled bool `yaml:"disabled,omitempty"`
		} `yaml:"accesslog,omitempty"`

		// Level is the granularity at which archiver operations are logged.
		Level Loglevel `yaml:"level,omitempty"`

		// Formatter overrides the default formatter with another. Options
		// include "text", "json" and "logstash".
		Formatter string `yaml:"formatter,omitempty"`

		// Fields allows users to specify static string fields to include in
		// the logger context.
		Fields map[string]interface{} `yaml:"fields,omitempty"`

		// ReportCaller allows user to configure the log to report the caller
		ReportCaller bool `yaml:"reportcaller,omitempty"`
	} `yaml:"log"`

	// Reporting is the configuration for error reporting
	Reporting Reporting `yaml:"reporting,omitempty"`

	// Store is the configuration for the content-addressed store driver.
	Store Store `yaml:"store"`

	// Cluster is the configuration for the pinning cluster driver.
	Cluster Cluster `yaml:"cluster"`

	// Auth allows configuration of various authorization methods that may be
	// used to gate requests.
	Auth Auth `yaml:"auth,omitempty"`

	// HTTP contains configuration parameters for the archiver's http
	// interface.
	HTTP struct {
		// Addr specifies the bind address for the archiver instance.
		Addr string `yaml:"addr,omitempty"`

		// Net specifies the net portion of the bind address. A default empty value means tcp.
		Net string `yaml:"net,omitempty"`

		// Host specifies an externally-reachable address for the archiver, as a fully
		// qualified URL.
		Host string `yaml:"host,omitempty"`

		// Prefix is the path every route is mounted under.
		Prefix string `yaml:"prefix,omitempty"`

		// MaxBodySize caps the size of request bodies in bytes.
		MaxBodySize int64 `yaml:"maxbodysize,omitempty"`

		// DrainTimeout is the amount of time to wait for connections to drain
		// before shutting down when archiver receives a stop signal
		DrainTimeout time.Duration `yaml:"draintimeout,omitempty"`

		// TLS instructs the http server to listen with a TLS configuration.
		// This only support simple tls configuration with a cert and key.
		// Mostly, this is useful for testing situations or simple deployments
		// that require tls. If more complex configurations are required, use
		// a proxy or make a proposal to add support here.
		TLS struct {
			// Certificate specifies the path to an x509 certificate file to
			// be used for TLS.
			Certificate string `yaml:"certificate,omitempty"`

			// Key specifies the path to the x509 key file, which should
			// contain the private portion for the file specified in
			// Certificate.
			Key string `yaml:"key,omitempty"`

			// Specifies the lowest TLS version allowed
			MinimumTLS string `yaml:"minimumtls,omitempty"`

			// Specifies a list of cipher suites allowed
			CipherSuites []string `yaml:"ciphersuites,omitempty"`
		} `yaml:"tls,omitempty"`

		// Headers is a set of headers to include in HTTP responses. A common
		// use case for this would be security headers such as
		// Strict-Transport-Security. The map keys are the header names, and
		// the values are the associated header payloads.
		Headers http.Header `yaml:"headers,omitempty"`

		// Debug configures the http debug interface, if specified. This can
		// include services such as pprof, expvar and other data that should
		// not be exposed externally. Left disabled by default.
		Debug struct {
			// Addr specifies the bind address for the debug server.
			Addr string `yaml:"addr,omitempty"`
			// Prometheus configures the Prometheus telemetry endpoint.
			Prometheus struct {
				Enabled bool   `yaml:"enabled,omitempty"`
				Path    string `yaml:"path,omitempty"`
			} `yaml:"prometheus,omitempty"`
		} `yaml:"debug,omitempty"`
	} `yaml:"http,omitempty"`

	// Archive tunes the batch pipeline.
	Archive Archive `yaml:"archive,omitempty"`

	// Health provides the configuration section for health checks.
	Health Health `yaml:"health,omitempty"`
}

// Archive configures how batches of links are fetched and assembled.
type Archive struct {
	// Concurrency is the number of links processed at once.
	Concurrency int `yaml:"concurrency,omitempty"`

	// Retries is the number of fetch attempts per link.
	Retries int `yaml:"retries,omitempty"`

	// RetryDelay is the base delay of the exponential backoff between
	// fetch attempts.
	RetryDelay time.Duration `yaml:"retrydelay,omitempty"`

	// FetchTimeout bounds a single fetch attempt. Zero means no bound.
	FetchTimeout time.Duration `yaml:"fetchtimeout,omitempty"`

	// Extension is appended to every stored filename. The special value
	// "auto" derives it from the fetched content.
	Extension string `yaml:"extension,omitempty"`

	// UserAgent is sent with every fetch.
	UserAgent string `yaml:"useragent,omitempty"`

	// MaxItemSize caps the size of a single fetched payload in bytes. Zero
	// selects the default of 150 MiB, a negative value removes the limit.
	MaxItemSize int64 `yaml:"maxitemsize,omitempty"`

	// MaxLinks caps the number of links in one batch. Zero means no limit.
	MaxLinks int `yaml:"maxlinks,omitempty"`

	// StatusCacheTTL is how long pin status answers are cached. Zero
	// disables caching.
	StatusCacheTTL time.Duration `yaml:"statuscachettl,omitempty"`
}

// Health provides the configuration section for health checks.
type Health struct {
	// StoreDriver configures a health check on the configured store
	StoreDriver struct {
		// Enabled turns on the health check for the store
		Enabled bool `yaml:"enabled,omitempty"`
		// Interval is the duration in between checks
		Interval time.Duration `yaml:"interval,omitempty"`
		// Threshold is the number of times a check must fail to trigger an
		// unhealthy state
		Threshold int `yaml:"threshold,omitempty"`
	} `yaml:"storedriver,omitempty"`

	// Cluster configures a health check on the configured cluster
	Cluster struct {
		// Enabled turns on the health check for the cluster
		Enabled bool `yaml:"enabled,omitempty"`
		// Interval is the duration in between checks
		Interval time.Duration `yaml:"interval,omitempty"`
		// Threshold is the number of times a check must fail to trigger an
		// unhealthy state
		Threshold int `yaml:"threshold,omitempty"`
	} `yaml:"cluster,omitempty"`
}

// v0_1Configuration is a Version 0.1 Configuration struct
// This is currently aliased to Configuration, as it is the current version
type v0_1Configuration Configuration

// UnmarshalYAML implements the yaml.Unmarshaler interface
// Unmarshals a string of the form X.Y into a Version, validating that X and Y can represent unsigned integers
func (version *Version) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var versionString string
	err := unmarshal(&versionString)
	if err != nil {
		return err
	}

	newVersion := Version(versionString)
	if _, err := newVersion.major(); err != nil {
		return err
	}

	if _, err := newVersion.minor(); err != nil {
		return err
	}

	*version = newVersion
	return nil
}

// CurrentVersion is the most recent Version that can be parsed
var CurrentVersion = MajorMinorVersion(0, 1)

// Loglevel is the level at which operations are logged
// This can be error, warn, info, or debug
type Loglevel string

// UnmarshalYAML implements the yaml.Umarshaler interface
// Unmarshals a string into a Loglevel, lowercasing the string and validating that it represents a
// valid loglevel
func (loglevel *Loglevel) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var loglevelString string
	err := unmarshal(&loglevelString)
	if err != nil {
		return err
	}

	loglevelString = strings.ToLower(loglevelString)
	switch loglevelString {
	case "error", "warn", "info", "debug":
	default:
		return fmt.Errorf("invalid loglevel %s Must be one of [error, warn, info, debug]", loglevelString)
	}

	*loglevel = Loglevel(loglevelString)
	return nil
}

// Parameters defines a key-value parameters mapping
type Parameters map[string]interface{}

// unmarshalDriver decodes a single item map, or a bare string naming a driver
// with no parameters.
func unmarshalDriver(unmarshal func(interface{}) error, kind string) (map[string]Parameters, error) {
	var m map[string]Parameters
	err := unmarshal(&m)
	if err == nil {
		if len(m) > 1 {
			types := make([]string, 0, len(m))
			for k := range m {
				types = append(types, k)
			}
			return nil, fmt.Errorf("must provide exactly one %s type. Provided: %v", kind, types)
		}
		return m, nil
	}

	var driverType string
	if err := unmarshal(&driverType); err == nil {
		return map[string]Parameters{driverType: {}}, nil
	}

	return nil, err
}

func driverType[T ~map[string]Parameters](m T) string {
	// Return only key in this map
	for k := range m {
		return k
	}
	return ""
}

func marshalDriver[T ~map[string]Parameters](m T) (interface{}, error) {
	if m[driverType(m)] == nil {
		return driverType(m), nil
	}
	return map[string]Parameters(m), nil
}

// Store defines the configuration for the content-addressed store.
type Store map[string]Parameters

// Type returns the store driver type, such as kubo or inmemory
func (store Store) Type() string {
	return driverType(store)
}

// Parameters returns the Parameters map for a Store configuration
func (store Store) Parameters() Parameters {
	return store[store.Type()]
}

// setParameter changes the parameter at the provided key to the new value
func (store Store) setParameter(key string, value interface{}) {
	store[store.Type()][key] = value
}

// UnmarshalYAML implements the yaml.Unmarshaler interface
// Unmarshals a single item map into a Store or a string into a Store type with no parameters
func (store *Store) UnmarshalYAML(unmarshal func(interface{}) error) error {
	m, err := unmarshalDriver(unmarshal, "store")
	if err != nil {
		return err
	}
	*store = m
	return nil
}

// MarshalYAML implements the yaml.Marshaler interface
func (store Store) MarshalYAML() (interface{}, error) {
	return marshalDriver(store)
}

// Cluster defines the configuration for the pinning cluster.
type Cluster map[string]Parameters

// Type returns the cluster driver type, such as ipfscluster or inmemory
func (cluster Cluster) Type() string {
	return driverType(cluster)
}

// Parameters returns the Parameters map for a Cluster configuration
func (cluster Cluster) Parameters() Parameters {
	return cluster[cluster.Type()]
}

// UnmarshalYAML implements the yaml.Unmarshaler interface
func (cluster *Cluster) UnmarshalYAML(unmarshal func(interface{}) error) error {
	m, err := unmarshalDriver(unmarshal, "cluster")
	if err != nil {
		return err
	}
	*cluster = m
	return nil
}

// MarshalYAML implements the yaml.Marshaler interface
func (cluster Cluster) MarshalYAML() (interface{}, error) {
	return marshalDriver(cluster)
}

// Auth defines the configuration for archiver authorization.
type Auth map[string]Parameters

// Type returns the auth type, such as basic or htpasswd
func (auth Auth) Type() string {
	return driverType(auth)
}

// Parameters returns the Parameters map for an Auth configuration
func (auth Auth) Parameters() Parameters {
	return auth[auth.Type()]
}

// setParameter changes the parameter at the provided key to the new value
func (auth Auth) setParameter(key string, value interface{}) {
	auth[auth.Type()][key] = value
}

// UnmarshalYAML implements the yaml.Unmarshaler interface
// Unmarshals a single item map into an Auth or a string into an Auth type with no parameters
func (auth *Auth) UnmarshalYAML(unmarshal func(interface{}) error) error {
	m, err := unmarshalDriver(unmarshal, "auth")
	if err != nil {
		return err
	}
	*auth = m
	return nil
}

// MarshalYAML implements the yaml.Marshaler interface
func (auth Auth) MarshalYAML() (interface{}, error) {
	return marshalDriver(auth)
}

// Reporting defines error reporting methods.
type Reporting struct {
	// Bugsnag configures error reporting for Bugsnag (bugsnag.com).
	Bugsnag BugsnagReporting `yaml:"bugsnag,omitempty"`
}

// BugsnagReporting configures error reporting for Bugsnag (bugsnag.com).
type BugsnagReporting struct {
	// APIKey is the Bugsnag api key.
	APIKey string `yaml:"apikey,omitempty"`
	// ReleaseStage tracks where the archiver is deployed.
	// Examples: production, staging, development
	ReleaseStage string `yaml:"releasestage,omitempty"`
	// Endpoint is used for specifying an enterprise Bugsnag endpoint.
	Endpoint string `yaml:"endpoint,omitempty"`
}

const (
	defaultConcurrency    = 10
	defaultRetries        = 3
	defaultRetryDelay     = time.Second
	defaultExtension      = "png"
	defaultMaxBodySize    = 150 << 20
	defaultAddr           = ":8000"
	defaultHealthInterval = 10 * time.Second
)

// Parse parses an input configuration yaml document into a Configuration struct
// This should generally be capable of handling old configuration format versions
//
// Environment variables may be used to override configuration parameters other than version,
// following the scheme below:
// Configuration.Abc may be replaced by the value of ARCHIVER_ABC,
// Configuration.Abc.Xyz may be replaced by the value of ARCHIVER_ABC_XYZ, and so forth
func Parse(rd io.Reader) (*Configuration, error) {
	in, err := io.ReadAll(rd)
	if err != nil {
		return nil, err
	}

	p := NewParser("archiver", []VersionedParseInfo{
		{
			Version: MajorMinorVersion(0, 1),
			ParseAs: reflect.TypeOf(v0_1Configuration{}),
			ConversionFunc: func(c interface{}) (interface{}, error) {
				if v0_1, ok := c.(*v0_1Configuration); ok {
					if v0_1.Log.Level == Loglevel("") {
						v0_1.Log.Level = Loglevel("info")
					}
					if v0_1.Store.Type() == "" {
						return nil, errors.New("no store configuration provided")
					}
					if v0_1.Cluster.Type() == "" {
						return nil, errors.New("no cluster configuration provided")
					}
					if err := v0_1.Archive.setDefaults(); err != nil {
						return nil, err
					}
					if v0_1.HTTP.Addr == "" {
						v0_1.HTTP.Addr = defaultAddr
					}
					if v0_1.HTTP.MaxBodySize == 0 {
						v0_1.HTTP.MaxBodySize = defaultMaxBodySize
					}
					if v0_1.Health.StoreDriver.Enabled && v0_1.Health.StoreDriver.Interval == 0 {
						v0_1.Health.StoreDriver.Interval = defaultHealthInterval
					}
					if v0_1.Health.Cluster.Enabled && v0_1.Health.Cluster.Interval == 0 {
						v0_1.Health.Cluster.Interval = defaultHealthInterval
					}
					return (*Configuration)(v0_1), nil
				}
				return nil, fmt.Errorf("expected *v0_1Configuration, received %#v", c)
			},
		},
	})

	config := new(Configuration)
	err = p.Parse(in, config)
	if err != nil {
		return nil, err
	}

	return config, nil
}

func (a *Archive) setDefaults() error {
	if a.Concurrency < 0 {
		return fmt.Errorf("archive concurrency must be positive, got %d", a.Concurrency)
	}
	if a.Retries < 0 {
		return fmt.Errorf("archive retries must be positive, got %d", a.Retries)
	}
	if a.RetryDelay < 0 {
		return fmt.Errorf("archive retrydelay must not be negative, got %s", a.RetryDelay)
	}
	if a.Concurrency == 0 {
		a.Concurrency = defaultConcurrency
	}
	if a.Retries == 0 {
		a.Retries = defaultRetries
	}
	if a.RetryDelay == 0 {
		a.RetryDelay = defaultRetryDelay
	}
	if a.Extension == "" {
		a.Extension = defaultExtension
	}
	a.Extension = strings.TrimPrefix(a.Extension, ".")
	return nil
}
