// Package server runs the archiver HTTP service and provides the commands
// of the archiver binary.
package server

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/bugsnag/bugsnag-go"
	"github.com/docker/go-metrics"
	"github.com/sirupsen/logrus"

	logrus_bugsnag "github.com/Shopify/logrus-bugsnag"

	"github.com/distribution/archiver/configuration"
	"github.com/distribution/archiver/handlers"
	"github.com/distribution/archiver/health"
	"github.com/distribution/archiver/internal/dcontext"
	"github.com/distribution/archiver/version"
)

// a map of TLS cipher suite names to constants in https://golang.org/pkg/crypto/tls/#pkg-constants
var cipherSuites = map[string]uint16{
	// TLS 1.0 - 1.2 cipher suites
	"TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256":       tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
	"TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256":         tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
	"TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384":       tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
	"TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384":         tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
	"TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305_SHA256": tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305_SHA256,
	"TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305_SHA256":   tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305_SHA256,
	// TLS 1.3 cipher suites
	"TLS_AES_128_GCM_SHA256":       tls.TLS_AES_128_GCM_SHA256,
	"TLS_AES_256_GCM_SHA384":       tls.TLS_AES_256_GCM_SHA384,
	"TLS_CHACHA20_POLY1305_SHA256": tls.TLS_CHACHA20_POLY1305_SHA256,
}

// a map of TLS version names to constants in https://golang.org/pkg/crypto/tls/#pkg-constants
var tlsVersions = map[string]uint16{
	"tls1.2": tls.VersionTLS12,
	"tls1.3": tls.VersionTLS13,
}

// defaultCipherSuites is here just to make the default cipher suites
// available, and less verbose than listing them one by one.
var defaultCipherSuites = []uint16{
	tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
	tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
	tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
	tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
	tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305_SHA256,
	tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305_SHA256,
}

const defaultTLSVersion = "tls1.2"

// A Server represents a complete instance of the archiver.
type Server struct {
	config *configuration.Configuration
	app    *handlers.App
	server *http.Server
	quit   chan os.Signal
}

// NewServer creates a new archiver from a context and configuration struct.
func NewServer(ctx context.Context, config *configuration.Configuration) (*Server, error) {
	var err error
	ctx, err = configureLogging(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("error configuring logger: %v", err)
	}

	configureBugsnag(config)

	app := handlers.NewApp(ctx, config)
	// Health checks register on the default registry, so only one server
	// may be created per process.
	app.RegisterHealthChecks()
	handler := configureReporting(app)
	handler = alive("/healthz", handler)
	handler = health.Handler(handler)
	handler = panicHandler(handler)
	if !config.Log.AccessLog.Disabled {
		handler = accessLogHandler(config, os.Stdout, handler)
	}

	server := &http.Server{
		Handler: handler,
	}

	return &Server{
		app:    app,
		config: config,
		server: server,
		quit:   make(chan os.Signal, 1),
	}, nil
}

// ListenAndServe runs the archiver's HTTP server until it fails or the
// process is asked to stop, in which case open connections are drained.
func (srv *Server) ListenAndServe() error {
	config := srv.config

	network := config.HTTP.Net
	if network == "" {
		network = "tcp"
	}
	ln, err := net.Listen(network, config.HTTP.Addr)
	if err != nil {
		return err
	}

	if config.HTTP.TLS.Certificate != "" {
		tlsConf, err := configureTLS(config)
		if err != nil {
			ln.Close()
			return err
		}
		ln = tls.NewListener(ln, tlsConf)
		dcontext.GetLogger(srv.app).Infof("listening on %v, tls", ln.Addr())
	} else {
		dcontext.GetLogger(srv.app).Infof("listening on %v", ln.Addr())
	}

	// setup channel to get notified on SIGTERM signal
	signal.Notify(srv.quit, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(srv.quit)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.server.Serve(ln)
	}()

	select {
	case err := <-serveErr:
		srv.app.Shutdown()
		return err
	case <-srv.quit:
		dcontext.GetLogger(srv.app).Infof("stopping server gracefully. Draining connections for %s", config.HTTP.DrainTimeout)
		c := context.Background()
		if config.HTTP.DrainTimeout > 0 {
			var cancel context.CancelFunc
			c, cancel = context.WithTimeout(c, config.HTTP.DrainTimeout)
			defer cancel()
		}
		return srv.Shutdown(c)
	}
}

// Shutdown gracefully shuts down the server and releases the resources of
// the application.
func (srv *Server) Shutdown(ctx context.Context) error {
	defer srv.app.Shutdown()
	return srv.server.Shutdown(ctx)
}

func configureTLS(config *configuration.Configuration) (*tls.Config, error) {
	minimumTLS := config.HTTP.TLS.MinimumTLS
	if minimumTLS == "" {
		minimumTLS = defaultTLSVersion
	}
	tlsMinVersion, ok := tlsVersions[strings.ToLower(minimumTLS)]
	if !ok {
		return nil, fmt.Errorf("unknown minimum TLS level %q specified for http.tls.minimumtls", minimumTLS)
	}

	tlsCipherSuites, err := getCipherSuites(config.HTTP.TLS.CipherSuites)
	if err != nil {
		return nil, err
	}

	cert, err := tls.LoadX509KeyPair(config.HTTP.TLS.Certificate, config.HTTP.TLS.Key)
	if err != nil {
		return nil, err
	}

	return &tls.Config{
		ClientAuth:   tls.NoClientCert,
		NextProtos:   []string{"http/1.1"},
		Certificates: []tls.Certificate{cert},
		MinVersion:   tlsMinVersion,
		CipherSuites: tlsCipherSuites,
	}, nil
}

// takes a list of cipher suites and converts it to a list of respective tls constants
// if an empty list is provided, then the defaults will be used
func getCipherSuites(names []string) ([]uint16, error) {
	if len(names) == 0 {
		return defaultCipherSuites, nil
	}
	cipherSuiteConsts := make([]uint16, len(names))
	for i, name := range names {
		cipherSuiteConst, ok := cipherSuites[name]
		if !ok {
			return nil, fmt.Errorf("unknown TLS cipher suite '%s' specified for http.tls.cipherSuites", name)
		}
		cipherSuiteConsts[i] = cipherSuiteConst
	}
	return cipherSuiteConsts, nil
}

func configureReporting(app *handlers.App) http.Handler {
	var handler http.Handler = app

	if app.Config.Reporting.Bugsnag.APIKey != "" {
		handler = bugsnag.Handler(handler)
	}

	return handler
}

func configureBugsnag(config *configuration.Configuration) {
	if config.Reporting.Bugsnag.APIKey == "" {
		return
	}

	bugsnagConfig := bugsnag.Configuration{
		APIKey:     config.Reporting.Bugsnag.APIKey,
		AppVersion: version.Version(),
	}
	if config.Reporting.Bugsnag.ReleaseStage != "" {
		bugsnagConfig.ReleaseStage = config.Reporting.Bugsnag.ReleaseStage
	}
	if config.Reporting.Bugsnag.Endpoint != "" {
		bugsnagConfig.Endpoint = config.Reporting.Bugsnag.Endpoint
	}
	bugsnag.Configure(bugsnagConfig)

	// configure logrus bugsnag hook
	hook, err := logrus_bugsnag.NewBugsnagHook()
	if err != nil {
		logrus.Fatalln(err)
	}

	logrus.AddHook(hook)
}

// configurePrometheus mounts the metrics endpoint on the debug server.
func configurePrometheus(config *configuration.Configuration) {
	if !config.HTTP.Debug.Prometheus.Enabled {
		return
	}

	path := config.HTTP.Debug.Prometheus.Path
	if path == "" {
		path = "/metrics"
	}
	logrus.Info("providing prometheus metrics on ", path)
	http.Handle(path, metrics.Handler())
}

// panicHandler add an HTTP handler to web app. The handler recover the happening
// panic. logrus.Panic transmits panic message to pre-config log hooks, which is
// defined in config.yml.
func panicHandler(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				logrus.Panic(fmt.Sprintf("%v", err))
			}
		}()
		handler.ServeHTTP(w, r)
	})
}

// alive simply wraps the handler with a route that always returns an http 200
// response when the path is matched. If the path is not matched, the request
// is passed to the provided handler. There is no guarantee of anything but
// that the server is up. Wrap with other handlers (such as health.Handler)
// for greater affect.
func alive(path string, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == path {
			w.Header().Set("Cache-Control", "no-cache")
			w.WriteHeader(http.StatusOK)
			return
		}

		handler.ServeHTTP(w, r)
	})
}
