package server

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	v1 "github.com/distribution/archiver/api/v1"
	_ "github.com/distribution/archiver/cluster/inmemory"
	"github.com/distribution/archiver/configuration"
	"github.com/distribution/archiver/internal/dcontext"
	_ "github.com/distribution/archiver/store/inmemory"
)

// emptyDirectoryCID is the identifier of an empty unixfs directory.
const emptyDirectoryCID = "QmUNLLsPACCz1vLxQVkXqqLX5R1X345qqfHbsf67hvA3Nn"

const inmemoryConfig = `
version: 0.1
log:
  level: error
store: inmemory
cluster: inmemory
archive:
  retries: 1
  retrydelay: 1ms
http:
  addr: 127.0.0.1:0
  draintimeout: 1s
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()

	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func resetLogging(t *testing.T) {
	t.Cleanup(func() {
		logrus.SetFormatter(&logrus.TextFormatter{})
		logrus.SetLevel(logrus.InfoLevel)
		logrus.SetReportCaller(false)
	})
}

func TestConfigureLogging(t *testing.T) {
	resetLogging(t)

	for _, formatter := range []string{"", "text", "json", "logstash"} {
		config := &configuration.Configuration{}
		config.Log.Level = "debug"
		config.Log.Formatter = formatter

		_, err := configureLogging(context.Background(), config)
		require.NoError(t, err, formatter)
		require.Equal(t, logrus.DebugLevel, logrus.GetLevel())
	}

	config := &configuration.Configuration{}
	config.Log.Formatter = "xml"
	_, err := configureLogging(context.Background(), config)
	require.ErrorContains(t, err, "unsupported logging formatter")
}

func TestConfigureLoggingFields(t *testing.T) {
	resetLogging(t)

	config := &configuration.Configuration{}
	config.Log.Level = "info"
	config.Log.Fields = map[string]any{"environment": "test"}

	ctx, err := configureLogging(context.Background(), config)
	require.NoError(t, err)

	entry, ok := dcontext.GetLogger(ctx).(*logrus.Entry)
	require.True(t, ok)
	require.Equal(t, "test", entry.Data["environment"])
}

func TestLogLevel(t *testing.T) {
	assert.Equal(t, logrus.WarnLevel, logLevel("warn"))
	assert.Equal(t, logrus.InfoLevel, logLevel("loud"))
}

func TestAccessLogHandler(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		fmt.Fprint(w, "short and stout")
	})

	config := &configuration.Configuration{}
	config.Log.Formatter = "json"

	var out bytes.Buffer
	req := httptest.NewRequest(http.MethodGet, "/add", nil)
	req.Header.Set("User-Agent", "tester")
	accessLogHandler(config, &out, handler).ServeHTTP(httptest.NewRecorder(), req)

	var entry jsonLogEntry
	require.NoError(t, json.Unmarshal(out.Bytes(), &entry))
	assert.Equal(t, http.MethodGet, entry.Method)
	assert.Equal(t, "/add", entry.Path)
	assert.Equal(t, http.StatusTeapot, entry.Status)
	assert.Equal(t, len("short and stout"), entry.Size)
	assert.Equal(t, "tester", entry.UserAgent)

	out.Reset()
	config.Log.Formatter = "text"
	accessLogHandler(config, &out, handler).ServeHTTP(httptest.NewRecorder(), req)
	assert.Contains(t, out.String(), `"GET /add HTTP/1.1" 418`)
}

func TestAlive(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	handler := alive("/healthz", next)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestPanicHandler(t *testing.T) {
	handler := panicHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	require.Panics(t, func() {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	})
}

func TestGetCipherSuites(t *testing.T) {
	suites, err := getCipherSuites(nil)
	require.NoError(t, err)
	require.Equal(t, defaultCipherSuites, suites)

	suites, err = getCipherSuites([]string{"TLS_AES_128_GCM_SHA256"})
	require.NoError(t, err)
	require.Equal(t, []uint16{tls.TLS_AES_128_GCM_SHA256}, suites)

	_, err = getCipherSuites([]string{"TLS_NULL"})
	require.ErrorContains(t, err, "unknown TLS cipher suite")
}

func TestConfigureTLSUnknownVersion(t *testing.T) {
	config := &configuration.Configuration{}
	config.HTTP.TLS.Certificate = "cert.pem"
	config.HTTP.TLS.MinimumTLS = "tls1.0"

	_, err := configureTLS(config)
	require.ErrorContains(t, err, "unknown minimum TLS level")
}

func TestReadLinks(t *testing.T) {
	links, err := readLinks(strings.NewReader("# batch\nhttp://a/1.png\n\n  http://a/2.png  \n"))
	require.NoError(t, err)
	require.Equal(t, []string{"http://a/1.png", "http://a/2.png"}, links)
}

func TestResolveConfiguration(t *testing.T) {
	path := writeFile(t, "config.yml", inmemoryConfig)

	config, err := resolveConfiguration([]string{path})
	require.NoError(t, err)
	require.Equal(t, "inmemory", config.Store.Type())

	t.Setenv("ARCHIVER_CONFIGURATION_PATH", path)
	config, err = resolveConfiguration(nil)
	require.NoError(t, err)
	require.Equal(t, "inmemory", config.Cluster.Type())

	t.Setenv("ARCHIVER_CONFIGURATION_PATH", "")
	_, err = resolveConfiguration(nil)
	require.ErrorContains(t, err, "configuration path unspecified")

	_, err = resolveConfiguration([]string{writeFile(t, "bad.yml", "version: 0.1\n")})
	require.ErrorContains(t, err, "error parsing")
}

func TestArchiveCommand(t *testing.T) {
	resetLogging(t)

	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		fmt.Fprintf(w, "content of %s", r.URL.Path)
	}))
	defer origin.Close()

	configPath := writeFile(t, "config.yml", inmemoryConfig)
	linksPath := writeFile(t, "links.txt", origin.URL+"/a.png\n"+origin.URL+"/missing\n")

	var out bytes.Buffer
	RootCmd.SetOut(&out)
	RootCmd.SetArgs([]string{"archive", "--no-pin=false", configPath, linksPath})
	t.Cleanup(func() {
		RootCmd.SetOut(nil)
		RootCmd.SetArgs(nil)
	})
	require.NoError(t, RootCmd.Execute())

	var resp v1.AddResponse
	require.NoError(t, json.Unmarshal(out.Bytes(), &resp))
	require.NotEmpty(t, resp.Data.IpfsHash)
	require.NotEqual(t, emptyDirectoryCID, resp.Data.IpfsHash)
	require.True(t, resp.Data.Pin)
	require.Equal(t, []string{origin.URL + "/missing"}, resp.Data.FailedLinks)
	require.Len(t, resp.Data.Items, 2)
}

func TestArchiveCommandFromStdin(t *testing.T) {
	resetLogging(t)

	configPath := writeFile(t, "config.yml", inmemoryConfig)

	var out bytes.Buffer
	RootCmd.SetOut(&out)
	RootCmd.SetErr(&bytes.Buffer{})
	RootCmd.SetIn(strings.NewReader("\n# nothing here\n"))
	RootCmd.SetArgs([]string{"archive", "--no-pin=false", configPath, "-"})
	t.Cleanup(func() {
		RootCmd.SetOut(nil)
		RootCmd.SetErr(nil)
		RootCmd.SetIn(nil)
		RootCmd.SetArgs(nil)
	})

	require.ErrorContains(t, RootCmd.Execute(), "no links provided")
}

func TestStatusCommand(t *testing.T) {
	resetLogging(t)

	configPath := writeFile(t, "config.yml", inmemoryConfig)

	var out bytes.Buffer
	RootCmd.SetOut(&out)
	RootCmd.SetArgs([]string{"status", configPath, emptyDirectoryCID})
	t.Cleanup(func() {
		RootCmd.SetOut(nil)
		RootCmd.SetArgs(nil)
	})
	require.NoError(t, RootCmd.Execute())

	var resp v1.CheckStatusResponse
	require.NoError(t, json.Unmarshal(out.Bytes(), &resp))
	require.NotNil(t, resp.Status)
	require.Equal(t, emptyDirectoryCID, resp.Status.Cid)
	require.Equal(t, "unpinned", resp.Status.Summary())
}

func TestServerGracefulShutdown(t *testing.T) {
	resetLogging(t)

	config, err := configuration.Parse(strings.NewReader(inmemoryConfig))
	require.NoError(t, err)
	config.Log.AccessLog.Disabled = true

	srv, err := NewServer(context.Background(), config)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	srv.server.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "API", rec.Body.String())

	rec = httptest.NewRecorder()
	srv.server.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	done := make(chan error, 1)
	go func() {
		done <- srv.ListenAndServe()
	}()

	time.Sleep(50 * time.Millisecond)
	srv.quit <- syscall.SIGTERM

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
