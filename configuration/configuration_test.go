package configuration

import (
	"bytes"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"gopkg.in/yaml.v2"
)

// configYamlV0_1 is a Version 0.1 yaml document representing configStruct
const configYamlV0_1 = `
version: 0.1
log:
  level: info
  fields:
    environment: test
store:
  kubo:
    url: http://localhost:5001
    maxthreads: 16
cluster:
  ipfscluster:
    url: http://localhost:9094
auth:
  basic:
    realm: archiver
    username: admin
    password: secret
http:
  addr: :8000
  headers:
    X-Content-Type-Options: [nosniff]
archive:
  concurrency: 4
  retries: 5
  retrydelay: 250ms
  fetchtimeout: 30s
  extension: auto
  statuscachettl: 5s
health:
  storedriver:
    enabled: true
`

// inmemoryConfigYamlV0_1 is a Version 0.1 yaml document specifying the
// in-memory drivers as bare strings and nothing else.
const inmemoryConfigYamlV0_1 = `
version: 0.1
store: inmemory
cluster: inmemory
`

type ConfigSuite struct {
	suite.Suite
}

func TestConfigSuite(t *testing.T) {
	suite.Run(t, new(ConfigSuite))
}

func (suite *ConfigSuite) SetupTest() {
	os.Clearenv()
}

func (suite *ConfigSuite) TestParseSimple() {
	config, err := Parse(bytes.NewReader([]byte(configYamlV0_1)))
	suite.Require().NoError(err)

	suite.Require().Equal(Version("0.1"), config.Version)
	suite.Require().Equal(Loglevel("info"), config.Log.Level)
	suite.Require().Equal("test", config.Log.Fields["environment"])

	suite.Require().Equal("kubo", config.Store.Type())
	suite.Require().Equal("http://localhost:5001", config.Store.Parameters()["url"])
	suite.Require().Equal(16, config.Store.Parameters()["maxthreads"])

	suite.Require().Equal("ipfscluster", config.Cluster.Type())
	suite.Require().Equal("basic", config.Auth.Type())
	suite.Require().Equal("archiver", config.Auth.Parameters()["realm"])

	suite.Require().Equal(":8000", config.HTTP.Addr)
	suite.Require().Equal([]string{"nosniff"}, config.HTTP.Headers["X-Content-Type-Options"])

	suite.Require().Equal(4, config.Archive.Concurrency)
	suite.Require().Equal(5, config.Archive.Retries)
	suite.Require().Equal(250*time.Millisecond, config.Archive.RetryDelay)
	suite.Require().Equal(30*time.Second, config.Archive.FetchTimeout)
	suite.Require().Equal("auto", config.Archive.Extension)
	suite.Require().Equal(5*time.Second, config.Archive.StatusCacheTTL)

	suite.Require().True(config.Health.StoreDriver.Enabled)
	suite.Require().Equal(defaultHealthInterval, config.Health.StoreDriver.Interval)
	suite.Require().False(config.Health.Cluster.Enabled)
}

func (suite *ConfigSuite) TestParseDefaults() {
	config, err := Parse(bytes.NewReader([]byte(inmemoryConfigYamlV0_1)))
	suite.Require().NoError(err)

	suite.Require().Equal("inmemory", config.Store.Type())
	suite.Require().Empty(config.Store.Parameters())
	suite.Require().Equal("inmemory", config.Cluster.Type())
	suite.Require().Empty(config.Auth.Type())

	suite.Require().Equal(Loglevel("info"), config.Log.Level)
	suite.Require().Equal(defaultConcurrency, config.Archive.Concurrency)
	suite.Require().Equal(defaultRetries, config.Archive.Retries)
	suite.Require().Equal(time.Second, config.Archive.RetryDelay)
	suite.Require().Equal("png", config.Archive.Extension)
	suite.Require().Equal(int64(150<<20), config.HTTP.MaxBodySize)
	suite.Require().Equal(":8000", config.HTTP.Addr)
}

func (suite *ConfigSuite) TestParseExtensionDot() {
	config, err := Parse(bytes.NewReader([]byte(inmemoryConfigYamlV0_1 + "archive:\n  extension: .jpg\n")))
	suite.Require().NoError(err)
	suite.Require().Equal("jpg", config.Archive.Extension)
}

func (suite *ConfigSuite) TestParseRoundTrip() {
	config, err := Parse(bytes.NewReader([]byte(configYamlV0_1)))
	suite.Require().NoError(err)

	out, err := yaml.Marshal(config)
	suite.Require().NoError(err)

	again, err := Parse(bytes.NewReader(out))
	suite.Require().NoError(err)
	suite.Require().Equal(config.Store.Type(), again.Store.Type())
	suite.Require().Equal(config.Archive, again.Archive)
	suite.Require().Equal(config.HTTP.Addr, again.HTTP.Addr)
}

func (suite *ConfigSuite) TestBareDriverMarshalsAsString() {
	out, err := yaml.Marshal(Store{"inmemory": nil})
	suite.Require().NoError(err)
	suite.Require().Equal("inmemory\n", string(out))
}

func (suite *ConfigSuite) TestParseInvalidVersion() {
	_, err := Parse(bytes.NewReader([]byte(strings.Replace(configYamlV0_1, "version: 0.1", "version: 9.9", 1))))
	suite.Require().ErrorContains(err, "unsupported version")
}

func (suite *ConfigSuite) TestParseMissingStore() {
	_, err := Parse(bytes.NewReader([]byte("version: 0.1\ncluster: inmemory\n")))
	suite.Require().ErrorContains(err, "no store configuration provided")
}

func (suite *ConfigSuite) TestParseMissingCluster() {
	_, err := Parse(bytes.NewReader([]byte("version: 0.1\nstore: inmemory\n")))
	suite.Require().ErrorContains(err, "no cluster configuration provided")
}

func (suite *ConfigSuite) TestParseMultipleStores() {
	doc := "version: 0.1\ncluster: inmemory\nstore:\n  kubo: {}\n  inmemory: {}\n"
	_, err := Parse(bytes.NewReader([]byte(doc)))
	suite.Require().ErrorContains(err, "must provide exactly one store type")
}

func (suite *ConfigSuite) TestParseInvalidLoglevel() {
	_, err := Parse(bytes.NewReader([]byte(inmemoryConfigYamlV0_1 + "log:\n  level: loud\n")))
	suite.Require().ErrorContains(err, "invalid loglevel")
}

func (suite *ConfigSuite) TestParseNegativeConcurrency() {
	_, err := Parse(bytes.NewReader([]byte(inmemoryConfigYamlV0_1 + "archive:\n  concurrency: -1\n")))
	suite.Require().ErrorContains(err, "concurrency must be positive")
}

func (suite *ConfigSuite) TestParseWithEnvironmentOverrides() {
	suite.T().Setenv("ARCHIVER_LOG_LEVEL", "debug")
	suite.T().Setenv("ARCHIVER_STORE_KUBO_URL", "http://ipfs:5001")
	suite.T().Setenv("ARCHIVER_ARCHIVE_CONCURRENCY", "2")
	suite.T().Setenv("ARCHIVER_ARCHIVE_RETRYDELAY", "2s")
	suite.T().Setenv("ARCHIVER_AUTH_BASIC_PASSWORD", "hunter2")
	suite.T().Setenv("ARCHIVER_CONFIGURATION_PATH", "/etc/archiver/config.yml")

	config, err := Parse(bytes.NewReader([]byte(configYamlV0_1)))
	suite.Require().NoError(err)

	suite.Require().Equal(Loglevel("debug"), config.Log.Level)
	suite.Require().Equal("http://ipfs:5001", config.Store.Parameters()["url"])
	suite.Require().Equal(16, config.Store.Parameters()["maxthreads"])
	suite.Require().Equal(2, config.Archive.Concurrency)
	suite.Require().Equal(2*time.Second, config.Archive.RetryDelay)
	suite.Require().Equal("hunter2", config.Auth.Parameters()["password"])
}

func (suite *ConfigSuite) TestParseWithEnvironmentReplacingStore() {
	suite.T().Setenv("ARCHIVER_STORE", "inmemory")

	config, err := Parse(bytes.NewReader([]byte(configYamlV0_1)))
	suite.Require().NoError(err)
	suite.Require().Equal("inmemory", config.Store.Type())
}

func (suite *ConfigSuite) TestSetParameter() {
	config, err := Parse(bytes.NewReader([]byte(configYamlV0_1)))
	suite.Require().NoError(err)

	config.Store.setParameter("url", "http://other:5001")
	config.Auth.setParameter("password", "changed")

	suite.Require().Equal("http://other:5001", config.Store.Parameters()["url"])
	suite.Require().Equal("changed", config.Auth.Parameters()["password"])
}
