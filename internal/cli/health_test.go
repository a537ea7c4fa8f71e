package cli

import (
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/suite"
)

const healthConfigTOML = `
[salts]
ip = "ip-salt-0123456789abcdef"
ua = "ua-salt-0123456789abcdef"

[stats.prometheus]
enabled = true
bindTo = "0.0.0.0:9401"
httpPath = "/metrics"
`

type HealthTestSuite struct {
	suite.Suite

	configPath string
}

func (suite *HealthTestSuite) SetupTest() {
	suite.configPath = filepath.Join(suite.T().TempDir(), "config.toml")

	suite.Require().NoError(
		os.WriteFile(suite.configPath, []byte(healthConfigTOML), 0o600))

	httpmock.Activate()
}

func (suite *HealthTestSuite) TearDownTest() {
	httpmock.DeactivateAndReset()
}

func (suite *HealthTestSuite) TestHealthy() {
	httpmock.RegisterResponder(http.MethodGet, "http://127.0.0.1:9401/metrics",
		httpmock.NewStringResponder(http.StatusOK, "bastion_requests_allowed 1"))

	suite.NoError(Health{ConfigPath: suite.configPath}.Run(nil, "dev"))
}

func (suite *HealthTestSuite) TestUnhealthyStatus() {
	httpmock.RegisterResponder(http.MethodGet, "http://127.0.0.1:9401/metrics",
		httpmock.NewStringResponder(http.StatusServiceUnavailable, ""))

	suite.Error(Health{ConfigPath: suite.configPath}.Run(nil, "dev"))
}

func (suite *HealthTestSuite) TestPrometheusDisabled() {
	path := filepath.Join(suite.T().TempDir(), "config.toml")

	suite.Require().NoError(os.WriteFile(path, []byte(`
[salts]
ip = "ip-salt-0123456789abcdef"
ua = "ua-salt-0123456789abcdef"
`), 0o600))

	suite.Error(Health{ConfigPath: path}.Run(nil, "dev"))
}

func TestHealth(t *testing.T) {
	suite.Run(t, &HealthTestSuite{})
}
