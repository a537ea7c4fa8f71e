package config_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/promptdeck/bastion/internal/config"
	"github.com/stretchr/testify/suite"
)

const configJSON = `{
  "debug": true,
  "salts": {
    "ip": "ip-salt-0123456789abcdef",
    "ua": "ua-salt-0123456789abcdef"
  },
  "limits": {
    "eventsPerIpPerMin": {"limit": 120, "window": "1m"},
    "commentsPerUserPerMin": {"limit": 5, "window": "1m"}
  },
  "circuitBreaker": {
    "ipQpsMax": 25,
    "ban": "10m",
    "violationThreshold": 5,
    "violationWindow": "1m"
  },
  "burst": {
    "maxIdenticalEventsPerMin": 10,
    "filterSize": "1MiB",
    "filterErrorRate": 0.01
  },
  "anomaly": {
    "burstWeight": 0.4,
    "duplicationWeight": 0.3,
    "entropyWeight": 0.1,
    "velocityWeight": 0.2,
    "alertThreshold": 0.7,
    "alertInterval": "30s"
  },
  "shadowBan": {"enabled": true, "userIds": ["user-1"]},
  "challenge": {"enabled": true, "provider": "captcha", "scoreThreshold": 0.5},
  "trustedNetworks": ["10.0.0.0/8"],
  "stats": {
    "prometheus": {"enabled": true, "bindTo": "127.0.0.1:9401"},
    "statsd": {"enabled": false}
  }
}`

type ConfigTestSuite struct {
	suite.Suite

	conf *config.Config
}

func (suite *ConfigTestSuite) SetupTest() {
	suite.conf = &config.Config{}

	suite.Require().NoError(json.Unmarshal([]byte(configJSON), suite.conf))
}

func (suite *ConfigTestSuite) TestParsed() {
	suite.True(suite.conf.Debug.Get(false))
	suite.Equal("ip-salt-0123456789abcdef", suite.conf.Salts.IP.Value)

	suite.Len(suite.conf.Limits, 2)
	suite.EqualValues(120, suite.conf.Limits["eventsPerIpPerMin"].Limit.Value)
	suite.Equal(time.Minute, suite.conf.Limits["eventsPerIpPerMin"].Window.Value)

	suite.EqualValues(25, suite.conf.CircuitBreaker.IPQPSMax.Value)
	suite.Equal(10*time.Minute, suite.conf.CircuitBreaker.Ban.Value)

	suite.EqualValues(1024*1024, suite.conf.Burst.FilterSize.Get(0))
	suite.InDelta(0.01, suite.conf.Burst.FilterErrorRate.Value, 1e-9)

	suite.InDelta(0.4, suite.conf.Anomaly.BurstWeight, 1e-9)
	suite.Equal(30*time.Second, suite.conf.Anomaly.AlertInterval.Value)

	suite.True(suite.conf.ShadowBan.Enabled.Get(false))
	suite.Equal([]string{"user-1"}, suite.conf.ShadowBan.UserIDs)

	suite.True(suite.conf.Stats.Prometheus.Enabled.Get(false))
	suite.Equal("127.0.0.1:9401", suite.conf.Stats.Prometheus.BindTo.Value)
	suite.False(suite.conf.Stats.StatsD.Enabled.Get(true))
}

func (suite *ConfigTestSuite) TestValidateOk() {
	suite.NoError(suite.conf.Validate())
}

func (suite *ConfigTestSuite) TestValidateMissingSalt() {
	suite.conf.Salts.UA.Value = ""

	suite.Error(suite.conf.Validate())
}

func (suite *ConfigTestSuite) TestValidateZeroLimit() {
	suite.conf.Limits["broken"] = config.LimitConfig{}

	suite.Error(suite.conf.Validate())
}

func (suite *ConfigTestSuite) TestValidatePrometheusNeedsBindTo() {
	suite.conf.Stats.Prometheus.BindTo.Value = ""

	suite.Error(suite.conf.Validate())
}

func (suite *ConfigTestSuite) TestValidateChallengeNeedsProvider() {
	suite.conf.Challenge.Provider = ""

	suite.Error(suite.conf.Validate())
}

func (suite *ConfigTestSuite) TestShortSaltRejected() {
	err := json.Unmarshal([]byte(`{"salts": {"ip": "short"}}`), &config.Config{})

	suite.Error(err)
}

func (suite *ConfigTestSuite) TestStringMasksSalts() {
	out := suite.conf.String()

	suite.NotContains(out, "ip-salt-0123456789abcdef")
	suite.NotContains(out, "ua-salt-0123456789abcdef")
	suite.Contains(out, "<masked>")
}

func TestConfig(t *testing.T) {
	t.Parallel()
	suite.Run(t, &ConfigTestSuite{})
}
