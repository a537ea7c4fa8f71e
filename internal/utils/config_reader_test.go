package utils_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/promptdeck/bastion/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const configTOML = `
debug = true
trustedNetworks = ["10.0.0.0/8"]

[salts]
ip = "ip-salt-0123456789abcdef"
ua = "ua-salt-0123456789abcdef"

[limits.eventsPerIpPerMin]
limit = 120
window = "1m"

[circuitBreaker]
ipQpsMax = 25
ban = "10m"
violationThreshold = 5
violationWindow = "1m"

[stats.prometheus]
enabled = true
bindTo = "127.0.0.1:9401"
`

func writeConfig(t *testing.T, contents string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	return path
}

func TestReadConfig(t *testing.T) {
	t.Parallel()

	conf, err := utils.ReadConfig(writeConfig(t, configTOML))
	require.NoError(t, err)

	assert.True(t, conf.Debug.Get(false))
	assert.EqualValues(t, 120, conf.Limits["eventsPerIpPerMin"].Limit.Value)
	assert.Equal(t, 10*time.Minute, conf.CircuitBreaker.Ban.Value)
	assert.Equal(t, "127.0.0.1:9401", conf.Stats.Prometheus.BindTo.Value)
}

func TestReadConfigMissingFile(t *testing.T) {
	t.Parallel()

	_, err := utils.ReadConfig(filepath.Join(t.TempDir(), "absent.toml"))
	assert.Error(t, err)
}

func TestReadConfigBrokenTOML(t *testing.T) {
	t.Parallel()

	_, err := utils.ReadConfig(writeConfig(t, "limits = ["))
	assert.Error(t, err)
}

func TestReadConfigInvalidValues(t *testing.T) {
	t.Parallel()

	_, err := utils.ReadConfig(writeConfig(t, `
[salts]
ip = "short"
ua = "ua-salt-0123456789abcdef"
`))
	assert.Error(t, err)
}
