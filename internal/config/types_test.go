package config_test

import (
	"testing"
	"time"

	"github.com/promptdeck/bastion/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestTypeDuration(t *testing.T) {
	t.Parallel()

	value := config.TypeDuration{}

	assert.NoError(t, value.Set("90s"))
	assert.Equal(t, 90*time.Second, value.Value)

	assert.Error(t, value.Set("nonsense"))
	assert.Error(t, value.Set("-1m"))

	assert.Equal(t, time.Hour, config.TypeDuration{}.Get(time.Hour))
}

func TestTypeBytes(t *testing.T) {
	t.Parallel()

	value := config.TypeBytes{}

	assert.NoError(t, value.Set("1MiB"))
	assert.EqualValues(t, 1024*1024, value.Get(0))

	assert.NoError(t, value.Set("512KB"))
	assert.EqualValues(t, 512*1024, value.Get(0))

	assert.Error(t, value.Set("a lot"))
}

func TestTypeErrorRate(t *testing.T) {
	t.Parallel()

	value := config.TypeErrorRate{}

	assert.NoError(t, value.Set("0.01"))
	assert.InDelta(t, 0.01, value.Value, 1e-9)

	assert.Error(t, value.Set("0"))
	assert.Error(t, value.Set("1"))
	assert.Error(t, value.Set("1.5"))
}

func TestTypeHostPort(t *testing.T) {
	t.Parallel()

	value := config.TypeHostPort{}

	assert.NoError(t, value.Set("127.0.0.1:9401"))
	assert.Error(t, value.Set("127.0.0.1"))
}

func TestTypeHTTPPath(t *testing.T) {
	t.Parallel()

	value := config.TypeHTTPPath{}

	assert.NoError(t, value.Set("/metrics"))
	assert.Error(t, value.Set("metrics"))
}

func TestTypeMetricPrefix(t *testing.T) {
	t.Parallel()

	value := config.TypeMetricPrefix{}

	assert.NoError(t, value.Set("bastion"))
	assert.Error(t, value.Set("1bad"))
	assert.Error(t, value.Set("with-dash"))
}

func TestTypeStatsdTagFormat(t *testing.T) {
	t.Parallel()

	value := config.TypeStatsdTagFormat{}

	assert.NoError(t, value.Set("DataDog"))
	assert.Equal(t, "datadog", value.Value)

	assert.Error(t, value.Set("unknown"))
}

func TestTypeBoolTracksSet(t *testing.T) {
	t.Parallel()

	value := config.TypeBool{}

	assert.True(t, value.Get(true))

	assert.NoError(t, value.Set("false"))
	assert.False(t, value.Get(true))
}
