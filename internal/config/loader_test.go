package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadConfig_BindsTempoThrottleKeys(t *testing.T) {
	embedded := EmbeddedConfig(`
temposync:
  tempo:
    min_request_interval_ms: 250
    retry_wait_ms: 4000
`)

	cfg, err := LoadConfig("", embedded)
	assert.NoError(t, err)
	assert.Equal(t, 250, cfg.Temposync.Tempo.MinRequestIntervalMillis)
	assert.Equal(t, 4000, cfg.Temposync.Tempo.RetryWaitMillis)
}

func TestLoadConfig_ExplicitFalseOverridesDefaultTrueFlag(t *testing.T) {
	embedded := EmbeddedConfig(`
temposync:
  metrics:
    enabled: false
  scheduler:
    enabled: true
  sync:
    fail_fast: false
`)

	cfg, err := LoadConfig("", embedded)
	assert.NoError(t, err)
	assert.False(t, cfg.Temposync.Metrics.Enabled)
	assert.True(t, cfg.Temposync.Scheduler.Enabled)
	assert.False(t, cfg.Temposync.Sync.FailFast)
}

func TestLoadConfig_BooleanDefaultsSurviveAbsentKeys(t *testing.T) {
	embedded := EmbeddedConfig(`
temposync:
  system:
    logging:
      level: DEBUG
`)

	cfg, err := LoadConfig("", embedded)
	assert.NoError(t, err)
	assert.True(t, cfg.Temposync.Metrics.Enabled)
	assert.False(t, cfg.Temposync.Scheduler.Enabled)
	assert.False(t, cfg.Temposync.Worker.RunOnce)
	assert.Equal(t, "DEBUG", cfg.Temposync.System.Logging.Level)
}

func TestLoadConfig_DefaultsWhenKeysAbsent(t *testing.T) {
	cfg, err := LoadConfig("", EmbeddedConfig("temposync: {}\n"))
	assert.NoError(t, err)
	assert.Equal(t, 750, cfg.Temposync.Tempo.MinRequestIntervalMillis)
	assert.Equal(t, 1000, cfg.Temposync.Tempo.RetryWaitMillis)
	assert.Equal(t, 30000, cfg.Temposync.Sync.CellLimit)
}
