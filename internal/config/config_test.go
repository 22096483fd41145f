package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envOf(vars map[string]string) func(string) string {
	return func(key string) string { return vars[key] }
}

func TestLoadDefaults(t *testing.T) {
	cfg := LoadFrom(envOf(nil))

	assert.Equal(t, 4680, cfg.Port)
	assert.Equal(t, []string{"relationships"}, cfg.EnabledServices)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.True(t, cfg.MetricsEnabled)
	assert.False(t, cfg.AllowEmptyKeys)
	require.NoError(t, cfg.Validate())
}

func TestLoadOverrides(t *testing.T) {
	cfg := LoadFrom(envOf(map[string]string{
		"PORT":             "9000",
		"ENABLED_SERVICES": " relationships , extra ,,",
		"LOG_LEVEL":        "DEBUG",
		"METRICS_ENABLED":  "false",
		"ALLOW_EMPTY_KEYS": "1",
	}))

	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, []string{"relationships", "extra"}, cfg.EnabledServices)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.False(t, cfg.MetricsEnabled)
	assert.True(t, cfg.AllowEmptyKeys)
	assert.True(t, cfg.IsServiceEnabled("extra"))
	assert.False(t, cfg.IsServiceEnabled("blob"))
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	cfg := LoadFrom(envOf(map[string]string{
		"PORT":             "70000",
		"METRICS_ENABLED":  "maybe",
		"ALLOW_EMPTY_KEYS": "nope",
	}))

	assert.Equal(t, 4680, cfg.Port)
	assert.True(t, cfg.MetricsEnabled)
	assert.False(t, cfg.AllowEmptyKeys)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Port = 0
	assert.ErrorContains(t, cfg.Validate(), "invalid PORT")

	cfg = Default()
	cfg.LogLevel = "loud"
	assert.ErrorContains(t, cfg.Validate(), "invalid LOG_LEVEL")
}
