package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testKey = strings.Repeat("k", 40)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadFrom_YAML(t *testing.T) {
	t.Setenv(EnvAPIKey, "")
	path := writeFile(t, "config.yaml", `
api_key: `+testKey+`
gateway_url: https://gw.example.com/rest/
db_path: /tmp/tracker.db
http_timeout: 5s
notifications:
  enabled: true
  interval: 1m
device:
  language: pt_BR.UTF-8
  screen: 1920x1080
  device_type: tablet
`)

	cfg, err := LoadFrom(path)
	require.NoError(t, err)

	assert.Equal(t, testKey, cfg.APIKey)
	assert.Equal(t, "https://gw.example.com/rest/", cfg.GatewayURL)
	assert.Equal(t, "/tmp/tracker.db", cfg.DBPath)
	assert.Equal(t, 5*time.Second, cfg.HTTPTimeout)
	assert.True(t, cfg.Notifications.Enabled)
	assert.Equal(t, time.Minute, cfg.Notifications.Interval)
	assert.Equal(t, "pt", cfg.Device.Language)
	assert.Equal(t, "1920x1080", cfg.Device.Screen)
	assert.Equal(t, "tablet", cfg.Device.DeviceType)
	assert.Equal(t, Platform, cfg.Device.Platform, "unset keys keep their defaults")
}

func TestLoadFrom_TOML(t *testing.T) {
	t.Setenv(EnvAPIKey, "")
	path := writeFile(t, "config.toml", `
api_key = "`+testKey+`"

[notifications]
enabled = true

[device]
language = "de"
time_zone = 2.0
`)

	cfg, err := LoadFrom(path)
	require.NoError(t, err)

	assert.Equal(t, testKey, cfg.APIKey)
	assert.True(t, cfg.Notifications.Enabled)
	assert.Equal(t, 15*time.Minute, cfg.Notifications.Interval)
	assert.Equal(t, "de", cfg.Device.Language)
	assert.InDelta(t, 2.0, cfg.Device.TimeZone, 0.0001)
}

func TestLoadFrom_MissingFileUsesDefaultsAndEnv(t *testing.T) {
	t.Setenv(EnvAPIKey, testKey)

	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, testKey, cfg.APIKey)
	assert.Equal(t, DefaultConfig().GatewayURL, cfg.GatewayURL)
	assert.False(t, cfg.Notifications.Enabled)
}

func TestLoadFrom_EnvOverridesFile(t *testing.T) {
	override := strings.Repeat("e", 40)
	t.Setenv(EnvAPIKey, override)
	path := writeFile(t, "config.yaml", "api_key: "+testKey+"\n")

	cfg, err := LoadFrom(path)
	require.NoError(t, err)
	assert.Equal(t, override, cfg.APIKey)
}

func TestLoadFrom_EmptyYAML(t *testing.T) {
	t.Setenv(EnvAPIKey, testKey)
	path := writeFile(t, "config.yml", "")

	_, err := LoadFrom(path)
	assert.NoError(t, err)
}

func TestLoadFrom_UnknownKey(t *testing.T) {
	t.Setenv(EnvAPIKey, testKey)

	_, err := LoadFrom(writeFile(t, "config.yaml", "api_kee: x\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing config file")

	_, err = LoadFrom(writeFile(t, "config.toml", "colour = \"red\"\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown key "colour"`)
}

func TestLoadFrom_UnsupportedFormat(t *testing.T) {
	t.Setenv(EnvAPIKey, testKey)

	_, err := LoadFrom(writeFile(t, "config.json", "{}"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported config format")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		want   string
	}{
		{"missing api key", func(c *Config) { c.APIKey = "" }, "api_key is required"},
		{"short api key", func(c *Config) { c.APIKey = "abc" }, "api_key must be exactly 40 characters"},
		{"bad gateway", func(c *Config) { c.GatewayURL = "not a url" }, `gateway_url failed "url"`},
		{"zero timeout", func(c *Config) { c.HTTPTimeout = 0 }, "http_timeout must be greater than 0"},
		{"zero interval", func(c *Config) { c.Notifications.Interval = 0 }, "notifications.interval must be greater than 0"},
		{"device type", func(c *Config) { c.Device.DeviceType = "watch" }, "device.device_type must be one of [phone tablet desktop]"},
		{"screen", func(c *Config) { c.Device.Screen = "wide" }, `device.screen failed "screen"`},
		{"language", func(c *Config) { c.Device.Language = "!!" }, `device.language failed "langtag"`},
		{"time zone", func(c *Config) { c.Device.TimeZone = 20 }, `device.time_zone failed "lte"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.APIKey = testKey
			tt.modify(&cfg)

			err := Validate(&cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidate_Defaults(t *testing.T) {
	cfg := DefaultConfig()
	cfg.APIKey = testKey
	assert.NoError(t, Validate(&cfg))
}

func TestNormalizeLanguage(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"en", "en"},
		{"en-US", "en"},
		{"pt_BR.UTF-8", "pt"},
		{"zh-Hant-TW", "zh"},
	}
	for _, tt := range tests {
		got, err := NormalizeLanguage(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := NormalizeLanguage("not a language")
	assert.Error(t, err)
}
