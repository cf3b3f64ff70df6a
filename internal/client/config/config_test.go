package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	var c Config
	c.LoadDefaults()

	assert.Equal(t, "http://localhost:5000/api", c.APIBaseURL)
	assert.Equal(t, 7, c.TokenExpiryDays)
	assert.Equal(t, "session.db", c.StoragePath)
	assert.Equal(t, "info", c.LogLevel)
	assert.False(t, c.ServerLogout)
	assert.Empty(t, c.MetricsAddr)
	require.NoError(t, c.Validate())
}

func TestLoad_NoArgsUsesDefaults(t *testing.T) {
	cfg := load(nil)

	require.NotNil(t, cfg, "load must not return nil")
	assert.Equal(t, "http://localhost:5000/api", cfg.APIBaseURL)
	assert.Equal(t, 7, cfg.TokenExpiryDays)
}

func TestValidate(t *testing.T) {
	base := func() Config {
		var c Config
		c.LoadDefaults()
		return c
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"https with path", func(c *Config) { c.APIBaseURL = "https://auth.example.com/v1/api" }, false},
		{"in-memory storage", func(c *Config) { c.StoragePath = "" }, false},
		{"no scheme", func(c *Config) { c.APIBaseURL = "localhost:5000" }, true},
		{"ftp", func(c *Config) { c.APIBaseURL = "ftp://example.com" }, true},
		{"no host", func(c *Config) { c.APIBaseURL = "http:///api" }, true},
		{"zero expiry", func(c *Config) { c.TokenExpiryDays = 0 }, true},
		{"bad level", func(c *Config) { c.LogLevel = "loud" }, true},
		{"metrics address", func(c *Config) { c.MetricsAddr = "127.0.0.1:9464" }, false},
		{"metrics any interface", func(c *Config) { c.MetricsAddr = ":9464" }, false},
		{"metrics without port", func(c *Config) { c.MetricsAddr = "localhost" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base()
			tt.mutate(&c)
			if tt.wantErr {
				assert.Error(t, c.Validate())
			} else {
				assert.NoError(t, c.Validate())
			}
		})
	}
}

func TestLoad_InvalidPanics(t *testing.T) {
	require.Panics(t, func() { load([]string{"-e=-3"}) })
	require.Panics(t, func() { load([]string{"-a", "not a url"}) })
}
