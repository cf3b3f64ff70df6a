package config

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlags(t *testing.T) {
	tests := []struct {
		expected    *Config
		name        string
		args        []string
		expectPanic bool
	}{
		{
			name: "all flags",
			args: []string{"-a", "https://auth.example.com/api", "-e", "14", "-s", "/tmp/s.db", "-l", "debug", "-logout", "-m", ":9464"},
			expected: &Config{
				APIBaseURL: "https://auth.example.com/api", TokenExpiryDays: 14,
				StoragePath: "/tmp/s.db", LogLevel: "debug", ServerLogout: true, MetricsAddr: ":9464",
			},
		},
		{
			name: "unknown flags are ignored",
			args: []string{"-x", "1", "-a=http://h/api", "--verbose"},
			expected: &Config{
				APIBaseURL: "http://h/api", TokenExpiryDays: 7, StoragePath: "session.db", LogLevel: "info",
			},
		},
		{
			name: "empty storage path",
			args: []string{"-s="},
			expected: &Config{
				APIBaseURL: "http://localhost:5000/api", TokenExpiryDays: 7, LogLevel: "info",
			},
		},
		{name: "incorrect expiry", args: []string{"-e", "abc"}, expectPanic: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := &Config{}
			config.LoadDefaults()

			if tt.expectPanic {
				require.Panics(t, func() { parseFlags(config, tt.args) })
				return
			}
			require.NotPanics(t, func() { parseFlags(config, tt.args) })
			assert.Empty(t, cmp.Diff(tt.expected, config))
		})
	}
}
