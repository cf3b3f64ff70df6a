package config

import (
	"fmt"
	"net"
	"net/url"
	"os"

	"github.com/dmitrijs2005/gophauth/internal/logging"
)

// Config holds runtime settings for the gophauth client.
//
// Fields:
//   - APIBaseURL: root of the backend REST API, e.g. http://localhost:5000/api.
//   - TokenExpiryDays: how long a stored session token stays usable locally.
//   - StoragePath: SQLite file for the session; empty keeps it in memory.
//   - LogLevel: debug, info, warn or error.
//   - ServerLogout: also tell the backend when logging out.
//   - MetricsAddr: host:port serving Prometheus metrics at /metrics; empty
//     disables it.
type Config struct {
	APIBaseURL      string
	TokenExpiryDays int
	StoragePath     string
	LogLevel        string
	ServerLogout    bool
	MetricsAddr     string
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.APIBaseURL = "http://localhost:5000/api"
	c.TokenExpiryDays = 7
	c.StoragePath = "session.db"
	c.LogLevel = "info"
	c.ServerLogout = false
	c.MetricsAddr = ""
}

// Validate reports the first setting that cannot be used.
func (c *Config) Validate() error {
	u, err := url.Parse(c.APIBaseURL)
	if err != nil {
		return fmt.Errorf("api base url: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("api base url %q: want http(s)://host[/path]", c.APIBaseURL)
	}
	if c.TokenExpiryDays <= 0 {
		return fmt.Errorf("token expiry days must be positive, got %d", c.TokenExpiryDays)
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if c.MetricsAddr != "" {
		if _, _, err := net.SplitHostPort(c.MetricsAddr); err != nil {
			return fmt.Errorf("metrics address: %w", err)
		}
	}
	return nil
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// a config file (if given) and command-line flags (if present). Later sources
// take precedence over earlier ones. It panics when the result is invalid.
func LoadConfig() *Config {
	return load(os.Args[1:])
}

func load(args []string) *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseFile(cfg, args)
	parseFlags(cfg, args)
	if err := cfg.Validate(); err != nil {
		panic(err)
	}
	return cfg
}
