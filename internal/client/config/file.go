package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/dmitrijs2005/gophauth/internal/flagx"
)

// fileConfig is the on-disk schema shared by the JSON and TOML loaders.
// Pointer fields tell "absent" apart from a zero value, so a file only
// overrides what it names.
type fileConfig struct {
	APIBaseURL      *string `json:"api_base_url" toml:"api_base_url"`
	TokenExpiryDays *int    `json:"token_expiry_days" toml:"token_expiry_days"`
	StoragePath     *string `json:"storage_path" toml:"storage_path"`
	LogLevel        *string `json:"log_level" toml:"log_level"`
	ServerLogout    *bool   `json:"server_logout" toml:"server_logout"`
	MetricsAddr     *string `json:"metrics_addr" toml:"metrics_addr"`
}

// parseFile overlays cfg with values from the file named by -c or -config.
// A ".toml" file is read as TOML, anything else as JSON. Read and decode
// errors panic.
func parseFile(cfg *Config, args []string) {
	path := flagx.ConfigFile(args)
	if path == "" {
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		panic(err)
	}

	var fc fileConfig
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		err = toml.Unmarshal(data, &fc)
	} else {
		err = json.Unmarshal(data, &fc)
	}
	if err != nil {
		panic(err)
	}

	fc.apply(cfg)
}

func (fc fileConfig) apply(cfg *Config) {
	if fc.APIBaseURL != nil {
		cfg.APIBaseURL = *fc.APIBaseURL
	}
	if fc.TokenExpiryDays != nil {
		cfg.TokenExpiryDays = *fc.TokenExpiryDays
	}
	if fc.StoragePath != nil {
		cfg.StoragePath = *fc.StoragePath
	}
	if fc.LogLevel != nil {
		cfg.LogLevel = *fc.LogLevel
	}
	if fc.ServerLogout != nil {
		cfg.ServerLogout = *fc.ServerLogout
	}
	if fc.MetricsAddr != nil {
		cfg.MetricsAddr = *fc.MetricsAddr
	}
}
