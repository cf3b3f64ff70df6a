// Package config loads runtime configuration for the gophauth client.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional config file selected with -c or -config. Files ending in
//     ".toml" are read as TOML, all others as JSON.
//  3. Command-line flags, which override earlier values.
//
// Supported flags
//
//	-a string   backend API base URL
//	-e int      local token expiry in days
//	-s string   session database path
//	-l string   log level (debug, info, warn, error)
//	-logout     also notify the backend on logout
//	-m string   serve Prometheus metrics on host:port
//
// # File schema
//
//	{
//	  "api_base_url": "https://auth.example.com/api",
//	  "token_expiry_days": 7,
//	  "storage_path": "session.db",
//	  "log_level": "info",
//	  "server_logout": true,
//	  "metrics_addr": "127.0.0.1:9464"
//	}
//
// or the same keys in TOML:
//
//	api_base_url = "https://auth.example.com/api"
//	token_expiry_days = 7
//
// Keys missing from the file keep their earlier value. Invalid values make
// LoadConfig panic.
package config
