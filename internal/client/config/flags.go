package config

import (
	"flag"
	"io"

	"github.com/dmitrijs2005/gophauth/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   backend API base URL
//	-e int      local token expiry in days
//	-s string   session database path ("" keeps the session in memory)
//	-l string   log level
//	-logout     also notify the backend on logout
//	-m string   serve Prometheus metrics on this address
//
// Only the flags above are taken from args (see flagx.FilterArgs); anything
// else on the command line is left to other components.
func parseFlags(cfg *Config, args []string) {
	args = flagx.FilterArgs(args, []string{"-a", "-e", "-s", "-l", "-logout", "-m"})

	fs := flag.NewFlagSet("client", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&cfg.APIBaseURL, "a", cfg.APIBaseURL, "backend API base URL")
	fs.IntVar(&cfg.TokenExpiryDays, "e", cfg.TokenExpiryDays, "token expiry (in days)")
	fs.StringVar(&cfg.StoragePath, "s", cfg.StoragePath, "session database path")
	fs.StringVar(&cfg.LogLevel, "l", cfg.LogLevel, "log level")
	fs.BoolVar(&cfg.ServerLogout, "logout", cfg.ServerLogout, "notify the backend on logout")
	fs.StringVar(&cfg.MetricsAddr, "m", cfg.MetricsAddr, "metrics listen address")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}
}
