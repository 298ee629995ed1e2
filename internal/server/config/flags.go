package config

import (
	"flag"
	"io"
	"time"

	"github.com/ttm0z/stock-analyzer-sub001/internal/flagx"
)

// parseFlags overlays Config fields given on the command line.
//
// Supported flags (short forms):
//
//	-a string   gRPC bind address (e.g., ":50051")
//	-m string   metrics bind address (e.g., ":9090")
//	-d string   PostgreSQL DSN
//	-r string   Redis URL
//	-s string   token signing secret
//	-t int      token ttl, minutes
//	-x int      session ttl, minutes
//	-p string   session policy: unlimited | single-per-device
//	-l string   log level
//
// Durations are given as whole minutes and converted to time.Duration.
func parseFlags(config *Config, args []string) error {
	args = flagx.FilterArgs(args, []string{"-a", "-m", "-d", "-r", "-s", "-t", "-x", "-p", "-l"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&config.EndpointAddrGRPC, "a", config.EndpointAddrGRPC, "gRPC bind address")
	fs.StringVar(&config.MetricsAddr, "m", config.MetricsAddr, "metrics bind address")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.RedisURL, "r", config.RedisURL, "redis URL")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "token signing secret")

	tokenTTL := fs.Int("t", int(config.TokenTTL.Minutes()), "token ttl (in minutes)")
	sessionTTL := fs.Int("x", int(config.SessionTTL.Minutes()), "session ttl (in minutes)")

	fs.StringVar(&config.SessionPolicy, "p", config.SessionPolicy, "session policy")
	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")

	if err := fs.Parse(args); err != nil {
		return err
	}

	// Only override durations that were actually given, so sub-minute
	// values from the file or environment survive.
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "t":
			config.TokenTTL = time.Duration(*tokenTTL) * time.Minute
		case "x":
			config.SessionTTL = time.Duration(*sessionTTL) * time.Minute
		}
	})
	return nil
}
