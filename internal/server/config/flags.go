package config

import (
	"flag"
	"os"

	"github.com/dmitrijs2005/crosspost/internal/flagx"
)

// parseFlags populates selected server Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string     HTTP bind address (e.g., ":8080")
//	-g string     gRPC bind address (e.g., ":50051")
//	-d string     PostgreSQL DSN
//	-s string     JWT HMAC secret key
//	-e string     environment (development|production)
//	-n int        dispatch batch size
//	-i duration   in-process dispatch interval (0 disables the ticker)
//	-l string     log level
//
// The function first filters os.Args to only the flags it recognizes using
// flagx.FilterArgs, avoiding collisions with -c and other components.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-g", "-d", "-s", "-e", "-n", "-i", "-l"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.HTTPAddr, "a", config.HTTPAddr, "address and port to run the HTTP API")
	fs.StringVar(&config.GRPCAddr, "g", config.GRPCAddr, "address and port to run the gRPC server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")
	fs.StringVar(&config.Environment, "e", config.Environment, "environment")
	fs.IntVar(&config.DispatchBatchSize, "n", config.DispatchBatchSize, "dispatch batch size")
	fs.DurationVar(&config.DispatchInterval, "i", config.DispatchInterval, "dispatch interval")
	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}
}
