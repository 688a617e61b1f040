// Package main provides the flightpipe CLI.
//
// Each command runs one pipeline stage (or all three in order) and prints the
// stage result as one JSON line on stdout. Logs go to stderr.
// The exit code is 0 when every result is 2xx.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/flightpipe-io/flightpipe/internal/config"
)

// Version information.
const (
	version = "1.0.0-dev"
	name    = "flightpipe"
)

func main() {
	var (
		showVersion = flag.Bool("version", false, "Show version information")
		showHelp    = flag.Bool("help", false, "Show help information")
		envFile     = flag.String("env-file", ".env", "Optional dotenv file loaded before reading configuration")
		event       = flag.String("event", "{}", "Trigger event JSON passed to the stage handler")
		limit       = flag.Int("limit", 20, "Number of runs listed by the history command")
	)

	flag.Usage = printUsage
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s v%s\n", name, version)
		os.Exit(0)
	}

	if *showHelp || flag.NArg() < 1 {
		printUsage()
		os.Exit(0)
	}

	if !json.Valid([]byte(*event)) {
		fmt.Fprintf(os.Stderr, "-event must be valid JSON: %s\n", *event)
		os.Exit(1)
	}

	if err := config.LoadDotEnv(*envFile); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load %s: %v\n", *envFile, err)
		os.Exit(1)
	}

	logger := newLogger(os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := newApp(logger, os.Stdout)
	a.event = []byte(*event)
	a.historyLimit = *limit

	code := a.run(ctx, flag.Args())

	stop()
	os.Exit(code)
}

// newLogger writes JSON logs to w. Stdout is reserved for command output.
func newLogger(w io.Writer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: config.GetEnvLogLevel("LOG_LEVEL", slog.LevelInfo),
	}))
}

func printUsage() {
	fmt.Printf(`%s v%s - flight data batch pipeline

Usage: %s [flags] <command> [args]

Commands:
  ingest            Fetch each airline's flights and store the raw JSON
  normalize         Flatten raw JSON into per-airline and combined CSVs
  load              Copy the combined CSVs into the warehouse staging table
  run               Run ingest, normalize and load in order
  migrate <op>      Run-ledger schema: up, down or status
  history           List recent runs from the ledger
  serve             Serve stage triggers over HTTP

Flags:
`, name, version, name)
	flag.PrintDefaults()
	fmt.Print(`
Environment Variables:
  S3_BUCKET_NAME          Bucket holding raw and processed artifacts (required for s3/minio)
  OBJECT_STORE_BACKEND    s3 (default), minio or memory
  AVIATIONSTACK_API_KEY   Flight API access key (required for ingest)
  AIRLINES_CONFIG_PATH    Airline registry YAML (default: airlines.yaml)
  SNOWFLAKE_USER/_PASSWORD/_ACCOUNT  Warehouse credentials (required for load)
  DATABASE_URL            PostgreSQL run ledger (optional)
  KAFKA_BROKERS           Stage report notifications (optional)
  PUSHGATEWAY_URL         Prometheus Pushgateway (optional)
  STAGE_TIMEOUT           Deadline per stage (default: 10m)
  FLIGHTPIPE_SERVER_PORT  Trigger server port (default: 8080)
  FLIGHTPIPE_TRIGGER_TOKEN_HASH  bcrypt hash of the trigger token (optional)
  LOG_LEVEL               debug, info, warn or error (default: info; logs go to stderr)
`)
}
