package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/flightpipe-io/flightpipe/internal/airline"
	"github.com/flightpipe-io/flightpipe/internal/api"
	"github.com/flightpipe-io/flightpipe/internal/api/middleware"
	"github.com/flightpipe-io/flightpipe/internal/config"
	"github.com/flightpipe-io/flightpipe/internal/flightapi"
	"github.com/flightpipe-io/flightpipe/internal/ingest"
	"github.com/flightpipe-io/flightpipe/internal/metrics"
	"github.com/flightpipe-io/flightpipe/internal/normalize"
	"github.com/flightpipe-io/flightpipe/internal/notify"
	"github.com/flightpipe-io/flightpipe/internal/objectstore"
	"github.com/flightpipe-io/flightpipe/internal/pipeline"
	"github.com/flightpipe-io/flightpipe/internal/storage"
	"github.com/flightpipe-io/flightpipe/internal/warehouse"
)

const (
	exitOK      = 0
	exitFailure = 1

	defaultStageTimeout = 10 * time.Minute
)

var allStages = []pipeline.Stage{pipeline.StageIngest, pipeline.StageNormalize, pipeline.StageLoad}

var (
	errUnknownCommand = errors.New("unknown command")
	errLedgerDisabled = errors.New("run ledger is disabled: set DATABASE_URL")
)

// app wires collaborators for one process invocation.
type app struct {
	logger       *slog.Logger
	stdout       io.Writer
	event        json.RawMessage
	historyLimit int
	clock        func() time.Time

	store      objectstore.Store
	ledger     *storage.RunStore
	ledgerConn *storage.Connection
	closers    []func() error
}

func newApp(logger *slog.Logger, stdout io.Writer) *app {
	return &app{
		logger:       logger,
		stdout:       stdout,
		event:        json.RawMessage(`{}`),
		historyLimit: 20,
		clock:        time.Now,
	}
}

// run executes one command and returns the process exit code.
func (a *app) run(ctx context.Context, args []string) int {
	defer a.close()

	command := args[0]

	var err error

	switch command {
	case "ingest", "normalize", "load", "run":
		return a.runStages(ctx, command)
	case "migrate":
		op := "up"
		if len(args) > 1 {
			op = args[1]
		}

		err = a.migrate(ctx, op)
	case "history":
		err = a.history(ctx)
	case "serve":
		err = a.serve(ctx)
	default:
		err = fmt.Errorf("%w: %q", errUnknownCommand, command)
	}

	if err != nil {
		a.logger.Error("Command failed", slog.String("command", command), slog.String("error", err.Error()))

		return exitFailure
	}

	return exitOK
}

func (a *app) runStages(ctx context.Context, command string) int {
	stages := []pipeline.Stage{pipeline.Stage(command)}

	var pinned []pipeline.RunnerOption

	if command == "run" {
		stages = allStages
		// One partition date for the whole run.
		pinned = append(pinned, pipeline.WithRunTime(a.clock()))
	}

	handlers := make([]pipeline.Handler, 0, len(stages))
	runner := a.newRunner(ctx, pinned...)

	for _, stage := range stages {
		fn, err := a.stageFunc(stage)
		if err != nil {
			a.logger.Error("Failed to initialize stage", slog.String("stage", string(stage)), slog.String("error", err.Error()))

			return exitFailure
		}

		handlers = append(handlers, runner.Handler(stage, fn))
	}

	code := exitOK
	encoder := json.NewEncoder(a.stdout)

	for _, handle := range handlers {
		result := handle(ctx, a.event)

		if err := encoder.Encode(result); err != nil {
			a.logger.Error("Failed to write result", slog.String("error", err.Error()))

			code = exitFailure
		}

		if !result.OK() {
			code = exitFailure
		}
	}

	return code
}

// stageFunc builds the collaborators one stage needs.
func (a *app) stageFunc(stage pipeline.Stage) (pipeline.StageFunc, error) {
	switch stage {
	case pipeline.StageIngest:
		registry, store, err := a.registryAndStore()
		if err != nil {
			return nil, err
		}

		client, err := flightapi.NewClient(flightapi.LoadConfig(), flightapi.WithLogger(a.logger))
		if err != nil {
			return nil, fmt.Errorf("flight API: %w", err)
		}

		return ingest.New(client, store, ingest.WithLogger(a.logger)).Stage(registry), nil
	case pipeline.StageNormalize:
		registry, store, err := a.registryAndStore()
		if err != nil {
			return nil, err
		}

		cfg := normalize.LoadConfig()

		return normalize.New(store,
			normalize.WithLogger(a.logger),
			normalize.WithParquetExport(cfg.ParquetExport),
		).Stage(registry), nil
	case pipeline.StageLoad:
		cfg := warehouse.LoadConfig()

		a.logger.Info("Loaded warehouse configuration", slog.String("target", cfg.String()))

		return warehouse.New(cfg, warehouse.WithLogger(a.logger)).Stage(), nil
	default:
		return nil, fmt.Errorf("%w: %q", errUnknownCommand, stage)
	}
}

func (a *app) registryAndStore() (*airline.Registry, objectstore.Store, error) {
	registry, err := airline.LoadRegistryFromEnv()
	if err != nil {
		return nil, nil, fmt.Errorf("airline registry: %w", err)
	}

	a.logger.Debug("Loaded airline registry", slog.Any("airlines", registry.Codes()))

	store, err := a.objectStore()
	if err != nil {
		return nil, nil, fmt.Errorf("object store: %w", err)
	}

	return registry, store, nil
}

// objectStore builds the store once per process so "run" with the memory
// backend sees the previous stage's objects.
func (a *app) objectStore() (objectstore.Store, error) {
	if a.store != nil {
		return a.store, nil
	}

	store, err := objectstore.New(objectstore.LoadConfig())
	if err != nil {
		return nil, err
	}

	a.store = store

	return store, nil
}

// newRunner wires the optional reporting sinks. A sink that cannot be built is
// logged and left out; it never blocks the stage.
func (a *app) newRunner(ctx context.Context, extra ...pipeline.RunnerOption) *pipeline.Runner {
	opts := []pipeline.RunnerOption{
		pipeline.WithLogger(a.logger),
		pipeline.WithTimeout(config.GetEnvDuration("STAGE_TIMEOUT", defaultStageTimeout)),
		pipeline.WithClock(a.clock),
	}
	opts = append(opts, extra...)

	if dbCfg := storage.LoadConfig(); dbCfg.Enabled() {
		store, err := a.runStore(ctx, dbCfg)
		if err != nil {
			a.logger.Warn("Run ledger disabled",
				slog.String("database_url", dbCfg.MaskDatabaseURL()),
				slog.String("error", err.Error()))
		} else {
			opts = append(opts, pipeline.WithRecorder(store))
		}
	}

	if kafkaCfg := notify.LoadConfig(); kafkaCfg.Enabled() {
		publisher, err := notify.NewKafkaPublisher(kafkaCfg)
		if err != nil {
			a.logger.Warn("Stage report publishing disabled", slog.String("error", err.Error()))
		} else {
			a.closers = append(a.closers, publisher.Close)
			opts = append(opts, pipeline.WithPublisher(publisher))
		}
	}

	if metricsCfg := metrics.LoadConfig(); metricsCfg.Enabled() {
		pusher, err := metrics.NewPusher(metricsCfg, metrics.WithLogger(a.logger))
		if err != nil {
			a.logger.Warn("Metrics disabled", slog.String("error", err.Error()))
		} else {
			opts = append(opts, pipeline.WithObserver(pusher))
		}
	}

	return pipeline.NewRunner(opts...)
}

func (a *app) runStore(ctx context.Context, cfg *storage.Config) (*storage.RunStore, error) {
	conn, err := storage.NewConnection(ctx, cfg)
	if err != nil {
		return nil, err
	}

	store, err := storage.NewRunStore(conn, storage.WithRunStoreLogger(a.logger))
	if err != nil {
		_ = conn.Close()

		return nil, err
	}

	a.closers = append(a.closers, conn.Close)
	a.ledger = store
	a.ledgerConn = conn

	return store, nil
}

// serve exposes every stage that can be built over HTTP until ctx is cancelled.
// A stage missing its configuration is left out rather than failing the server,
// so a load-only deployment needs no API key.
func (a *app) serve(ctx context.Context) error {
	runner := a.newRunner(ctx)

	opts := []api.Option{api.WithLogger(a.logger), api.WithVersion(version)}

	for _, stage := range allStages {
		fn, err := a.stageFunc(stage)
		if err != nil {
			a.logger.Warn("Stage not served", slog.String("stage", string(stage)), slog.String("error", err.Error()))

			continue
		}

		opts = append(opts, api.WithStage(stage, runner.Handler(stage, fn)))
	}

	if a.ledger != nil {
		opts = append(opts, api.WithRunLister(a.ledger), api.WithHealthChecker(a.ledgerConn))
	}

	mwCfg := middleware.LoadConfig()

	if mwCfg.AuthEnabled() {
		auth, err := middleware.NewTokenAuthenticator(mwCfg.TokenHash)
		if err != nil {
			return err
		}

		opts = append(opts, api.WithTokenAuth(auth))
	}

	opts = append(opts, api.WithRateLimiter(middleware.NewRateLimiter(mwCfg)))

	return api.NewServer(api.LoadServerConfig(), opts...).Start(ctx)
}

func (a *app) migrate(ctx context.Context, op string) error {
	cfg := storage.LoadConfig()
	if !cfg.Enabled() {
		return errLedgerDisabled
	}

	conn, err := storage.NewConnection(ctx, cfg)
	if err != nil {
		return err
	}

	migrator, err := storage.NewMigrator(conn, nil, a.logger)
	if err != nil {
		_ = conn.Close()

		return err
	}

	// Closing the migrator closes conn as well.
	defer func() {
		_ = migrator.Close()
	}()

	switch op {
	case "up":
		return migrator.Up()
	case "down":
		return migrator.Down()
	case "status":
		status, err := migrator.Status()
		if err != nil {
			return err
		}

		return json.NewEncoder(a.stdout).Encode(status)
	default:
		return fmt.Errorf("%w: migrate %q", errUnknownCommand, op)
	}
}

func (a *app) history(ctx context.Context) error {
	cfg := storage.LoadConfig()
	if !cfg.Enabled() {
		return errLedgerDisabled
	}

	store, err := a.runStore(ctx, cfg)
	if err != nil {
		return err
	}

	runs, err := store.RecentRuns(ctx, a.historyLimit)
	if err != nil {
		return err
	}

	encoder := json.NewEncoder(a.stdout)
	for _, run := range runs {
		if err := encoder.Encode(run); err != nil {
			return err
		}
	}

	return nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("Failed to close resource", slog.String("error", err.Error()))
		}
	}

	a.closers = nil
}
