// Package metrics pushes per-stage run metrics to a Prometheus Pushgateway.
//
// Each stage run is pushed under the grouping {job="flightpipe", stage=<stage>}
// with POST semantics, so a failed run leaves the previous last-success
// timestamp in place.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/flightpipe-io/flightpipe/internal/config"
	"github.com/flightpipe-io/flightpipe/internal/pipeline"
)

const (
	namespace      = "flightpipe"
	defaultJob     = "flightpipe"
	defaultTimeout = 10 * time.Second
)

// ErrPushgatewayURLEmpty is returned when the pusher is built without a URL.
var ErrPushgatewayURLEmpty = errors.New("pushgateway URL cannot be empty")

var _ pipeline.Observer = (*Pusher)(nil)

type (
	// Config holds Pushgateway settings. An empty URL disables metrics.
	Config struct {
		URL     string
		Job     string
		Timeout time.Duration
	}

	// Pusher implements pipeline.Observer.
	Pusher struct {
		cfg    *Config
		client *http.Client
		logger *slog.Logger
	}

	// Option configures optional Pusher behavior.
	Option func(*Pusher)
)

// LoadConfig reads PUSHGATEWAY_URL, PUSHGATEWAY_JOB and PUSHGATEWAY_TIMEOUT.
func LoadConfig() *Config {
	return &Config{
		URL:     config.GetEnvStr("PUSHGATEWAY_URL", ""),
		Job:     config.GetEnvStr("PUSHGATEWAY_JOB", defaultJob),
		Timeout: config.GetEnvDuration("PUSHGATEWAY_TIMEOUT", defaultTimeout),
	}
}

// Enabled reports whether a Pushgateway is configured.
func (c *Config) Enabled() bool {
	return strings.TrimSpace(c.URL) != ""
}

// WithLogger sets the pusher's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pusher) {
		p.logger = logger
	}
}

// WithHTTPClient replaces the HTTP client used for pushes.
func WithHTTPClient(client *http.Client) Option {
	return func(p *Pusher) {
		p.client = client
	}
}

// NewPusher creates a Pusher for cfg.
func NewPusher(cfg *Config, opts ...Option) (*Pusher, error) {
	if !cfg.Enabled() {
		return nil, ErrPushgatewayURLEmpty
	}

	if cfg.Job == "" {
		cfg.Job = defaultJob
	}

	p := &Pusher{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: slog.New(slog.NewJSONHandler(os.Stdout, nil)),
	}

	for _, opt := range opts {
		opt(p)
	}

	return p, nil
}

// Observe pushes the report's metrics. Push failures are logged.
func (p *Pusher) Observe(ctx context.Context, report *pipeline.Report) {
	err := push.New(p.cfg.URL, p.cfg.Job).
		Gatherer(NewRegistry(report)).
		Grouping("stage", string(report.Stage)).
		Client(p.client).
		AddContext(ctx)
	if err != nil {
		p.logger.Error("Failed to push metrics",
			slog.String("stage", string(report.Stage)),
			slog.String("error", err.Error()),
		)

		return
	}

	p.logger.Debug("Pushed metrics", slog.String("stage", string(report.Stage)))
}

// NewRegistry builds a registry holding the metrics of one stage run.
func NewRegistry(report *pipeline.Report) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "stage_duration_seconds",
		Help:      "Wall time of the last stage run.",
	}).Set(report.Duration().Seconds())

	factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "stage_status_code",
		Help:      "Status code of the last stage run.",
	}).Set(float64(report.StatusCode))

	factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "stage_last_run_timestamp_seconds",
		Help:      "Unix time the last stage run finished.",
	}).Set(float64(report.FinishedAt.Unix()))

	outcomes := factory.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "stage_outcomes",
		Help:      "Outcomes of the last stage run by status.",
	}, []string{"status"})

	counts := pipeline.CountByStatus(report.Outcomes)
	for _, status := range []pipeline.Status{pipeline.StatusSuccess, pipeline.StatusSkipped, pipeline.StatusFailed} {
		outcomes.WithLabelValues(string(status)).Set(float64(counts[status]))
	}

	rows := 0
	for _, o := range report.Outcomes {
		if o.Status == pipeline.StatusSuccess && o.Code != "" {
			rows += o.Rows
		}
	}

	if report.Stage == pipeline.StageLoad && len(report.Outcomes) > 0 {
		rows = report.Outcomes[0].Rows
	}

	factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "stage_rows",
		Help:      "Rows written per airline (normalize) or loaded (load) by the last stage run.",
	}).Set(float64(rows))

	if report.StatusCode >= http.StatusOK && report.StatusCode < http.StatusMultipleChoices && counts[pipeline.StatusFailed] == 0 {
		factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stage_last_success_timestamp_seconds",
			Help:      "Unix time of the last stage run without failures.",
		}).Set(float64(report.FinishedAt.Unix()))
	}

	return reg
}
