// Package app wires configuration, the dataset opener, sinks and the
// pipeline together for the commands.
package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"

	httpadapter "github.com/couchcryptid/nwm-retrospective-etl/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/nwm-retrospective-etl/internal/adapter/kafka"
	"github.com/couchcryptid/nwm-retrospective-etl/internal/config"
	"github.com/couchcryptid/nwm-retrospective-etl/internal/domain"
	"github.com/couchcryptid/nwm-retrospective-etl/internal/metricslog"
	"github.com/couchcryptid/nwm-retrospective-etl/internal/observability"
	"github.com/couchcryptid/nwm-retrospective-etl/internal/output"
	"github.com/couchcryptid/nwm-retrospective-etl/internal/params"
	"github.com/couchcryptid/nwm-retrospective-etl/internal/pipeline"
)

// App holds the process-wide dependencies of a command.
type App struct {
	Config  *config.Config
	Logger  *slog.Logger
	Metrics *observability.Metrics
	Clock   clockwork.Clock

	// RecordMetrics appends a row per job to Config.MetricsLog.
	RecordMetrics bool
	// Serve starts the health and metrics server when Config.MetricsAddr is set.
	Serve bool
}

// Run extracts jobs from the store named by prm, writing each result to its
// job name and, when configured, to Kafka.
func (a *App) Run(ctx context.Context, prm *params.Params, jobs []domain.Job) error {
	locator := domain.BuildStorePath(prm.StoreCode)
	a.Logger.Info("extraction configured",
		"dataset", prm.Dataset,
		"store", locator,
		"backend", a.Config.StoreBackend,
		"variable", prm.Variable,
		"aggregation", prm.Aggregation,
		"aggregation_code", prm.AggregationCode,
		"jobs", len(jobs),
	)

	opener := &pipeline.DatasetOpener{Config: a.Config, Locator: locator, Logger: a.Logger, Metrics: a.Metrics}
	defer opener.Close()

	loader := output.Multi{output.Files{Logger: a.Logger, Metrics: a.Metrics}}
	if a.Config.KafkaEnabled() {
		w := kafkaadapter.NewWriter(a.Config, a.Logger, a.Metrics)
		defer func() {
			if err := w.Close(); err != nil {
				a.Logger.Error("kafka writer close error", "error", err)
			}
		}()
		loader = append(loader, w)
		a.Logger.Info("kafka sink enabled", "topic", a.Config.KafkaSinkTopic)
	}

	opts := pipeline.Options{Variable: prm.Variable}
	if a.RecordMetrics && a.Config.MetricsLog != "" && a.Config.MetricsLog != "-" {
		log, err := metricslog.Open(a.Config.MetricsLog)
		if err != nil {
			return err
		}
		defer log.Close()
		opts.Recorder = log
	}

	p := pipeline.New(opener, loader, a.Clock, a.Logger, a.Metrics, opts)

	if a.Serve && a.Config.MetricsAddr != "" {
		srv := httpadapter.NewServer(a.Config.MetricsAddr, p, p, a.Logger)
		go func() {
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.Logger.Error("http server error", "error", err)
			}
		}()
		defer a.shutdown(srv)
	}

	return p.Run(ctx, jobs)
}

func (a *App) shutdown(srv *httpadapter.Server) {
	timeout := a.Config.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		a.Logger.Error("http server shutdown error", "error", err)
	}
}
