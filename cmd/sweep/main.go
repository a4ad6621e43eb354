// Command sweep times extractions over every combination of the date ranges
// and id counts in a parameter file's sweep section, appending one row per
// run to the metrics log.
//
// Usage:
//
//	METRICS_ADDR=:9090 go run ./cmd/sweep params.yaml
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/nwm-retrospective-etl/internal/app"
	"github.com/couchcryptid/nwm-retrospective-etl/internal/config"
	"github.com/couchcryptid/nwm-retrospective-etl/internal/domain"
	"github.com/couchcryptid/nwm-retrospective-etl/internal/observability"
	"github.com/couchcryptid/nwm-retrospective-etl/internal/params"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err, "class", domain.Classify(err))
		return 1
	}

	clock := clockwork.NewRealClock()
	logger, closer, err := observability.NewLogger(cfg, clock)
	if err != nil {
		slog.Error("failed to open log file", "error", err)
		return 1
	}
	defer closer.Close()

	if len(args) < 1 {
		logger.Error("missing parameter file argument", "usage", "sweep <params-file>")
		return 2
	}
	prm, err := params.Load(args[0])
	if err != nil {
		logger.Error("invalid parameter file", "path", args[0], "error", err, "class", domain.Classify(err))
		return 1
	}
	if prm.Sweep == nil {
		logger.Warn("parameter file has no sweep section, running a single extraction")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a := &app.App{
		Config:        cfg,
		Logger:        logger,
		Metrics:       observability.NewMetrics(),
		Clock:         clock,
		RecordMetrics: true,
		Serve:         true,
	}
	jobs := prm.Jobs()
	if err := a.Run(ctx, prm, jobs); err != nil {
		logger.Error("sweep finished with errors", "error", err, "class", domain.Classify(err))
		return 1
	}
	logger.Info("sweep complete", "jobs", len(jobs), "metrics_log", cfg.MetricsLog)
	return 0
}
