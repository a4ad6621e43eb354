// Command extract reads a parameter file and writes the requested NWM
// retrospective series to the file it names.
//
// Usage:
//
//	go run ./cmd/extract params.json
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

	for i, arg := range args {
		logger.Info("argument", "index", i+1, "value", arg)
	}
	if len(args) < 1 {
		logger.Error("missing parameter file argument", "usage", "extract <params-file>")
		return 2
	}

	prm, err := params.Load(args[0])
	if err != nil {
		logger.Error("invalid parameter file", "path", args[0], "error", err, "class", domain.Classify(err))
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a := &app.App{
		Config:  cfg,
		Logger:  logger,
		Metrics: observability.NewMetrics(),
		Clock:   clock,
	}
	jobs := []domain.Job{{Name: prm.FileName, Criteria: prm.Criteria()}}
	if err := a.Run(ctx, prm, jobs); err != nil {
		logger.Error("extraction failed", "error", err, "class", domain.Classify(err))
		return 1
	}
	logger.Info("extraction complete", "file", prm.FileName)
	return 0
}
