package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/nwm-retrospective-etl/internal/domain"
	"github.com/couchcryptid/nwm-retrospective-etl/internal/extract"
	"github.com/couchcryptid/nwm-retrospective-etl/internal/metricslog"
	"github.com/couchcryptid/nwm-retrospective-etl/internal/observability"
	"github.com/couchcryptid/nwm-retrospective-etl/internal/output"
)

// Opener opens the dataset the pipeline extracts from.
type Opener interface {
	Open(ctx context.Context) (extract.Handle, error)
}

// Recorder receives one entry per finished job.
type Recorder interface {
	Record(e metricslog.Entry) error
}

// Options tunes a Pipeline.
type Options struct {
	// Variable is the array extracted by every job.
	Variable string
	// Recorder is optional.
	Recorder Recorder
}

// Pipeline runs extraction jobs against one dataset handle.
type Pipeline struct {
	opener  Opener
	loader  output.Loader
	clock   clockwork.Clock
	logger  *slog.Logger
	metrics *observability.Metrics
	opts    Options
	ready   atomic.Bool

	total  atomic.Int64
	done   atomic.Int64
	failed atomic.Int64
}

// New creates a Pipeline with the given stages and observability.
func New(opener Opener, loader output.Loader, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics, opts Options) *Pipeline {
	if opts.Variable == "" {
		opts.Variable = domain.DefaultVariable
	}
	return &Pipeline{
		opener:  opener,
		loader:  loader,
		clock:   clock,
		logger:  logger,
		metrics: metrics,
		opts:    opts,
	}
}

// CheckReadiness returns nil once the dataset handle is open.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("dataset has not been opened yet")
	}
	return nil
}

// Progress reports finished, failed and scheduled job counts of the current run.
func (p *Pipeline) Progress() (done, failed, total int) {
	return int(p.done.Load()), int(p.failed.Load()), int(p.total.Load())
}

// Run validates every job, opens the dataset once and runs the jobs in
// order. A failed job is logged and counted and the rest still run; the
// returned error joins every job failure. Invalid jobs fail the run before
// the dataset is opened.
func (p *Pipeline) Run(ctx context.Context, jobs []domain.Job) error {
	for _, job := range jobs {
		if err := job.Criteria.Validate(); err != nil {
			p.metrics.ExtractionsTotal.WithLabelValues(domain.Classify(err)).Inc()
			return fmt.Errorf("job %s: %w", job.Name, err)
		}
	}

	p.total.Store(int64(len(jobs)))
	p.done.Store(0)
	p.failed.Store(0)
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	h, err := p.opener.Open(ctx)
	if err != nil {
		p.metrics.ExtractionsTotal.WithLabelValues(domain.Classify(err)).Inc()
		return err
	}
	p.ready.Store(true)
	p.logger.Info("pipeline started", "jobs", len(jobs), "variable", p.opts.Variable)

	var errs []error
	for _, job := range jobs {
		if ctx.Err() != nil {
			p.logger.Info("pipeline stopping", "reason", ctx.Err())
			errs = append(errs, ctx.Err())
			break
		}
		if err := p.runJob(ctx, h, job); err != nil {
			p.failed.Add(1)
			p.logger.Error("job failed", "job", job.Name, "class", domain.Classify(err), "error", err)
			errs = append(errs, fmt.Errorf("job %s: %w", job.Name, err))
		}
		p.done.Add(1)
	}
	return errors.Join(errs...)
}

func (p *Pipeline) runJob(ctx context.Context, h extract.Handle, job domain.Job) error {
	start := p.clock.Now()
	c := job.Criteria
	p.logger.Info("extracting",
		"job", job.Name,
		"mode", c.Mode().String(),
		"start", c.Start.Format(domain.DateLayout),
		"end", c.End.Format(domain.DateLayout),
		"comids", len(c.FeatureIDs),
	)

	err := p.extractAndLoad(ctx, h, job)
	p.metrics.ExtractionsTotal.WithLabelValues(domain.Classify(err)).Inc()
	if err != nil {
		return err
	}

	// Only completed extractions are timed and logged; failures are counted
	// in ExtractionsTotal by class.
	elapsed := p.clock.Since(start)
	p.metrics.ExtractionDuration.Observe(elapsed.Seconds())
	if p.opts.Recorder != nil {
		entry := metricslog.Entry{Start: c.Start, End: c.End, ComIDs: len(c.FeatureIDs), Duration: elapsed}
		if err := p.opts.Recorder.Record(entry); err != nil {
			p.logger.Warn("metrics log write failed", "error", err)
		}
	}
	p.logger.Info("job finished", "job", job.Name, "duration", elapsed)
	return nil
}

func (p *Pipeline) extractAndLoad(ctx context.Context, h extract.Handle, job domain.Job) error {
	sel, err := extract.Extract(h, p.opts.Variable, job.Criteria)
	if err != nil {
		return err
	}
	table, err := sel.Materialize(ctx)
	if err != nil {
		return err
	}

	if job.Criteria.Mode() == domain.ModeFeatures {
		found, err := sel.Matched(ctx, domain.DimFeature)
		if err != nil {
			return err
		}
		p.metrics.JobFeatures.Observe(float64(found))
		if missing := distinct(job.Criteria.FeatureIDs) - found; missing > 0 {
			p.logger.Warn("feature ids not in dataset", "job", job.Name, "missing", missing)
		}
	}
	if len(table.Rows) == 0 {
		p.logger.Warn("selection is empty", "job", job.Name)
	}
	return p.loader.Load(ctx, job.Name, table)
}

func distinct(ids []int64) int {
	seen := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		seen[id] = struct{}{}
	}
	return len(seen)
}
