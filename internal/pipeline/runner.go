// Package pipeline orchestrates one batch cycle: retrieve changed
// reports, flatten them into scoring-ready records, evaluate each record
// under bounded concurrency, and persist results or error artifacts.
package pipeline

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/scienceon/tutor-batch/internal/flatten"
	"github.com/scienceon/tutor-batch/internal/model"
	"github.com/scienceon/tutor-batch/internal/retrieve"
	"github.com/scienceon/tutor-batch/internal/store"
)

// DefaultConcurrency bounds how many records are evaluated at once.
const DefaultConcurrency = 5

// Evaluator scores one record. Implemented by scorer.Scorer.
type Evaluator interface {
	EvaluateRecord(ctx context.Context, rec *model.Record) (*model.EvaluationResult, error)
}

// Config holds the runner settings.
type Config struct {
	// Concurrency is the record fan-out limit (0 = DefaultConcurrency).
	Concurrency int `yaml:"concurrency" mapstructure:"concurrency"`
	// ResultIndex receives EvaluationResult documents.
	ResultIndex string `yaml:"result_index" mapstructure:"result_index"`
	// ErrorIndex receives ErrorArtifact documents.
	ErrorIndex string `yaml:"error_index" mapstructure:"error_index"`
}

// Runner executes batch cycles.
type Runner struct {
	retriever *retrieve.Retriever
	flattener *flatten.Flattener
	evaluator Evaluator
	store     store.Store
	cfg       Config
	now       func() time.Time
}

// NewRunner creates a Runner.
func NewRunner(r *retrieve.Retriever, f *flatten.Flattener, e Evaluator, st store.Store, cfg Config) *Runner {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	return &Runner{
		retriever: r,
		flattener: f,
		evaluator: e,
		store:     st,
		cfg:       cfg,
		now:       time.Now,
	}
}

// Run executes one cycle. With a non-empty id list only those reports are
// processed; otherwise every report modified since the latest persisted
// result is. A per-record evaluation failure is recorded as an error
// artifact and does not disturb other records; failures of the shared
// retrieve/flatten stages abort the whole cycle.
func (r *Runner) Run(ctx context.Context, ids []string) error {
	started := r.now()

	headers, err := r.retriever.FetchHeaders(ctx, ids)
	if err != nil {
		return err
	}
	if len(headers) == 0 {
		zap.L().Info("pipeline: no reports to process")
		return nil
	}

	layouts, err := r.retriever.FetchLayouts(ctx)
	if err != nil {
		return err
	}
	analysis, err := r.retriever.FetchAnalysis(ctx)
	if err != nil {
		return err
	}

	records := r.flattener.Flatten(headers, layouts, analysis)
	zap.L().Info("pipeline: cycle started",
		zap.Int("records", len(records)), zap.Int("concurrency", r.cfg.Concurrency))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Concurrency)
	for _, rec := range records {
		g.Go(func() error {
			r.processRecord(gCtx, rec)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return eris.Wrap(err, "pipeline: record fan-out")
	}

	zap.L().Info("pipeline: cycle finished",
		zap.Int("records", len(records)),
		zap.Duration("elapsed", r.now().Sub(started)))
	return nil
}

func (r *Runner) processRecord(ctx context.Context, rec *model.Record) {
	reportID := rec.Header.ReportID
	zap.L().Debug("pipeline: evaluating report", zap.String("report_id", reportID))

	result, err := r.evaluator.EvaluateRecord(ctx, rec)
	if err != nil {
		r.recordFailure(ctx, reportID, err)
		return
	}

	if err := r.store.Insert(ctx, r.cfg.ResultIndex, reportID, result); err != nil {
		r.recordFailure(ctx, reportID, err)
		return
	}
	zap.L().Info("pipeline: report evaluated", zap.String("report_id", reportID))
}

// recordFailure persists an error artifact keyed by report id plus
// attempt timestamp, so repeated failures never overwrite each other.
func (r *Runner) recordFailure(ctx context.Context, reportID string, cause error) {
	zap.L().Error("pipeline: report evaluation failed",
		zap.String("report_id", reportID), zap.Error(cause))

	artifact := model.ErrorArtifact{
		ReportID:  reportID,
		Error:     cause.Error(),
		CreatedAt: r.now().Format("2006-01-02T15:04:05.000"),
	}
	if err := r.store.Insert(ctx, r.cfg.ErrorIndex, artifact.DocID(), artifact); err != nil {
		zap.L().Error("pipeline: writing error artifact failed",
			zap.String("report_id", reportID), zap.Error(err))
	}
}
