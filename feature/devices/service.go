package devices

import (
	"context"
	"time"

	"dispenser-sync/core/metrics"
	"dispenser-sync/core/reconcile"
	"dispenser-sync/core/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Service runs reconciliation passes against injected stores.
type Service struct {
	docs     store.DocumentStore
	rt       store.RealtimeStore
	logger   *zap.Logger
	cfg      reconcile.Config
	recorder *metrics.Recorder
	now      func() time.Time
}

// NewService creates a new reconciliation service.
func NewService(docs store.DocumentStore, rt store.RealtimeStore, logger *zap.Logger, cfg reconcile.Config) *Service {
	return &Service{
		docs:   docs,
		rt:     rt,
		logger: logger,
		cfg:    cfg,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// WithRecorder makes every pass report to rec.
func (s *Service) WithRecorder(rec *metrics.Recorder) *Service {
	s.recorder = rec
	return s
}

// Readers returns entity readers bound to the service's stores.
func (s *Service) Readers() *Readers {
	return NewReaders(s.docs, s.rt, s.cfg.Options(false))
}

// Reconcile runs one pass. With dryRun the plan is reported as planned
// outcomes and nothing is written. Failures never abort the pass; they are
// recorded in the returned report.
func (s *Service) Reconcile(ctx context.Context, dryRun bool) *reconcile.Report {
	runID := uuid.NewString()
	l := s.logger.With(zap.String("run_id", runID), zap.Bool("dry_run", dryRun))
	opts := s.cfg.Options(dryRun)
	report := reconcile.NewReport(runID, dryRun, Categories...)

	l.Info("Starting reconciliation pass", zap.Int("workers", opts.Workers), zap.Duration("call_timeout", opts.CallTimeout))

	snap := NewReaders(s.docs, s.rt, opts).Load(ctx, report, l)
	if ctx.Err() != nil {
		report.SetCancelled()
		return s.finish(l, report)
	}

	plan := Detect(snap, s.now())
	for _, w := range plan.Warnings {
		l.Warn("Tie-break applied", zap.Error(w))
		report.Warn("%v", w)
	}
	for _, f := range plan.Findings {
		report.Record(f)
	}
	l.Info("Plan computed",
		zap.Int("actions", len(plan.Actions)),
		zap.Int("findings", len(plan.Findings)),
		zap.Strings("incomplete", report.Incomplete),
	)

	// The repairer bounds each of its store calls; the executor does not
	// add a second budget over the whole action.
	execOpts := opts
	execOpts.CallTimeout = 0
	reconcile.Execute(ctx, plan.Actions, NewRepairer(s.docs, opts.CallTimeout), execOpts, report)
	return s.finish(l, report)
}

func (s *Service) finish(l *zap.Logger, report *reconcile.Report) *reconcile.Report {
	report.Finish()

	for _, o := range report.Unresolvable() {
		l.Warn("Unresolvable drift", zap.String("category", o.Category), zap.String("key", o.Key), zap.String("reason", o.Reason))
	}
	for _, o := range report.Failures() {
		l.Warn("Repair failed", zap.String("category", o.Category), zap.String("key", o.Key), zap.String("reason", o.Reason))
	}

	t := report.Totals()
	l.Info("Reconciliation pass finished",
		zap.Int("planned", t.Planned),
		zap.Int("created", t.Created),
		zap.Int("updated", t.Updated),
		zap.Int("skipped", t.Skipped),
		zap.Int("unresolvable", t.Unresolvable),
		zap.Int("failed", t.Failed),
		zap.Bool("cancelled", report.Cancelled),
		zap.Duration("duration", report.FinishedAt.Sub(report.StartedAt)),
	)

	if s.recorder != nil {
		s.recorder.Observe(report)
	}
	return report
}

// Plan loads a snapshot and returns the drift it contains without applying
// anything. The second value lists entity types that could not be loaded.
func (s *Service) Plan(ctx context.Context) (Plan, []string) {
	report := reconcile.NewReport(uuid.NewString(), true, Categories...)
	l := s.logger.With(zap.String("run_id", report.RunID), zap.String("mode", "plan"))
	snap := s.Readers().Load(ctx, report, l)
	report.Finish()
	return Detect(snap, s.now()), report.Incomplete
}
