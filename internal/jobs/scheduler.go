package jobs

import (
	"context"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/openfund-labs/fundflow-api/internal/dto"
	"github.com/openfund-labs/fundflow-api/pkg/config"
)

type cycleAdvancer interface {
	CheckAndAdvanceCycles(ctx context.Context) (dto.AdvanceResult, error)
}

type caseCloser interface {
	CloseFundedCases(ctx context.Context) (int, error)
}

// Scheduler runs the periodic sweeps: advancing due project cycles and
// closing fully funded cases. Both sweeps are idempotent, so overlapping or
// retried runs are harmless.
type Scheduler struct {
	cron     *cron.Cron
	cfg      config.SchedulerConfig
	projects cycleAdvancer
	cases    caseCloser
	logger   *zap.Logger
}

// NewScheduler constructs the scheduler. Jobs are registered on Start.
func NewScheduler(cfg config.SchedulerConfig, projects cycleAdvancer, cases caseCloser, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	cronLogger := cron.PrintfLogger(zap.NewStdLog(logger))
	return &Scheduler{
		cron:     cron.New(cron.WithChain(cron.Recover(cronLogger))),
		cfg:      cfg,
		projects: projects,
		cases:    cases,
		logger:   logger,
	}
}

// Start registers the sweeps and starts the cron loop.
func (s *Scheduler) Start(ctx context.Context) {
	if _, err := s.cron.AddFunc(s.cfg.CycleSchedule, func() { s.runCycleSweep(ctx) }); err != nil {
		s.logger.Error("failed to schedule cycle advance sweep",
			zap.String("schedule", s.cfg.CycleSchedule), zap.Error(err))
	} else {
		s.logger.Info("scheduled cycle advance sweep", zap.String("schedule", s.cfg.CycleSchedule))
	}

	if _, err := s.cron.AddFunc(s.cfg.ClosureSchedule, func() { s.runClosureSweep(ctx) }); err != nil {
		s.logger.Error("failed to schedule case closure sweep",
			zap.String("schedule", s.cfg.ClosureSchedule), zap.Error(err))
	} else {
		s.logger.Info("scheduled case closure sweep", zap.String("schedule", s.cfg.ClosureSchedule))
	}

	s.cron.Start()
}

// Stop halts the cron loop and returns a context that completes when running
// jobs finish.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

func (s *Scheduler) runCycleSweep(ctx context.Context) {
	result, err := s.projects.CheckAndAdvanceCycles(ctx)
	if err != nil {
		s.logger.Error("cycle advance sweep failed", zap.Error(err))
		return
	}
	if len(result.Advanced) > 0 {
		s.logger.Info("cycle advance sweep finished", zap.Strings("advanced", result.Advanced))
	}
}

func (s *Scheduler) runClosureSweep(ctx context.Context) {
	closed, err := s.cases.CloseFundedCases(ctx)
	if err != nil {
		s.logger.Error("case closure sweep failed", zap.Error(err))
		return
	}
	if closed > 0 {
		s.logger.Info("case closure sweep finished", zap.Int("closed", closed))
	}
}
