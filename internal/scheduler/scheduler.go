package scheduler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
	"github.com/ubuygold/ledgerpool/internal/config"
	"github.com/ubuygold/ledgerpool/internal/pool"
)

// Jobs is the pool maintenance the scheduler drives.
type Jobs interface {
	ReviveErroredAccounts(ctx context.Context) (int, error)
	ProviderStats(ctx context.Context) ([]pool.ProviderStat, error)
}

type Scheduler struct {
	jobs   Jobs
	cfg    config.SchedulerConfig
	logger *slog.Logger
	c      *cron.Cron

	ctx    context.Context
	cancel context.CancelFunc
}

func NewScheduler(jobs Jobs, cfg config.SchedulerConfig, logger *slog.Logger) *Scheduler {
	logger = logger.With("component", "scheduler")
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		jobs:   jobs,
		cfg:    cfg,
		logger: logger,
		c:      cron.New(cron.WithChain(cron.Recover(cronLogger{logger}), cron.SkipIfStillRunning(cronLogger{logger}))),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start registers the revival and report jobs and starts the cron loop.
func (s *Scheduler) Start() error {
	if _, err := s.c.AddFunc(s.cfg.RevivalSpec, func() { s.RunRevival(s.ctx) }); err != nil {
		return fmt.Errorf("error scheduling revival job: %w", err)
	}
	if _, err := s.c.AddFunc(s.cfg.ReportSpec, func() { s.RunReport(s.ctx) }); err != nil {
		return fmt.Errorf("error scheduling report job: %w", err)
	}
	s.c.Start()
	s.logger.Info("Scheduler started", "revival_spec", s.cfg.RevivalSpec, "report_spec", s.cfg.ReportSpec)
	return nil
}

// Stop cancels running jobs and waits for them to return.
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.c.Stop().Done()
	s.logger.Info("Scheduler stopped")
}

// RunRevival re-tests accounts that the circuit breaker took out of rotation.
func (s *Scheduler) RunRevival(ctx context.Context) {
	revived, err := s.jobs.ReviveErroredAccounts(ctx)
	if err != nil {
		s.logger.Error("Error reviving accounts", "error", err, "revived", revived)
		return
	}
	if revived > 0 {
		s.logger.Info("Re-activated accounts", "revived", revived)
	}
}

// RunReport logs a per-provider summary of the pool.
func (s *Scheduler) RunReport(ctx context.Context) {
	stats, err := s.jobs.ProviderStats(ctx)
	if err != nil {
		s.logger.Error("Error building pool report", "error", err)
		return
	}
	for _, st := range stats {
		level := slog.LevelInfo
		if st.TotalAccounts > 0 && st.ActiveAccounts == 0 {
			level = slog.LevelWarn
		}
		s.logger.Log(ctx, level, "Pool status",
			"provider", st.Provider,
			"total_accounts", st.TotalAccounts,
			"active_accounts", st.ActiveAccounts,
			"total_requests", st.TotalRequests,
			"audio_seconds", st.AudioSeconds,
			"characters", st.Characters,
		)
	}
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	l *slog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error(msg, append(keysAndValues, "error", err)...)
}
