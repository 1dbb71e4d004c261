package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/agenciageraleads/summi-worker/internal/biz/domain"
	"github.com/agenciageraleads/summi-worker/internal/biz/repo"
	"github.com/agenciageraleads/summi-worker/internal/biz/usecase"
	"github.com/agenciageraleads/summi-worker/internal/metrics"
)

// DefaultHourlySpec runs the tick once an hour
const DefaultHourlySpec = "@every 1h"

// TickRunner runs one aggregation tick
type TickRunner interface {
	RunTick(ctx context.Context) (*usecase.TickReport, error)
}

// SchedulerConfig controls the hourly scheduler
type SchedulerConfig struct {
	Spec     string
	Location *time.Location
	// QueueName is where run_hourly jobs go when a queue is set
	QueueName string
}

// HourlyScheduler fires the aggregation tick on a cron schedule, either inline
// or by enqueuing a run_hourly job for the summary workers
type HourlyScheduler struct {
	runner TickRunner
	queue  repo.QueueRepo
	cfg    SchedulerConfig
	logger zerolog.Logger

	cron *cron.Cron
	ctx  context.Context
	stop context.CancelFunc
}

// NewHourlyScheduler creates a new scheduler. queue may be nil to always run inline.
func NewHourlyScheduler(runner TickRunner, queue repo.QueueRepo, cfg SchedulerConfig, logger zerolog.Logger) *HourlyScheduler {
	if cfg.Spec == "" {
		cfg.Spec = DefaultHourlySpec
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	s := &HourlyScheduler{
		runner: runner,
		queue:  queue,
		cfg:    cfg,
		logger: logger.With().Str("component", "scheduler").Logger(),
	}
	clog := cronLogger{logger: s.logger}
	s.cron = cron.New(
		cron.WithLocation(cfg.Location),
		cron.WithLogger(clog),
		cron.WithChain(cron.Recover(clog), cron.SkipIfStillRunning(clog)),
	)
	return s
}

// Start registers the tick and starts the cron loop
func (s *HourlyScheduler) Start(ctx context.Context) error {
	s.ctx, s.stop = context.WithCancel(ctx)
	if _, err := s.cron.AddFunc(s.cfg.Spec, func() {
		if err := s.Trigger(s.ctx); err != nil {
			s.logger.Error().Err(err).Msg("Scheduled tick failed")
		}
	}); err != nil {
		s.stop()
		return fmt.Errorf("invalid schedule %q: %w", s.cfg.Spec, err)
	}
	s.cron.Start()
	s.logger.Info().Str("schedule", s.cfg.Spec).Bool("queued", s.queue != nil).Msg("Scheduler started")
	return nil
}

// Stop cancels the running tick and waits for it to return
func (s *HourlyScheduler) Stop() {
	if s.stop != nil {
		s.stop()
	}
	<-s.cron.Stop().Done()
	s.logger.Info().Msg("Scheduler stopped")
}

// Trigger performs one scheduled firing
func (s *HourlyScheduler) Trigger(ctx context.Context) error {
	if s.queue != nil {
		job := domain.Job{Type: domain.JobRunHourly, Trigger: "scheduler"}
		if err := s.queue.Enqueue(ctx, s.cfg.QueueName, job); err != nil {
			return fmt.Errorf("enqueue run_hourly: %w", err)
		}
		metrics.JobsEnqueued.WithLabelValues(string(job.Type)).Inc()
		s.logger.Info().Str("queue", s.cfg.QueueName).Msg("Enqueued hourly summary job")
		return nil
	}

	report, err := s.runner.RunTick(ctx)
	if errors.Is(err, usecase.ErrTickRunning) {
		s.logger.Info().Msg("Tick already running, skipped")
		return nil
	}
	if err != nil {
		return err
	}
	s.logger.Info().Int("subscribers", report.Subscribers).Int("sent", report.Sent).Msg("Scheduled tick done")
	return nil
}

// cronLogger adapts zerolog to cron.Logger
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
