package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"github.com/agenciageraleads/summi-worker/internal/api"
	"github.com/agenciageraleads/summi-worker/internal/biz"
	"github.com/agenciageraleads/summi-worker/internal/biz/usecase"
	"github.com/agenciageraleads/summi-worker/internal/conf"
	"github.com/agenciageraleads/summi-worker/internal/data"
	"github.com/agenciageraleads/summi-worker/internal/service"
)

// app holds the wired layers of one process
type app struct {
	cfg    *conf.Config
	repos  *data.Repositories
	uc     *biz.Usecases
	logger zerolog.Logger
}

// newApp builds repositories and usecases from cfg
func newApp(ctx context.Context, cfg *conf.Config, logger zerolog.Logger) (*app, error) {
	repos, err := data.NewRepositories(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("init repositories: %w", err)
	}

	analysis := usecase.NewAnalysisUsecase(
		repos.Conversations,
		repos.Profiles,
		usecase.NewClassifier(repos.Inference, cfg.Prompts, cfg.OpenAI.ModelAnalysis),
		usecase.AnalysisConfig{
			IgnoreJID: cfg.Pipeline.IgnoreRemoteJID,
			BatchSize: cfg.Pipeline.AnalysisBatchSize,
		},
		logger,
	)

	aggregation := usecase.NewAggregationUsecase(
		repos.Conversations,
		repos.Profiles,
		repos.Gateway,
		repos.Inference,
		repos.Lock,
		analysis,
		usecase.NewAudioScripter(repos.Inference, cfg.Prompts, cfg.OpenAI.ModelSummary),
		usecase.AggregationConfig{
			SenderInstance:  cfg.Evolution.SenderInstance,
			IgnoreJID:       cfg.Pipeline.IgnoreRemoteJID,
			Window:          cfg.Schedule.BusinessWindow(),
			Location:        cfg.Schedule.Location(),
			CleanupDays:     cfg.Schedule.LowPriorityCleanupDays,
			SubscriberLimit: cfg.Schedule.SubscriberLimit,
			DigestBatchSize: cfg.Schedule.DigestBatchSize,
		},
		logger,
	)

	enricher := usecase.NewEnricher(repos.Gateway, repos.Inference, repos.Probe, cfg.Prompts, usecase.EnricherConfig{
		VisionModel:    cfg.OpenAI.ModelVision,
		SummaryModel:   cfg.OpenAI.ModelSummary,
		SenderInstance: cfg.Evolution.SenderInstance,
	})

	ingest := usecase.NewIngestUsecase(
		repos.Conversations,
		repos.Profiles,
		repos.Dedup,
		repos.Queue,
		enricher,
		analysis,
		usecase.IngestConfig{
			IgnoreJID:     cfg.Pipeline.IgnoreRemoteJID,
			DedupTTL:      cfg.Pipeline.DedupTTL,
			KeepRaw:       cfg.Pipeline.StoreRawPayload,
			Retention:     cfg.Pipeline.Retention(),
			AnalysisQueue: cfg.Queue.AnalysisName,
			QueueAnalysis: cfg.Queue.EnableAnalysis,
		},
		logger,
	)

	if repos.Dedup == nil {
		logger.Warn().Msg("REDIS_URL not set, webhook dedup disabled")
	}

	return &app{
		cfg:   cfg,
		repos: repos,
		uc: &biz.Usecases{
			Ingest:      ingest,
			Analysis:    analysis,
			Aggregation: aggregation,
			Dispatcher:  usecase.NewDispatcher(analysis, aggregation, logger),
		},
		logger: logger,
	}, nil
}

// Close releases the backing stores
func (a *app) Close() {
	if err := a.repos.Close(); err != nil {
		a.logger.Warn().Err(err).Msg("Failed to close repositories")
	}
}

// apiHandler builds the HTTP handlers
func (a *app) apiHandler() *api.Handler {
	checks := map[string]api.HealthCheck{"database": a.repos.Store.Ping}
	if a.repos.Redis != nil {
		checks["redis"] = a.repos.Redis.Ping
	}
	return api.NewHandler(a.uc.Ingest, a.uc.Analysis, a.uc.Aggregation, a.repos.Identity, checks, a.logger)
}

// scheduler builds the hourly scheduler; run_hourly is queued only when the
// summary queue is enabled
func (a *app) scheduler() *service.HourlyScheduler {
	var queue = a.repos.Queue
	if !a.cfg.Queue.EnableSummary {
		queue = nil
	}
	return service.NewHourlyScheduler(a.uc.Aggregation, queue, service.SchedulerConfig{
		Spec:      a.cfg.Schedule.Spec,
		Location:  a.cfg.Schedule.Location(),
		QueueName: a.cfg.Queue.SummaryName,
	}, a.logger)
}

// newLogger builds the process logger. Output goes to stderr so stdout stays
// free for command results and the MCP stdio transport.
func newLogger(cfg conf.LogConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "console" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stderr).With().Timestamp().Str("service", "summi-worker").Logger()
}
