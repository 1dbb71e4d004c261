package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"

	"github.com/agenciageraleads/summi-worker/internal/biz/domain"
	"github.com/agenciageraleads/summi-worker/internal/biz/repo"
	"github.com/agenciageraleads/summi-worker/internal/biz/usecase"
	"github.com/agenciageraleads/summi-worker/internal/metrics"
)

// ErrQueueDisabled is returned by summi_enqueue_job when no queue is configured
var ErrQueueDisabled = errors.New("job queue not configured")

// Analyzer classifies one subscriber's conversations
type Analyzer interface {
	AnalyzeUser(ctx context.Context, userID string) (*usecase.AnalysisReport, error)
}

// Aggregator runs and previews digests
type Aggregator interface {
	RunTick(ctx context.Context) (*usecase.TickReport, error)
	PreviewDigest(ctx context.Context, userID string) (*usecase.DigestPreview, error)
}

// QueueNames maps worker roles to queue keys
type QueueNames struct {
	Analysis string
	Summary  string
}

// Handler implements the operator tools on top of the usecases
type Handler struct {
	analysis    Analyzer
	aggregation Aggregator
	queue       repo.QueueRepo
	queues      QueueNames
	logger      zerolog.Logger
}

// NewHandler creates a new MCP handler. queue may be nil.
func NewHandler(analysis Analyzer, aggregation Aggregator, queue repo.QueueRepo, queues QueueNames, logger zerolog.Logger) *Handler {
	return &Handler{
		analysis:    analysis,
		aggregation: aggregation,
		queue:       queue,
		queues:      queues,
		logger:      logger,
	}
}

// AnalyzeUser handles summi_analyze_user
func (h *Handler) AnalyzeUser(ctx context.Context, req *sdkmcp.CallToolRequest, input AnalyzeUserInput) (*sdkmcp.CallToolResult, usecase.AnalysisReport, error) {
	userID := strings.TrimSpace(input.UserID)
	if userID == "" {
		return nil, usecase.AnalysisReport{}, errors.New("user_id is required")
	}
	report, err := h.analysis.AnalyzeUser(ctx, userID)
	if err != nil {
		return nil, usecase.AnalysisReport{}, err
	}
	h.logger.Info().Str("user_id", userID).Int("analyzed", report.AnalyzedCount).Msg("Tool summi_analyze_user done")
	return nil, *report, nil
}

// PreviewDigest handles summi_preview_digest
func (h *Handler) PreviewDigest(ctx context.Context, req *sdkmcp.CallToolRequest, input PreviewDigestInput) (*sdkmcp.CallToolResult, usecase.DigestPreview, error) {
	userID := strings.TrimSpace(input.UserID)
	if userID == "" {
		return nil, usecase.DigestPreview{}, errors.New("user_id is required")
	}
	preview, err := h.aggregation.PreviewDigest(ctx, userID)
	if err != nil {
		return nil, usecase.DigestPreview{}, err
	}
	return nil, *preview, nil
}

// RunHourly handles summi_run_hourly
func (h *Handler) RunHourly(ctx context.Context, req *sdkmcp.CallToolRequest, input RunHourlyInput) (*sdkmcp.CallToolResult, usecase.TickReport, error) {
	report, err := h.aggregation.RunTick(ctx)
	if err != nil {
		return nil, usecase.TickReport{}, err
	}
	h.logger.Info().Int("subscribers", report.Subscribers).Int("sent", report.Sent).Msg("Tool summi_run_hourly done")
	return nil, *report, nil
}

// EnqueueJob handles summi_enqueue_job
func (h *Handler) EnqueueJob(ctx context.Context, req *sdkmcp.CallToolRequest, input EnqueueJobInput) (*sdkmcp.CallToolResult, EnqueueJobOutput, error) {
	if h.queue == nil {
		return nil, EnqueueJobOutput{}, ErrQueueDisabled
	}

	raw, err := json.Marshal(domain.Job{
		Type:    domain.JobType(strings.TrimSpace(input.Type)),
		UserID:  strings.TrimSpace(input.UserID),
		Trigger: "mcp",
	})
	if err != nil {
		return nil, EnqueueJobOutput{}, err
	}
	job, err := usecase.DecodeJob(raw)
	if err != nil {
		return nil, EnqueueJobOutput{}, err
	}

	queue := h.queues.Analysis
	if job.Type == domain.JobRunHourly {
		queue = h.queues.Summary
	}
	if err := h.queue.Enqueue(ctx, queue, job); err != nil {
		return nil, EnqueueJobOutput{}, fmt.Errorf("enqueue %s: %w", job.Type, err)
	}
	metrics.JobsEnqueued.WithLabelValues(string(job.Type)).Inc()
	return nil, EnqueueJobOutput{Queued: true, Queue: queue}, nil
}
