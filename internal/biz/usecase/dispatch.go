package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/agenciageraleads/summi-worker/internal/biz/domain"
)

// QueueRole selects which job types a worker accepts
type QueueRole string

const (
	RoleAnalysis QueueRole = "analysis"
	RoleSummary  QueueRole = "summary"
)

var (
	// ErrInvalidJob is returned for payloads that do not decode into a valid job
	ErrInvalidJob = errors.New("invalid job")
	// ErrUnsupportedJob is returned for valid jobs the worker role does not handle
	ErrUnsupportedJob = errors.New("unsupported job")
)

var jobValidator = validator.New(validator.WithRequiredStructEnabled())

// DecodeJob parses and validates a queue payload
func DecodeJob(payload []byte) (domain.Job, error) {
	var job domain.Job
	if err := json.Unmarshal(payload, &job); err != nil {
		return job, fmt.Errorf("%w: %v", ErrInvalidJob, err)
	}
	if err := jobValidator.Struct(job); err != nil {
		return job, fmt.Errorf("%w: %v", ErrInvalidJob, err)
	}
	return job, nil
}

// Accepts reports whether the role handles jobs of type t
func (r QueueRole) Accepts(t domain.JobType) bool {
	switch r {
	case RoleAnalysis:
		return t == domain.JobAnalyzeUser
	case RoleSummary:
		return t == domain.JobRunHourly
	default:
		return false
	}
}

// Dispatcher runs queued jobs against the usecases
type Dispatcher struct {
	analysis    *AnalysisUsecase
	aggregation *AggregationUsecase
	logger      zerolog.Logger
}

// NewDispatcher creates a new dispatcher
func NewDispatcher(analysis *AnalysisUsecase, aggregation *AggregationUsecase, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		analysis:    analysis,
		aggregation: aggregation,
		logger:      logger.With().Str("component", "dispatcher").Logger(),
	}
}

// Dispatch decodes payload and runs it if role accepts its type
func (d *Dispatcher) Dispatch(ctx context.Context, role QueueRole, payload []byte) error {
	job, err := DecodeJob(payload)
	if err != nil {
		return err
	}
	if !role.Accepts(job.Type) {
		return fmt.Errorf("%w: %s on %s queue", ErrUnsupportedJob, job.Type, role)
	}

	switch job.Type {
	case domain.JobAnalyzeUser:
		report, err := d.analysis.AnalyzeUser(ctx, job.UserID)
		if err != nil {
			return fmt.Errorf("analyze_user %s: %w", job.UserID, err)
		}
		d.logger.Info().Str("user_id", job.UserID).Int("analyzed", report.AnalyzedCount).Msg("Job analyze_user done")
	case domain.JobRunHourly:
		report, err := d.aggregation.RunTick(ctx)
		if errors.Is(err, ErrTickRunning) {
			d.logger.Info().Str("trigger", job.Trigger).Msg("Tick already running, job skipped")
			return nil
		}
		if err != nil {
			return fmt.Errorf("run_hourly: %w", err)
		}
		d.logger.Info().Str("trigger", job.Trigger).Int("sent", report.Sent).Msg("Job run_hourly done")
	}
	return nil
}
