package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/agenciageraleads/summi-worker/internal/biz/domain"
	"github.com/agenciageraleads/summi-worker/internal/biz/repo"
	"github.com/agenciageraleads/summi-worker/internal/metrics"
)

// DefaultAnalysisBatchSize caps the conversations classified per run
const DefaultAnalysisBatchSize = 50

// AnalysisConfig controls stale conversation classification
type AnalysisConfig struct {
	IgnoreJID string
	BatchSize int
}

// ItemResult is the outcome for one conversation. Stale marks a conversation
// that changed during classification and is left for the next run.
type ItemResult struct {
	ConversationID string          `json:"chat_id"`
	Priority       domain.Priority `json:"priority,omitempty"`
	OK             bool            `json:"ok"`
	Stale          bool            `json:"stale,omitempty"`
	Error          string          `json:"error,omitempty"`
}

// AnalysisReport summarizes one AnalyzeUser run
type AnalysisReport struct {
	Success       bool         `json:"success"`
	AnalyzedCount int          `json:"analyzed_count"`
	Prioritized   int          `json:"prioritized_count"`
	Errors        int          `json:"errors"`
	Items         []ItemResult `json:"items,omitempty"`
}

// AnalysisUsecase classifies a subscriber's stale conversations
type AnalysisUsecase struct {
	convs      repo.ConversationRepo
	profiles   repo.ProfileRepo
	classifier *Classifier
	cfg        AnalysisConfig
	now        func() time.Time
	logger     zerolog.Logger
}

// NewAnalysisUsecase creates a new analysis usecase
func NewAnalysisUsecase(
	convs repo.ConversationRepo,
	profiles repo.ProfileRepo,
	classifier *Classifier,
	cfg AnalysisConfig,
	logger zerolog.Logger,
) *AnalysisUsecase {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultAnalysisBatchSize
	}
	return &AnalysisUsecase{
		convs:      convs,
		profiles:   profiles,
		classifier: classifier,
		cfg:        cfg,
		now:        time.Now,
		logger:     logger.With().Str("component", "analysis").Logger(),
	}
}

// SetClock replaces the time source
func (uc *AnalysisUsecase) SetClock(now func() time.Time) {
	uc.now = now
}

// AnalyzeUser classifies every conversation changed since its last
// classification. A failing conversation is recorded and skipped; it stays
// stale and is retried on the next run.
func (uc *AnalysisUsecase) AnalyzeUser(ctx context.Context, userID string) (*AnalysisReport, error) {
	profile, err := uc.profiles.GetProfile(ctx, userID)
	if errors.Is(err, repo.ErrNotFound) {
		profile = domain.NewSubscriberProfile(userID)
	} else if err != nil {
		return nil, fmt.Errorf("load profile %s: %w", userID, err)
	}

	convs, err := uc.convs.ListStale(ctx, userID, uc.cfg.IgnoreJID, uc.cfg.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("list stale conversations %s: %w", userID, err)
	}

	report := &AnalysisReport{Success: true, Items: make([]ItemResult, 0, len(convs))}
	for _, conv := range convs {
		if !conv.NeedsClassification() {
			continue
		}
		item := uc.analyzeOne(ctx, conv, profile)
		report.Items = append(report.Items, item)
		if item.Stale {
			continue
		}
		if !item.OK {
			report.Errors++
			continue
		}
		report.AnalyzedCount++
		if item.Priority.Digestible() {
			report.Prioritized++
		}
	}

	if report.AnalyzedCount > 0 {
		delta := domain.ProfileMetrics{
			MessagesAnalyzed:         report.AnalyzedCount,
			ConversationsPrioritized: report.Prioritized,
		}
		if err := uc.profiles.IncrementMetrics(ctx, userID, delta); err != nil {
			uc.logger.Warn().Err(err).Str("user_id", userID).Msg("Failed to increment profile metrics")
		}
	}

	uc.logger.Info().
		Str("user_id", userID).
		Int("analyzed", report.AnalyzedCount).
		Int("prioritized", report.Prioritized).
		Int("errors", report.Errors).
		Msg("Analysis finished")
	return report, nil
}

func (uc *AnalysisUsecase) analyzeOne(ctx context.Context, conv *domain.Conversation, profile *domain.SubscriberProfile) ItemResult {
	item := ItemResult{ConversationID: conv.ID}

	cls, err := uc.classifier.Classify(ctx, conv, profile)
	if err != nil {
		uc.logger.Error().Err(err).Str("chat_id", conv.ID).Str("user_id", conv.UserID).Msg("Classification failed")
		item.Error = err.Error()
		return item
	}

	// analyzed_at must not precede modified_at or the conversation stays stale
	analyzedAt := uc.now().UTC()
	if conv.ModifiedAt.After(analyzedAt) {
		analyzedAt = conv.ModifiedAt
	}
	err = uc.convs.SaveClassification(ctx, conv.ID, conv.ModifiedAt, cls.Priority, cls.Rationale, analyzedAt)
	if errors.Is(err, repo.ErrStale) {
		uc.logger.Info().Str("chat_id", conv.ID).Msg("Conversation changed during classification, left stale")
		item.Stale = true
		return item
	}
	if err != nil {
		uc.logger.Error().Err(err).Str("chat_id", conv.ID).Msg("Failed to save classification")
		item.Error = err.Error()
		return item
	}

	metrics.ConversationsClassified.WithLabelValues(string(cls.Priority)).Inc()
	item.OK = true
	item.Priority = cls.Priority
	return item
}
