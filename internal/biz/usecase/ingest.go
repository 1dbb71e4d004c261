package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/agenciageraleads/summi-worker/internal/biz/domain"
	"github.com/agenciageraleads/summi-worker/internal/biz/repo"
	"github.com/agenciageraleads/summi-worker/internal/metrics"
)

// Webhook reason codes
const (
	ReasonIgnoredEvent      = "ignored_event"
	ReasonMissingRemoteJID  = "missing_remote_jid"
	ReasonMissingInstance   = "missing_instance_name"
	ReasonDuplicate         = "duplicate"
	ReasonProfileNotFound   = "profile_not_found_for_instance"
	ReasonGroupNotMonitored = "group_not_monitored"
	ReasonIgnoredContact    = "ignored_contact"
	ReasonInvalidPayload    = "invalid_payload"
	ReasonProcessingError   = "processing_error"
)

// DedupKey is the dedup store key of a delivery
func DedupKey(instance, messageID string) string {
	return "summi:webhook:" + instance + ":" + messageID
}

// IngestConfig controls webhook ingestion
type IngestConfig struct {
	IgnoreJID     string
	DedupTTL      time.Duration
	KeepRaw       bool
	Retention     domain.Retention
	AnalysisQueue string
	QueueAnalysis bool
}

// WebhookResult is the acknowledgment returned for every delivery
type WebhookResult struct {
	OK       bool               `json:"ok"`
	Stored   bool               `json:"stored"`
	Reason   string             `json:"reason,omitempty"`
	ChatID   *string            `json:"chat_id,omitempty"`
	Analyzed bool               `json:"analyzed"`
	Queued   bool               `json:"queued,omitempty"`
	Kind     domain.MessageKind `json:"message_kind,omitempty"`
	Outbound *Outbound          `json:"outbound,omitempty"`
	Extras   map[string]any     `json:"-"`
}

type webhookResultAlias WebhookResult

// MarshalJSON flattens Extras into the top-level object
func (r WebhookResult) MarshalJSON() ([]byte, error) {
	base, err := json.Marshal(webhookResultAlias(r))
	if err != nil {
		return nil, err
	}
	if len(r.Extras) == 0 {
		return base, nil
	}
	merged := make(map[string]any, len(r.Extras)+8)
	for k, v := range r.Extras {
		merged[k] = v
	}
	var fields map[string]any
	if err := json.Unmarshal(base, &fields); err != nil {
		return nil, err
	}
	for k, v := range fields {
		merged[k] = v
	}
	return json.Marshal(merged)
}

func ignored(reason string) *WebhookResult {
	return &WebhookResult{OK: true, Stored: false, Reason: reason}
}

// UpsertRequest appends one enriched event to a conversation
type UpsertRequest struct {
	UserID      string
	RemoteJID   string
	DisplayName string
	GroupJID    string
	Event       domain.MessageEvent
}

// IngestUsecase handles gateway webhook deliveries
type IngestUsecase struct {
	convs    repo.ConversationRepo
	profiles repo.ProfileRepo
	dedup    repo.DedupRepo
	queue    repo.QueueRepo
	enricher *Enricher
	analysis *AnalysisUsecase
	cfg      IngestConfig
	now      func() time.Time
	logger   zerolog.Logger
}

// NewIngestUsecase creates a new ingest usecase.
// queue may be nil when analysis always runs inline.
func NewIngestUsecase(
	convs repo.ConversationRepo,
	profiles repo.ProfileRepo,
	dedup repo.DedupRepo,
	queue repo.QueueRepo,
	enricher *Enricher,
	analysis *AnalysisUsecase,
	cfg IngestConfig,
	logger zerolog.Logger,
) *IngestUsecase {
	if cfg.DedupTTL <= 0 {
		cfg.DedupTTL = 10 * time.Minute
	}
	return &IngestUsecase{
		convs:    convs,
		profiles: profiles,
		dedup:    dedup,
		queue:    queue,
		enricher: enricher,
		analysis: analysis,
		cfg:      cfg,
		now:      time.Now,
		logger:   logger.With().Str("component", "ingest").Logger(),
	}
}

// SetClock replaces the time source
func (uc *IngestUsecase) SetClock(now func() time.Time) {
	uc.now = now
}

// HandleWebhook runs one delivery through normalization, dedup, enrichment
// and storage, then optionally classifies the subscriber's conversations.
// The result is always an acknowledgment; the error, when set, is only for
// logging and the result then carries ReasonProcessingError.
func (uc *IngestUsecase) HandleWebhook(ctx context.Context, payload any, analyzeAfter bool) (*WebhookResult, error) {
	ev := NormalizeEvent(payload, uc.now().UTC())

	if ev.Event != "" && !strings.EqualFold(ev.Event, domain.EventUpsert) {
		return ignored(ReasonIgnoredEvent), nil
	}
	if ev.RemoteJID == "" {
		return ignored(ReasonMissingRemoteJID), nil
	}
	if ev.Instance == "" {
		return ignored(ReasonMissingInstance), nil
	}
	if ev.MessageID != "" && uc.dedup != nil {
		if uc.dedup.SeenOrMark(ctx, DedupKey(ev.Instance, ev.MessageID), uc.cfg.DedupTTL) {
			return ignored(ReasonDuplicate), nil
		}
	}

	log := uc.logger.With().
		Str("instance", ev.Instance).
		Str("remote_jid", ev.RemoteJID).
		Str("message_id", ev.MessageID).
		Str("kind", string(ev.Kind)).
		Logger()

	profile, err := uc.profiles.FindByInstance(ctx, ev.Instance)
	if errors.Is(err, repo.ErrNotFound) {
		log.Warn().Msg("No profile for instance")
		return ignored(ReasonProfileNotFound), nil
	}
	if err != nil {
		return &WebhookResult{Reason: ReasonProcessingError}, fmt.Errorf("find profile for %s: %w", ev.Instance, err)
	}

	if ev.IsGroup() {
		monitored, err := uc.profiles.IsGroupMonitored(ctx, profile.ID, ev.RawRemoteJID)
		if err != nil {
			return &WebhookResult{Reason: ReasonProcessingError}, fmt.Errorf("check group %s: %w", ev.RawRemoteJID, err)
		}
		if !monitored {
			log.Info().Str("user_id", profile.ID).Msg("Group not monitored")
			return ignored(ReasonGroupNotMonitored), nil
		}
	}

	chatJID := ev.ChatJID()
	if ignore := domain.Digits(uc.cfg.IgnoreJID); ignore != "" && !ev.IsGroup() && domain.Digits(chatJID) == ignore {
		return ignored(ReasonIgnoredContact), nil
	}

	enr := uc.enricher.Enrich(ctx, ev, profile)
	if enr.Err != nil {
		log.Error().Err(enr.Err).Msg("Enrichment failed")
	}

	result := &WebhookResult{
		OK:       true,
		Analyzed: analyzeAfter,
		Kind:     ev.Kind,
		Outbound: &enr.Outbound,
		Extras:   enr.Extras,
	}

	if ev.Kind == domain.KindAudio && enr.AudioSeconds > 0 {
		if err := uc.profiles.IncrementMetrics(ctx, profile.ID, domain.ProfileMetrics{AudioSeconds: enr.AudioSeconds}); err != nil {
			log.Warn().Err(err).Msg("Failed to increment audio metrics")
		}
	}

	if !ev.FromMe && enr.Text != "" && ev.Kind.Storable() {
		chatID, err := uc.UpsertMessage(ctx, UpsertRequest{
			UserID:      profile.ID,
			RemoteJID:   chatJID,
			DisplayName: displayName(ev),
			GroupJID:    groupJID(ev),
			Event:       ev.WithText(enr.Text),
		})
		if err != nil {
			result.OK = false
			result.Reason = ReasonProcessingError
			return result, fmt.Errorf("store message: %w", err)
		}
		result.Stored = true
		result.ChatID = &chatID
	}

	if analyzeAfter {
		uc.afterIngest(ctx, profile.ID, result, log)
	}

	log.Info().Bool("stored", result.Stored).Bool("analyzed", result.Analyzed).Msg("Webhook processed")
	return result, nil
}

// afterIngest classifies inline or hands the work to the analysis queue
func (uc *IngestUsecase) afterIngest(ctx context.Context, userID string, result *WebhookResult, log zerolog.Logger) {
	if uc.cfg.QueueAnalysis && uc.queue != nil {
		job := domain.Job{Type: domain.JobAnalyzeUser, UserID: userID, Trigger: "webhook"}
		if err := uc.queue.Enqueue(ctx, uc.cfg.AnalysisQueue, job); err != nil {
			log.Error().Err(err).Msg("Failed to enqueue analysis")
			return
		}
		metrics.JobsEnqueued.WithLabelValues(string(job.Type)).Inc()
		result.Queued = true
		return
	}
	if uc.analysis == nil {
		return
	}
	if _, err := uc.analysis.AnalyzeUser(ctx, userID); err != nil {
		log.Error().Err(err).Msg("Inline analysis failed")
	}
}

// UpsertMessage appends the event to the (user, contact) conversation,
// creating it with priority 0 when it does not exist yet
func (uc *IngestUsecase) UpsertMessage(ctx context.Context, req UpsertRequest) (string, error) {
	entry := domain.NewLogEntry(req.Event, uc.cfg.KeepRaw)
	appendEntry := func(l domain.ConversationLog) domain.ConversationLog {
		return l.Append(entry).Trim(uc.cfg.Retention)
	}
	now := uc.now().UTC()

	conv, err := uc.convs.FindByContact(ctx, req.UserID, req.RemoteJID)
	switch {
	case err == nil:
		return conv.ID, uc.convs.UpdateLog(ctx, conv.ID, appendEntry, now)
	case !errors.Is(err, repo.ErrNotFound):
		return "", err
	}

	conv = &domain.Conversation{
		UserID:     req.UserID,
		RemoteJID:  req.RemoteJID,
		Name:       req.DisplayName,
		Group:      req.GroupJID,
		Log:        domain.NewListLog(entry),
		Priority:   domain.PriorityNone,
		CreatedAt:  now,
		ModifiedAt: now,
	}
	err = uc.convs.Create(ctx, conv)
	if errors.Is(err, repo.ErrConflict) {
		// a concurrent delivery created it first
		existing, ferr := uc.convs.FindByContact(ctx, req.UserID, req.RemoteJID)
		if ferr != nil {
			return "", ferr
		}
		return existing.ID, uc.convs.UpdateLog(ctx, existing.ID, appendEntry, now)
	}
	if err != nil {
		return "", err
	}
	return conv.ID, nil
}

func displayName(ev domain.MessageEvent) string {
	if name := strings.TrimSpace(ev.PushName); name != "" {
		return name
	}
	if d := domain.Digits(ev.RemoteJID); d != "" && !ev.IsGroup() {
		return d
	}
	return domain.DefaultAuthorName
}

func groupJID(ev domain.MessageEvent) string {
	if ev.IsGroup() {
		return ev.RawRemoteJID
	}
	return ""
}
