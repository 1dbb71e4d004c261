package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/agenciageraleads/summi-worker/internal/biz/domain"
	"github.com/agenciageraleads/summi-worker/internal/biz/repo"
	"github.com/agenciageraleads/summi-worker/internal/metrics"
)

// HourlyLockKey is the shared lock held while a tick runs
const HourlyLockKey = "summi:lock:hourly"

// ErrTickRunning is returned when another tick holds the lock
var ErrTickRunning = errors.New("aggregation tick already running")

// Subscriber outcome statuses
const (
	OutcomeSent          = "sent"
	OutcomeBusinessHours = "skipped_business_hours"
	OutcomeFrequency     = "skipped_frequency"
	OutcomeNoNumber      = "skipped_no_number"
	OutcomeNoProfile     = "skipped_no_profile"
	OutcomeInactive      = "skipped_inactive"
	OutcomeFailed        = "error"
)

const (
	defaultSubscriberLimit = 1000
	defaultDigestBatchSize = 50
	defaultLockTTL         = 2 * time.Hour
)

// AggregationConfig controls the hourly tick
type AggregationConfig struct {
	SenderInstance  string
	IgnoreJID       string
	Window          domain.BusinessWindow
	Location        *time.Location
	CleanupDays     int
	SubscriberLimit int
	DigestBatchSize int
	LockTTL         time.Duration
}

// SubscriberOutcome is what the tick did for one subscriber
type SubscriberOutcome struct {
	UserID     string `json:"user_id"`
	Status     string `json:"status"`
	Items      int    `json:"items,omitempty"`
	AudioSent  bool   `json:"audio_sent,omitempty"`
	Deleted    int64  `json:"deleted,omitempty"`
	Error      string `json:"error,omitempty"`
	AnalyzeErr string `json:"analyze_error,omitempty"`
}

// TickReport aggregates the counters of one tick
type TickReport struct {
	Success              bool                `json:"success"`
	Subscribers          int                 `json:"subscribers"`
	Sent                 int                 `json:"sent"`
	SkippedBusinessHours int                 `json:"skipped_outside_business_hours"`
	SkippedFrequency     int                 `json:"skipped_frequency"`
	SkippedNoNumber      int                 `json:"skipped_no_number"`
	AnalyzedUsers        int                 `json:"analyzed_users_before_summary"`
	AnalyzeErrors        int                 `json:"analyze_errors"`
	ClassificationErrors int                 `json:"classification_errors"`
	AudioSent            int                 `json:"audio_sent"`
	AudioErrors          int                 `json:"audio_errors"`
	LowPriorityDeleted   int64               `json:"low_priority_deleted"`
	Errors               int                 `json:"errors"`
	Outcomes             []SubscriberOutcome `json:"outcomes,omitempty"`
}

// AggregationUsecase runs the hourly digest tick
type AggregationUsecase struct {
	convs     repo.ConversationRepo
	profiles  repo.ProfileRepo
	gateway   repo.GatewayRepo
	inference repo.InferenceRepo
	lock      repo.LockRepo
	analysis  *AnalysisUsecase
	scripter  *AudioScripter
	cfg       AggregationConfig
	now       func() time.Time
	logger    zerolog.Logger

	running sync.Mutex
}

// NewAggregationUsecase creates a new aggregation usecase.
// lock may be nil when ticks only run inside one process.
func NewAggregationUsecase(
	convs repo.ConversationRepo,
	profiles repo.ProfileRepo,
	gateway repo.GatewayRepo,
	inference repo.InferenceRepo,
	lock repo.LockRepo,
	analysis *AnalysisUsecase,
	scripter *AudioScripter,
	cfg AggregationConfig,
	logger zerolog.Logger,
) *AggregationUsecase {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.SubscriberLimit <= 0 {
		cfg.SubscriberLimit = defaultSubscriberLimit
	}
	if cfg.DigestBatchSize <= 0 {
		cfg.DigestBatchSize = defaultDigestBatchSize
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = defaultLockTTL
	}
	return &AggregationUsecase{
		convs:     convs,
		profiles:  profiles,
		gateway:   gateway,
		inference: inference,
		lock:      lock,
		analysis:  analysis,
		scripter:  scripter,
		cfg:       cfg,
		now:       time.Now,
		logger:    logger.With().Str("component", "aggregation").Logger(),
	}
}

// SetClock replaces the time source
func (uc *AggregationUsecase) SetClock(now func() time.Time) {
	uc.now = now
}

// RunTick processes every active subscriber once. Ticks never overlap: a call
// made while another tick runs returns ErrTickRunning without doing any work.
func (uc *AggregationUsecase) RunTick(ctx context.Context) (*TickReport, error) {
	if !uc.running.TryLock() {
		return nil, ErrTickRunning
	}
	defer uc.running.Unlock()

	if uc.lock != nil {
		token, ok, err := uc.lock.Acquire(ctx, HourlyLockKey, uc.cfg.LockTTL)
		switch {
		case err != nil:
			uc.logger.Warn().Err(err).Msg("Shared tick lock unavailable, running with local lock only")
		case !ok:
			return nil, ErrTickRunning
		default:
			defer func() {
				if err := uc.lock.Release(context.WithoutCancel(ctx), HourlyLockKey, token); err != nil {
					uc.logger.Warn().Err(err).Msg("Failed to release tick lock")
				}
			}()
		}
	}

	start := time.Now()
	defer func() { metrics.TickDuration.Observe(time.Since(start).Seconds()) }()

	now := uc.now()
	subs, err := uc.profiles.ListActiveSubscribers(ctx, now.UTC(), uc.cfg.SubscriberLimit)
	if err != nil {
		return nil, fmt.Errorf("list active subscribers: %w", err)
	}

	report := &TickReport{Success: true, Subscribers: len(subs), Outcomes: make([]SubscriberOutcome, 0, len(subs))}
	for _, sub := range subs {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		outcome := uc.processSubscriber(ctx, sub, now, report)
		metrics.DigestOutcomes.WithLabelValues(outcome.Status).Inc()
		report.Outcomes = append(report.Outcomes, outcome)
	}

	uc.logger.Info().
		Int("subscribers", report.Subscribers).
		Int("sent", report.Sent).
		Int("skipped_hours", report.SkippedBusinessHours).
		Int("analyze_errors", report.AnalyzeErrors).
		Int64("deleted", report.LowPriorityDeleted).
		Int("errors", report.Errors).
		Msg("Hourly tick finished")
	return report, nil
}

// processSubscriber runs the per-subscriber steps; a panic or error is
// confined to this subscriber
func (uc *AggregationUsecase) processSubscriber(ctx context.Context, sub domain.Subscriber, now time.Time, report *TickReport) (outcome SubscriberOutcome) {
	outcome = SubscriberOutcome{UserID: sub.UserID}
	log := uc.logger.With().Str("user_id", sub.UserID).Logger()

	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("Subscriber processing panicked")
			report.Errors++
			outcome.Status = OutcomeFailed
			outcome.Error = fmt.Sprint(r)
		}
	}()

	fail := func(err error, msg string) SubscriberOutcome {
		log.Error().Err(err).Msg(msg)
		report.Errors++
		outcome.Status = OutcomeFailed
		outcome.Error = err.Error()
		return outcome
	}

	if sub.UserID == "" || !sub.Active(now) {
		outcome.Status = OutcomeInactive
		return outcome
	}

	profile, err := uc.profiles.GetProfile(ctx, sub.UserID)
	if errors.Is(err, repo.ErrNotFound) {
		outcome.Status = OutcomeNoProfile
		return outcome
	}
	if err != nil {
		return fail(err, "Failed to load profile")
	}

	// 1. business hours
	if !profile.WithinBusinessHours(now.In(uc.cfg.Location), uc.cfg.Window) {
		report.SkippedBusinessHours++
		outcome.Status = OutcomeBusinessHours
		return outcome
	}

	// 2. frequency, folded into the business-hours counter
	if !profile.DigestDue(now) {
		report.SkippedBusinessHours++
		report.SkippedFrequency++
		outcome.Status = OutcomeFrequency
		return outcome
	}

	// 3. classify what changed since the last run
	if uc.analysis != nil {
		ar, err := uc.analysis.AnalyzeUser(ctx, sub.UserID)
		if err != nil {
			log.Error().Err(err).Msg("Analysis before digest failed")
			report.AnalyzeErrors++
			outcome.AnalyzeErr = err.Error()
		} else {
			report.AnalyzedUsers++
			report.ClassificationErrors += ar.Errors
		}
	}

	// 4. digest candidates
	items, err := uc.digestItems(ctx, sub.UserID)
	if err != nil {
		return fail(err, "Failed to list digest candidates")
	}
	outcome.Items = len(items)

	// 5. destination
	phone := profile.Phone()
	if phone == "" {
		report.SkippedNoNumber++
		outcome.Status = OutcomeNoNumber
		return outcome
	}

	// 6-7. compose and deliver
	text := ComposeDigest(items)
	if err := uc.gateway.SendText(ctx, uc.cfg.SenderInstance, phone, text); err != nil {
		return fail(err, "Failed to send digest")
	}
	report.Sent++
	outcome.Status = OutcomeSent

	// 8. best-effort delivery timestamp
	if err := uc.profiles.MarkDigestSent(ctx, sub.UserID, now.UTC()); err != nil {
		log.Warn().Err(err).Msg("Failed to record digest delivery")
	}

	if profile.AudioDigest {
		if err := uc.sendAudioDigest(ctx, phone, text); err != nil {
			log.Error().Err(err).Msg("Audio digest failed")
			report.AudioErrors++
		} else {
			report.AudioSent++
			outcome.AudioSent = true
		}
	}

	// 9. cleanup
	if profile.AutoDeleteLowPriority {
		var olderThan *time.Time
		if uc.cfg.CleanupDays > 0 {
			cutoff := now.UTC().AddDate(0, 0, -uc.cfg.CleanupDays)
			olderThan = &cutoff
		}
		n, err := uc.convs.DeleteBelowPriority(ctx, sub.UserID, domain.PriorityToday, olderThan)
		if err != nil {
			log.Error().Err(err).Msg("Low priority cleanup failed")
			report.Errors++
		} else {
			report.LowPriorityDeleted += n
			outcome.Deleted = n
		}
	}

	log.Info().Int("items", outcome.Items).Bool("audio", outcome.AudioSent).Msg("Digest delivered")
	return outcome
}

func (uc *AggregationUsecase) digestItems(ctx context.Context, userID string) ([]domain.DigestItem, error) {
	convs, err := uc.convs.ListDigestCandidates(ctx, userID, uc.cfg.IgnoreJID, uc.cfg.DigestBatchSize)
	if err != nil {
		return nil, err
	}
	items := make([]domain.DigestItem, 0, len(convs))
	for _, c := range convs {
		if !c.Priority.Digestible() || c.Context == "" {
			continue
		}
		items = append(items, domain.DigestItemFrom(c))
	}
	return items, nil
}

// DigestPreview is the digest a subscriber would receive right now
type DigestPreview struct {
	UserID   string `json:"user_id"`
	Items    int    `json:"items"`
	Fallback bool   `json:"fallback"`
	Text     string `json:"text"`
}

// PreviewDigest composes the digest for userID from the current
// classifications without sending it or touching any state
func (uc *AggregationUsecase) PreviewDigest(ctx context.Context, userID string) (*DigestPreview, error) {
	items, err := uc.digestItems(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list digest candidates: %w", err)
	}
	text := ComposeDigest(items)
	return &DigestPreview{
		UserID:   userID,
		Items:    len(items),
		Fallback: IsFallbackDigest(text),
		Text:     text,
	}, nil
}

func (uc *AggregationUsecase) sendAudioDigest(ctx context.Context, phone, text string) error {
	script, err := uc.scripter.Script(ctx, text)
	if err != nil {
		return err
	}
	mp3, err := uc.inference.Synthesize(ctx, script)
	if err != nil {
		return fmt.Errorf("synthesize digest: %w", err)
	}
	if err := uc.gateway.SendAudio(ctx, uc.cfg.SenderInstance, phone, mp3); err != nil {
		return fmt.Errorf("send audio digest: %w", err)
	}
	return nil
}
