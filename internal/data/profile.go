package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/agenciageraleads/summi-worker/internal/biz/domain"
	"github.com/agenciageraleads/summi-worker/internal/biz/repo"
)

const profileColumns = `id, instance_name, number, urgent_topics, important_topics, ignore_topics,
	business_hours_only, business_hours_start, business_hours_end, digest_frequency, last_digest_at,
	audio_digest, resume_audio, summarize_after_seconds, transcribe_sent, transcribe_received,
	send_on_reaction, send_private_only, auto_delete_low_priority`

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullInt(p *int) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}

func intPtr(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}

func scanProfile(row rowScanner) (*domain.SubscriberProfile, error) {
	var (
		p                                      domain.SubscriberProfile
		instance, lastDigest                   sql.NullString
		hoursStart, hoursEnd                   sql.NullInt64
		frequency                              string
		hoursOnly, audioDigest, resumeAudio    int
		transcribeSent, transcribeReceived     int
		onReaction, privateOnly, autoDeleteLow int
	)
	err := row.Scan(&p.ID, &instance, &p.Number, &p.UrgentTopics, &p.ImportantTopics, &p.IgnoreTopics,
		&hoursOnly, &hoursStart, &hoursEnd, &frequency, &lastDigest,
		&audioDigest, &resumeAudio, &p.SummarizeAfterSeconds, &transcribeSent, &transcribeReceived,
		&onReaction, &privateOnly, &autoDeleteLow)
	if err != nil {
		return nil, err
	}
	p.InstanceName = instance.String
	p.BusinessHoursOnly = hoursOnly != 0
	p.BusinessHoursStart = intPtr(hoursStart)
	p.BusinessHoursEnd = intPtr(hoursEnd)
	p.Frequency = domain.ParseFrequency(frequency)
	p.AudioDigest = audioDigest != 0
	p.ResumeAudio = resumeAudio != 0
	p.TranscribeSent = transcribeSent != 0
	p.TranscribeReceived = transcribeReceived != 0
	p.SendOnReaction = onReaction != 0
	p.SendPrivateOnly = privateOnly != 0
	p.AutoDeleteLowPriority = autoDeleteLow != 0
	if p.LastDigestAt, err = scanTime(lastDigest); err != nil {
		return nil, fmt.Errorf("failed to parse last_digest_at: %w", err)
	}
	return &p, nil
}

func (s *Store) getProfile(ctx context.Context, query string, arg string) (*domain.SubscriberProfile, error) {
	p, err := scanProfile(s.db.QueryRowContext(ctx, s.rebind(query), arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repo.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return p, nil
}

// GetProfile returns a subscriber profile by id
func (s *Store) GetProfile(ctx context.Context, userID string) (*domain.SubscriberProfile, error) {
	return s.getProfile(ctx, `SELECT `+profileColumns+` FROM profiles WHERE id = ?`, userID)
}

// FindByInstance maps a gateway instance to its subscriber
func (s *Store) FindByInstance(ctx context.Context, instance string) (*domain.SubscriberProfile, error) {
	return s.getProfile(ctx, `SELECT `+profileColumns+` FROM profiles WHERE instance_name = ? LIMIT 1`, instance)
}

// SaveProfile inserts or replaces a profile's preferences; lifetime counters are untouched
func (s *Store) SaveProfile(ctx context.Context, p *domain.SubscriberProfile) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO profiles (`+profileColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			instance_name = excluded.instance_name,
			number = excluded.number,
			urgent_topics = excluded.urgent_topics,
			important_topics = excluded.important_topics,
			ignore_topics = excluded.ignore_topics,
			business_hours_only = excluded.business_hours_only,
			business_hours_start = excluded.business_hours_start,
			business_hours_end = excluded.business_hours_end,
			digest_frequency = excluded.digest_frequency,
			last_digest_at = excluded.last_digest_at,
			audio_digest = excluded.audio_digest,
			resume_audio = excluded.resume_audio,
			summarize_after_seconds = excluded.summarize_after_seconds,
			transcribe_sent = excluded.transcribe_sent,
			transcribe_received = excluded.transcribe_received,
			send_on_reaction = excluded.send_on_reaction,
			send_private_only = excluded.send_private_only,
			auto_delete_low_priority = excluded.auto_delete_low_priority
	`),
		p.ID, nullString(p.InstanceName), p.Number, p.UrgentTopics, p.ImportantTopics, p.IgnoreTopics,
		boolInt(p.BusinessHoursOnly), nullInt(p.BusinessHoursStart), nullInt(p.BusinessHoursEnd),
		string(domain.ParseFrequency(string(p.Frequency))), nullTime(p.LastDigestAt),
		boolInt(p.AudioDigest), boolInt(p.ResumeAudio), p.SummarizeAfterSeconds,
		boolInt(p.TranscribeSent), boolInt(p.TranscribeReceived),
		boolInt(p.SendOnReaction), boolInt(p.SendPrivateOnly), boolInt(p.AutoDeleteLowPriority),
	)
	if err != nil {
		return fmt.Errorf("failed to save profile: %w", err)
	}
	return nil
}

// IsGroupMonitored reports whether the subscriber opted into the group
func (s *Store) IsGroupMonitored(ctx context.Context, userID, groupJID string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT COUNT(*) FROM monitored_groups WHERE user_id = ? AND group_jid = ?
	`), userID, groupJID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check monitored group: %w", err)
	}
	return n > 0, nil
}

// AddMonitoredGroup opts the subscriber into a group
func (s *Store) AddMonitoredGroup(ctx context.Context, userID, groupJID string) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO monitored_groups (user_id, group_jid) VALUES (?, ?)
		ON CONFLICT (user_id, group_jid) DO NOTHING
	`), userID, groupJID)
	if err != nil {
		return fmt.Errorf("failed to add monitored group: %w", err)
	}
	return nil
}

// SaveSubscriber inserts or replaces an entitlement row
func (s *Store) SaveSubscriber(ctx context.Context, sub domain.Subscriber) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO subscribers (user_id, subscribed, subscription_end) VALUES (?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			subscribed = excluded.subscribed,
			subscription_end = excluded.subscription_end
	`), sub.UserID, boolInt(sub.Subscribed), nullTime(sub.SubscriptionEnd))
	if err != nil {
		return fmt.Errorf("failed to save subscriber: %w", err)
	}
	return nil
}

// ListActiveSubscribers returns current entitlements ordered by user id
func (s *Store) ListActiveSubscribers(ctx context.Context, now time.Time, limit int) ([]domain.Subscriber, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT user_id, subscribed, subscription_end FROM subscribers
		WHERE subscribed = 1 AND subscription_end IS NOT NULL AND subscription_end >= ?
		ORDER BY user_id
		LIMIT ?
	`), formatTime(now), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscribers: %w", err)
	}
	defer rows.Close()

	var out []domain.Subscriber
	for rows.Next() {
		var (
			sub        domain.Subscriber
			subscribed int
			end        sql.NullString
		)
		if err := rows.Scan(&sub.UserID, &subscribed, &end); err != nil {
			return nil, fmt.Errorf("failed to scan subscriber: %w", err)
		}
		sub.Subscribed = subscribed != 0
		if sub.SubscriptionEnd, err = scanTime(end); err != nil {
			return nil, fmt.Errorf("failed to parse subscription_end: %w", err)
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

// MarkDigestSent records the last digest delivery
func (s *Store) MarkDigestSent(ctx context.Context, userID string, at time.Time) error {
	if _, err := s.db.ExecContext(ctx, s.rebind(`UPDATE profiles SET last_digest_at = ? WHERE id = ?`),
		formatTime(at), userID); err != nil {
		return fmt.Errorf("failed to mark digest sent: %w", err)
	}
	return nil
}

// IncrementMetrics adds to the lifetime counters in one statement
func (s *Store) IncrementMetrics(ctx context.Context, userID string, delta domain.ProfileMetrics) error {
	if _, err := s.db.ExecContext(ctx, s.rebind(`
		UPDATE profiles SET
			audio_seconds_total = audio_seconds_total + ?,
			messages_analyzed_total = messages_analyzed_total + ?,
			conversations_prioritized_total = conversations_prioritized_total + ?
		WHERE id = ?
	`), delta.AudioSeconds, delta.MessagesAnalyzed, delta.ConversationsPrioritized, userID); err != nil {
		return fmt.Errorf("failed to increment metrics: %w", err)
	}
	return nil
}

// Metrics returns the subscriber's lifetime counters
func (s *Store) Metrics(ctx context.Context, userID string) (domain.ProfileMetrics, error) {
	var m domain.ProfileMetrics
	err := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT audio_seconds_total, messages_analyzed_total, conversations_prioritized_total
		FROM profiles WHERE id = ?
	`), userID).Scan(&m.AudioSeconds, &m.MessagesAnalyzed, &m.ConversationsPrioritized)
	if errors.Is(err, sql.ErrNoRows) {
		return m, repo.ErrNotFound
	}
	if err != nil {
		return m, fmt.Errorf("failed to read metrics: %w", err)
	}
	return m, nil
}
