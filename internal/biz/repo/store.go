package repo

import (
	"context"
	"errors"
	"time"

	"github.com/agenciageraleads/summi-worker/internal/biz/domain"
)

var (
	// ErrNotFound is returned when a lookup matches no row
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when an insert collides with an existing row
	ErrConflict = errors.New("conflict")
	// ErrStale is returned when a row changed after it was read
	ErrStale = errors.New("modified since read")
)

// LogMutator transforms a conversation log inside a store transaction
type LogMutator func(domain.ConversationLog) domain.ConversationLog

// ConversationRepo is the conversation store interface
type ConversationRepo interface {
	// FindByContact returns the conversation for (user, contact) or ErrNotFound
	FindByContact(ctx context.Context, userID, remoteJID string) (*domain.Conversation, error)

	// Get returns a conversation by id or ErrNotFound
	Get(ctx context.Context, id string) (*domain.Conversation, error)

	// Create inserts a new conversation, filling ID and timestamps.
	// Returns ErrConflict when (user, contact) already exists.
	Create(ctx context.Context, conv *domain.Conversation) error

	// UpdateLog applies fn to the stored log atomically and bumps modified_at
	UpdateLog(ctx context.Context, id string, fn LogMutator, modifiedAt time.Time) error

	// ListStale returns conversations never classified or modified after their
	// last classification, newest first, excluding excludeJID
	ListStale(ctx context.Context, userID, excludeJID string, limit int) ([]*domain.Conversation, error)

	// SaveClassification stores the verdict and the classification time, only
	// while modified_at still equals seen. Returns ErrStale otherwise.
	SaveClassification(ctx context.Context, id string, seen time.Time, priority domain.Priority, rationale string, analyzedAt time.Time) error

	// ListDigestCandidates returns classified conversations with a rationale and a
	// digestible priority, most recently classified first
	ListDigestCandidates(ctx context.Context, userID, excludeJID string, limit int) ([]*domain.Conversation, error)

	// DeleteBelowPriority removes conversations with a priority lower than below.
	// A non-nil olderThan restricts deletion to conversations last modified before it.
	DeleteBelowPriority(ctx context.Context, userID string, below domain.Priority, olderThan *time.Time) (int64, error)
}

// ProfileRepo is the subscriber profile interface
type ProfileRepo interface {
	// GetProfile returns a profile by subscriber id or ErrNotFound
	GetProfile(ctx context.Context, userID string) (*domain.SubscriberProfile, error)

	// FindByInstance maps a gateway instance to its subscriber or ErrNotFound
	FindByInstance(ctx context.Context, instance string) (*domain.SubscriberProfile, error)

	// IsGroupMonitored reports whether the subscriber monitors the group
	IsGroupMonitored(ctx context.Context, userID, groupJID string) (bool, error)

	// ListActiveSubscribers returns entitlements that are subscribed and not expired at now
	ListActiveSubscribers(ctx context.Context, now time.Time, limit int) ([]domain.Subscriber, error)

	// MarkDigestSent records the last digest delivery
	MarkDigestSent(ctx context.Context, userID string, at time.Time) error

	// IncrementMetrics adds to the subscriber's lifetime counters
	IncrementMetrics(ctx context.Context, userID string, delta domain.ProfileMetrics) error
}
