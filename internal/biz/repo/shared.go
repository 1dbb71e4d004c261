package repo

import (
	"context"
	"errors"
	"time"

	"github.com/agenciageraleads/summi-worker/internal/biz/domain"
)

// ErrUnauthorized is returned when a bearer credential cannot be resolved
var ErrUnauthorized = errors.New("unauthorized")

// DedupRepo guards against redelivered events.
// Implementations fail open: an unavailable store reports every key as new.
type DedupRepo interface {
	// SeenOrMark returns true when key was already claimed, false when this call claimed it
	SeenOrMark(ctx context.Context, key string, ttl time.Duration) bool
}

// QueueRepo is the job queue interface
type QueueRepo interface {
	// Enqueue appends a job to the tail of queue
	Enqueue(ctx context.Context, queue string, job domain.Job) error

	// Dequeue blocks up to timeout for the next payload; nil payload means the wait timed out
	Dequeue(ctx context.Context, queue string, timeout time.Duration) ([]byte, error)
}

// LockRepo provides a lease-based lock shared across processes
type LockRepo interface {
	// Acquire claims key for ttl, returning a token to release it with
	Acquire(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error)

	// Release frees key if still held with token
	Release(ctx context.Context, key, token string) error
}

// IdentityRepo resolves bearer credentials to subscriber ids
type IdentityRepo interface {
	// ResolveUser returns the subscriber id behind token or ErrUnauthorized
	ResolveUser(ctx context.Context, token string) (string, error)
}
