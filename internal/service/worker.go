package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/agenciageraleads/summi-worker/internal/biz/repo"
	"github.com/agenciageraleads/summi-worker/internal/biz/usecase"
	"github.com/agenciageraleads/summi-worker/internal/metrics"
)

const (
	defaultPopTimeout = 5 * time.Second
	defaultBackoff    = 2 * time.Second
)

// JobDispatcher runs one queue payload
type JobDispatcher interface {
	Dispatch(ctx context.Context, role usecase.QueueRole, payload []byte) error
}

// Worker consumes one queue and hands each payload to the dispatcher
type Worker struct {
	queue      repo.QueueRepo
	queueName  string
	role       usecase.QueueRole
	dispatcher JobDispatcher
	logger     zerolog.Logger

	PopTimeout time.Duration
	Backoff    time.Duration
}

// NewWorker creates a new queue worker
func NewWorker(queue repo.QueueRepo, queueName string, role usecase.QueueRole, dispatcher JobDispatcher, logger zerolog.Logger) *Worker {
	return &Worker{
		queue:      queue,
		queueName:  queueName,
		role:       role,
		dispatcher: dispatcher,
		logger:     logger.With().Str("component", "worker").Str("role", string(role)).Str("queue", queueName).Logger(),
		PopTimeout: defaultPopTimeout,
		Backoff:    defaultBackoff,
	}
}

// Run processes jobs until ctx is cancelled
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info().Msg("Worker started")
	for {
		if ctx.Err() != nil {
			w.logger.Info().Msg("Worker stopped")
			return nil
		}
		if err := w.step(ctx); err != nil {
			if ctx.Err() != nil {
				continue
			}
			w.logger.Error().Err(err).Msg("Worker loop error")
			select {
			case <-ctx.Done():
			case <-time.After(w.Backoff):
			}
		}
	}
}

// step pops and runs at most one job. Invalid and unsupported jobs are
// dropped without an error.
func (w *Worker) step(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			metrics.JobsProcessed.WithLabelValues(string(w.role), "panic").Inc()
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	payload, err := w.queue.Dequeue(ctx, w.queueName, w.PopTimeout)
	if err != nil {
		return fmt.Errorf("dequeue: %w", err)
	}
	if payload == nil {
		return nil
	}

	err = w.dispatcher.Dispatch(ctx, w.role, payload)
	switch {
	case err == nil:
		metrics.JobsProcessed.WithLabelValues(string(w.role), "ok").Inc()
		return nil
	case errors.Is(err, usecase.ErrInvalidJob):
		metrics.JobsProcessed.WithLabelValues(string(w.role), "invalid").Inc()
		w.logger.Warn().Err(err).Str("payload", string(payload)).Msg("Dropped invalid job")
		return nil
	case errors.Is(err, usecase.ErrUnsupportedJob):
		metrics.JobsProcessed.WithLabelValues(string(w.role), "unsupported").Inc()
		w.logger.Warn().Err(err).Str("payload", string(payload)).Msg("Dropped unsupported job")
		return nil
	default:
		metrics.JobsProcessed.WithLabelValues(string(w.role), "error").Inc()
		return err
	}
}
