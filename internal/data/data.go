package data

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/agenciageraleads/summi-worker/evolution"
	"github.com/agenciageraleads/summi-worker/inference"
	"github.com/agenciageraleads/summi-worker/internal/biz/repo"
	"github.com/agenciageraleads/summi-worker/internal/conf"
)

// Repositories contains all repositories
type Repositories struct {
	Store *Store
	// Redis is nil when no shared store is configured
	Redis *RedisStore

	Conversations repo.ConversationRepo
	Profiles      repo.ProfileRepo
	Dedup         repo.DedupRepo
	Queue         repo.QueueRepo
	Lock          repo.LockRepo
	Gateway       repo.GatewayRepo
	Inference     repo.InferenceRepo
	Identity      repo.IdentityRepo
	Probe         repo.AudioProbe
}

// NewRepositories creates all repositories
func NewRepositories(ctx context.Context, cfg *conf.Config, logger zerolog.Logger) (*Repositories, error) {
	store, err := NewStore(cfg.Database.Driver, cfg.Database.URL)
	if err != nil {
		return nil, err
	}

	repos := &Repositories{
		Store:         store,
		Conversations: store,
		Profiles:      store,
		Probe:         OggProbe{},
	}

	if cfg.Queue.RedisURL != "" {
		rs, err := OpenRedisStore(cfg.Queue.RedisURL, logger.With().Str("component", "redis").Logger())
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		if err := rs.Ping(ctx); err != nil {
			// queues cannot work without redis; dedup and the tick lock fail open
			if cfg.Queue.EnableAnalysis || cfg.Queue.EnableSummary {
				_ = rs.Close()
				_ = store.Close()
				return nil, fmt.Errorf("failed to ping redis: %w", err)
			}
			logger.Warn().Err(err).Msg("Redis unreachable at startup, dedup and tick lock fail open")
		}
		repos.Redis = rs
		repos.Dedup = rs
		repos.Queue = rs
		repos.Lock = rs
	}

	evo := evolution.NewClient(cfg.Evolution.URL, cfg.Evolution.APIKey, cfg.Evolution.Timeout)
	repos.Gateway = NewGatewayRepo(evo)

	repos.Inference = NewInferenceRepo(inference.NewClient(inference.Config{
		APIKey:          cfg.OpenAI.APIKey,
		BaseURL:         cfg.OpenAI.BaseURL,
		TranscribeModel: cfg.OpenAI.ModelTranscribe,
		TTSModel:        cfg.OpenAI.TTSModel,
		TTSVoice:        cfg.OpenAI.TTSVoice,
		Timeout:         cfg.OpenAI.Timeout,
	}))

	apiKey := cfg.Supabase.AnonKey
	if apiKey == "" {
		apiKey = cfg.Supabase.ServiceRoleKey
	}
	repos.Identity = NewIdentityRepo(cfg.Supabase.JWTSecret, cfg.Supabase.URL, apiKey, 0)

	return repos, nil
}

// Ping checks every backing store
func (r *Repositories) Ping(ctx context.Context) error {
	if err := r.Store.Ping(ctx); err != nil {
		return err
	}
	if r.Redis != nil {
		return r.Redis.Ping(ctx)
	}
	return nil
}

// Close releases every backing store
func (r *Repositories) Close() error {
	var errs []error
	if r.Redis != nil {
		errs = append(errs, r.Redis.Close())
	}
	errs = append(errs, r.Store.Close())
	return errors.Join(errs...)
}
