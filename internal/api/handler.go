package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/agenciageraleads/summi-worker/internal/biz/repo"
	"github.com/agenciageraleads/summi-worker/internal/biz/usecase"
	"github.com/agenciageraleads/summi-worker/internal/metrics"
)

// maxWebhookBody bounds a single gateway delivery
const maxWebhookBody = 16 << 20

// WebhookIngester handles one gateway delivery
type WebhookIngester interface {
	HandleWebhook(ctx context.Context, payload any, analyzeAfter bool) (*usecase.WebhookResult, error)
}

// UserAnalyzer classifies one subscriber's conversations
type UserAnalyzer interface {
	AnalyzeUser(ctx context.Context, userID string) (*usecase.AnalysisReport, error)
}

// TickRunner runs one aggregation tick
type TickRunner interface {
	RunTick(ctx context.Context) (*usecase.TickReport, error)
}

// HealthCheck probes one dependency
type HealthCheck func(ctx context.Context) error

// Handler contains shared dependencies for all HTTP handlers
type Handler struct {
	ingest   WebhookIngester
	analysis UserAnalyzer
	ticker   TickRunner
	identity repo.IdentityRepo
	checks   map[string]HealthCheck
	logger   zerolog.Logger
}

// NewHandler creates a new Handler
func NewHandler(
	ingest WebhookIngester,
	analysis UserAnalyzer,
	ticker TickRunner,
	identity repo.IdentityRepo,
	checks map[string]HealthCheck,
	logger zerolog.Logger,
) *Handler {
	return &Handler{
		ingest:   ingest,
		analysis: analysis,
		ticker:   ticker,
		identity: identity,
		checks:   checks,
		logger:   logger.With().Str("component", "api").Logger(),
	}
}

// JSON sends a JSON response with the given status code
func (h *Handler) JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// Error sends a JSON error response with the given status code
func (h *Handler) Error(w http.ResponseWriter, status int, message string) {
	h.JSON(w, status, map[string]string{"error": message})
}

// Check represents the status of a health check
type Check struct {
	Status  string `json:"status"` // "pass" or "fail"
	Latency string `json:"latency,omitempty"`
	Message string `json:"message,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	OK        bool             `json:"ok"`
	Checks    map[string]Check `json:"checks"`
	Timestamp string           `json:"timestamp"`
}

// Health handles the health check endpoint
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	resp := HealthResponse{OK: true, Checks: make(map[string]Check, len(h.checks))}
	for name, check := range h.checks {
		start := time.Now()
		if err := check(ctx); err != nil {
			h.logger.Warn().Err(err).Str("check", name).Msg("Health check failed")
			resp.Checks[name] = Check{Status: "fail", Message: "connection failed"}
			resp.OK = false
			continue
		}
		resp.Checks[name] = Check{Status: "pass", Latency: time.Since(start).String()}
	}
	resp.Timestamp = time.Now().UTC().Format(time.RFC3339)

	status := http.StatusOK
	if !resp.OK {
		status = http.StatusServiceUnavailable
	}
	h.JSON(w, status, resp)
}

// EvolutionWebhook stores a gateway delivery
func (h *Handler) EvolutionWebhook(w http.ResponseWriter, r *http.Request) {
	h.webhook(w, r, false)
}

// EvolutionWebhookAnalyze stores a gateway delivery and classifies the
// subscriber's conversations, inline or through the analysis queue
func (h *Handler) EvolutionWebhookAnalyze(w http.ResponseWriter, r *http.Request) {
	h.webhook(w, r, true)
}

// webhook always acknowledges with 200 so the gateway does not redeliver
func (h *Handler) webhook(w http.ResponseWriter, r *http.Request, analyzeAfter bool) {
	var payload any
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err == nil {
		err = json.Unmarshal(body, &payload)
	}
	if err != nil {
		h.logger.Warn().Err(err).Str("path", r.URL.Path).Msg("Invalid webhook payload")
		metrics.WebhookOutcomes.WithLabelValues(usecase.ReasonInvalidPayload).Inc()
		h.JSON(w, http.StatusOK, &usecase.WebhookResult{OK: true, Reason: usecase.ReasonInvalidPayload})
		return
	}

	// Processing outlives a gateway that hangs up early
	result, err := h.ingest.HandleWebhook(context.WithoutCancel(r.Context()), payload, analyzeAfter)
	if err != nil {
		h.logger.Error().Err(err).Str("path", r.URL.Path).Msg("Webhook processing failed")
	}
	if result == nil {
		result = &usecase.WebhookResult{Reason: usecase.ReasonProcessingError}
	}
	metrics.WebhookOutcomes.WithLabelValues(webhookOutcome(result)).Inc()
	h.JSON(w, http.StatusOK, result)
}

func webhookOutcome(result *usecase.WebhookResult) string {
	switch {
	case result.Reason != "":
		return result.Reason
	case result.Stored:
		return "stored"
	default:
		return "not_stored"
	}
}

// AnalyzeMessages classifies the caller's conversations
func (h *Handler) AnalyzeMessages(w http.ResponseWriter, r *http.Request) {
	token, ok := bearerToken(r)
	if !ok {
		h.Error(w, http.StatusUnauthorized, "missing bearer token")
		return
	}

	userID, err := h.identity.ResolveUser(r.Context(), token)
	if errors.Is(err, repo.ErrUnauthorized) {
		h.Error(w, http.StatusUnauthorized, "invalid token")
		return
	}
	if err != nil {
		h.logger.Error().Err(err).Msg("Identity lookup failed")
		h.Error(w, http.StatusBadGateway, "identity provider unavailable")
		return
	}

	report, err := h.analysis.AnalyzeUser(r.Context(), userID)
	if err != nil {
		h.logger.Error().Err(err).Str("user_id", userID).Msg("Analysis failed")
		h.Error(w, http.StatusInternalServerError, "analysis failed")
		return
	}
	h.JSON(w, http.StatusOK, report)
}

// RunHourly runs one aggregation tick on demand
func (h *Handler) RunHourly(w http.ResponseWriter, r *http.Request) {
	report, err := h.ticker.RunTick(r.Context())
	if errors.Is(err, usecase.ErrTickRunning) {
		h.Error(w, http.StatusConflict, "tick already running")
		return
	}
	if err != nil {
		h.logger.Error().Err(err).Msg("Manual tick failed")
		h.Error(w, http.StatusInternalServerError, "tick failed")
		return
	}
	h.JSON(w, http.StatusOK, report)
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	const prefix = "bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	return token, token != ""
}
