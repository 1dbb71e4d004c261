package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/agenciageraleads/summi-worker/internal/biz/domain"
	"github.com/agenciageraleads/summi-worker/internal/biz/repo"
	"github.com/agenciageraleads/summi-worker/internal/conf"
)

// MaxPromptChars bounds the serialized conversation sent for classification
const MaxPromptChars = 18000

// Classifier assigns a priority and rationale to a conversation
type Classifier struct {
	inference repo.InferenceRepo
	prompts   *conf.PromptsConfig
	model     string
}

// NewClassifier creates a new classifier
func NewClassifier(inference repo.InferenceRepo, prompts *conf.PromptsConfig, model string) *Classifier {
	if prompts == nil {
		prompts = conf.DefaultPromptsConfig()
	}
	return &Classifier{inference: inference, prompts: prompts, model: model}
}

// Classify asks the model for a verdict and normalizes whatever comes back.
// A malformed answer yields priority 0 with an empty rationale; transport
// failures are returned so the conversation stays stale.
func (c *Classifier) Classify(ctx context.Context, conv *domain.Conversation, profile *domain.SubscriberProfile) (domain.Classification, error) {
	hint := ""
	if last, ok := conv.Log.Last(); ok && last.FromMe {
		hint = c.prompts.LastFromMeTip
	}

	vars := map[string]string{
		"urgent_topics":     formatKeywords(profile.UrgentTopics),
		"important_topics":  formatKeywords(profile.ImportantTopics),
		"ignore_topics":     formatKeywords(profile.IgnoreTopics),
		"conversation_id":   conv.ID,
		"conversation":      TruncateForPrompt(SerializeLog(conv.Log), MaxPromptChars),
		"name":              conv.Name,
		"phone":             conv.RemoteJID,
		"first_message":     formatTime(conv.CreatedAt),
		"last_message":      formatTime(conv.ModifiedAt),
		"last_from_me_hint": hint,
	}

	out, err := c.inference.CompleteJSON(ctx, repo.ChatRequest{
		Model:       c.model,
		System:      conf.Render(c.prompts.Classifier.System, vars),
		User:        conf.Render(c.prompts.Classifier.User, vars),
		Temperature: 0.2,
	})
	if err != nil {
		if errors.Is(err, repo.ErrMalformedResponse) {
			return NormalizeClassification(nil, conv), nil
		}
		return domain.Classification{}, fmt.Errorf("classify %s: %w", conv.ID, err)
	}
	return NormalizeClassification(out, conv), nil
}

// NormalizeClassification turns a raw model answer into a valid verdict
func NormalizeClassification(out map[string]any, conv *domain.Conversation) domain.Classification {
	cls := domain.Classification{
		ConversationID: conv.ID,
		Priority:       domain.ParsePriority(pick(out, "Prioridade", "priority")),
		Rationale:      domain.TruncateRunes(strings.TrimSpace(stringOf(pick(out, "Contexto", "context", "rationale"))), domain.MaxRationaleRunes),
		Name:           strings.TrimSpace(stringOf(pick(out, "Nome", "name"))),
		Phone:          strings.TrimSpace(stringOf(pick(out, "Telefone", "phone"))),
		FirstMessageAt: strings.TrimSpace(stringOf(pick(out, "Horario", "first_message"))),
	}
	if cls.Name == "" {
		cls.Name = conv.Name
	}
	if cls.Phone == "" {
		cls.Phone = conv.RemoteJID
	}
	if cls.FirstMessageAt == "" {
		cls.FirstMessageAt = formatTime(conv.CreatedAt)
	}
	return cls
}

// SerializeLog renders the log as JSON for the prompt, without raw payloads
func SerializeLog(log domain.ConversationLog) string {
	var (
		b   []byte
		err error
	)
	switch log.Shape() {
	case domain.LogShapeTranscript:
		b, err = json.Marshal(log.Transcript())
	default:
		entries := log.Entries()
		for i := range entries {
			entries[i].Raw = nil
		}
		if entries == nil {
			entries = []domain.LogEntry{}
		}
		b, err = json.Marshal(entries)
	}
	if err != nil {
		return ""
	}
	return string(b)
}

// TruncateForPrompt keeps the last limit runes and prefixes a marker with the original length
func TruncateForPrompt(raw string, limit int) string {
	runes := []rune(raw)
	if len(runes) <= limit {
		return raw
	}
	return fmt.Sprintf("[CONVERSA_TRUNCADA_TOTAL=%d]\n...%s", len(runes), string(runes[len(runes)-limit:]))
}

func formatKeywords(csv string) string {
	var parts []string
	for _, p := range strings.Split(csv, ",") {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// pick returns the first key present, matching case-insensitively
func pick(m map[string]any, keys ...string) any {
	if m == nil {
		return nil
	}
	for _, k := range keys {
		if v, ok := m[k]; ok {
			return v
		}
	}
	for _, k := range keys {
		for mk, v := range m {
			if strings.EqualFold(mk, k) {
				return v
			}
		}
	}
	return nil
}

func stringOf(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}
