package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenciageraleads/summi-worker/internal/biz/domain"
	"github.com/agenciageraleads/summi-worker/internal/biz/repo"
	"github.com/agenciageraleads/summi-worker/internal/conf"
)

func testConversation() *domain.Conversation {
	created := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	return &domain.Conversation{
		ID:        "chat-1",
		UserID:    "user-1",
		RemoteJID: "5562999999999",
		Name:      "Maria",
		Log: domain.NewListLog(
			domain.LogEntry{Author: "Maria", Text: "preciso do relatorio"},
		),
		CreatedAt:  created,
		ModifiedAt: created.Add(time.Hour),
	}
}

func TestClassifyPriorityAlwaysValid(t *testing.T) {
	tests := []struct {
		name string
		out  map[string]any
		want domain.Priority
	}{
		{"string", map[string]any{"Prioridade": "3"}, domain.PriorityUrgent},
		{"number", map[string]any{"Prioridade": 2.0}, domain.PriorityToday},
		{"lowercase key", map[string]any{"prioridade": "1"}, domain.PriorityLater},
		{"english key", map[string]any{"priority": "2"}, domain.PriorityToday},
		{"out of range", map[string]any{"Prioridade": "7"}, domain.PriorityNone},
		{"negative", map[string]any{"Prioridade": -1.0}, domain.PriorityNone},
		{"fraction", map[string]any{"Prioridade": 2.5}, domain.PriorityNone},
		{"garbage", map[string]any{"Prioridade": "alta"}, domain.PriorityNone},
		{"missing", map[string]any{}, domain.PriorityNone},
		{"nil object", nil, domain.PriorityNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewClassifier(&mockInference{jsonOut: tt.out}, nil, "model")
			cls, err := c.Classify(context.Background(), testConversation(), domain.NewSubscriberProfile("user-1"))
			require.NoError(t, err)
			assert.Equal(t, tt.want, cls.Priority)
		})
	}
}

func TestClassifyRationaleBounded(t *testing.T) {
	long := strings.Repeat("ç", 400)
	c := NewClassifier(&mockInference{jsonOut: map[string]any{"Prioridade": "2", "Contexto": long}}, nil, "model")

	cls, err := c.Classify(context.Background(), testConversation(), domain.NewSubscriberProfile("user-1"))
	require.NoError(t, err)
	assert.Equal(t, domain.MaxRationaleRunes, utf8.RuneCountInString(cls.Rationale))
}

func TestClassifyFallbacks(t *testing.T) {
	conv := testConversation()
	c := NewClassifier(&mockInference{jsonOut: map[string]any{"Prioridade": "2", "id": "other"}}, nil, "model")

	cls, err := c.Classify(context.Background(), conv, domain.NewSubscriberProfile("user-1"))
	require.NoError(t, err)
	assert.Equal(t, conv.ID, cls.ConversationID, "model-supplied id is ignored")
	assert.Equal(t, "Maria", cls.Name)
	assert.Equal(t, "5562999999999", cls.Phone)
	assert.Equal(t, "2026-03-02T09:00:00Z", cls.FirstMessageAt)
}

func TestClassifyMalformedResponse(t *testing.T) {
	c := NewClassifier(&mockInference{jsonErr: repo.ErrMalformedResponse}, nil, "model")

	cls, err := c.Classify(context.Background(), testConversation(), domain.NewSubscriberProfile("user-1"))
	require.NoError(t, err)
	assert.Equal(t, domain.PriorityNone, cls.Priority)
	assert.Empty(t, cls.Rationale)
}

func TestClassifyTransportError(t *testing.T) {
	c := NewClassifier(&mockInference{jsonErr: errors.New("connection reset")}, nil, "model")

	_, err := c.Classify(context.Background(), testConversation(), domain.NewSubscriberProfile("user-1"))
	assert.Error(t, err)
}

func TestClassifyPromptContents(t *testing.T) {
	inf := &mockInference{jsonOut: map[string]any{"Prioridade": "0"}}
	c := NewClassifier(inf, nil, "model-x")
	profile := domain.NewSubscriberProfile("user-1")
	profile.UrgentTopics = "boleto, prazo"

	conv := testConversation()
	conv.Log = conv.Log.Append(domain.LogEntry{Author: "Eu", Text: "ja enviei", FromMe: true})

	_, err := c.Classify(context.Background(), conv, profile)
	require.NoError(t, err)
	require.Len(t, inf.requests, 1)

	req := inf.requests[0]
	assert.Equal(t, "model-x", req.Model)
	assert.Contains(t, req.User, "boleto, prazo")
	assert.Contains(t, req.User, "preciso do relatorio")
	assert.Contains(t, req.User, conf.DefaultPromptsConfig().LastFromMeTip, "from-me hint must be present when the last message is mine")
}

func TestTruncateForPrompt(t *testing.T) {
	raw := strings.Repeat("a", 10) + strings.Repeat("b", 10)

	assert.Equal(t, raw, TruncateForPrompt(raw, 20))
	got := TruncateForPrompt(raw, 5)
	assert.Equal(t, "[CONVERSA_TRUNCADA_TOTAL=20]\n...bbbbb", got)
}

func TestSerializeLogDropsRaw(t *testing.T) {
	log := domain.NewListLog(domain.LogEntry{Author: "A", Text: "oi", Raw: []byte(`{"secret":1}`)})

	out := SerializeLog(log)
	assert.Contains(t, out, `"text":"oi"`)
	assert.NotContains(t, out, "secret")

	assert.Equal(t, `"- A: oi"`, SerializeLog(domain.NewTranscriptLog("- A: oi")))
	assert.Equal(t, `[]`, SerializeLog(domain.ConversationLog{}))
}
