package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenciageraleads/summi-worker/internal/biz/domain"
)

func TestAnalyzeUser(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	convs := newMockConversationRepo()
	profiles := newMockProfileRepo(domain.NewSubscriberProfile("user-1"))
	infer := &mockInference{jsonOut: map[string]any{"Prioridade": "2", "Contexto": "Responder hoje"}}

	analyzed := now.Add(-time.Hour)
	convs.put(&domain.Conversation{UserID: "user-1", RemoteJID: "a", ModifiedAt: now.Add(-2 * time.Hour)})
	convs.put(&domain.Conversation{UserID: "user-1", RemoteJID: "b", ModifiedAt: now.Add(-2 * time.Hour), AnalyzedAt: &analyzed})
	convs.put(&domain.Conversation{UserID: "user-1", RemoteJID: "556293984600", ModifiedAt: now})
	convs.put(&domain.Conversation{UserID: "user-2", RemoteJID: "c", ModifiedAt: now})

	uc := NewAnalysisUsecase(convs, profiles, NewClassifier(infer, nil, "m"), AnalysisConfig{IgnoreJID: "556293984600"}, zerolog.Nop())
	uc.SetClock(func() time.Time { return now })

	report, err := uc.AnalyzeUser(context.Background(), "user-1")
	require.NoError(t, err)
	assert.True(t, report.Success)
	assert.Equal(t, 1, report.AnalyzedCount, "only the never-classified conversation is stale")
	assert.Equal(t, 1, infer.jsonCalls)
	require.Len(t, report.Items, 1)
	assert.True(t, report.Items[0].OK)

	conv, err := convs.FindByContact(context.Background(), "user-1", "a")
	require.NoError(t, err)
	assert.Equal(t, domain.PriorityToday, conv.Priority)
	assert.Equal(t, "Responder hoje", conv.Context)
	require.NotNil(t, conv.AnalyzedAt)
	assert.False(t, conv.NeedsClassification())
}

func TestAnalyzeUserUnknownProfileUsesDefaults(t *testing.T) {
	convs := newMockConversationRepo()
	convs.put(&domain.Conversation{UserID: "ghost", RemoteJID: "a", ModifiedAt: time.Now()})
	infer := &mockInference{jsonOut: map[string]any{"Prioridade": "0"}}

	uc := NewAnalysisUsecase(convs, newMockProfileRepo(), NewClassifier(infer, nil, "m"), AnalysisConfig{}, zerolog.Nop())
	report, err := uc.AnalyzeUser(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Equal(t, 1, report.AnalyzedCount)
	assert.Zero(t, report.Prioritized)
}

func TestAnalyzeUserBatchCap(t *testing.T) {
	convs := newMockConversationRepo()
	base := time.Now().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		convs.put(&domain.Conversation{UserID: "u", RemoteJID: string(rune('a' + i)), ModifiedAt: base.Add(time.Duration(i) * time.Minute)})
	}
	infer := &mockInference{jsonOut: map[string]any{"Prioridade": "1"}}

	uc := NewAnalysisUsecase(convs, newMockProfileRepo(), NewClassifier(infer, nil, "m"), AnalysisConfig{BatchSize: 3}, zerolog.Nop())
	report, err := uc.AnalyzeUser(context.Background(), "u")
	require.NoError(t, err)
	assert.Equal(t, 3, report.AnalyzedCount)
	assert.Equal(t, 3, infer.jsonCalls)
}

func TestAnalyzeUserAppendDuringClassification(t *testing.T) {
	t0 := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	convs := newMockConversationRepo()
	conv := convs.put(&domain.Conversation{
		UserID:     "user-1",
		RemoteJID:  "a",
		Log:        domain.NewListLog(domain.LogEntry{Text: "oi"}),
		ModifiedAt: t0,
	})
	infer := &mockInference{jsonOut: map[string]any{"Prioridade": "3", "Contexto": "Urgente"}}
	infer.onJSON = func() {
		_ = convs.UpdateLog(context.Background(), conv.ID, func(l domain.ConversationLog) domain.ConversationLog {
			return l.Append(domain.LogEntry{Text: "preciso de resposta"})
		}, t0.Add(time.Second))
	}

	uc := NewAnalysisUsecase(convs, newMockProfileRepo(), NewClassifier(infer, nil, "m"), AnalysisConfig{}, zerolog.Nop())
	uc.SetClock(func() time.Time { return t0.Add(2 * time.Second) })

	report, err := uc.AnalyzeUser(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Zero(t, report.AnalyzedCount)
	assert.Zero(t, report.Errors)
	require.Len(t, report.Items, 1)
	assert.True(t, report.Items[0].Stale)

	got, err := convs.Get(context.Background(), conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Log.Len())
	assert.True(t, got.NeedsClassification(), "the appended message must still be classified")

	infer.onJSON = nil
	report, err = uc.AnalyzeUser(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, 1, report.AnalyzedCount)
	got, err = convs.Get(context.Background(), conv.ID)
	require.NoError(t, err)
	assert.False(t, got.NeedsClassification())
	assert.Equal(t, domain.PriorityUrgent, got.Priority)
}
