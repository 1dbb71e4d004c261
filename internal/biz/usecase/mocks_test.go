package usecase

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/agenciageraleads/summi-worker/internal/biz/domain"
	"github.com/agenciageraleads/summi-worker/internal/biz/repo"
)

// Mock implementations

type mockConversationRepo struct {
	mu    sync.Mutex
	seq   int
	convs map[string]*domain.Conversation
}

func newMockConversationRepo() *mockConversationRepo {
	return &mockConversationRepo{convs: make(map[string]*domain.Conversation)}
}

func (m *mockConversationRepo) clone(c *domain.Conversation) *domain.Conversation {
	cp := *c
	return &cp
}

func (m *mockConversationRepo) put(c *domain.Conversation) *domain.Conversation {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.ID == "" {
		m.seq++
		c.ID = fmt.Sprintf("chat-%d", m.seq)
	}
	m.convs[c.ID] = m.clone(c)
	return c
}

func (m *mockConversationRepo) FindByContact(ctx context.Context, userID, remoteJID string) (*domain.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.convs {
		if c.UserID == userID && c.RemoteJID == remoteJID {
			return m.clone(c), nil
		}
	}
	return nil, repo.ErrNotFound
}

func (m *mockConversationRepo) Get(ctx context.Context, id string) (*domain.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.convs[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return m.clone(c), nil
}

func (m *mockConversationRepo) Create(ctx context.Context, conv *domain.Conversation) error {
	if _, err := m.FindByContact(ctx, conv.UserID, conv.RemoteJID); err == nil {
		return repo.ErrConflict
	}
	m.put(conv)
	return nil
}

func (m *mockConversationRepo) UpdateLog(ctx context.Context, id string, fn repo.LogMutator, modifiedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.convs[id]
	if !ok {
		return repo.ErrNotFound
	}
	c.Log = fn(c.Log)
	c.ModifiedAt = modifiedAt
	return nil
}

func (m *mockConversationRepo) ListStale(ctx context.Context, userID, excludeJID string, limit int) ([]*domain.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Conversation
	for _, c := range m.convs {
		if c.UserID == userID && c.RemoteJID != excludeJID && c.NeedsClassification() {
			out = append(out, m.clone(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ModifiedAt.After(out[j].ModifiedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *mockConversationRepo) SaveClassification(ctx context.Context, id string, seen time.Time, priority domain.Priority, rationale string, analyzedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.convs[id]
	if !ok {
		return repo.ErrNotFound
	}
	if !c.ModifiedAt.Equal(seen) {
		return repo.ErrStale
	}
	c.Priority = priority
	c.Context = rationale
	at := analyzedAt
	c.AnalyzedAt = &at
	return nil
}

func (m *mockConversationRepo) ListDigestCandidates(ctx context.Context, userID, excludeJID string, limit int) ([]*domain.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Conversation
	for _, c := range m.convs {
		if c.UserID == userID && c.RemoteJID != excludeJID && c.AnalyzedAt != nil && c.Context != "" && c.Priority.Digestible() {
			out = append(out, m.clone(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AnalyzedAt.After(*out[j].AnalyzedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *mockConversationRepo) DeleteBelowPriority(ctx context.Context, userID string, below domain.Priority, olderThan *time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, c := range m.convs {
		if c.UserID != userID || c.Priority >= below {
			continue
		}
		if olderThan != nil && !c.ModifiedAt.Before(*olderThan) {
			continue
		}
		delete(m.convs, id)
		n++
	}
	return n, nil
}

type mockProfileRepo struct {
	mu       sync.Mutex
	profiles map[string]*domain.SubscriberProfile
	groups   map[string]bool // userID + "|" + group jid
	subs     []domain.Subscriber
	marked   map[string]time.Time
	metrics  map[string]domain.ProfileMetrics
	markErr  error
}

func newMockProfileRepo(profiles ...*domain.SubscriberProfile) *mockProfileRepo {
	m := &mockProfileRepo{
		profiles: make(map[string]*domain.SubscriberProfile),
		groups:   make(map[string]bool),
		marked:   make(map[string]time.Time),
		metrics:  make(map[string]domain.ProfileMetrics),
	}
	for _, p := range profiles {
		m.profiles[p.ID] = p
	}
	return m
}

func (m *mockProfileRepo) GetProfile(ctx context.Context, userID string) (*domain.SubscriberProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[userID]
	if !ok {
		return nil, repo.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *mockProfileRepo) FindByInstance(ctx context.Context, instance string) (*domain.SubscriberProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.profiles {
		if p.InstanceName == instance {
			cp := *p
			return &cp, nil
		}
	}
	return nil, repo.ErrNotFound
}

func (m *mockProfileRepo) IsGroupMonitored(ctx context.Context, userID, groupJID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.groups[userID+"|"+groupJID], nil
}

func (m *mockProfileRepo) ListActiveSubscribers(ctx context.Context, now time.Time, limit int) ([]domain.Subscriber, error) {
	var out []domain.Subscriber
	for _, s := range m.subs {
		if s.Active(now) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *mockProfileRepo) MarkDigestSent(ctx context.Context, userID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.markErr != nil {
		return m.markErr
	}
	m.marked[userID] = at
	if p, ok := m.profiles[userID]; ok {
		t := at
		p.LastDigestAt = &t
	}
	return nil
}

func (m *mockProfileRepo) IncrementMetrics(ctx context.Context, userID string, delta domain.ProfileMetrics) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur := m.metrics[userID]
	cur.AudioSeconds += delta.AudioSeconds
	cur.MessagesAnalyzed += delta.MessagesAnalyzed
	cur.ConversationsPrioritized += delta.ConversationsPrioritized
	m.metrics[userID] = cur
	return nil
}

type sentMessage struct {
	Instance string
	Number   string
	Text     string
}

type mockGateway struct {
	mu      sync.Mutex
	texts   []sentMessage
	audios  []sentMessage
	media   map[string][]byte
	sendErr error
}

func newMockGateway() *mockGateway {
	return &mockGateway{media: make(map[string][]byte)}
}

func (m *mockGateway) SendText(ctx context.Context, instance, number, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return m.sendErr
	}
	m.texts = append(m.texts, sentMessage{Instance: instance, Number: number, Text: text})
	return nil
}

func (m *mockGateway) SendAudio(ctx context.Context, instance, number string, mp3 []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audios = append(m.audios, sentMessage{Instance: instance, Number: number, Text: string(mp3)})
	return nil
}

func (m *mockGateway) FetchMedia(ctx context.Context, instance, messageID string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.media[messageID]
	if !ok {
		return nil, fmt.Errorf("media %s not found", messageID)
	}
	return b, nil
}

type mockInference struct {
	mu sync.Mutex

	jsonOut   map[string]any
	jsonErr   error
	jsonCalls int
	onJSON    func() // runs before each CompleteJSON answer
	requests  []repo.ChatRequest

	textOut   string
	textErr   error
	textCalls int

	description string
	transcript  repo.Transcription
	transErr    error
	speech      []byte
}

func (m *mockInference) CompleteJSON(ctx context.Context, req repo.ChatRequest) (map[string]any, error) {
	if m.onJSON != nil {
		m.onJSON()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jsonCalls++
	m.requests = append(m.requests, req)
	if m.jsonErr != nil {
		return nil, m.jsonErr
	}
	return m.jsonOut, nil
}

func (m *mockInference) CompleteText(ctx context.Context, req repo.ChatRequest) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.textCalls++
	m.requests = append(m.requests, req)
	return m.textOut, m.textErr
}

func (m *mockInference) DescribeImage(ctx context.Context, model, prompt string, image []byte) (string, error) {
	return m.description, nil
}

func (m *mockInference) Transcribe(ctx context.Context, audio []byte) (*repo.Transcription, error) {
	if m.transErr != nil {
		return nil, m.transErr
	}
	tr := m.transcript
	return &tr, nil
}

func (m *mockInference) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if m.speech == nil {
		return []byte("mp3:" + text), nil
	}
	return m.speech, nil
}

type mockProbe struct {
	seconds float64
	ok      bool
}

func (m mockProbe) Duration(audio []byte) (float64, bool) {
	return m.seconds, m.ok
}

type mockDedup struct {
	mu   sync.Mutex
	seen map[string]bool
}

func (m *mockDedup) SeenOrMark(ctx context.Context, key string, ttl time.Duration) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.seen == nil {
		m.seen = make(map[string]bool)
	}
	if m.seen[key] {
		return true
	}
	m.seen[key] = true
	return false
}

type mockQueue struct {
	mu   sync.Mutex
	jobs map[string][]domain.Job
}

func (m *mockQueue) Enqueue(ctx context.Context, queue string, job domain.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.jobs == nil {
		m.jobs = make(map[string][]domain.Job)
	}
	m.jobs[queue] = append(m.jobs[queue], job)
	return nil
}

func (m *mockQueue) Dequeue(ctx context.Context, queue string, timeout time.Duration) ([]byte, error) {
	return nil, nil
}

type mockLock struct {
	held bool
}

func (m *mockLock) Acquire(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	if m.held {
		return "", false, nil
	}
	m.held = true
	return "token", true, nil
}

func (m *mockLock) Release(ctx context.Context, key, token string) error {
	m.held = false
	return nil
}

// upsertPayload builds a minimal gateway delivery
func upsertPayload(instance, jid, id string, message map[string]any) map[string]any {
	return map[string]any{
		"event":    "messages.upsert",
		"instance": instance,
		"data": map[string]any{
			"key":      map[string]any{"remoteJid": jid, "fromMe": false, "id": id},
			"pushName": "Maria",
			"message":  message,
		},
	}
}

func textMessage(text string) map[string]any {
	return map[string]any{"conversation": text}
}

func intPtr(v int) *int { return &v }

func containsAll(s string, parts ...string) bool {
	for _, p := range parts {
		if !strings.Contains(s, p) {
			return false
		}
	}
	return true
}
