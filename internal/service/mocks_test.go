package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/agenciageraleads/summi-worker/internal/biz/domain"
	"github.com/agenciageraleads/summi-worker/internal/biz/usecase"
)

// Mock implementations

type mockQueue struct {
	mu       sync.Mutex
	items    map[string][][]byte
	popErr   error
	enqueued []domain.Job
}

func newMockQueue() *mockQueue {
	return &mockQueue{items: make(map[string][][]byte)}
}

func (m *mockQueue) push(queue string, payload string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[queue] = append(m.items[queue], []byte(payload))
}

func (m *mockQueue) Enqueue(ctx context.Context, queue string, job domain.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enqueued = append(m.enqueued, job)
	m.items[queue] = append(m.items[queue], data)
	return nil
}

func (m *mockQueue) Dequeue(ctx context.Context, queue string, timeout time.Duration) ([]byte, error) {
	m.mu.Lock()
	if m.popErr != nil {
		err := m.popErr
		m.mu.Unlock()
		return nil, err
	}
	if items := m.items[queue]; len(items) > 0 {
		m.items[queue] = items[1:]
		m.mu.Unlock()
		return items[0], nil
	}
	m.mu.Unlock()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(timeout):
		return nil, nil
	}
}

type mockDispatcher struct {
	mu       sync.Mutex
	payloads []string
	err      error
	panicOn  string
}

func (m *mockDispatcher) Dispatch(ctx context.Context, role usecase.QueueRole, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payloads = append(m.payloads, string(payload))
	if m.panicOn != "" && string(payload) == m.panicOn {
		panic("dispatch exploded")
	}
	return m.err
}

func (m *mockDispatcher) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.payloads)
}

type mockTickRunner struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (m *mockTickRunner) RunTick(ctx context.Context) (*usecase.TickReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return &usecase.TickReport{Success: true}, nil
}

func (m *mockTickRunner) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

var errBoom = errors.New("boom")
