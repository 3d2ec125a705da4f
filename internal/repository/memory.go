package repository

import (
	"context"
	"sync"

	"ai-playground/internal/domain"
)

// Memory is a process-local Recorder.
type Memory struct {
	mu    sync.RWMutex
	max   int
	items map[string][]domain.Activity
}

func NewMemory(maxPerSession int) *Memory {
	return &Memory{max: maxPerSession, items: make(map[string][]domain.Activity)}
}

func (m *Memory) Record(_ context.Context, a domain.Activity) error {
	if a.SessionID == "" {
		return ErrSessionID
	}
	a = stamp(a)

	m.mu.Lock()
	defer m.mu.Unlock()
	list := append(m.items[a.SessionID], a)
	if m.max > 0 && len(list) > m.max {
		list = list[len(list)-m.max:]
	}
	m.items[a.SessionID] = list
	return nil
}

// List returns up to limit of the most recent activities, oldest first.
func (m *Memory) List(_ context.Context, sessionID string, limit int) ([]domain.Activity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	list := m.items[sessionID]
	if limit > 0 && len(list) > limit {
		list = list[len(list)-limit:]
	}
	out := make([]domain.Activity, len(list))
	copy(out, list)
	return out, nil
}

func (m *Memory) Count(_ context.Context, sessionID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items[sessionID]), nil
}
