package store

import (
	"context"
	"slices"
	"sync"
)

// Memory keeps everything in process. It is the default for development.
type Memory struct {
	mu          sync.RWMutex
	submissions []Submission
	slots       map[string]string
}

func NewMemory() *Memory {
	return &Memory{slots: make(map[string]string)}
}

func (m *Memory) SaveSubmission(_ context.Context, s Submission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.Payload = slices.Clone(s.Payload)
	m.submissions = append(m.submissions, s)
	return nil
}

func (m *Memory) Submissions(_ context.Context, limit int) ([]Submission, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := slices.Clone(m.submissions)
	slices.Reverse(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) SaveSlot(_ context.Context, session, slot, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.slots[slotKey(session, slot)] = hash
	return nil
}

func (m *Memory) LoadSlot(_ context.Context, session, slot string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	hash, ok := m.slots[slotKey(session, slot)]
	if !ok {
		return "", ErrNotFound
	}
	return hash, nil
}

func (m *Memory) Close() error {
	return nil
}

func slotKey(session, slot string) string {
	return session + "\x00" + slot
}
