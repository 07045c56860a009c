package session

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryBackend keeps encoded sessions in a map. Values are stored as bytes
// so callers never share pointers with the backend.
type MemoryBackend struct {
	mu    sync.RWMutex
	items map[Key][]byte
	now   func() time.Time
}

// NewMemoryBackend returns an empty in-process backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		items: make(map[Key][]byte),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the UpdatedAt clock. Tests use it.
func (m *MemoryBackend) SetClock(now func() time.Time) {
	m.mu.Lock()
	m.now = now
	m.mu.Unlock()
}

func (m *MemoryBackend) Get(_ context.Context, key Key) (*Session, error) {
	m.mu.RLock()
	data, ok := m.items[key]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return Decode(data)
}

func (m *MemoryBackend) Put(_ context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.UpdatedAt = m.now()
	data, err := Encode(s)
	if err != nil {
		return err
	}
	m.items[s.Key()] = data
	return nil
}

func (m *MemoryBackend) Delete(_ context.Context, key Key) error {
	m.mu.Lock()
	delete(m.items, key)
	m.mu.Unlock()
	return nil
}

func (m *MemoryBackend) List(_ context.Context, tenantID string) ([]*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Session
	for key, data := range m.items {
		if key.TenantID != tenantID {
			continue
		}
		s, err := Decode(data)
		if err != nil {
			s = Unreadable(key)
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}
