package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

type memoryEntry struct {
	data      []byte
	expiresAt time.Time
}

// MemoryStore keeps sessions in process memory. Entries are stored
// serialized, the same as in redis, so callers never share maps.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]memoryEntry
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]memoryEntry),
		now:      time.Now,
	}
}

func (m *MemoryStore) Create(_ context.Context, s Session) error {
	if err := validate(s); err != nil {
		return err
	}

	if !s.ExpiresAt.After(m.now()) {
		return fmt.Errorf("session: expires_at must be in the future")
	}

	return m.put(s)
}

func (m *MemoryStore) Get(_ context.Context, sessionID string) (*Session, error) {
	m.mu.RLock()
	e, ok := m.sessions[sessionID]
	m.mu.RUnlock()

	if !ok {
		return nil, nil
	}

	if now := m.now(); !e.expiresAt.After(now) {
		m.mu.Lock()
		if cur, ok := m.sessions[sessionID]; ok && !cur.expiresAt.After(now) {
			delete(m.sessions, sessionID)
		}
		m.mu.Unlock()
		return nil, nil
	}

	var s Session
	if err := json.Unmarshal(e.data, &s); err != nil {
		return nil, fmt.Errorf("session: failed to unmarshal: %w", err)
	}

	return &s, nil
}

func (m *MemoryStore) Update(_ context.Context, s Session) error {
	if s.ID == "" {
		return fmt.Errorf("session: missing session id")
	}

	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("session: failed to marshal: %w", err)
	}

	// Existence check and write share one lock so a concurrent Delete
	// cannot be undone.
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[s.ID]; !ok {
		return ErrNotFound
	}

	if !s.ExpiresAt.After(m.now()) {
		delete(m.sessions, s.ID)
		return nil
	}

	m.sessions[s.ID] = memoryEntry{data: data, expiresAt: s.ExpiresAt}
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, sessionID string) error {
	m.mu.Lock()
	delete(m.sessions, sessionID)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) put(s Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("session: failed to marshal: %w", err)
	}

	m.mu.Lock()
	m.sessions[s.ID] = memoryEntry{data: data, expiresAt: s.ExpiresAt}
	m.mu.Unlock()

	return nil
}
