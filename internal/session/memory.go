package session

import (
	"sync"

	"github.com/google/uuid"
)

// MemoryStore keeps sessions in process memory.
type MemoryStore struct {
	sessions sync.Map // string -> *Session
	users    sync.Map // uuid.UUID -> string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Get(id string) (*Session, error) {
	v, ok := m.sessions.Load(id)
	if !ok {
		return nil, ErrNotFound
	}
	return v.(*Session), nil
}

func (m *MemoryStore) Put(s *Session) {
	m.sessions.Store(s.ID, s)
}

func (m *MemoryStore) Remove(id string) bool {
	_, loaded := m.sessions.LoadAndDelete(id)
	return loaded
}

func (m *MemoryStore) Range(fn func(*Session) bool) {
	m.sessions.Range(func(_, v any) bool {
		return fn(v.(*Session))
	})
}

func (m *MemoryStore) UserSession(user uuid.UUID) (string, bool) {
	v, ok := m.users.Load(user)
	if !ok {
		return "", false
	}
	return v.(string), true
}

func (m *MemoryStore) SwapUserSession(user uuid.UUID, old, next string) bool {
	if old == "" {
		_, loaded := m.users.LoadOrStore(user, next)
		return !loaded
	}
	return m.users.CompareAndSwap(user, old, next)
}

func (m *MemoryStore) ReleaseUser(user uuid.UUID, sessionID string) bool {
	return m.users.CompareAndDelete(user, sessionID)
}

// Len counts stored sessions.
func (m *MemoryStore) Len() int {
	n := 0
	m.sessions.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
