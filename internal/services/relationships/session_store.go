package relationships

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrSessionNotFound is returned for operations on an unknown or closed session.
var ErrSessionNotFound = errors.New("session not found")

// SessionStore owns open sessions. Relationship state lives exactly as long
// as the store keeps a session reachable.
type SessionStore interface {
	// Open creates and holds a new session.
	Open(ctx context.Context, name string) (*Session, error)

	// Get returns an open session.
	Get(ctx context.Context, id string) (*Session, error)

	// List returns open sessions ordered by creation time.
	List(ctx context.Context) ([]*Session, error)

	// Close releases a session and returns it.
	Close(ctx context.Context, id string) (*Session, error)
}

// MemorySessionStore keeps sessions in process memory.
type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	now      func() time.Time
}

// NewMemorySessionStore creates an empty session store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{
		sessions: make(map[string]*Session),
		now:      time.Now,
	}
}

// Open creates a session with a fresh uuid and holds it until Close.
func (s *MemorySessionStore) Open(ctx context.Context, name string) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	session := &Session{
		ID:        uuid.NewString(),
		Name:      name,
		CreatedAt: s.now().UTC(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID] = session
	return session, nil
}

// Get returns the open session with the given id.
func (s *MemorySessionStore) Get(ctx context.Context, id string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return session, nil
}

// List returns open sessions ordered by creation time.
func (s *MemorySessionStore) List(ctx context.Context) ([]*Session, error) {
	s.mu.RLock()
	out := make([]*Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		out = append(out, session)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// Close removes the session and returns it.
func (s *MemorySessionStore) Close(ctx context.Context, id string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	delete(s.sessions, id)
	return session, nil
}

var _ SessionStore = (*MemorySessionStore)(nil)
