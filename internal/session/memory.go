package session

import (
	"context"
	"sync"
	"time"

	"github.com/expertline/expertline/pkg/types"
)

// MemoryStore is an in-memory [Store]. Sessions disappear on process restart,
// which matches the lifetime of a voice call.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*types.Session
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty [MemoryStore].
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*types.Session)}
}

// Create implements Store.
func (s *MemoryStore) Create(_ context.Context, id string) (*types.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := &types.Session{
		ID:        id,
		CreatedAt: time.Now().UTC(),
	}
	s.sessions[id] = sess
	return snapshot(sess), nil
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, id string) (*types.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return snapshot(sess), nil
}

// SetExpert implements Store.
func (s *MemoryStore) SetExpert(_ context.Context, id string, expert *types.Expert) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return ErrNotFound
	}
	if expert == nil {
		sess.Expert = nil
		return nil
	}
	e := *expert
	sess.Expert = &e
	return nil
}

// AppendMessage implements Store.
func (s *MemoryStore) AppendMessage(_ context.Context, id string, msg types.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return ErrNotFound
	}
	sess.History = append(sess.History, msg)
	return nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.sessions[id]
	delete(s.sessions, id)
	return ok, nil
}

// Len returns the number of active sessions.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// snapshot copies sess so callers cannot mutate store state.
func snapshot(sess *types.Session) *types.Session {
	out := &types.Session{
		ID:        sess.ID,
		CreatedAt: sess.CreatedAt,
	}
	if sess.Expert != nil {
		e := *sess.Expert
		out.Expert = &e
	}
	if len(sess.History) > 0 {
		out.History = make([]types.Message, len(sess.History))
		copy(out.History, sess.History)
	}
	return out
}
