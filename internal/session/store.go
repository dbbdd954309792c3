// Package session provides in-memory conversation session management.
//
// Sessions live for the process lifetime only; an expired session is
// removed by the TTL worker rather than persisted.
package session

import (
	"sync"
	"time"

	"github.com/datapilot-ai/datapilot/internal/domain"
	"github.com/google/uuid"
)

// Store manages conversation sessions. A single mutex guards the entire
// store, so all operations are linearizable with respect to each other.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*domain.Session
}

// NewStore creates an empty session store.
func NewStore() *Store {
	return &Store{
		sessions: make(map[string]*domain.Session),
	}
}

// Create adds a new session and returns a snapshot of it.
func (s *Store) Create(metadata map[string]any) domain.Session {
	now := time.Now()
	sess := &domain.Session{
		ID:           uuid.NewString(),
		CreatedAt:    now,
		LastActivity: now,
		Metadata:     map[string]any{},
		History:      []domain.Message{},
		Context:      map[string]any{},
	}
	for k, v := range metadata {
		sess.Metadata[k] = v
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = sess
	return snapshot(sess)
}

// Get returns a snapshot of the session, or false if it does not exist.
func (s *Store) Get(id string) (domain.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return domain.Session{}, false
	}
	return snapshot(sess), true
}

// Update merges metadata and context into the session and bumps
// last_activity. Returns false if the session does not exist.
func (s *Store) Update(id string, metadata, context map[string]any) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return false
	}
	for k, v := range metadata {
		sess.Metadata[k] = v
	}
	for k, v := range context {
		sess.Context[k] = v
	}
	sess.LastActivity = time.Now()
	return true
}

// Delete removes a session. Returns false if it did not exist.
func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[id]; !ok {
		return false
	}
	delete(s.sessions, id)
	return true
}

// AppendMessage appends a message to the session history. Insertion order
// is preserved and messages are never reordered. Returns false if the
// session does not exist.
func (s *Store) AppendMessage(id, role, content string, metadata map[string]any) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return false
	}
	sess.History = append(sess.History, domain.Message{
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
		Metadata:  metadata,
	})
	sess.LastActivity = time.Now()
	return true
}

// History returns the most recent messages of a session in insertion
// order. A limit <= 0 returns the full history. A missing session yields
// an empty slice.
func (s *Store) History(id string, limit int) []domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return []domain.Message{}
	}
	history := sess.History
	if limit > 0 && limit < len(history) {
		history = history[len(history)-limit:]
	}
	out := make([]domain.Message, len(history))
	copy(out, history)
	return out
}

// ListIDs returns the ids of all live sessions.
func (s *Store) ListIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	return ids
}

// Cleanup removes sessions whose last activity is older than maxAge and
// returns how many were removed.
func (s *Store) Cleanup(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, sess := range s.sessions {
		if sess.LastActivity.Before(cutoff) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

// snapshot copies a session so callers cannot mutate store state.
// Caller must hold s.mu.
func snapshot(sess *domain.Session) domain.Session {
	out := *sess
	out.History = make([]domain.Message, len(sess.History))
	copy(out.History, sess.History)
	out.Metadata = make(map[string]any, len(sess.Metadata))
	for k, v := range sess.Metadata {
		out.Metadata[k] = v
	}
	out.Context = make(map[string]any, len(sess.Context))
	for k, v := range sess.Context {
		out.Context[k] = v
	}
	return out
}
