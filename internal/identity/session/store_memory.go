package session

import (
	"context"
	"sync"

	"mariner/internal/identity/models"
	id "mariner/pkg/domain"
	"mariner/pkg/platform/sentinel"
	"mariner/pkg/requestcontext"
)

// MemoryStore is a concurrency-safe in-memory session store with lazy
// expiry: no background sweep, expired sessions are collected on access.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[id.MergeSessionID]*models.MergeSession
}

// NewMemory constructs an empty in-memory session store.
func NewMemory() *MemoryStore {
	return &MemoryStore{sessions: make(map[id.MergeSessionID]*models.MergeSession)}
}

func (m *MemoryStore) Create(ctx context.Context, session *models.MergeSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *session
	cp.Candidates = append([]models.CandidateAccount(nil), session.Candidates...)
	m.sessions[session.ID] = &cp
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, sessionID id.MergeSessionID) (*models.MergeSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[sessionID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if sess.Expired(requestcontext.Now(ctx)) {
		delete(m.sessions, sessionID)
		return nil, sentinel.ErrNotFound
	}
	cp := *sess
	cp.Candidates = append([]models.CandidateAccount(nil), sess.Candidates...)
	return &cp, nil
}

func (m *MemoryStore) Delete(ctx context.Context, sessionID id.MergeSessionID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sessionID)
	return nil
}
