package password

import (
	"context"
	"sync"

	"mariner/internal/identity/models"
	id "mariner/pkg/domain"
	"mariner/pkg/platform/sentinel"
)

// MemoryStore is an in-memory password record store for tests and
// single-process runs.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[id.AccountID]*models.PasswordRecord
}

// NewMemory constructs an empty in-memory password store.
func NewMemory() *MemoryStore {
	return &MemoryStore{records: make(map[id.AccountID]*models.PasswordRecord)}
}

func (m *MemoryStore) Get(ctx context.Context, accountID id.AccountID) (*models.PasswordRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[accountID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *rec
	if rec.ResetCodeExpiresAt != nil {
		t := *rec.ResetCodeExpiresAt
		cp.ResetCodeExpiresAt = &t
	}
	return &cp, nil
}

func (m *MemoryStore) Save(ctx context.Context, record *models.PasswordRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *record
	if record.ResetCodeExpiresAt != nil {
		t := *record.ResetCodeExpiresAt
		cp.ResetCodeExpiresAt = &t
	}
	m.records[record.AccountID] = &cp
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, accountID id.AccountID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, accountID)
	return nil
}
