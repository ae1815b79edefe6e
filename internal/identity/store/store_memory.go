package store

import (
	"context"
	"strings"
	"sync"
	"time"

	"mariner/internal/identity/models"
	id "mariner/pkg/domain"
	"mariner/pkg/platform/sentinel"
)

// ReferenceKind names a relational reference table that can point at an
// account. The memory store models them uniformly; the Postgres store has a
// real table per kind.
type ReferenceKind string

const (
	RefChatSender     ReferenceKind = "chat_sender"
	RefChatReceiver   ReferenceKind = "chat_receiver"
	RefQuestionAuthor ReferenceKind = "question_author"
	RefAnswerAuthor   ReferenceKind = "answer_author"
)

type reference struct {
	Kind  ReferenceKind
	Owner id.AccountID
}

// MemoryStore is an in-memory AccountStore and MergeStore for tests and
// single-process development runs.
type MemoryStore struct {
	mu       sync.RWMutex
	accounts map[id.AccountID]*models.Account
	refs     []reference
}

// NewMemory constructs an empty in-memory store.
func NewMemory() *MemoryStore {
	return &MemoryStore{accounts: make(map[id.AccountID]*models.Account)}
}

func (m *MemoryStore) Create(ctx context.Context, account *models.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.accounts[account.ID]; exists {
		return sentinel.ErrConflict
	}
	m.accounts[account.ID] = account.Clone()
	return nil
}

func (m *MemoryStore) FindByID(ctx context.Context, accountID id.AccountID) (*models.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.accounts[accountID]
	if !ok || a.Archived {
		return nil, sentinel.ErrNotFound
	}
	return a.Clone(), nil
}

func (m *MemoryStore) FindByEmailFold(ctx context.Context, email string) ([]*models.Account, error) {
	return m.scan(func(a *models.Account) bool {
		return a.Email != "" && strings.EqualFold(a.Email, email)
	}), nil
}

func (m *MemoryStore) FindByAltContact(ctx context.Context, variants []string) ([]*models.Account, error) {
	set := toSet(variants)
	return m.scan(func(a *models.Account) bool {
		_, ok := set[a.AltContact]
		return a.AltContact != "" && ok
	}), nil
}

func (m *MemoryStore) FindByIDVariants(ctx context.Context, variants []string) ([]*models.Account, error) {
	set := toSet(variants)
	return m.scan(func(a *models.Account) bool {
		_, ok := set[a.ID.String()]
		return ok
	}), nil
}

func (m *MemoryStore) FindFuzzy(ctx context.Context, identifier string) ([]*models.Account, error) {
	needle := strings.ToLower(identifier)
	return m.scan(func(a *models.Account) bool {
		if !strings.Contains(strings.ToLower(a.FullName), needle) {
			return false
		}
		return strings.Contains(strings.ToLower(a.Email), needle) || a.AltContact == identifier
	}), nil
}

func (m *MemoryStore) RecordLogin(ctx context.Context, accountID id.AccountID, at time.Time, device string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[accountID]
	if !ok || a.Archived {
		return sentinel.ErrNotFound
	}
	a.LoginCount++
	a.LastLogin = &at
	if device != "" {
		a.LastLoginDevice = device
	}
	a.UpdatedAt = at
	return nil
}

// AddReference seeds a relational reference, for tests and dev wiring.
func (m *MemoryStore) AddReference(kind ReferenceKind, owner id.AccountID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refs = append(m.refs, reference{Kind: kind, Owner: owner})
}

// ReferencesFor counts references currently pointing at the account.
func (m *MemoryStore) ReferencesFor(owner id.AccountID) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, r := range m.refs {
		if r.Owner == owner {
			n++
		}
	}
	return n
}

// RunInTx implements MergeStore. The whole store is locked for the duration
// of the callback; on error the pre-transaction state is restored, giving
// the same all-or-nothing guarantee as the SQL implementation.
func (m *MemoryStore) RunInTx(ctx context.Context, fn func(tx MergeTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := make(map[id.AccountID]*models.Account, len(m.accounts))
	for k, v := range m.accounts {
		snapshot[k] = v.Clone()
	}
	refsSnapshot := make([]reference, len(m.refs))
	copy(refsSnapshot, m.refs)

	if err := fn(&memoryTx{store: m}); err != nil {
		m.accounts = snapshot
		m.refs = refsSnapshot
		return err
	}
	return nil
}

// memoryTx operates on the already-locked store.
type memoryTx struct {
	store *MemoryStore
}

func (t *memoryTx) GetForMerge(ctx context.Context, accountID id.AccountID) (*models.Account, error) {
	a, ok := t.store.accounts[accountID]
	if !ok || a.Archived {
		return nil, sentinel.ErrNotFound
	}
	return a.Clone(), nil
}

func (t *memoryTx) UpdateAccount(ctx context.Context, account *models.Account) error {
	if _, ok := t.store.accounts[account.ID]; !ok {
		return sentinel.ErrNotFound
	}
	t.store.accounts[account.ID] = account.Clone()
	return nil
}

func (t *memoryTx) ReassignReferences(ctx context.Context, from, to id.AccountID) error {
	for i := range t.store.refs {
		if t.store.refs[i].Owner == from {
			t.store.refs[i].Owner = to
		}
	}
	return nil
}

func (t *memoryTx) Archive(ctx context.Context, accountID id.AccountID, at time.Time) error {
	a, ok := t.store.accounts[accountID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if a.Archived {
		return nil
	}
	a.Email += models.ArchivedEmailSuffix(at)
	a.Archived = true
	a.UpdatedAt = at
	return nil
}

func (m *MemoryStore) scan(match func(*models.Account) bool) []*models.Account {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.Account
	for _, a := range m.accounts {
		if a.Archived || !match(a) {
			continue
		}
		out = append(out, a.Clone())
	}
	return out
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}
