// Package store persists accounts and their relational references. It is the
// single source of truth for identity data; row shapes never leak past the
// mapping functions at this boundary.
package store

import (
	"context"
	"time"

	"mariner/internal/identity/models"
	id "mariner/pkg/domain"
)

// AccountStore exposes the lookups the candidate finder needs plus account
// lifecycle writes. All read methods exclude archived accounts.
type AccountStore interface {
	// FindByID returns the active account with the exact canonical id,
	// or sentinel.ErrNotFound.
	FindByID(ctx context.Context, accountID id.AccountID) (*models.Account, error)

	// FindByEmailFold returns active accounts whose email matches
	// case-insensitively.
	FindByEmailFold(ctx context.Context, email string) ([]*models.Account, error)

	// FindByAltContact returns active accounts whose alternate contact
	// number matches any of the given variants.
	FindByAltContact(ctx context.Context, variants []string) ([]*models.Account, error)

	// FindByIDVariants returns active accounts whose canonical id matches
	// any of the given variants.
	FindByIDVariants(ctx context.Context, variants []string) ([]*models.Account, error)

	// FindFuzzy returns active accounts where the identifier appears as a
	// substring of the display name AND (appears in the email OR equals the
	// alternate contact number). Known to over-match common names; the
	// behavior is inherited and deliberately preserved.
	FindFuzzy(ctx context.Context, identifier string) ([]*models.Account, error)

	// Create inserts a new account. Returns sentinel.ErrConflict if the
	// canonical id is taken.
	Create(ctx context.Context, account *models.Account) error

	// RecordLogin bumps login bookkeeping on an account.
	RecordLogin(ctx context.Context, accountID id.AccountID, at time.Time, device string) error
}

// MergeStore runs the all-or-nothing merge transaction. Implementations must
// guarantee that a failed callback leaves no partial writes behind.
type MergeStore interface {
	RunInTx(ctx context.Context, fn func(tx MergeTx) error) error
}

// MergeTx is the view of the store inside one merge transaction. Reads lock
// the row for the remainder of the transaction.
type MergeTx interface {
	// GetForMerge loads an active account for update. Archived or absent
	// accounts yield sentinel.ErrNotFound.
	GetForMerge(ctx context.Context, accountID id.AccountID) (*models.Account, error)

	// UpdateAccount writes the merged field values and counters back.
	UpdateAccount(ctx context.Context, account *models.Account) error

	// ReassignReferences repoints every relational reference (chat message
	// sender/receiver, question and answer authorship) from one account to
	// another.
	ReassignReferences(ctx context.Context, from, to id.AccountID) error

	// Archive marks the account non-authenticatable in place: the email
	// gains an archival suffix and the archived flag is set. The row is
	// never deleted.
	Archive(ctx context.Context, accountID id.AccountID, at time.Time) error
}
