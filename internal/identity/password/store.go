// Package password implements the liberal password gate: the first password
// ever entered for an account becomes its password. Inherited behavior,
// reproduced faithfully rather than hardened.
package password

import (
	"context"

	"mariner/internal/identity/models"
	id "mariner/pkg/domain"
)

// Store persists password records keyed by account id. Mutated only by the
// Gate; records outlive process restarts when the Redis variant is used.
type Store interface {
	// Get returns the record, or sentinel.ErrNotFound.
	Get(ctx context.Context, accountID id.AccountID) (*models.PasswordRecord, error)

	// Save upserts the record.
	Save(ctx context.Context, record *models.PasswordRecord) error

	// Delete removes the record. Used only by explicit admin resets.
	Delete(ctx context.Context, accountID id.AccountID) error
}
