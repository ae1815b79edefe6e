// Package session holds the short-lived state bridging a "multiple accounts
// found" response and the user's merge decision.
package session

import (
	"context"

	"mariner/internal/identity/models"
	id "mariner/pkg/domain"
)

// Store persists merge sessions keyed by session id. Only this package's
// implementations mutate sessions; everything else reads candidate lists
// handed to it.
type Store interface {
	// Create stores the session until its expiry.
	Create(ctx context.Context, session *models.MergeSession) error

	// Get returns an unexpired session, or sentinel.ErrNotFound. Expired
	// sessions are removed as a side effect (lazy expiry); callers cannot
	// distinguish expired from never-existing.
	Get(ctx context.Context, sessionID id.MergeSessionID) (*models.MergeSession, error)

	// Delete removes the session. Idempotent.
	Delete(ctx context.Context, sessionID id.MergeSessionID) error
}
