package models

import (
	"time"

	id "mariner/pkg/domain"
)

// MergeSessionTTL is how long a "multiple accounts found" response stays
// actionable before the caller must authenticate again.
const MergeSessionTTL = 30 * time.Minute

// MergeSession bridges a multi-candidate authentication response and the
// user's subsequent merge or skip decision. It is a read-only snapshot of
// the candidates discovered at login time, owned exclusively by the session
// store.
type MergeSession struct {
	ID         id.MergeSessionID  `json:"id"`
	Identifier string             `json:"identifier"`
	Candidates []CandidateAccount `json:"candidates"`
	CreatedAt  time.Time          `json:"created_at"`
	ExpiresAt  time.Time          `json:"expires_at"`
}

// Expired reports whether the session is past its expiry at the given time.
func (s *MergeSession) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Contains reports whether the account id was among the session's candidates.
// Merge decisions may only reference accounts discovered in this session.
func (s *MergeSession) Contains(accountID id.AccountID) bool {
	for _, c := range s.Candidates {
		if c.Account.ID == accountID {
			return true
		}
	}
	return false
}
