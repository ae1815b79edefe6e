package models

import (
	"time"

	id "mariner/pkg/domain"
)

// ResetCodeTTL bounds how long a password reset code stays valid.
const ResetCodeTTL = 15 * time.Minute

// PasswordRecord is the per-account password bootstrap state. Created lazily
// on the first authentication attempt, mutated only by the password gate.
//
// The password is stored verbatim. The liberal scheme is inherited behavior:
// the first text ever entered for an account becomes its password. This is
// reproduced faithfully, not improved.
type PasswordRecord struct {
	AccountID         id.AccountID `json:"account_id"`
	HasCustomPassword bool         `json:"has_custom_password"`
	Password          string       `json:"password"`
	LiberalLoginCount int          `json:"liberal_login_count"`

	ResetCode          string     `json:"reset_code,omitempty"`
	ResetCodeExpiresAt *time.Time `json:"reset_code_expires_at,omitempty"`
	// ResetVerified permits exactly one SetCustomPassword after a successful
	// reset-code verification.
	ResetVerified bool `json:"reset_verified"`
}
