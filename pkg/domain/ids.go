// Package domain defines the typed identifiers shared across the engine.
//
// Using distinct types for each identifier keeps call sites honest: an
// AccountID can never be passed where a MergeSessionID is expected, and the
// compiler enforces it.
package domain

import (
	"strings"

	"github.com/google/uuid"
)

// AccountID is the canonical identifier of an account. It is immutable once
// created and is commonly a phone number string ("+919035283755"), though
// legacy rows may carry generated ids. It is never a row surrogate key.
type AccountID string

// ParseAccountID trims an identifier into an AccountID. It performs no
// normalization beyond whitespace; variant expansion is the normalizer's job.
func ParseAccountID(raw string) AccountID {
	return AccountID(strings.TrimSpace(raw))
}

// IsEmpty reports whether the id carries no value.
func (a AccountID) IsEmpty() bool {
	return a == ""
}

func (a AccountID) String() string {
	return string(a)
}

// MergeSessionID identifies one short-lived merge session.
type MergeSessionID uuid.UUID

// NewMergeSessionID returns a fresh random session id.
func NewMergeSessionID() MergeSessionID {
	return MergeSessionID(uuid.New())
}

// ParseMergeSessionID parses the textual form of a session id.
func ParseMergeSessionID(raw string) (MergeSessionID, error) {
	u, err := uuid.Parse(raw)
	if err != nil {
		return MergeSessionID{}, err
	}
	return MergeSessionID(u), nil
}

// IsNil reports whether the id is the zero value.
func (m MergeSessionID) IsNil() bool {
	return uuid.UUID(m) == uuid.Nil
}

func (m MergeSessionID) String() string {
	return uuid.UUID(m).String()
}

// MarshalText makes the id serialize as its canonical string form.
func (m MergeSessionID) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText parses the canonical string form.
func (m *MergeSessionID) UnmarshalText(data []byte) error {
	u, err := uuid.Parse(string(data))
	if err != nil {
		return err
	}
	*m = MergeSessionID(u)
	return nil
}
