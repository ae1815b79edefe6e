package models

import (
	"fmt"
	"time"

	id "mariner/pkg/domain"
)

// Account is the persisted identity record. The canonical identifier is
// unique and immutable once created; archived accounts are never deleted.
type Account struct {
	ID         id.AccountID `json:"id"`
	FullName   string       `json:"full_name"`
	Email      string       `json:"email"`
	AltContact string       `json:"alt_contact,omitempty"`

	// Profile fields. Nullable until the mariner fills them in; the merge
	// orchestrator coalesces these with primary-wins semantics.
	Rank           *string  `json:"rank,omitempty"`
	Ship           *string  `json:"ship,omitempty"`
	IMO            *string  `json:"imo,omitempty"`
	City           *string  `json:"city,omitempty"`
	Country        *string  `json:"country,omitempty"`
	Latitude       *float64 `json:"latitude,omitempty"`
	Longitude      *float64 `json:"longitude,omitempty"`
	WhatsAppNumber *string  `json:"whatsapp_number,omitempty"`
	VesselType     *string  `json:"vessel_type,omitempty"`

	// Activity counters. Summed, not coalesced, during a data merge.
	QuestionCount int `json:"question_count"`
	AnswerCount   int `json:"answer_count"`
	LoginCount    int `json:"login_count"`

	LastLogin       *time.Time `json:"last_login,omitempty"`
	LastLoginDevice string     `json:"last_login_device,omitempty"`

	Archived  bool      `json:"archived"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ArchivedEmailSuffix marks an archived duplicate's email so the address is
// freed for the surviving account while the row keeps its audit trail.
func ArchivedEmailSuffix(at time.Time) string {
	return fmt.Sprintf("_archived_%d", at.Unix())
}

// PublicAccount is the non-sensitive projection returned to callers after
// authentication or a merge.
type PublicAccount struct {
	ID            id.AccountID `json:"id"`
	FullName      string       `json:"full_name"`
	Email         string       `json:"email"`
	Rank          *string      `json:"rank,omitempty"`
	Ship          *string      `json:"ship,omitempty"`
	City          *string      `json:"city,omitempty"`
	Country       *string      `json:"country,omitempty"`
	QuestionCount int          `json:"question_count"`
	AnswerCount   int          `json:"answer_count"`
}

// Public strips store bookkeeping and contact details down to what the
// caller may see.
func (a *Account) Public() PublicAccount {
	return PublicAccount{
		ID:            a.ID,
		FullName:      a.FullName,
		Email:         a.Email,
		Rank:          a.Rank,
		Ship:          a.Ship,
		City:          a.City,
		Country:       a.Country,
		QuestionCount: a.QuestionCount,
		AnswerCount:   a.AnswerCount,
	}
}

// Clone returns a deep copy so stores can hand out accounts without aliasing
// their internal state.
func (a *Account) Clone() *Account {
	cp := *a
	cp.Rank = clonePtr(a.Rank)
	cp.Ship = clonePtr(a.Ship)
	cp.IMO = clonePtr(a.IMO)
	cp.City = clonePtr(a.City)
	cp.Country = clonePtr(a.Country)
	cp.Latitude = clonePtr(a.Latitude)
	cp.Longitude = clonePtr(a.Longitude)
	cp.WhatsAppNumber = clonePtr(a.WhatsAppNumber)
	cp.VesselType = clonePtr(a.VesselType)
	cp.LastLogin = clonePtr(a.LastLogin)
	return &cp
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
