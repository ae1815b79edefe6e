package models

// Source classifies where a candidate account most plausibly originated.
type Source string

const (
	// SourceQaaqMain marks accounts with real Q&A activity on the main site.
	SourceQaaqMain Source = "qaaq_main"
	// SourceWhatsAppBot marks accounts created through the WhatsApp bot:
	// a contact number plus a contact-sourced profile field, no activity.
	SourceWhatsAppBot Source = "whatsapp_bot"
	// SourceLocalApp marks thin accounts created by the mobile app.
	SourceLocalApp Source = "local_app"
)

// CandidateAccount is a ranked projection of an Account used only within a
// single authentication attempt's lifecycle. It is never persisted.
type CandidateAccount struct {
	Account        Account `json:"account"`
	Completeness   int     `json:"completeness"`
	Source         Source  `json:"source"`
	Recommendation string  `json:"recommendation"`
}
