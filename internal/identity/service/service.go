// Package service is the callable façade of the identity engine. It ties the
// candidate finder, scorer, password gate, merge sessions and the merge
// orchestrator together; transport concerns stay out of this layer.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"mariner/internal/identity/models"
	"mariner/internal/identity/scoring"
	"mariner/internal/identity/store"
	"mariner/internal/notify"
	"mariner/internal/platform/metrics"
	id "mariner/pkg/domain"
	dErrors "mariner/pkg/domain-errors"
	"mariner/pkg/platform/sentinel"
	"mariner/pkg/requestcontext"
)

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks TokenIssuer,Merger

// TokenIssuer mints an opaque access token for an authenticated account.
type TokenIssuer interface {
	IssueAccessToken(accountID id.AccountID, source string, now time.Time) (string, error)
}

// Merger executes a merge decision transactionally and returns the primary's
// post-merge state.
type Merger interface {
	Merge(ctx context.Context, decision models.MergeDecision) (*models.Account, error)
}

// CandidateFinder resolves a login identifier to every plausibly matching
// account. Lookup failures are absorbed inside the finder.
type CandidateFinder interface {
	Find(ctx context.Context, identifier string) []*models.Account
}

// PasswordGate runs the liberal password state machine.
type PasswordGate interface {
	Check(ctx context.Context, accountID id.AccountID, submitted string) error
	SetCustomPassword(ctx context.Context, accountID id.AccountID, newPassword string) error
	GenerateReset(ctx context.Context, accountID id.AccountID) (string, error)
	VerifyReset(ctx context.Context, accountID id.AccountID, code string) error
}

// SessionStore persists merge sessions between the MergeRequired response and
// the caller's decision.
type SessionStore interface {
	Create(ctx context.Context, session *models.MergeSession) error
	Get(ctx context.Context, sessionID id.MergeSessionID) (*models.MergeSession, error)
	Delete(ctx context.Context, sessionID id.MergeSessionID) error
}

// AuthStatus discriminates the authentication outcome.
type AuthStatus string

const (
	StatusAuthenticated AuthStatus = "authenticated"
	StatusMergeRequired AuthStatus = "merge_required"
)

// AuthOutcome is the result of a successful Authenticate, MergeAccounts or
// SkipMerge call. Exactly one of the two shapes is populated, selected by
// Status: Account+Token for StatusAuthenticated, SessionID+Candidates for
// StatusMergeRequired. Rejections are errors, never an outcome.
type AuthOutcome struct {
	Status     AuthStatus
	Account    *models.PublicAccount
	Token      string
	SessionID  id.MergeSessionID
	ExpiresAt  time.Time
	Candidates []models.CandidateAccount
}

type Service struct {
	accounts   store.AccountStore
	finder     CandidateFinder
	gate       PasswordGate
	sessions   SessionStore
	merger     Merger
	tokens     TokenIssuer
	notifier   notify.Notifier
	logger     *slog.Logger
	metrics    *metrics.Metrics
	sessionTTL time.Duration
}

// New constructs the identity Service. sessionTTL of zero falls back to the
// default 30-minute merge-session validity.
func New(
	accounts store.AccountStore,
	finder CandidateFinder,
	gate PasswordGate,
	sessions SessionStore,
	merger Merger,
	tokens TokenIssuer,
	notifier notify.Notifier,
	logger *slog.Logger,
	m *metrics.Metrics,
	sessionTTL time.Duration,
) *Service {
	if sessionTTL == 0 {
		sessionTTL = models.MergeSessionTTL
	}
	return &Service{
		accounts:   accounts,
		finder:     finder,
		gate:       gate,
		sessions:   sessions,
		merger:     merger,
		tokens:     tokens,
		notifier:   notifier,
		logger:     logger,
		metrics:    m,
		sessionTTL: sessionTTL,
	}
}

// Authenticate resolves the identifier to candidate accounts and either logs
// the caller in (one candidate, password accepted), opens a merge session
// (two or more candidates) or rejects with a deliberately generic error.
func (s *Service) Authenticate(ctx context.Context, identifier, submittedPassword string) (*AuthOutcome, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "identifier required")
	}

	candidates := scoring.Rank(s.finder.Find(ctx, identifier))

	switch len(candidates) {
	case 0:
		s.countAuth("rejected")
		s.logger.Info("authentication rejected", "reason", "no_candidates")
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid credentials")

	case 1:
		account := candidates[0].Account
		if err := s.gate.Check(ctx, account.ID, submittedPassword); err != nil {
			s.countAuth("rejected")
			s.logger.Info("authentication rejected",
				"account_id", account.ID.String(),
				"reason", "password_check",
			)
			return nil, err
		}
		return s.login(ctx, account.ID, candidates[0].Source)

	default:
		now := requestcontext.Now(ctx)
		sess := &models.MergeSession{
			ID:         id.NewMergeSessionID(),
			Identifier: identifier,
			Candidates: candidates,
			CreatedAt:  now,
			ExpiresAt:  now.Add(s.sessionTTL),
		}
		if err := s.sessions.Create(ctx, sess); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to open merge session")
		}
		s.countAuth("merge_required")
		if s.metrics != nil {
			s.metrics.MergeSessions.WithLabelValues("created").Inc()
		}
		s.logger.Info("merge session opened",
			"session_id", sess.ID.String(),
			"candidates", len(candidates),
		)
		return &AuthOutcome{
			Status:     StatusMergeRequired,
			SessionID:  sess.ID,
			ExpiresAt:  sess.ExpiresAt,
			Candidates: candidates,
		}, nil
	}
}

// GetMergeSession returns the ranked candidates of an open session. Expired
// and unknown sessions are indistinguishable to the caller.
func (s *Service) GetMergeSession(ctx context.Context, sessionID id.MergeSessionID) (*models.MergeSession, error) {
	sess, err := s.sessions.Get(ctx, sessionID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "session not found or expired")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load merge session")
	}
	return sess, nil
}

// MergeAccounts applies the caller's merge decision. Every referenced account
// must have been a candidate in the originating session; the check happens
// before any write. On success the session is consumed and the caller is
// logged in as the primary.
func (s *Service) MergeAccounts(ctx context.Context, sessionID id.MergeSessionID, decision models.MergeDecision) (*AuthOutcome, error) {
	sess, err := s.GetMergeSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if !sess.Contains(decision.PrimaryID) {
		return nil, dErrors.New(dErrors.CodeBadRequest, "primary account was not a candidate in this session")
	}
	for _, dupID := range decision.DuplicateIDs {
		if !sess.Contains(dupID) {
			return nil, dErrors.Newf(dErrors.CodeBadRequest, "account %s was not a candidate in this session", dupID)
		}
	}

	if decision.Strategy == models.StrategyManualReview {
		// Deferred to an operator: nothing is merged, the session stays open
		// for the follow-up, and the caller proceeds on the primary.
		s.logger.Info("merge deferred to manual review",
			"session_id", sessionID.String(),
			"primary_id", decision.PrimaryID.String(),
		)
		return s.login(ctx, decision.PrimaryID, sourceOf(sess, decision.PrimaryID))
	}

	merged, err := s.merger.Merge(ctx, decision)
	if err != nil {
		return nil, err
	}

	s.consumeSession(ctx, sessionID)
	outcome, err := s.login(ctx, merged.ID, sourceOf(sess, merged.ID))
	if err != nil {
		return nil, err
	}
	pub := merged.Public()
	outcome.Account = &pub
	return outcome, nil
}

// SkipMerge resolves the session without merging: the caller picks one
// candidate and is logged in as it. The other candidates stay untouched.
func (s *Service) SkipMerge(ctx context.Context, sessionID id.MergeSessionID, selectedID id.AccountID) (*AuthOutcome, error) {
	sess, err := s.GetMergeSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !sess.Contains(selectedID) {
		return nil, dErrors.New(dErrors.CodeBadRequest, "selected account was not a candidate in this session")
	}

	s.consumeSession(ctx, sessionID)
	s.logger.Info("merge skipped",
		"session_id", sessionID.String(),
		"selected_id", selectedID.String(),
	)
	return s.login(ctx, selectedID, sourceOf(sess, selectedID))
}

// SetPassword force-sets a custom password for the account.
func (s *Service) SetPassword(ctx context.Context, accountID id.AccountID, newPassword string) error {
	if _, err := s.requireAccount(ctx, accountID); err != nil {
		return err
	}
	return s.gate.SetCustomPassword(ctx, accountID, newPassword)
}

// RequestPasswordReset issues a reset code and hands it to the notifier.
// Delivery is fire-and-forget; a notifier failure does not invalidate the
// code.
func (s *Service) RequestPasswordReset(ctx context.Context, accountID id.AccountID) (string, error) {
	account, err := s.requireAccount(ctx, accountID)
	if err != nil {
		return "", err
	}

	code, err := s.gate.GenerateReset(ctx, accountID)
	if err != nil {
		return "", err
	}
	if s.metrics != nil {
		s.metrics.ResetCodesIssued.Inc()
	}

	if err := s.notifier.SendResetCode(ctx, accountID, account.Email, code); err != nil {
		s.logger.Warn("reset code delivery failed",
			"account_id", accountID.String(),
			"error", err,
		)
	}
	return code, nil
}

// ResetPasswordWithCode verifies the pending reset code and, in the same
// call, sets the new password. The verification is consumed even if the new
// password is then rejected; the caller must request a fresh code.
func (s *Service) ResetPasswordWithCode(ctx context.Context, accountID id.AccountID, code, newPassword string) error {
	if _, err := s.requireAccount(ctx, accountID); err != nil {
		return err
	}
	if err := s.gate.VerifyReset(ctx, accountID, code); err != nil {
		return err
	}
	return s.gate.SetCustomPassword(ctx, accountID, newPassword)
}

// login issues the access token and records the login on the account.
func (s *Service) login(ctx context.Context, accountID id.AccountID, source models.Source) (*AuthOutcome, error) {
	account, err := s.requireAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	token, err := s.tokens.IssueAccessToken(accountID, string(source), now)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to issue token")
	}

	if err := s.accounts.RecordLogin(ctx, accountID, now, requestcontext.Device(ctx)); err != nil {
		s.logger.Warn("login bookkeeping failed", "account_id", accountID.String(), "error", err)
	}

	s.countAuth("authenticated")
	s.logger.Info("authenticated",
		"account_id", accountID.String(),
		"source", string(source),
		"client_ip", requestcontext.ClientIP(ctx),
		"device", requestcontext.Device(ctx),
	)
	pub := account.Public()
	return &AuthOutcome{Status: StatusAuthenticated, Account: &pub, Token: token}, nil
}

func (s *Service) requireAccount(ctx context.Context, accountID id.AccountID) (*models.Account, error) {
	account, err := s.accounts.FindByID(ctx, accountID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "account not found")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load account")
	}
	return account, nil
}

func (s *Service) consumeSession(ctx context.Context, sessionID id.MergeSessionID) {
	if err := s.sessions.Delete(ctx, sessionID); err != nil {
		s.logger.Warn("failed to delete merge session", "session_id", sessionID.String(), "error", err)
		return
	}
	if s.metrics != nil {
		s.metrics.MergeSessions.WithLabelValues("consumed").Inc()
	}
}

func (s *Service) countAuth(outcome string) {
	if s.metrics != nil {
		s.metrics.AuthAttempts.WithLabelValues(outcome).Inc()
	}
}

// sourceOf recovers the candidate's source classification from the session
// snapshot for audit logging.
func sourceOf(sess *models.MergeSession, accountID id.AccountID) models.Source {
	for _, c := range sess.Candidates {
		if c.Account.ID == accountID {
			return c.Source
		}
	}
	return ""
}
