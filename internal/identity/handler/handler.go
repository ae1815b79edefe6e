// Package handler exposes the identity engine over HTTP. Handlers stay thin:
// decode, delegate, translate.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"mariner/internal/identity/models"
	"mariner/internal/identity/service"
	id "mariner/pkg/domain"
	dErrors "mariner/pkg/domain-errors"
	"mariner/pkg/platform/httputil"
	"mariner/pkg/requestcontext"
)

// Service defines the engine operations the transport needs.
type Service interface {
	Authenticate(ctx context.Context, identifier, password string) (*service.AuthOutcome, error)
	GetMergeSession(ctx context.Context, sessionID id.MergeSessionID) (*models.MergeSession, error)
	MergeAccounts(ctx context.Context, sessionID id.MergeSessionID, decision models.MergeDecision) (*service.AuthOutcome, error)
	SkipMerge(ctx context.Context, sessionID id.MergeSessionID, selectedID id.AccountID) (*service.AuthOutcome, error)
	SetPassword(ctx context.Context, accountID id.AccountID, newPassword string) error
	RequestPasswordReset(ctx context.Context, accountID id.AccountID) (string, error)
	ResetPasswordWithCode(ctx context.Context, accountID id.AccountID, code, newPassword string) error
}

// Handler handles the identity endpoints.
type Handler struct {
	identity Service
	logger   *slog.Logger
}

// New creates a new identity Handler.
func New(identity Service, logger *slog.Logger) *Handler {
	return &Handler{identity: identity, logger: logger}
}

// Register mounts the identity routes on the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/auth/login", h.handleLogin)
	r.Get("/auth/merge-sessions/{sessionID}", h.handleGetMergeSession)
	r.Post("/auth/merge-sessions/{sessionID}/merge", h.handleMerge)
	r.Post("/auth/merge-sessions/{sessionID}/skip", h.handleSkip)
	r.Put("/auth/accounts/{accountID}/password", h.handleSetPassword)
	r.Post("/auth/accounts/{accountID}/password-reset", h.handleRequestReset)
	r.Post("/auth/accounts/{accountID}/password-reset/confirm", h.handleConfirmReset)
}

type loginRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

type authenticatedResponse struct {
	Status  service.AuthStatus    `json:"status"`
	Account *models.PublicAccount `json:"account"`
	Token   string                `json:"token"`
}

type mergeRequiredResponse struct {
	Status     service.AuthStatus        `json:"status"`
	SessionID  id.MergeSessionID         `json:"session_id"`
	ExpiresAt  time.Time                 `json:"expires_at"`
	Candidates []models.CandidateAccount `json:"candidates"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	req, ok := httputil.Decode[loginRequest](w, r)
	if !ok {
		return
	}

	out, err := h.identity.Authenticate(r.Context(), req.Identifier, req.Password)
	if err != nil {
		h.writeServiceError(w, r, "login", err)
		return
	}
	h.writeOutcome(w, out)
}

func (h *Handler) handleGetMergeSession(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}

	sess, err := h.identity.GetMergeSession(r.Context(), sessionID)
	if err != nil {
		h.writeServiceError(w, r, "get merge session", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, mergeRequiredResponse{
		Status:     service.StatusMergeRequired,
		SessionID:  sess.ID,
		ExpiresAt:  sess.ExpiresAt,
		Candidates: sess.Candidates,
	})
}

type mergeRequest struct {
	PrimaryID    string   `json:"primary_id"`
	DuplicateIDs []string `json:"duplicate_ids"`
	Strategy     string   `json:"strategy"`
}

func (h *Handler) handleMerge(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.Decode[mergeRequest](w, r)
	if !ok {
		return
	}

	strategy, err := models.ParseMergeStrategy(req.Strategy)
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, err.Error()))
		return
	}
	decision := models.MergeDecision{
		PrimaryID: id.ParseAccountID(req.PrimaryID),
		Strategy:  strategy,
	}
	for _, raw := range req.DuplicateIDs {
		decision.DuplicateIDs = append(decision.DuplicateIDs, id.ParseAccountID(raw))
	}

	out, err := h.identity.MergeAccounts(r.Context(), sessionID, decision)
	if err != nil {
		h.writeServiceError(w, r, "merge", err)
		return
	}
	h.writeOutcome(w, out)
}

type skipRequest struct {
	SelectedID string `json:"selected_id"`
}

func (h *Handler) handleSkip(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.Decode[skipRequest](w, r)
	if !ok {
		return
	}

	out, err := h.identity.SkipMerge(r.Context(), sessionID, id.ParseAccountID(req.SelectedID))
	if err != nil {
		h.writeServiceError(w, r, "skip merge", err)
		return
	}
	h.writeOutcome(w, out)
}

type setPasswordRequest struct {
	NewPassword string `json:"new_password"`
}

func (h *Handler) handleSetPassword(w http.ResponseWriter, r *http.Request) {
	accountID := id.ParseAccountID(chi.URLParam(r, "accountID"))
	req, ok := httputil.Decode[setPasswordRequest](w, r)
	if !ok {
		return
	}

	if err := h.identity.SetPassword(r.Context(), accountID, req.NewPassword); err != nil {
		h.writeServiceError(w, r, "set password", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleRequestReset(w http.ResponseWriter, r *http.Request) {
	accountID := id.ParseAccountID(chi.URLParam(r, "accountID"))

	code, err := h.identity.RequestPasswordReset(r.Context(), accountID)
	if err != nil {
		h.writeServiceError(w, r, "request password reset", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"reset_code": code})
}

type confirmResetRequest struct {
	Code        string `json:"code"`
	NewPassword string `json:"new_password"`
}

func (h *Handler) handleConfirmReset(w http.ResponseWriter, r *http.Request) {
	accountID := id.ParseAccountID(chi.URLParam(r, "accountID"))
	req, ok := httputil.Decode[confirmResetRequest](w, r)
	if !ok {
		return
	}

	if err := h.identity.ResetPasswordWithCode(r.Context(), accountID, req.Code, req.NewPassword); err != nil {
		h.writeServiceError(w, r, "confirm password reset", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) sessionID(w http.ResponseWriter, r *http.Request) (id.MergeSessionID, bool) {
	sessionID, err := id.ParseMergeSessionID(chi.URLParam(r, "sessionID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid session id"))
		return id.MergeSessionID{}, false
	}
	return sessionID, true
}

func (h *Handler) writeOutcome(w http.ResponseWriter, out *service.AuthOutcome) {
	if out.Status == service.StatusMergeRequired {
		httputil.WriteJSON(w, http.StatusConflict, mergeRequiredResponse{
			Status:     out.Status,
			SessionID:  out.SessionID,
			ExpiresAt:  out.ExpiresAt,
			Candidates: out.Candidates,
		})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, authenticatedResponse{
		Status:  out.Status,
		Account: out.Account,
		Token:   out.Token,
	})
}

func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch dErrors.CodeOf(err) {
	case dErrors.CodeInternal, dErrors.CodeMergeFailed:
		h.logger.ErrorContext(r.Context(), op+" failed",
			"request_id", requestcontext.RequestID(r.Context()),
			"error", err.Error(),
		)
	default:
		h.logger.WarnContext(r.Context(), op+" rejected",
			"request_id", requestcontext.RequestID(r.Context()),
			"error", err.Error(),
		)
	}
	httputil.WriteError(w, err)
}
