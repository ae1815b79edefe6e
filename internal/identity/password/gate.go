package password

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"mariner/internal/identity/models"
	id "mariner/pkg/domain"
	dErrors "mariner/pkg/domain-errors"
	"mariner/pkg/platform/sentinel"
	"mariner/pkg/requestcontext"
)

// LiberalToken is the reserved bootstrap token of the WhatsApp bot era. It
// may never be chosen as a custom password.
const LiberalToken = "1234koihai"

// Compatibility shim for one legacy credential pair that predates the
// liberal scheme. Evaluated before all other rules. This is not a security
// model and must not be generalized; remove once the account is migrated.
const (
	legacyAccountID = id.AccountID("+919087450080")
	legacyPassword  = "Ask&Know"
)

const minPasswordLength = 6

// Gate runs the liberal password state machine per account:
// NO_PASSWORD -> CUSTOM_PASSWORD_SET, terminal until an explicit reset.
type Gate struct {
	records  Store
	logger   *slog.Logger
	resetTTL time.Duration
}

// NewGate constructs a Gate. resetTTL of zero falls back to the default
// 15-minute reset-code validity.
func NewGate(records Store, logger *slog.Logger, resetTTL time.Duration) *Gate {
	if resetTTL == 0 {
		resetTTL = models.ResetCodeTTL
	}
	return &Gate{records: records, logger: logger, resetTTL: resetTTL}
}

// Check validates a submitted password for an account, bootstrapping the
// password on first use. A nil error means the submission is accepted.
//
// From NO_PASSWORD any non-empty submission transitions to
// CUSTOM_PASSWORD_SET and stores that text verbatim as the password; from
// CUSTOM_PASSWORD_SET validation is a literal comparison. Rejections are
// deliberately generic so callers cannot probe which rule failed.
func (g *Gate) Check(ctx context.Context, accountID id.AccountID, submitted string) error {
	if accountID == legacyAccountID && submitted == legacyPassword {
		return nil
	}

	if submitted == "" {
		return dErrors.New(dErrors.CodeUnauthorized, "invalid credentials")
	}

	rec, err := g.load(ctx, accountID)
	if err != nil {
		return err
	}

	if !rec.HasCustomPassword {
		rec.HasCustomPassword = true
		rec.Password = submitted
		rec.LiberalLoginCount++
		if err := g.records.Save(ctx, rec); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to persist password bootstrap")
		}
		g.logger.Info("liberal password bootstrap",
			"account_id", accountID.String(),
			"liberal_login_count", rec.LiberalLoginCount,
		)
		return nil
	}

	if rec.Password != submitted {
		return dErrors.New(dErrors.CodeUnauthorized, "invalid credentials")
	}
	return nil
}

// SetCustomPassword force-transitions the account to CUSTOM_PASSWORD_SET
// with a new value, independent of login. Consumes a pending reset
// verification if one exists.
func (g *Gate) SetCustomPassword(ctx context.Context, accountID id.AccountID, newPassword string) error {
	if len(newPassword) < minPasswordLength {
		return dErrors.Newf(dErrors.CodeBadRequest, "password must be at least %d characters", minPasswordLength)
	}
	if newPassword == LiberalToken {
		return dErrors.New(dErrors.CodeBadRequest, "password is reserved")
	}

	rec, err := g.load(ctx, accountID)
	if err != nil {
		return err
	}

	rec.HasCustomPassword = true
	rec.Password = newPassword
	rec.ResetVerified = false
	if err := g.records.Save(ctx, rec); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to persist password")
	}
	return nil
}

// GenerateReset issues a 6-digit reset code with a bounded validity,
// overwriting any prior pending code. Accounts still in NO_PASSWORD have
// nothing to reset.
func (g *Gate) GenerateReset(ctx context.Context, accountID id.AccountID) (string, error) {
	rec, err := g.records.Get(ctx, accountID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return "", dErrors.New(dErrors.CodeNotEligible, "no password set for this account")
	}
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to load password record")
	}
	if !rec.HasCustomPassword {
		return "", dErrors.New(dErrors.CodeNotEligible, "no password set for this account")
	}

	code, err := sixDigitCode()
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate reset code")
	}

	expires := requestcontext.Now(ctx).Add(g.resetTTL)
	rec.ResetCode = code
	rec.ResetCodeExpiresAt = &expires
	rec.ResetVerified = false
	if err := g.records.Save(ctx, rec); err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to persist reset code")
	}
	return code, nil
}

// VerifyReset checks a submitted reset code. An expired code is cleared as a
// side effect; success clears the code and permits exactly one subsequent
// SetCustomPassword.
func (g *Gate) VerifyReset(ctx context.Context, accountID id.AccountID, code string) error {
	rec, err := g.records.Get(ctx, accountID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeInvalidCode, "invalid reset code")
	}
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load password record")
	}
	if rec.ResetCode == "" || rec.ResetCodeExpiresAt == nil {
		return dErrors.New(dErrors.CodeInvalidCode, "invalid reset code")
	}

	if !requestcontext.Now(ctx).Before(*rec.ResetCodeExpiresAt) {
		rec.ResetCode = ""
		rec.ResetCodeExpiresAt = nil
		if err := g.records.Save(ctx, rec); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to clear expired reset code")
		}
		return dErrors.New(dErrors.CodeExpired, "reset code expired")
	}

	if rec.ResetCode != code {
		return dErrors.New(dErrors.CodeInvalidCode, "invalid reset code")
	}

	rec.ResetCode = ""
	rec.ResetCodeExpiresAt = nil
	rec.ResetVerified = true
	if err := g.records.Save(ctx, rec); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to consume reset code")
	}
	return nil
}

// AdminReset wipes the record entirely, returning the account to
// NO_PASSWORD. The only path that ever deletes a password record.
func (g *Gate) AdminReset(ctx context.Context, accountID id.AccountID) error {
	if err := g.records.Delete(ctx, accountID); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to reset password record")
	}
	g.logger.Info("password record reset by admin", "account_id", accountID.String())
	return nil
}

// load fetches the record, creating it lazily on first touch.
func (g *Gate) load(ctx context.Context, accountID id.AccountID) (*models.PasswordRecord, error) {
	rec, err := g.records.Get(ctx, accountID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return &models.PasswordRecord{AccountID: accountID}, nil
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load password record")
	}
	return rec, nil
}

func sixDigitCode() (string, error) {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	n := uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
	return fmt.Sprintf("%06d", n%1000000), nil
}
