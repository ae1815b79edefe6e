// Package notify delivers password reset codes to the mariner's contact
// channel. The engine never returns the code to the API caller.
package notify

import (
	"context"
	"log/slog"

	id "mariner/pkg/domain"
)

// Notifier defines the interface for reset code delivery
type Notifier interface {
	SendResetCode(ctx context.Context, accountID id.AccountID, email, code string) error
}

// LogNotifier writes the delivery to the structured log instead of an
// external channel. Used in development and as the default wiring until an
// SMS or email gateway is configured.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) SendResetCode(ctx context.Context, accountID id.AccountID, email, code string) error {
	// The code itself is deliberately kept out of the log line.
	n.logger.Info("reset code dispatched",
		"account_id", accountID.String(),
		"email", email,
	)
	return nil
}
