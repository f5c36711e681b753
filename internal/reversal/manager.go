package reversal

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/congo-pay/p2p_wallet/internal/accounts"
	"github.com/congo-pay/p2p_wallet/internal/ledger"
	"github.com/congo-pay/p2p_wallet/internal/logging"
	"github.com/congo-pay/p2p_wallet/internal/notification"
)

// Observer records reversal outcomes.
type Observer interface {
	ObserveReversal(err error)
}

// Manager reverses completed transactions on an administrator's behalf.
type Manager struct {
	engine   *ledger.Engine
	notifier notification.Notifier
	observer Observer
	logger   *slog.Logger
}

// NewManager wires a reversal manager. notifier and observer may be nil.
func NewManager(engine *ledger.Engine, notifier notification.Notifier, observer Observer, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Manager{engine: engine, notifier: notifier, observer: observer, logger: logger}
}

// Input identifies the transaction to undo.
type Input struct {
	TransactionID string
	Reason        string
}

// Reverse undoes one transaction. Only administrators may reverse, and a
// transaction is reversed at most once.
func (m *Manager) Reverse(ctx context.Context, actor accounts.Actor, input Input) (ledger.ReverseResult, error) {
	if !actor.Admin {
		return ledger.ReverseResult{}, accounts.ErrForbidden
	}

	res, err := m.engine.Reverse(ctx, input.TransactionID)
	if m.observer != nil {
		m.observer.ObserveReversal(err)
	}
	if err != nil {
		m.logger.Warn("reversal failed",
			slog.String("transaction_id", input.TransactionID),
			slog.String("admin_id", actor.ID),
			slog.Any("error", err),
		)
		return ledger.ReverseResult{}, err
	}

	reason := strings.TrimSpace(input.Reason)
	m.logger.Info("transaction reversed",
		slog.String("transaction_id", res.Original.ID),
		slog.String("compensation_id", res.Compensation.ID),
		slog.String("admin_id", actor.ID),
		slog.String("amount", ledger.Format(res.Original.Amount)),
		slog.String("reason", reason),
	)

	body := fmt.Sprintf("Transaction %s of %s was reversed", res.Original.ID, ledger.Format(res.Original.Amount))
	if reason != "" {
		body += ": " + reason
	}
	for _, party := range []string{res.Original.SenderID, res.Original.RecipientID} {
		if party == "" {
			continue
		}
		notification.Deliver(ctx, m.notifier, m.logger, notification.Message{
			Kind:        notification.KindTransactionReversed,
			Destination: party,
			Body:        body,
		})
	}
	return res, nil
}
