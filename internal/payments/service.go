package payments

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/congo-pay/p2p_wallet/internal/accounts"
	"github.com/congo-pay/p2p_wallet/internal/ledger"
	"github.com/congo-pay/p2p_wallet/internal/logging"
	"github.com/congo-pay/p2p_wallet/internal/notification"
)

// Service runs direct money movements initiated by an account holder.
type Service struct {
	accounts *accounts.Service
	engine   *ledger.Engine
	notifier notification.Notifier
	logger   *slog.Logger
}

// NewService constructs a payment service.
func NewService(accountService *accounts.Service, engine *ledger.Engine, notifier notification.Notifier, logger *slog.Logger) *Service {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Service{accounts: accountService, engine: engine, notifier: notifier, logger: logger}
}

// TransferInput captures the data needed to move funds between accounts.
type TransferInput struct {
	SenderID     string
	RecipientRef string // account id or username
	Amount       decimal.Decimal
}

// TransferResult describes the ledger outcome of a direct transfer.
type TransferResult struct {
	Transaction   ledger.Transaction
	SenderBalance decimal.Decimal
	CompletedAt   time.Time
}

// Transfer moves Amount from the sender to the resolved recipient.
func (s *Service) Transfer(ctx context.Context, input TransferInput) (TransferResult, error) {
	if err := ledger.ValidateAmount(input.Amount); err != nil {
		return TransferResult{}, err
	}
	sender, err := s.accounts.Get(ctx, input.SenderID)
	if err != nil {
		return TransferResult{}, err
	}
	recipient, err := s.accounts.Resolve(ctx, input.RecipientRef)
	if err != nil {
		return TransferResult{}, err
	}
	if recipient.ID == sender.ID {
		return TransferResult{}, ledger.ErrSameAccount
	}

	res, err := s.engine.Move(ctx, ledger.MoveInput{
		From:   sender.ID,
		To:     recipient.ID,
		Amount: input.Amount,
		Kind:   ledger.KindTransfer,
	})
	if err != nil {
		return TransferResult{}, err
	}

	notification.Deliver(ctx, s.notifier, s.logger, notification.Message{
		Kind:        notification.KindTransferReceived,
		Destination: recipient.ID,
		Body:        fmt.Sprintf("You received %s from %s", ledger.Format(input.Amount), sender.Username),
	})

	return TransferResult{
		Transaction:   res.Transaction,
		SenderBalance: res.FromBalance,
		CompletedAt:   res.Transaction.CreatedAt,
	}, nil
}

// SplitPayInput describes a direct split payment.
type SplitPayInput struct {
	InitiatorID     string
	ParticipantRefs []string
	Total           decimal.Decimal
}

// SplitPay debits every participant an equal share of Total. Either every
// participant is charged or none is.
func (s *Service) SplitPay(ctx context.Context, input SplitPayInput) (ledger.SplitResult, error) {
	if len(input.ParticipantRefs) == 0 {
		return ledger.SplitResult{}, fmt.Errorf("%w: no participants", ledger.ErrInvalidMovement)
	}
	if err := ledger.ValidateAmount(input.Total); err != nil {
		return ledger.SplitResult{}, err
	}
	initiator, err := s.accounts.Get(ctx, input.InitiatorID)
	if err != nil {
		return ledger.SplitResult{}, err
	}
	participants, err := s.accounts.ResolveAll(ctx, input.ParticipantRefs)
	if err != nil {
		return ledger.SplitResult{}, err
	}
	ids := make([]string, 0, len(participants))
	for _, p := range participants {
		ids = append(ids, p.ID)
	}

	res, err := s.engine.Split(ctx, ledger.SplitInput{
		Participants: ids,
		Total:        input.Total,
		Kind:         ledger.KindSplitPayment,
	})
	if err != nil {
		return ledger.SplitResult{}, err
	}

	s.logger.Info("split payment charged",
		slog.String("initiator_id", initiator.ID),
		slog.Int("participants", len(ids)),
		slog.String("share", ledger.Format(res.Share)),
	)
	for _, id := range ids {
		notification.Deliver(ctx, s.notifier, s.logger, notification.Message{
			Kind:        notification.KindSplitCharged,
			Destination: id,
			Body:        fmt.Sprintf("%s split a payment; your share of %s was charged", initiator.Username, ledger.Format(res.Share)),
		})
	}
	return res, nil
}
