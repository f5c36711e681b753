package ledger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	defaultTimeout    = 5 * time.Second
	defaultMaxRetries = 3
	defaultBackoff    = 20 * time.Millisecond
)

// Clock allows deterministic timestamps in tests.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in UTC.
type SystemClock struct{}

// Now returns the current UTC time.
func (SystemClock) Now() time.Time { return time.Now().UTC() }

// Observer receives one callback per engine operation and per retried attempt.
type Observer interface {
	ObserveOperation(op string, kind Kind, outcome string, took time.Duration)
	ObserveRetry(op string)
}

type noopObserver struct{}

func (noopObserver) ObserveOperation(string, Kind, string, time.Duration) {}
func (noopObserver) ObserveRetry(string)                                  {}

// Engine is the only component that mutates balances or appends ledger
// records. Every public operation is a single atomic boundary.
type Engine struct {
	store      Store
	clock      Clock
	observer   Observer
	logger     *slog.Logger
	timeout    time.Duration
	maxRetries int
	backoff    time.Duration
}

// Option customises an Engine.
type Option func(*Engine)

// WithClock overrides the timestamp source.
func WithClock(c Clock) Option { return func(e *Engine) { e.clock = c } }

// WithObserver registers a metrics observer.
func WithObserver(o Observer) Option { return func(e *Engine) { e.observer = o } }

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option { return func(e *Engine) { e.logger = l } }

// WithTimeout bounds each attempt of an operation.
func WithTimeout(d time.Duration) Option { return func(e *Engine) { e.timeout = d } }

// WithRetries sets how many times a ConcurrencyConflict is retried and the
// base backoff between attempts.
func WithRetries(n int, backoff time.Duration) Option {
	return func(e *Engine) {
		e.maxRetries = n
		e.backoff = backoff
	}
}

// NewEngine builds a transfer engine on top of store.
func NewEngine(store Store, opts ...Option) *Engine {
	e := &Engine{
		store:      store,
		clock:      SystemClock{},
		observer:   noopObserver{},
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		timeout:    defaultTimeout,
		maxRetries: defaultMaxRetries,
		backoff:    defaultBackoff,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.observer == nil {
		e.observer = noopObserver{}
	}
	if e.timeout <= 0 {
		e.timeout = defaultTimeout
	}
	if e.maxRetries < 0 {
		e.maxRetries = 0
	}
	return e
}

// Store exposes the backing store for read paths.
func (e *Engine) Store() Store { return e.store }

// SettleFunc runs inside the boundary of a Move after the record is appended.
// Returning an error rolls the whole boundary back.
type SettleFunc func(ctx context.Context, tx Tx, txn Transaction) error

// MoveInput describes one movement of funds. Either side may be empty, not both.
type MoveInput struct {
	From   string
	To     string
	Amount decimal.Decimal
	Kind   Kind
	Settle SettleFunc
}

// MoveResult captures the outcome of a movement.
type MoveResult struct {
	Transaction Transaction
	FromBalance decimal.Decimal
	ToBalance   decimal.Decimal
}

// Move debits From, credits To and appends a transaction record, all or nothing.
func (e *Engine) Move(ctx context.Context, in MoveInput) (MoveResult, error) {
	if err := ValidateAmount(in.Amount); err != nil {
		return MoveResult{}, err
	}
	in.From, in.To = canonicalID(in.From), canonicalID(in.To)
	if in.From == "" && in.To == "" {
		return MoveResult{}, fmt.Errorf("%w: no source or destination", ErrInvalidMovement)
	}
	if in.From == in.To {
		return MoveResult{}, ErrSameAccount
	}
	if in.Kind == "" {
		in.Kind = KindTransfer
	}

	var res MoveResult
	err := e.run(ctx, "move", in.Kind, func(ctx context.Context, tx Tx) error {
		if err := tx.LockAccounts(ctx, lockOrder(in.From, in.To)); err != nil {
			return err
		}
		txn, fromBal, toBal, err := e.apply(ctx, tx, in.From, in.To, in.Amount, in.Kind, "")
		if err != nil {
			return err
		}
		if in.Settle != nil {
			if err := in.Settle(ctx, tx, txn); err != nil {
				return err
			}
		}
		res = MoveResult{Transaction: txn, FromBalance: fromBal, ToBalance: toBal}
		return nil
	})
	if err != nil {
		return MoveResult{}, err
	}

	e.logger.Info("ledger.move completed",
		slog.String("transaction_id", res.Transaction.ID),
		slog.String("kind", string(in.Kind)),
		slog.String("from", in.From),
		slog.String("to", in.To),
		slog.String("amount", Format(in.Amount)),
	)
	return res, nil
}

// SplitInput describes a split payment: every participant is debited the same
// share of Total. Beneficiary, when set, is credited each share.
type SplitInput struct {
	Participants []string
	Total        decimal.Decimal
	Beneficiary  string
	Kind         Kind
}

// SplitResult reports the per-participant share and the records appended.
type SplitResult struct {
	Share        decimal.Decimal
	Transactions []Transaction
}

// Split debits every participant in one boundary. If any participant cannot
// cover the share, no participant is debited.
func (e *Engine) Split(ctx context.Context, in SplitInput) (SplitResult, error) {
	share, err := Share(in.Total, len(in.Participants))
	if err != nil {
		return SplitResult{}, err
	}
	in.Beneficiary = canonicalID(in.Beneficiary)
	participants := make([]string, len(in.Participants))
	for i, id := range in.Participants {
		participants[i] = canonicalID(id)
	}
	in.Participants = participants
	seen := make(map[string]struct{}, len(in.Participants))
	for _, id := range in.Participants {
		if id == "" {
			return SplitResult{}, fmt.Errorf("%w: empty participant", ErrInvalidMovement)
		}
		if id == in.Beneficiary {
			return SplitResult{}, ErrSameAccount
		}
		if _, dup := seen[id]; dup {
			return SplitResult{}, fmt.Errorf("%w: participant %s listed twice", ErrInvalidMovement, id)
		}
		seen[id] = struct{}{}
	}
	if in.Kind == "" {
		in.Kind = KindSplitPayment
	}

	var res SplitResult
	err = e.run(ctx, "split", in.Kind, func(ctx context.Context, tx Tx) error {
		if err := tx.LockAccounts(ctx, lockOrder(append([]string{in.Beneficiary}, in.Participants...)...)); err != nil {
			return err
		}
		txns := make([]Transaction, 0, len(in.Participants))
		for _, id := range in.Participants {
			txn, _, _, err := e.apply(ctx, tx, id, in.Beneficiary, share, in.Kind, "")
			if err != nil {
				return fmt.Errorf("participant %s: %w", id, err)
			}
			txns = append(txns, txn)
		}
		res = SplitResult{Share: share, Transactions: txns}
		return nil
	})
	if err != nil {
		return SplitResult{}, err
	}

	e.logger.Info("ledger.split completed",
		slog.Int("participants", len(in.Participants)),
		slog.String("share", Format(share)),
		slog.String("beneficiary", in.Beneficiary),
	)
	return res, nil
}

// ReverseResult pairs the original record with its compensating entry.
type ReverseResult struct {
	Original     Transaction
	Compensation Transaction
}

// Reverse moves the original amount back from recipient to sender and flags
// the original as reversed, in one boundary. A transaction can be reversed
// at most once; a failed inverse movement leaves the flag unset.
func (e *Engine) Reverse(ctx context.Context, transactionID string) (ReverseResult, error) {
	transactionID = canonicalID(transactionID)
	if transactionID == "" {
		return ReverseResult{}, ErrTransactionNotFound
	}

	var res ReverseResult
	err := e.run(ctx, "reverse", KindReversal, func(ctx context.Context, tx Tx) error {
		orig, err := tx.LockTransaction(ctx, transactionID)
		if err != nil {
			return err
		}
		if orig.Reversed {
			return ErrAlreadyReversed
		}
		if orig.ReversalOf != "" {
			return fmt.Errorf("%w: reverse %s instead", ErrCompensationReversal, orig.ReversalOf)
		}
		if err := tx.LockAccounts(ctx, lockOrder(orig.SenderID, orig.RecipientID)); err != nil {
			return err
		}
		comp, _, _, err := e.apply(ctx, tx, orig.RecipientID, orig.SenderID, orig.Amount, KindReversal, orig.ID)
		if err != nil {
			return err
		}
		if err := tx.MarkReversed(ctx, orig.ID); err != nil {
			return err
		}
		orig.Reversed = true
		res = ReverseResult{Original: orig, Compensation: comp}
		return nil
	})
	if err != nil {
		return ReverseResult{}, err
	}

	e.logger.Info("ledger.reverse completed",
		slog.String("transaction_id", transactionID),
		slog.String("compensation_id", res.Compensation.ID),
	)
	return res, nil
}

// Adjustment is the outcome of an administrative balance override.
type Adjustment struct {
	Previous    decimal.Decimal
	Balance     decimal.Decimal
	Transaction *Transaction // nil when the balance was already at target
}

// SetBalance overwrites an account balance and records the delta as an
// adjustment transaction.
func (e *Engine) SetBalance(ctx context.Context, accountID string, target decimal.Decimal) (Adjustment, error) {
	if target.IsNegative() || !target.Equal(target.Truncate(Precision)) {
		return Adjustment{}, fmt.Errorf("%w: balance must be a non-negative amount with at most %d decimals", ErrInvalidAmount, Precision)
	}
	accountID = canonicalID(accountID)
	if accountID == "" {
		return Adjustment{}, ErrAccountNotFound
	}

	var res Adjustment
	err := e.run(ctx, "adjust", KindAdjustment, func(ctx context.Context, tx Tx) error {
		if err := tx.LockAccounts(ctx, []string{accountID}); err != nil {
			return err
		}
		prev, err := tx.SetBalance(ctx, accountID, target)
		if err != nil {
			return err
		}
		res = Adjustment{Previous: prev, Balance: target}
		delta := target.Sub(prev)
		if delta.IsZero() {
			return nil
		}
		txn := Transaction{
			ID:        uuid.NewString(),
			Amount:    delta.Abs(),
			Kind:      KindAdjustment,
			CreatedAt: e.clock.Now(),
		}
		if delta.IsPositive() {
			txn.RecipientID = accountID
		} else {
			txn.SenderID = accountID
		}
		if err := tx.Append(ctx, txn); err != nil {
			return err
		}
		res.Transaction = &txn
		return nil
	})
	if err != nil {
		return Adjustment{}, err
	}
	return res, nil
}

// apply performs one debit/credit pair and appends its record. Accounts must
// already be locked by the caller.
func (e *Engine) apply(ctx context.Context, tx Tx, from, to string, amount decimal.Decimal, kind Kind, reversalOf string) (Transaction, decimal.Decimal, decimal.Decimal, error) {
	var fromBal, toBal decimal.Decimal
	var err error
	if from != "" {
		if fromBal, err = tx.Debit(ctx, from, amount); err != nil {
			return Transaction{}, decimal.Decimal{}, decimal.Decimal{}, err
		}
	}
	if to != "" {
		if toBal, err = tx.Credit(ctx, to, amount); err != nil {
			return Transaction{}, decimal.Decimal{}, decimal.Decimal{}, err
		}
	}
	txn := Transaction{
		ID:          uuid.NewString(),
		SenderID:    from,
		RecipientID: to,
		Amount:      amount,
		Kind:        kind,
		ReversalOf:  reversalOf,
		CreatedAt:   e.clock.Now(),
	}
	if err := tx.Append(ctx, txn); err != nil {
		return Transaction{}, decimal.Decimal{}, decimal.Decimal{}, err
	}
	return txn, fromBal, toBal, nil
}

// run executes fn in a fresh boundary per attempt, retrying only on
// ErrConcurrencyConflict. Attempts are detached from caller cancellation and
// bounded by the engine timeout.
func (e *Engine) run(ctx context.Context, op string, kind Kind, fn func(ctx context.Context, tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	start := time.Now()
	base := context.WithoutCancel(ctx)

	var err error
	for attempt := 0; ; attempt++ {
		err = e.attempt(base, fn)
		if !errors.Is(err, ErrConcurrencyConflict) || attempt >= e.maxRetries {
			break
		}
		e.observer.ObserveRetry(op)
		e.logger.Warn("ledger conflict, retrying", slog.String("op", op), slog.Int("attempt", attempt+1))
		time.Sleep(e.backoff*time.Duration(attempt+1) + jitter(e.backoff))
	}

	e.observer.ObserveOperation(op, kind, Outcome(err), time.Since(start))
	return err
}

func (e *Engine) attempt(base context.Context, fn func(ctx context.Context, tx Tx) error) error {
	ctx, cancel := context.WithTimeout(base, e.timeout)
	defer cancel()
	return e.store.Atomic(ctx, func(tx Tx) error { return fn(ctx, tx) })
}

// Outcome classifies an operation error into a short metrics label.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, ErrInvalidAmount), errors.Is(err, ErrInvalidMovement), errors.Is(err, ErrSameAccount):
		return "invalid"
	case errors.Is(err, ErrAccountNotFound), errors.Is(err, ErrTransactionNotFound):
		return "not_found"
	case errors.Is(err, ErrConcurrencyConflict):
		return "conflict"
	default:
		return "error"
	}
}

// canonicalID rewrites ids that parse as UUIDs (upper case, braces, urn
// prefix) into the lower-case hyphenated form stores use.
func canonicalID(id string) string {
	if u, err := uuid.Parse(id); err == nil {
		return u.String()
	}
	return id
}

func lockOrder(ids ...string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return rand.N(d)
}
