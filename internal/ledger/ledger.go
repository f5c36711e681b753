package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidAmount is returned for non-positive amounts or amounts with more
	// fractional digits than the ledger stores.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrInsufficientFunds occurs when the source account lacks available balance
	// to cover a requested movement at the moment of the atomic check.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrAccountNotFound indicates a referenced account does not resolve.
	ErrAccountNotFound = errors.New("account not found")

	// ErrAccountExists is returned when registering a duplicate username.
	ErrAccountExists = errors.New("account already exists")

	// ErrSameAccount rejects movements whose source and destination coincide.
	ErrSameAccount = errors.New("source and destination accounts are the same")

	// ErrInvalidMovement rejects movements that touch no account or repeat a
	// participant.
	ErrInvalidMovement = errors.New("invalid movement")

	// ErrTransactionNotFound indicates the transaction id does not resolve.
	ErrTransactionNotFound = errors.New("transaction not found")

	// ErrAlreadyReversed is returned when reversing a transaction twice. It
	// matches ErrTransactionNotFound under errors.Is.
	ErrAlreadyReversed = fmt.Errorf("already reversed: %w", ErrTransactionNotFound)

	// ErrCompensationReversal rejects reversing a compensating entry; the
	// original transaction is the one to reverse.
	ErrCompensationReversal = fmt.Errorf("compensating entries cannot be reversed: %w", ErrInvalidMovement)

	// ErrConcurrencyConflict reports lock or serialization contention. It is the
	// only class the engine retries.
	ErrConcurrencyConflict = errors.New("concurrency conflict")

	// ErrPersistence wraps failures of the underlying storage.
	ErrPersistence = errors.New("ledger storage unavailable")
)

// Kind classifies why a transaction record exists.
type Kind string

const (
	KindTransfer        Kind = "transfer"
	KindPeerRequest     Kind = "peer_request"
	KindMerchantRequest Kind = "merchant_request"
	KindSplitShare      Kind = "split_share"
	KindSplitPayment    Kind = "split_payment"
	KindReversal        Kind = "reversal"
	KindAdjustment      Kind = "adjustment"
)

// Account holds a balance and the role flags used by authorization.
type Account struct {
	ID         string
	Username   string
	Balance    decimal.Decimal
	IsMerchant bool
	IsAdmin    bool
	CreatedAt  time.Time
}

// Transaction is an immutable record of a completed money movement. Only the
// Reversed flag ever changes, false to true, once.
type Transaction struct {
	ID          string
	SenderID    string // empty when no account was debited
	RecipientID string // empty when no account was credited
	Amount      decimal.Decimal
	Kind        Kind
	ReversalOf  string
	Reversed    bool
	CreatedAt   time.Time
}

// TransactionFilter narrows ListTransactions. An empty AccountID lists all.
type TransactionFilter struct {
	AccountID string
	Limit     int
	Offset    int
}

// Store is the persistence contract implemented by ledger backends.
type Store interface {
	CreateAccount(ctx context.Context, account Account) error
	Account(ctx context.Context, id string) (Account, error)
	AccountByUsername(ctx context.Context, username string) (Account, error)
	ListAccounts(ctx context.Context) ([]Account, error)
	Transaction(ctx context.Context, id string) (Transaction, error)
	ListTransactions(ctx context.Context, filter TransactionFilter) ([]Transaction, error)

	// Atomic runs fn inside one all-or-nothing boundary. Any error returned by
	// fn discards every mutation made through tx.
	Atomic(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the unit of work handed to Atomic callbacks. Balance mutations are only
// legal on accounts previously passed to LockAccounts in the same boundary.
type Tx interface {
	// LockAccounts acquires exclusive access to the accounts in ascending id
	// order. It fails with ErrAccountNotFound if any id does not resolve.
	LockAccounts(ctx context.Context, ids []string) error
	// Debit decrements the balance only if it covers amount and returns the
	// new balance. It fails with ErrInsufficientFunds otherwise.
	Debit(ctx context.Context, id string, amount decimal.Decimal) (decimal.Decimal, error)
	Credit(ctx context.Context, id string, amount decimal.Decimal) (decimal.Decimal, error)
	SetBalance(ctx context.Context, id string, amount decimal.Decimal) (previous decimal.Decimal, err error)
	Append(ctx context.Context, txn Transaction) error
	// LockTransaction loads a transaction and holds it until the boundary ends.
	LockTransaction(ctx context.Context, id string) (Transaction, error)
	MarkReversed(ctx context.Context, id string) error
}
