package accounts

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/congo-pay/p2p_wallet/internal/ledger"
)

var (
	// ErrInvalidUsername rejects usernames outside 3..50 characters or with
	// characters other than letters, digits, '.', '-' and '_'.
	ErrInvalidUsername = errors.New("invalid username")

	// ErrForbidden is returned when the actor lacks the role an operation needs.
	ErrForbidden = errors.New("forbidden")
)

// Actor is an already-authenticated caller together with the role flags read
// from its account.
type Actor struct {
	ID       string
	Merchant bool
	Admin    bool
}

// ActorOf builds the capability for an account.
func ActorOf(acc ledger.Account) Actor {
	return Actor{ID: acc.ID, Merchant: acc.IsMerchant, Admin: acc.IsAdmin}
}

// Balance encapsulates available funds for an account.
type Balance struct {
	AccountID string
	Amount    decimal.Decimal
	AsOf      time.Time
}
