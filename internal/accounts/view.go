package accounts

import (
	"time"

	"github.com/congo-pay/p2p_wallet/internal/ledger"
)

// AccountView is the JSON shape of an account. Amounts are strings.
type AccountView struct {
	ID         string    `json:"id"`
	Username   string    `json:"username"`
	Balance    string    `json:"balance"`
	IsMerchant bool      `json:"is_merchant"`
	IsAdmin    bool      `json:"is_admin"`
	CreatedAt  time.Time `json:"created_at"`
}

// NewAccountView renders an account.
func NewAccountView(acc ledger.Account) AccountView {
	return AccountView{
		ID:         acc.ID,
		Username:   acc.Username,
		Balance:    ledger.Format(acc.Balance),
		IsMerchant: acc.IsMerchant,
		IsAdmin:    acc.IsAdmin,
		CreatedAt:  acc.CreatedAt,
	}
}

// TransactionView is the JSON shape of a ledger record.
type TransactionView struct {
	ID          string    `json:"id"`
	SenderID    *string   `json:"sender_id"`
	RecipientID *string   `json:"recipient_id"`
	Amount      string    `json:"amount"`
	Kind        string    `json:"kind"`
	ReversalOf  *string   `json:"reversal_of,omitempty"`
	Reversed    bool      `json:"reversed"`
	CreatedAt   time.Time `json:"created_at"`
}

// NewTransactionView renders a ledger record; absent sides become null.
func NewTransactionView(txn ledger.Transaction) TransactionView {
	return TransactionView{
		ID:          txn.ID,
		SenderID:    optional(txn.SenderID),
		RecipientID: optional(txn.RecipientID),
		Amount:      ledger.Format(txn.Amount),
		Kind:        string(txn.Kind),
		ReversalOf:  optional(txn.ReversalOf),
		Reversed:    txn.Reversed,
		CreatedAt:   txn.CreatedAt,
	}
}

// NewTransactionViews renders a list of records.
func NewTransactionViews(txns []ledger.Transaction) []TransactionView {
	out := make([]TransactionView, 0, len(txns))
	for _, txn := range txns {
		out = append(out, NewTransactionView(txn))
	}
	return out
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
