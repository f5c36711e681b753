package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SeedAccount is a test helper that registers an account with the given
// balance in the in-memory store and returns it. Other stores are untouched.
func SeedAccount(s Store, username, balance string) Account {
	acc := Account{
		ID:        uuid.NewString(),
		Username:  username,
		Balance:   decimal.RequireFromString(balance),
		CreatedAt: time.Now().UTC(),
	}
	if mem, ok := s.(*inMemoryStore); ok {
		mem.mu.Lock()
		defer mem.mu.Unlock()
		mem.accounts[acc.ID] = acc
		mem.usernames[username] = acc.ID
	}
	return acc
}

// SeedBalance is a test helper that overwrites a balance in the in-memory store
// without recording an adjustment.
func SeedBalance(s Store, id, balance string) {
	if mem, ok := s.(*inMemoryStore); ok {
		mem.mu.Lock()
		defer mem.mu.Unlock()
		acc := mem.accounts[id]
		acc.Balance = decimal.RequireFromString(balance)
		mem.accounts[id] = acc
	}
}
