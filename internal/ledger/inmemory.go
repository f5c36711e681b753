package ledger

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
)

type inMemoryStore struct {
	mu           sync.RWMutex
	accounts     map[string]Account
	usernames    map[string]string
	transactions map[string]Transaction
	sequence     []string

	locksMu sync.Mutex
	locks   map[string]chan struct{}
}

// NewInMemory creates a concurrency-safe in-memory store useful for unit tests
// and local development. Account and transaction locks are held for the whole
// boundary, so debits behave like row-locked conditional updates.
func NewInMemory() Store {
	return &inMemoryStore{
		accounts:     make(map[string]Account),
		usernames:    make(map[string]string),
		transactions: make(map[string]Transaction),
		locks:        make(map[string]chan struct{}),
	}
}

func (s *inMemoryStore) CreateAccount(_ context.Context, account Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.accounts[account.ID]; exists {
		return ErrAccountExists
	}
	key := strings.ToLower(account.Username)
	if _, exists := s.usernames[key]; exists {
		return ErrAccountExists
	}
	s.accounts[account.ID] = account
	s.usernames[key] = account.ID
	return nil
}

func (s *inMemoryStore) Account(_ context.Context, id string) (Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acc, ok := s.accounts[id]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	return acc, nil
}

func (s *inMemoryStore) AccountByUsername(_ context.Context, username string) (Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.usernames[strings.ToLower(username)]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	return s.accounts[id], nil
}

func (s *inMemoryStore) ListAccounts(_ context.Context) ([]Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Account, 0, len(s.accounts))
	for _, acc := range s.accounts {
		out = append(out, acc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func (s *inMemoryStore) Transaction(_ context.Context, id string) (Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	txn, ok := s.transactions[id]
	if !ok {
		return Transaction{}, ErrTransactionNotFound
	}
	return txn, nil
}

// ListTransactions returns matching records newest first.
func (s *inMemoryStore) ListTransactions(_ context.Context, filter TransactionFilter) ([]Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Transaction, 0)
	skipped := 0
	for i := len(s.sequence) - 1; i >= 0; i-- {
		txn := s.transactions[s.sequence[i]]
		if filter.AccountID != "" && txn.SenderID != filter.AccountID && txn.RecipientID != filter.AccountID {
			continue
		}
		if skipped < filter.Offset {
			skipped++
			continue
		}
		out = append(out, txn)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

func (s *inMemoryStore) Atomic(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tx := &inMemoryTx{
		store:    s,
		held:     make(map[string]struct{}),
		balances: make(map[string]decimal.Decimal),
		reversed: make(map[string]struct{}),
	}
	defer tx.release()

	if err := fn(tx); err != nil {
		return err
	}
	tx.commit()
	return nil
}

func (s *inMemoryStore) lockFor(key string) chan struct{} {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	ch, ok := s.locks[key]
	if !ok {
		ch = make(chan struct{}, 1)
		s.locks[key] = ch
	}
	return ch
}

// inMemoryTx stages every mutation and publishes it on commit. Exclusive
// locks on the touched keys keep other boundaries from observing the staged
// state in between.
type inMemoryTx struct {
	store    *inMemoryStore
	held     map[string]struct{}
	order    []string
	balances map[string]decimal.Decimal
	appended []Transaction
	reversed map[string]struct{}
}

func (t *inMemoryTx) acquire(ctx context.Context, key string) error {
	if _, ok := t.held[key]; ok {
		return nil
	}
	select {
	case t.store.lockFor(key) <- struct{}{}:
	case <-ctx.Done():
		return fmt.Errorf("%w: waiting for %s: %v", ErrConcurrencyConflict, key, ctx.Err())
	}
	t.held[key] = struct{}{}
	t.order = append(t.order, key)
	return nil
}

func (t *inMemoryTx) release() {
	for i := len(t.order) - 1; i >= 0; i-- {
		<-t.store.lockFor(t.order[i])
	}
	t.order = nil
	t.held = map[string]struct{}{}
}

func (t *inMemoryTx) commit() {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	for id, bal := range t.balances {
		acc := t.store.accounts[id]
		acc.Balance = bal
		t.store.accounts[id] = acc
	}
	for _, txn := range t.appended {
		t.store.transactions[txn.ID] = txn
		t.store.sequence = append(t.store.sequence, txn.ID)
	}
	for id := range t.reversed {
		txn := t.store.transactions[id]
		txn.Reversed = true
		t.store.transactions[id] = txn
	}
}

func (t *inMemoryTx) LockAccounts(ctx context.Context, ids []string) error {
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)
	t.store.mu.RLock()
	for _, id := range sorted {
		if _, ok := t.store.accounts[id]; !ok {
			t.store.mu.RUnlock()
			return fmt.Errorf("%w: %s", ErrAccountNotFound, id)
		}
	}
	t.store.mu.RUnlock()
	for _, id := range sorted {
		if err := t.acquire(ctx, "account:"+id); err != nil {
			return err
		}
	}
	return nil
}

func (t *inMemoryTx) balance(id string) (decimal.Decimal, error) {
	if _, ok := t.held["account:"+id]; !ok {
		return decimal.Decimal{}, fmt.Errorf("account %s mutated without lock", id)
	}
	if bal, ok := t.balances[id]; ok {
		return bal, nil
	}
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	acc, ok := t.store.accounts[id]
	if !ok {
		return decimal.Decimal{}, ErrAccountNotFound
	}
	return acc.Balance, nil
}

func (t *inMemoryTx) Debit(_ context.Context, id string, amount decimal.Decimal) (decimal.Decimal, error) {
	bal, err := t.balance(id)
	if err != nil {
		return decimal.Decimal{}, err
	}
	if bal.LessThan(amount) {
		return decimal.Decimal{}, ErrInsufficientFunds
	}
	bal = bal.Sub(amount)
	t.balances[id] = bal
	return bal, nil
}

func (t *inMemoryTx) Credit(_ context.Context, id string, amount decimal.Decimal) (decimal.Decimal, error) {
	bal, err := t.balance(id)
	if err != nil {
		return decimal.Decimal{}, err
	}
	bal = bal.Add(amount)
	t.balances[id] = bal
	return bal, nil
}

func (t *inMemoryTx) SetBalance(_ context.Context, id string, amount decimal.Decimal) (decimal.Decimal, error) {
	prev, err := t.balance(id)
	if err != nil {
		return decimal.Decimal{}, err
	}
	t.balances[id] = amount
	return prev, nil
}

func (t *inMemoryTx) Append(_ context.Context, txn Transaction) error {
	t.appended = append(t.appended, txn)
	return nil
}

func (t *inMemoryTx) LockTransaction(ctx context.Context, id string) (Transaction, error) {
	t.store.mu.RLock()
	_, ok := t.store.transactions[id]
	t.store.mu.RUnlock()
	if !ok {
		return Transaction{}, ErrTransactionNotFound
	}
	if err := t.acquire(ctx, "transaction:"+id); err != nil {
		return Transaction{}, err
	}
	// Re-read under the lock; a concurrent reversal may have committed.
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	txn := t.store.transactions[id]
	if _, ok := t.reversed[id]; ok {
		txn.Reversed = true
	}
	return txn, nil
}

func (t *inMemoryTx) MarkReversed(_ context.Context, id string) error {
	if _, ok := t.held["transaction:"+id]; !ok {
		return fmt.Errorf("transaction %s flagged without lock", id)
	}
	t.reversed[id] = struct{}{}
	return nil
}
