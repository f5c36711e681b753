package ledger

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestInMemoryStore_CreateAccountRejectsDuplicateUsername(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()

	if err := s.CreateAccount(ctx, Account{ID: "a", Username: "alice"}); err != nil {
		t.Fatalf("create account: %v", err)
	}
	if err := s.CreateAccount(ctx, Account{ID: "b", Username: "Alice"}); !errors.Is(err, ErrAccountExists) {
		t.Fatalf("expected duplicate username error, got %v", err)
	}
	acc, err := s.AccountByUsername(ctx, "ALICE")
	if err != nil || acc.ID != "a" {
		t.Fatalf("lookup by username failed: %+v %v", acc, err)
	}
	if _, err := s.Account(ctx, "nope"); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestInMemoryStore_AtomicDiscardsOnError(t *testing.T) {
	s := NewInMemory()
	a := SeedAccount(s, "alice", "10.00")
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.Atomic(ctx, func(tx Tx) error {
		if err := tx.LockAccounts(ctx, []string{a.ID}); err != nil {
			return err
		}
		if _, err := tx.Debit(ctx, a.ID, dec("4")); err != nil {
			return err
		}
		if err := tx.Append(ctx, Transaction{ID: "t1", SenderID: a.ID, Amount: dec("4")}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if got := balanceOf(t, s, a.ID); !got.Equal(dec("10")) {
		t.Fatalf("staged debit leaked: %s", got)
	}
	if _, err := s.Transaction(ctx, "t1"); !errors.Is(err, ErrTransactionNotFound) {
		t.Fatalf("staged append leaked: %v", err)
	}
}

func TestInMemoryStore_DebitRequiresLock(t *testing.T) {
	s := NewInMemory()
	a := SeedAccount(s, "alice", "10.00")
	ctx := context.Background()

	err := s.Atomic(ctx, func(tx Tx) error {
		_, err := tx.Debit(ctx, a.ID, dec("1"))
		return err
	})
	if err == nil {
		t.Fatalf("expected unlocked debit to fail")
	}
}

func TestInMemoryStore_ListTransactionsNewestFirst(t *testing.T) {
	s := NewInMemory()
	a := SeedAccount(s, "alice", "100.00")
	b := SeedAccount(s, "bob", "0")
	c := SeedAccount(s, "carol", "0")
	engine := NewEngine(s, WithClock(fixedClock{time.Unix(0, 0)}))
	ctx := context.Background()

	var ids []string
	for i := 0; i < 5; i++ {
		res, err := engine.Move(ctx, MoveInput{From: a.ID, To: b.ID, Amount: dec(fmt.Sprintf("%d", i+1))})
		if err != nil {
			t.Fatalf("move %d: %v", i, err)
		}
		ids = append(ids, res.Transaction.ID)
	}
	if _, err := engine.Move(ctx, MoveInput{From: a.ID, To: c.ID, Amount: dec("1")}); err != nil {
		t.Fatalf("move to carol: %v", err)
	}

	page, err := s.ListTransactions(ctx, TransactionFilter{AccountID: b.ID, Limit: 2, Offset: 1})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page) != 2 || page[0].ID != ids[3] || page[1].ID != ids[2] {
		t.Fatalf("unexpected page %+v", page)
	}

	all, _ := s.ListTransactions(ctx, TransactionFilter{AccountID: a.ID})
	if len(all) != 6 {
		t.Fatalf("expected 6 transactions for alice, got %d", len(all))
	}
	carol, _ := s.ListTransactions(ctx, TransactionFilter{AccountID: c.ID})
	if len(carol) != 1 {
		t.Fatalf("expected 1 transaction for carol, got %d", len(carol))
	}
}
