package payments

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/congo-pay/p2p_wallet/internal/accounts"
	"github.com/congo-pay/p2p_wallet/internal/ledger"
	"github.com/congo-pay/p2p_wallet/internal/notification"
)

func newService(t *testing.T) (*Service, ledger.Store, *notification.Recorder) {
	t.Helper()
	store := ledger.NewInMemory()
	engine := ledger.NewEngine(store)
	notes := &notification.Recorder{}
	return NewService(accounts.NewService(store, engine, nil), engine, notes, nil), store, notes
}

func balance(t *testing.T, store ledger.Store, id string) string {
	t.Helper()
	acc, err := store.Account(context.Background(), id)
	if err != nil {
		t.Fatalf("account %s: %v", id, err)
	}
	return ledger.Format(acc.Balance)
}

func TestTransferSuccess(t *testing.T) {
	svc, store, notes := newService(t)
	ctx := context.Background()
	alice := ledger.SeedAccount(store, "alice", "100.00")
	bob := ledger.SeedAccount(store, "bob", "0")

	res, err := svc.Transfer(ctx, TransferInput{SenderID: alice.ID, RecipientRef: "bob", Amount: decimal.RequireFromString("40")})
	if err != nil {
		t.Fatalf("transfer failed: %v", err)
	}
	if ledger.Format(res.SenderBalance) != "60.00" || balance(t, store, bob.ID) != "40.00" {
		t.Fatalf("unexpected balances: %+v bob=%s", res, balance(t, store, bob.ID))
	}
	if res.Transaction.SenderID != alice.ID || res.Transaction.RecipientID != bob.ID || res.Transaction.Kind != ledger.KindTransfer {
		t.Fatalf("unexpected transaction: %+v", res.Transaction)
	}
	if last := notes.Last(); last.Kind != notification.KindTransferReceived || last.Destination != bob.ID {
		t.Fatalf("expected recipient notification, got %+v", last)
	}
}

func TestTransferInsufficientFunds(t *testing.T) {
	svc, store, notes := newService(t)
	ctx := context.Background()
	alice := ledger.SeedAccount(store, "alice", "100.00")
	bob := ledger.SeedAccount(store, "bob", "0")

	if _, err := svc.Transfer(ctx, TransferInput{SenderID: alice.ID, RecipientRef: bob.ID, Amount: decimal.RequireFromString("100.01")}); !errors.Is(err, ledger.ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
	if balance(t, store, alice.ID) != "100.00" || balance(t, store, bob.ID) != "0.00" {
		t.Fatalf("failed transfer changed balances")
	}
	if len(notes.Messages()) != 0 {
		t.Fatalf("failed transfer must not notify")
	}
}

func TestTransferRejectsSelfAndUnknownRecipient(t *testing.T) {
	svc, store, _ := newService(t)
	ctx := context.Background()
	alice := ledger.SeedAccount(store, "alice", "10.00")

	if _, err := svc.Transfer(ctx, TransferInput{SenderID: alice.ID, RecipientRef: "alice", Amount: decimal.RequireFromString("1")}); !errors.Is(err, ledger.ErrSameAccount) {
		t.Fatalf("expected same account, got %v", err)
	}
	if _, err := svc.Transfer(ctx, TransferInput{SenderID: alice.ID, RecipientRef: "ghost", Amount: decimal.RequireFromString("1")}); !errors.Is(err, ledger.ErrAccountNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := svc.Transfer(ctx, TransferInput{SenderID: alice.ID, RecipientRef: "alice", Amount: decimal.Zero}); !errors.Is(err, ledger.ErrInvalidAmount) {
		t.Fatalf("expected invalid amount, got %v", err)
	}
}

func TestSplitPayAllOrNothing(t *testing.T) {
	svc, store, notes := newService(t)
	ctx := context.Background()
	alice := ledger.SeedAccount(store, "alice", "0")
	p1 := ledger.SeedAccount(store, "p1", "5.00")
	p2 := ledger.SeedAccount(store, "p2", "5.00")
	p3 := ledger.SeedAccount(store, "p3", "5.00")

	_, err := svc.SplitPay(ctx, SplitPayInput{InitiatorID: alice.ID, ParticipantRefs: []string{"p1", "p2", "p3"}, Total: decimal.RequireFromString("30.00")})
	if !errors.Is(err, ledger.ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
	for _, p := range []ledger.Account{p1, p2, p3} {
		if got := balance(t, store, p.ID); got != "5.00" {
			t.Fatalf("participant %s charged on failed split: %s", p.Username, got)
		}
	}
	if len(notes.Messages()) != 0 {
		t.Fatalf("failed split must not notify")
	}

	res, err := svc.SplitPay(ctx, SplitPayInput{InitiatorID: alice.ID, ParticipantRefs: []string{"p1", p2.ID, "p3"}, Total: decimal.RequireFromString("12.00")})
	if err != nil {
		t.Fatalf("split failed: %v", err)
	}
	if ledger.Format(res.Share) != "4.00" || len(res.Transactions) != 3 {
		t.Fatalf("unexpected split result: %+v", res)
	}
	for _, txn := range res.Transactions {
		if txn.RecipientID != "" || txn.Kind != ledger.KindSplitPayment {
			t.Fatalf("unexpected split transaction: %+v", txn)
		}
	}
	if got := balance(t, store, p3.ID); got != "1.00" {
		t.Fatalf("expected 1.00 left, got %s", got)
	}
	if len(notes.Messages()) != 3 {
		t.Fatalf("expected 3 notifications, got %d", len(notes.Messages()))
	}
}

func TestSplitPayRejectsUnknownParticipant(t *testing.T) {
	svc, store, _ := newService(t)
	ctx := context.Background()
	alice := ledger.SeedAccount(store, "alice", "0")
	p1 := ledger.SeedAccount(store, "p1", "50.00")

	if _, err := svc.SplitPay(ctx, SplitPayInput{InitiatorID: alice.ID, ParticipantRefs: []string{"p1", "nobody"}, Total: decimal.RequireFromString("10")}); !errors.Is(err, ledger.ErrAccountNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if got := balance(t, store, p1.ID); got != "50.00" {
		t.Fatalf("participant charged despite rejected batch: %s", got)
	}
	if _, err := svc.SplitPay(ctx, SplitPayInput{InitiatorID: alice.ID, Total: decimal.RequireFromString("10")}); !errors.Is(err, ledger.ErrInvalidMovement) {
		t.Fatalf("expected invalid movement, got %v", err)
	}
}
