package accounts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/congo-pay/p2p_wallet/internal/ledger"
	"github.com/congo-pay/p2p_wallet/internal/logging"
)

const (
	minUsernameLen = 3
	maxUsernameLen = 50
)

// Service exposes account registration, lookup and the administrative
// balance override.
type Service struct {
	store  ledger.Store
	engine *ledger.Engine
	logger *slog.Logger
}

// NewService builds an account service instance.
func NewService(store ledger.Store, engine *ledger.Engine, logger *slog.Logger) *Service {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Service{store: store, engine: engine, logger: logger}
}

// CreateInput captures data required to register an account.
type CreateInput struct {
	Username string
	Merchant bool
	Admin    bool
}

// Create registers an account with a zero balance.
func (s *Service) Create(ctx context.Context, input CreateInput) (ledger.Account, error) {
	username, err := normalizeUsername(input.Username)
	if err != nil {
		return ledger.Account{}, err
	}

	acc := ledger.Account{
		ID:         uuid.NewString(),
		Username:   username,
		Balance:    decimal.Zero,
		IsMerchant: input.Merchant,
		IsAdmin:    input.Admin,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.store.CreateAccount(ctx, acc); err != nil {
		return ledger.Account{}, err
	}

	s.logger.Info("account created",
		slog.String("account_id", acc.ID),
		slog.String("username", acc.Username),
		slog.Bool("merchant", acc.IsMerchant),
		slog.Bool("admin", acc.IsAdmin),
	)
	return acc, nil
}

// Get retrieves an account by id.
func (s *Service) Get(ctx context.Context, id string) (ledger.Account, error) {
	return s.store.Account(ctx, id)
}

// GetByUsername retrieves an account by username.
func (s *Service) GetByUsername(ctx context.Context, username string) (ledger.Account, error) {
	return s.store.AccountByUsername(ctx, strings.TrimSpace(username))
}

// Resolve accepts either an account id or a username.
func (s *Service) Resolve(ctx context.Context, ref string) (ledger.Account, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ledger.Account{}, ledger.ErrAccountNotFound
	}
	if _, err := uuid.Parse(ref); err == nil {
		acc, err := s.store.Account(ctx, ref)
		if err == nil {
			return acc, nil
		}
		if !errors.Is(err, ledger.ErrAccountNotFound) {
			return ledger.Account{}, err
		}
	}
	return s.store.AccountByUsername(ctx, ref)
}

// ResolveAll resolves every reference or fails on the first one that does not
// resolve, naming it.
func (s *Service) ResolveAll(ctx context.Context, refs []string) ([]ledger.Account, error) {
	out := make([]ledger.Account, 0, len(refs))
	for _, ref := range refs {
		acc, err := s.Resolve(ctx, ref)
		if err != nil {
			return nil, fmt.Errorf("resolve %q: %w", ref, err)
		}
		out = append(out, acc)
	}
	return out, nil
}

// List returns every account.
func (s *Service) List(ctx context.Context) ([]ledger.Account, error) {
	return s.store.ListAccounts(ctx)
}

// ListMerchants returns the accounts flagged as merchants.
func (s *Service) ListMerchants(ctx context.Context) ([]ledger.Account, error) {
	all, err := s.store.ListAccounts(ctx)
	if err != nil {
		return nil, err
	}
	merchants := make([]ledger.Account, 0, len(all))
	for _, acc := range all {
		if acc.IsMerchant {
			merchants = append(merchants, acc)
		}
	}
	return merchants, nil
}

// Balance returns the current balance of an account.
func (s *Service) Balance(ctx context.Context, id string) (Balance, error) {
	acc, err := s.store.Account(ctx, id)
	if err != nil {
		return Balance{}, err
	}
	return Balance{AccountID: acc.ID, Amount: acc.Balance, AsOf: time.Now().UTC()}, nil
}

// Transactions lists the ledger records touching an account, newest first.
func (s *Service) Transactions(ctx context.Context, id string, limit, offset int) ([]ledger.Transaction, error) {
	if _, err := s.store.Account(ctx, id); err != nil {
		return nil, err
	}
	return s.store.ListTransactions(ctx, ledger.TransactionFilter{AccountID: id, Limit: limit, Offset: offset})
}

// AllTransactions lists every ledger record for administrators.
func (s *Service) AllTransactions(ctx context.Context, actor Actor, limit, offset int) ([]ledger.Transaction, error) {
	if !actor.Admin {
		return nil, ErrForbidden
	}
	return s.store.ListTransactions(ctx, ledger.TransactionFilter{Limit: limit, Offset: offset})
}

// OverrideBalance sets an account balance to amount. Only administrators may
// call it; the delta is recorded as an adjustment transaction.
func (s *Service) OverrideBalance(ctx context.Context, actor Actor, id string, amount decimal.Decimal) (ledger.Adjustment, error) {
	if !actor.Admin {
		return ledger.Adjustment{}, ErrForbidden
	}
	adj, err := s.engine.SetBalance(ctx, id, amount)
	if err != nil {
		return ledger.Adjustment{}, err
	}
	s.logger.Warn("balance overridden",
		slog.String("account_id", id),
		slog.String("actor_id", actor.ID),
		slog.String("previous", ledger.Format(adj.Previous)),
		slog.String("balance", ledger.Format(adj.Balance)),
	)
	return adj, nil
}

func normalizeUsername(raw string) (string, error) {
	username := strings.ToLower(strings.TrimSpace(raw))
	if len(username) < minUsernameLen || len(username) > maxUsernameLen {
		return "", fmt.Errorf("%w: must be %d to %d characters", ErrInvalidUsername, minUsernameLen, maxUsernameLen)
	}
	for _, r := range username {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
		default:
			return "", fmt.Errorf("%w: unexpected character %q", ErrInvalidUsername, r)
		}
	}
	return username, nil
}
