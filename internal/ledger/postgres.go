package ledger

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const transactionColumns = `id::text, COALESCE(sender_id::text, ''), COALESCE(recipient_id::text, ''),
        amount::text, kind, COALESCE(reversal_of::text, ''), reversed, created_at`

const accountColumns = `id::text, username, balance::text, is_merchant, is_admin, created_at`

// PostgresStore persists accounts and transactions in PostgreSQL. Balances
// live on the account row and are mutated with row locks held for the whole
// boundary.
type PostgresStore struct {
	db          *pgxpool.Pool
	lockTimeout time.Duration
}

// NewPostgresStore constructs a Postgres-backed store. lockTimeout bounds how
// long a boundary waits on a contended row before failing with
// ErrConcurrencyConflict; zero leaves the server default.
func NewPostgresStore(db *pgxpool.Pool, lockTimeout time.Duration) *PostgresStore {
	return &PostgresStore{db: db, lockTimeout: lockTimeout}
}

// CreateAccount inserts a new account row.
func (s *PostgresStore) CreateAccount(ctx context.Context, account Account) error {
	_, err := s.db.Exec(ctx, `INSERT INTO accounts (id, username, balance, is_merchant, is_admin, created_at)
        VALUES ($1, $2, $3::numeric, $4, $5, $6)`,
		account.ID, account.Username, account.Balance.String(), account.IsMerchant, account.IsAdmin, account.CreatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrAccountExists
	}
	return classify(err)
}

// Account loads one account by id.
func (s *PostgresStore) Account(ctx context.Context, id string) (Account, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Account{}, ErrAccountNotFound
	}
	row := s.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
	return scanAccount(row)
}

// AccountByUsername loads one account by its case-insensitive username.
func (s *PostgresStore) AccountByUsername(ctx context.Context, username string) (Account, error) {
	row := s.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE lower(username) = lower($1)`, username)
	return scanAccount(row)
}

// ListAccounts returns every account ordered by username.
func (s *PostgresStore) ListAccounts(ctx context.Context) ([]Account, error) {
	rows, err := s.db.Query(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY username`)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var out []Account
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, acc)
	}
	return out, classify(rows.Err())
}

// Transaction loads one ledger record.
func (s *PostgresStore) Transaction(ctx context.Context, id string) (Transaction, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Transaction{}, ErrTransactionNotFound
	}
	row := s.db.QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, id)
	return scanTransaction(row)
}

// ListTransactions returns matching records newest first.
func (s *PostgresStore) ListTransactions(ctx context.Context, filter TransactionFilter) ([]Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions`
	args := []any{}
	if filter.AccountID != "" {
		if _, err := uuid.Parse(filter.AccountID); err != nil {
			return nil, nil
		}
		args = append(args, filter.AccountID)
		query += ` WHERE sender_id = $1 OR recipient_id = $1`
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += ` LIMIT $` + strconv.Itoa(len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += ` OFFSET $` + strconv.Itoa(len(args))
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var out []Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, txn)
	}
	return out, classify(rows.Err())
}

// Atomic runs fn inside a database transaction. Errors returned by fn are
// passed through unchanged after rollback.
func (s *PostgresStore) Atomic(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return classify(err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if s.lockTimeout > 0 {
		ms := strconv.FormatInt(s.lockTimeout.Milliseconds(), 10) + "ms"
		if _, err := tx.Exec(ctx, `SELECT set_config('lock_timeout', $1, true)`, ms); err != nil {
			return classify(err)
		}
	}

	if err := fn(&postgresTx{tx: tx}); err != nil {
		return err
	}
	return commitError(tx.Commit(ctx))
}

type postgresTx struct {
	tx pgx.Tx
}

// PgxTx exposes the underlying transaction so collaborating repositories can
// write inside the same boundary.
func (t *postgresTx) PgxTx() pgx.Tx { return t.tx }

func (t *postgresTx) LockAccounts(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	canonical := make([]string, len(ids))
	for i, id := range ids {
		u, err := uuid.Parse(id)
		if err != nil {
			return fmt.Errorf("%w: %s", ErrAccountNotFound, id)
		}
		canonical[i] = u.String()
	}
	ids = canonical
	rows, err := t.tx.Query(ctx, `SELECT id::text FROM accounts
        WHERE id = ANY($1::text[]::uuid[]) ORDER BY id FOR UPDATE`, ids)
	if err != nil {
		return classify(err)
	}
	locked := make(map[string]struct{}, len(ids))
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return classify(err)
		}
		locked[id] = struct{}{}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return classify(err)
	}
	for _, id := range ids {
		if _, ok := locked[id]; !ok {
			return fmt.Errorf("%w: %s", ErrAccountNotFound, id)
		}
	}
	return nil
}

func (t *postgresTx) Debit(ctx context.Context, id string, amount decimal.Decimal) (decimal.Decimal, error) {
	var balance string
	err := t.tx.QueryRow(ctx, `UPDATE accounts SET balance = balance - $2::numeric
        WHERE id = $1 AND balance >= $2::numeric RETURNING balance::text`, id, amount.String()).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		// The row is locked and known to exist, so no match means the
		// balance did not cover the amount.
		return decimal.Decimal{}, ErrInsufficientFunds
	}
	if err != nil {
		return decimal.Decimal{}, classify(err)
	}
	return parseStored(balance)
}

func (t *postgresTx) Credit(ctx context.Context, id string, amount decimal.Decimal) (decimal.Decimal, error) {
	var balance string
	err := t.tx.QueryRow(ctx, `UPDATE accounts SET balance = balance + $2::numeric
        WHERE id = $1 RETURNING balance::text`, id, amount.String()).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Decimal{}, ErrAccountNotFound
	}
	if err != nil {
		return decimal.Decimal{}, classify(err)
	}
	return parseStored(balance)
}

func (t *postgresTx) SetBalance(ctx context.Context, id string, amount decimal.Decimal) (decimal.Decimal, error) {
	var previous string
	err := t.tx.QueryRow(ctx, `UPDATE accounts a SET balance = $2::numeric
        FROM (SELECT id, balance FROM accounts WHERE id = $1) old
        WHERE a.id = old.id RETURNING old.balance::text`, id, amount.String()).Scan(&previous)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Decimal{}, ErrAccountNotFound
	}
	if err != nil {
		return decimal.Decimal{}, classify(err)
	}
	return parseStored(previous)
}

func (t *postgresTx) Append(ctx context.Context, txn Transaction) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO transactions
        (id, sender_id, recipient_id, amount, kind, reversal_of, reversed, created_at)
        VALUES ($1, NULLIF($2, '')::uuid, NULLIF($3, '')::uuid, $4::numeric, $5, NULLIF($6, '')::uuid, false, $7)`,
		txn.ID, txn.SenderID, txn.RecipientID, txn.Amount.String(), string(txn.Kind), txn.ReversalOf, txn.CreatedAt)
	return classify(err)
}

func (t *postgresTx) LockTransaction(ctx context.Context, id string) (Transaction, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Transaction{}, ErrTransactionNotFound
	}
	row := t.tx.QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1 FOR UPDATE`, id)
	return scanTransaction(row)
}

func (t *postgresTx) MarkReversed(ctx context.Context, id string) error {
	tag, err := t.tx.Exec(ctx, `UPDATE transactions SET reversed = true WHERE id = $1 AND NOT reversed`, id)
	if err != nil {
		return classify(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyReversed
	}
	return nil
}

func scanAccount(row pgx.Row) (Account, error) {
	var acc Account
	var balance string
	if err := row.Scan(&acc.ID, &acc.Username, &balance, &acc.IsMerchant, &acc.IsAdmin, &acc.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrAccountNotFound
		}
		return Account{}, classify(err)
	}
	bal, err := parseStored(balance)
	if err != nil {
		return Account{}, err
	}
	acc.Balance = bal
	return acc, nil
}

func scanTransaction(row pgx.Row) (Transaction, error) {
	var txn Transaction
	var amount, kind string
	if err := row.Scan(&txn.ID, &txn.SenderID, &txn.RecipientID, &amount, &kind, &txn.ReversalOf, &txn.Reversed, &txn.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transaction{}, ErrTransactionNotFound
		}
		return Transaction{}, classify(err)
	}
	amt, err := parseStored(amount)
	if err != nil {
		return Transaction{}, err
	}
	txn.Amount = amt
	txn.Kind = Kind(kind)
	return txn, nil
}

func parseStored(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: corrupt amount %q", ErrPersistence, s)
	}
	return d, nil
}

// classify maps driver failures onto the ledger taxonomy. Contention becomes
// ErrConcurrencyConflict; everything else is ErrPersistence.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "55P03":
			return fmt.Errorf("%w: %s", ErrConcurrencyConflict, pgErr.Message)
		}
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrPersistence, err)
}

// commitError classifies a failed COMMIT. Serialization failures and
// deadlocks mean the server rolled back, so the boundary may run again. Any
// other failure, a deadline included, leaves the outcome unknown and is never
// retried.
func commitError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && (pgErr.Code == "40001" || pgErr.Code == "40P01") {
		return classify(err)
	}
	return fmt.Errorf("%w: commit outcome unknown: %w", ErrPersistence, err)
}
