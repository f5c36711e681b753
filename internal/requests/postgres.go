package requests

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/congo-pay/p2p_wallet/internal/ledger"
)

const requestColumns = `id::text, kind, requester_id::text, payer_id::text, amount::text, status,
        COALESCE(batch_id::text, ''), COALESCE(transaction_id::text, ''), created_at, resolved_at`

// pgxTxCarrier is implemented by ledger transactions backed by PostgreSQL.
type pgxTxCarrier interface {
	PgxTx() pgx.Tx
}

// PostgresRepository stores requests in PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a repository backed by PostgreSQL.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts the requests in one transaction using a single batch.
func (r *PostgresRepository) Create(ctx context.Context, reqs ...Request) error {
	if len(reqs) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return wrap(err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	batch := &pgx.Batch{}
	for _, req := range reqs {
		batch.Queue(`INSERT INTO requests (id, kind, requester_id, payer_id, amount, status, batch_id, created_at)
            VALUES ($1, $2, $3, $4, $5::numeric, $6, NULLIF($7, '')::uuid, $8)`,
			req.ID, string(req.Kind), req.RequesterID, req.PayerID, req.Amount.String(), string(req.Status), req.BatchID, req.CreatedAt)
	}
	br := tx.SendBatch(ctx, batch)
	for range reqs {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return wrap(err)
		}
	}
	if err := br.Close(); err != nil {
		return wrap(err)
	}
	return wrap(tx.Commit(ctx))
}

// Get loads one request.
func (r *PostgresRepository) Get(ctx context.Context, id string) (Request, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Request{}, ErrNotFound
	}
	return scanRequest(r.db.QueryRow(ctx, `SELECT `+requestColumns+` FROM requests WHERE id = $1`, id))
}

// List returns matching requests newest first.
func (r *PostgresRepository) List(ctx context.Context, filter Filter) ([]Request, error) {
	var where []string
	var args []any
	add := func(clause, value string) {
		args = append(args, value)
		where = append(where, fmt.Sprintf(clause, "$"+strconv.Itoa(len(args))))
	}
	for _, id := range []string{filter.PayerID, filter.RequesterID} {
		if id == "" {
			continue
		}
		if _, err := uuid.Parse(id); err != nil {
			return nil, nil
		}
	}
	if filter.PayerID != "" {
		add("payer_id = %s", filter.PayerID)
	}
	if filter.RequesterID != "" {
		add("requester_id = %s", filter.RequesterID)
	}
	if filter.Kind != "" {
		add("kind = %s", string(filter.Kind))
	}
	if filter.Status != "" {
		add("status = %s", string(filter.Status))
	}

	query := `SELECT ` + requestColumns + ` FROM requests`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, wrap(err)
	}
	defer rows.Close()

	var out []Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	return out, wrap(rows.Err())
}

// Accept flips the request inside the ledger's database transaction.
func (r *PostgresRepository) Accept(ctx context.Context, tx ledger.Tx, id, transactionID string, at time.Time) error {
	carrier, ok := tx.(pgxTxCarrier)
	if !ok {
		return fmt.Errorf("%w: request acceptance needs a postgres ledger transaction", ledger.ErrPersistence)
	}
	tag, err := carrier.PgxTx().Exec(ctx, `UPDATE requests
        SET status = 'accepted', transaction_id = $2, resolved_at = $3
        WHERE id = $1 AND status = 'pending'`, id, transactionID, at)
	if err != nil {
		return wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyResolved
	}
	return nil
}

// Reject flips a pending request to rejected.
func (r *PostgresRepository) Reject(ctx context.Context, id string, at time.Time) error {
	tag, err := r.db.Exec(ctx, `UPDATE requests SET status = 'rejected', resolved_at = $2
        WHERE id = $1 AND status = 'pending'`, id, at)
	if err != nil {
		return wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyResolved
	}
	return nil
}

func scanRequest(row pgx.Row) (Request, error) {
	var req Request
	var kind, status, amount string
	if err := row.Scan(&req.ID, &kind, &req.RequesterID, &req.PayerID, &amount, &status,
		&req.BatchID, &req.TransactionID, &req.CreatedAt, &req.ResolvedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Request{}, ErrNotFound
		}
		return Request{}, wrap(err)
	}
	amt, err := decimal.NewFromString(amount)
	if err != nil {
		return Request{}, fmt.Errorf("%w: corrupt amount %q", ledger.ErrPersistence, amount)
	}
	req.Kind = Kind(kind)
	req.Status = Status(status)
	req.Amount = amt
	return req, nil
}

func wrap(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "55P03":
			return fmt.Errorf("%w: %s", ledger.ErrConcurrencyConflict, pgErr.Message)
		case "23503":
			return fmt.Errorf("%w: %s", ledger.ErrAccountNotFound, pgErr.Detail)
		}
	}
	return fmt.Errorf("%w: %v", ledger.ErrPersistence, err)
}
