package requests

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/congo-pay/p2p_wallet/internal/ledger"
)

// Repository persists requests. Status changes are conditional on the
// request still being pending.
type Repository interface {
	// Create inserts every request or none of them.
	Create(ctx context.Context, reqs ...Request) error
	Get(ctx context.Context, id string) (Request, error)
	List(ctx context.Context, filter Filter) ([]Request, error)
	// Accept flips pending to accepted inside the ledger boundary tx, so the
	// flip and the money movement commit or roll back together.
	Accept(ctx context.Context, tx ledger.Tx, id, transactionID string, at time.Time) error
	Reject(ctx context.Context, id string, at time.Time) error
}

// MemoryRepository is an in-process Repository for tests and development.
type MemoryRepository struct {
	mu    sync.Mutex
	items map[string]Request
}

// NewMemoryRepository returns an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{items: make(map[string]Request)}
}

func (r *MemoryRepository) Create(_ context.Context, reqs ...Request) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, req := range reqs {
		r.items[req.ID] = req
	}
	return nil
}

func (r *MemoryRepository) Get(_ context.Context, id string) (Request, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.items[id]
	if !ok {
		return Request{}, ErrNotFound
	}
	return req, nil
}

// List returns matching requests newest first.
func (r *MemoryRepository) List(_ context.Context, filter Filter) ([]Request, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Request, 0)
	for _, req := range r.items {
		if filter.matches(req) {
			out = append(out, req)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// Accept runs as the last step of a ledger boundary, whose in-memory commit
// cannot fail afterwards, so the tx itself is not needed here.
func (r *MemoryRepository) Accept(_ context.Context, _ ledger.Tx, id, transactionID string, at time.Time) error {
	return r.resolve(id, StatusAccepted, transactionID, at)
}

func (r *MemoryRepository) Reject(_ context.Context, id string, at time.Time) error {
	return r.resolve(id, StatusRejected, "", at)
}

func (r *MemoryRepository) resolve(id string, status Status, transactionID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.items[id]
	if !ok {
		return ErrNotFound
	}
	if req.Status != StatusPending {
		return ErrAlreadyResolved
	}
	req.Status = status
	req.TransactionID = transactionID
	req.ResolvedAt = &at
	r.items[id] = req
	return nil
}
