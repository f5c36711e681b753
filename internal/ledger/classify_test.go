package ledger

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestClassifyRetriesOnlyContention(t *testing.T) {
	for _, code := range []string{"40001", "40P01", "55P03"} {
		if err := classify(&pgconn.PgError{Code: code}); !errors.Is(err, ErrConcurrencyConflict) {
			t.Fatalf("SQLSTATE %s: expected conflict, got %v", code, err)
		}
	}
	err := classify(fmt.Errorf("query: %w", context.DeadlineExceeded))
	if errors.Is(err, ErrConcurrencyConflict) || !errors.Is(err, ErrPersistence) {
		t.Fatalf("deadline must not be retryable, got %v", err)
	}
	if err := classify(&pgconn.PgError{Code: "23505"}); !errors.Is(err, ErrPersistence) {
		t.Fatalf("expected persistence error, got %v", err)
	}
}

func TestCommitErrorKeepsOutcomeUnknown(t *testing.T) {
	if err := commitError(nil); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
	if err := commitError(&pgconn.PgError{Code: "40001"}); !errors.Is(err, ErrConcurrencyConflict) {
		t.Fatalf("serialization failure at commit is a rollback, got %v", err)
	}
	err := commitError(fmt.Errorf("commit: %w", context.DeadlineExceeded))
	if errors.Is(err, ErrConcurrencyConflict) {
		t.Fatalf("deadline on commit must not be retried, got %v", err)
	}
	if !errors.Is(err, ErrPersistence) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected persistence error wrapping the deadline, got %v", err)
	}
	if err := commitError(&pgconn.PgError{Code: "55P03"}); errors.Is(err, ErrConcurrencyConflict) {
		t.Fatalf("lock timeout cannot surface from commit as a retry, got %v", err)
	}
}
