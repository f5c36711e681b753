package social

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresGraph reads friendships and merchant subscriptions from PostgreSQL.
type PostgresGraph struct {
	db *pgxpool.Pool
}

// NewPostgresGraph builds a graph backed by PostgreSQL.
func NewPostgresGraph(db *pgxpool.Pool) *PostgresGraph {
	return &PostgresGraph{db: db}
}

// CanAddress implements Graph.
func (g *PostgresGraph) CanAddress(ctx context.Context, relation Relation, requesterID, payerID string) (bool, error) {
	var query string
	switch relation {
	case RelationFriend:
		query = `SELECT EXISTS (
            SELECT 1 FROM friendships
            WHERE status = 'accepted'
              AND ((account_id = $1 AND friend_id = $2) OR (account_id = $2 AND friend_id = $1)))`
	case RelationSubscriber:
		query = `SELECT EXISTS (
            SELECT 1 FROM merchant_subscriptions WHERE merchant_id = $1 AND account_id = $2)`
	default:
		return false, nil
	}

	var ok bool
	if err := g.db.QueryRow(ctx, query, requesterID, payerID).Scan(&ok); err != nil {
		return false, fmt.Errorf("social graph lookup: %w", err)
	}
	return ok, nil
}

// Befriend stores an accepted friendship. Used by operators and tests.
func (g *PostgresGraph) Befriend(ctx context.Context, a, b string) error {
	_, err := g.db.Exec(ctx, `INSERT INTO friendships (account_id, friend_id, status)
        VALUES ($1, $2, 'accepted')
        ON CONFLICT (account_id, friend_id) DO UPDATE SET status = 'accepted'`, a, b)
	return err
}

// Subscribe stores a merchant subscription.
func (g *PostgresGraph) Subscribe(ctx context.Context, accountID, merchantID string) error {
	_, err := g.db.Exec(ctx, `INSERT INTO merchant_subscriptions (account_id, merchant_id)
        VALUES ($1, $2) ON CONFLICT DO NOTHING`, accountID, merchantID)
	return err
}
