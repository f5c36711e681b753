// Package social answers whether a requester may address a request to a
// payer. Friendships and merchant subscriptions are managed elsewhere; this
// package only reads them.
package social

import (
	"context"
	"sync"
)

// Relation selects which edge of the social graph gates a request.
type Relation string

const (
	// RelationFriend requires an accepted friendship between the two accounts.
	RelationFriend Relation = "friend"
	// RelationSubscriber requires the payer to subscribe to the merchant.
	RelationSubscriber Relation = "subscriber"
)

// Graph reports addressability.
type Graph interface {
	CanAddress(ctx context.Context, relation Relation, requesterID, payerID string) (bool, error)
}

// AllowAll treats every pair as addressable.
type AllowAll struct{}

// CanAddress always returns true.
func (AllowAll) CanAddress(context.Context, Relation, string, string) (bool, error) {
	return true, nil
}

type pair struct{ a, b string }

// MemoryGraph keeps friendships and subscriptions in process memory.
type MemoryGraph struct {
	mu            sync.RWMutex
	friends       map[pair]struct{}
	subscriptions map[pair]struct{}
}

// NewMemoryGraph returns an empty graph.
func NewMemoryGraph() *MemoryGraph {
	return &MemoryGraph{
		friends:       make(map[pair]struct{}),
		subscriptions: make(map[pair]struct{}),
	}
}

// Befriend records an accepted friendship in both directions.
func (g *MemoryGraph) Befriend(a, b string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.friends[pair{a, b}] = struct{}{}
	g.friends[pair{b, a}] = struct{}{}
}

// Subscribe records that accountID follows merchantID.
func (g *MemoryGraph) Subscribe(accountID, merchantID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.subscriptions[pair{accountID, merchantID}] = struct{}{}
}

// CanAddress implements Graph.
func (g *MemoryGraph) CanAddress(_ context.Context, relation Relation, requesterID, payerID string) (bool, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	switch relation {
	case RelationFriend:
		_, ok := g.friends[pair{requesterID, payerID}]
		return ok, nil
	case RelationSubscriber:
		_, ok := g.subscriptions[pair{payerID, requesterID}]
		return ok, nil
	default:
		return false, nil
	}
}
