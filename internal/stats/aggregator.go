// Package stats holds per-collection engagement totals fetched from the repository.
// Totals are never adjusted locally: every mutation invalidates them and they are re-read.
package stats

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/MarcoPoloResearchLab/hubs/internal/client"
	"github.com/MarcoPoloResearchLab/hubs/internal/content"
	"go.uber.org/zap"
)

var (
	// ErrNotViewable indicates a view event on a kind without a view counter.
	ErrNotViewable = errors.New("stats: kind does not record views")

	errMissingClient = errors.New("stats: client required")
)

// Client is the transport the aggregator reads stats and records views through.
type Client interface {
	GetStats(ctx context.Context, cred client.Credential, collectionID content.ItemID) (client.Stats, error)
	RecordView(ctx context.Context, cred client.Credential, scope content.Target) error
}

// Aggregator is safe for concurrent use. Every Get reads from the repository, so totals
// changed by other users show up on the next poll. The newest snapshot fetched since the
// last invalidation is kept for display.
type Aggregator struct {
	client Client
	logger *zap.Logger

	mu          sync.Mutex
	latest      map[content.ItemID]snapshot
	generations map[content.ItemID]uint64
	tickets     map[content.ItemID]uint64
}

type snapshot struct {
	stats  client.Stats
	ticket uint64
}

// New constructs an Aggregator. Logger is optional.
func New(apiClient Client, logger *zap.Logger) (*Aggregator, error) {
	if apiClient == nil {
		return nil, errMissingClient
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{
		client:      apiClient,
		logger:      logger,
		latest:      make(map[content.ItemID]snapshot),
		generations: make(map[content.ItemID]uint64),
		tickets:     make(map[content.ItemID]uint64),
	}, nil
}

// Get fetches the collection's stats. When a fetch started later has already completed,
// its newer snapshot is returned instead of this one.
func (a *Aggregator) Get(ctx context.Context, cred client.Credential, collectionID content.ItemID) (client.Stats, error) {
	a.mu.Lock()
	generation := a.generations[collectionID]
	a.tickets[collectionID]++
	ticket := a.tickets[collectionID]
	a.mu.Unlock()

	fetched, err := a.client.GetStats(ctx, cred, collectionID)
	if err != nil {
		return client.Stats{}, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.generations[collectionID] != generation {
		a.logger.Debug("stats invalidated during fetch; not keeping snapshot",
			zap.Int64("collection_id", collectionID.Int64()))
		return fetched, nil
	}
	if held, ok := a.latest[collectionID]; ok && held.ticket > ticket {
		return held.stats, nil
	}
	a.latest[collectionID] = snapshot{stats: fetched, ticket: ticket}
	return fetched, nil
}

// Latest returns the newest snapshot kept since the last invalidation, without fetching.
func (a *Aggregator) Latest(collectionID content.ItemID) (client.Stats, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	held, ok := a.latest[collectionID]
	return held.stats, ok
}

// Invalidate drops the kept snapshot of a collection. A fetch already in flight will
// still answer its caller but its result is not kept.
func (a *Aggregator) Invalidate(collectionID content.ItemID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.latest, collectionID)
	a.generations[collectionID]++
}

// RecordView sends one view event for scope and refetches the owning collection's stats.
// Duplicate views are counted again by the repository.
func (a *Aggregator) RecordView(ctx context.Context, cred client.Credential, scope content.Target, collectionID content.ItemID) (client.Stats, error) {
	if !scope.Kind.Viewable() {
		return client.Stats{}, fmt.Errorf("%w: %s", ErrNotViewable, scope.Kind)
	}
	if err := a.client.RecordView(ctx, cred, scope); err != nil {
		return client.Stats{}, err
	}
	a.Invalidate(collectionID)
	return a.Get(ctx, cred, collectionID)
}
