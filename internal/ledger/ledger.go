// Package ledger holds the client-side projection of vote counts and the caller's
// directions for the currently displayed items.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/MarcoPoloResearchLab/hubs/internal/client"
	"github.com/MarcoPoloResearchLab/hubs/internal/content"
	"github.com/MarcoPoloResearchLab/hubs/internal/ranking"
	"go.uber.org/zap"
)

var (
	// ErrNotTracked indicates a vote on an item the ledger was never hydrated with.
	ErrNotTracked = errors.New("ledger: target not tracked")
	// ErrNotVotable indicates a vote on a kind that does not accept votes.
	ErrNotVotable = errors.New("ledger: kind does not accept votes")

	errMissingClient = errors.New("ledger: client required")
)

// State is the reconciliation state of a tracked item.
type State int

const (
	// StateIdle means the item holds hydrated data and no cast was made since.
	StateIdle State = iota
	// StatePending means at least one cast is in flight and the display may be optimistic.
	StatePending
	// StateReconciled means the display equals the latest accepted server response.
	StateReconciled
	// StateRolledBack means the latest cast failed and the display returned to confirmed values.
	StateRolledBack
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePending:
		return "pending"
	case StateReconciled:
		return "reconciled"
	case StateRolledBack:
		return "rolled_back"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Client is the transport the ledger casts votes and hydrates through.
type Client interface {
	CastVote(ctx context.Context, cred client.Credential, target content.Target, direction content.Direction) (client.VoteResult, error)
	ListResources(ctx context.Context, cred client.Credential, collectionID content.ItemID) ([]client.ResourceEntry, error)
	ListAnswers(ctx context.Context, cred client.Credential, questionID content.ItemID) ([]client.AnswerEntry, error)
}

// StatsInvalidator drops the held stats of a collection.
type StatsInvalidator interface {
	Invalidate(collectionID content.ItemID)
}

// Snapshot is the displayed state of one tracked item.
type Snapshot struct {
	Item      content.Item
	Net       int64
	Direction content.Direction
	Version   int64
	State     State
	Stale     bool
}

// Hydration is one fetched item with its server counts and write version.
type Hydration struct {
	Item      content.Item
	Net       int64
	Direction content.Direction
	Version   int64
}

// Config wires a Ledger. Stats and Logger are optional.
type Config struct {
	Client Client
	Stats  StatsInvalidator
	Logger *zap.Logger
}

type entry struct {
	item         content.Item
	confirmedNet int64
	confirmedDir content.Direction
	displayNet   int64
	displayDir   content.Direction
	version      int64
	state        State
	stale        bool
	issuedSeq    uint64
	answeredSeq  uint64
	inFlight     int
}

// group scopes an ordered item list: resources of a collection, answers of a question.
type group struct {
	kind  content.Kind
	owner content.ItemID
}

func (e *entry) snapshot() Snapshot {
	return Snapshot{
		Item:      e.item,
		Net:       e.displayNet,
		Direction: e.displayDir,
		Version:   e.version,
		State:     e.state,
		Stale:     e.stale,
	}
}

// Ledger is safe for concurrent use. Every server state carries the target's write
// version; a response whose version is not above the applied one is discarded, whatever
// order the casts were sent in. Failures are ordered by send sequence.
type Ledger struct {
	client Client
	stats  StatsInvalidator
	logger *zap.Logger

	mu      sync.Mutex
	entries map[content.Target]*entry
	order   map[group][]content.Target
}

// New constructs a Ledger.
func New(cfg Config) (*Ledger, error) {
	if cfg.Client == nil {
		return nil, errMissingClient
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{
		client:  cfg.Client,
		stats:   cfg.Stats,
		logger:  logger,
		entries: make(map[content.Target]*entry),
		order:   make(map[group][]content.Target),
	}, nil
}

// Track hydrates one item with fetched values. A later cast response still replaces
// them when it carries a higher version.
func (l *Ledger) Track(hydration Hydration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.trackLocked(hydration) {
		key := groupOf(hydration.Item)
		l.order[key] = append(l.order[key], hydration.Item.Target)
	}
}

func groupOf(item content.Item) group {
	return group{kind: item.Target.Kind, owner: item.OwnerID}
}

func (l *Ledger) trackLocked(hydration Hydration) bool {
	existing, ok := l.entries[hydration.Item.Target]
	if !ok {
		existing = &entry{}
		l.entries[hydration.Item.Target] = existing
	}
	existing.item = hydration.Item
	existing.confirmedNet, existing.confirmedDir = hydration.Net, hydration.Direction
	existing.displayNet, existing.displayDir = hydration.Net, hydration.Direction
	existing.version = hydration.Version
	existing.state = StateIdle
	existing.stale = false
	existing.answeredSeq = existing.issuedSeq
	return !ok
}

// Load fetches a collection's resources, replaces the tracked set for that collection
// and returns it in repository arrival order.
func (l *Ledger) Load(ctx context.Context, cred client.Credential, collectionID content.ItemID) ([]Snapshot, error) {
	resources, err := l.client.ListResources(ctx, cred, collectionID)
	if err != nil {
		return nil, err
	}
	hydrations := make([]Hydration, 0, len(resources))
	for _, resource := range resources {
		hydrations = append(hydrations, Hydration{Item: resource.Item, Net: resource.Votes, Direction: resource.UserVote, Version: resource.Version})
	}
	return l.replace(group{kind: content.KindResource, owner: collectionID}, hydrations), nil
}

// LoadAnswers fetches a question's answers and replaces the tracked set for that question.
func (l *Ledger) LoadAnswers(ctx context.Context, cred client.Credential, questionID content.ItemID) ([]Snapshot, error) {
	answers, err := l.client.ListAnswers(ctx, cred, questionID)
	if err != nil {
		return nil, err
	}
	hydrations := make([]Hydration, 0, len(answers))
	for _, answer := range answers {
		hydrations = append(hydrations, Hydration{Item: answer.Item, Net: answer.Votes, Direction: answer.UserVote, Version: answer.Version})
	}
	return l.replace(group{kind: content.KindAnswer, owner: questionID}, hydrations), nil
}

func (l *Ledger) replace(key group, hydrations []Hydration) []Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, target := range l.order[key] {
		if tracked, ok := l.entries[target]; ok && tracked.inFlight == 0 {
			delete(l.entries, target)
		}
	}
	order := make([]content.Target, 0, len(hydrations))
	snapshots := make([]Snapshot, 0, len(hydrations))
	for _, hydration := range hydrations {
		l.trackLocked(hydration)
		order = append(order, hydration.Item.Target)
		snapshots = append(snapshots, l.entries[hydration.Item.Target].snapshot())
	}
	l.order[key] = order
	return snapshots
}

// Snapshot returns the displayed state of target.
func (l *Ledger) Snapshot(target content.Target) (Snapshot, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	tracked, ok := l.entries[target]
	if !ok {
		return Snapshot{}, false
	}
	return tracked.snapshot(), true
}

// Entries returns the displayed counts of one kind's items under an owner in arrival
// order, ready for ranking.
func (l *Ledger) Entries(kind content.Kind, ownerID content.ItemID) []ranking.Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	targets := l.order[group{kind: kind, owner: ownerID}]
	entries := make([]ranking.Entry, 0, len(targets))
	for _, target := range targets {
		tracked, ok := l.entries[target]
		if !ok {
			continue
		}
		entries = append(entries, ranking.Entry{Item: tracked.item, Votes: tracked.displayNet})
	}
	return entries
}

// CastVote applies the toggle optimistically, sends the cast and reconciles with the
// response. The returned snapshot is the display after reconciliation.
func (l *Ledger) CastVote(ctx context.Context, cred client.Credential, target content.Target, direction content.Direction) (Snapshot, error) {
	if !target.Kind.Votable() {
		return Snapshot{}, fmt.Errorf("%w: %s", ErrNotVotable, target.Kind)
	}

	l.mu.Lock()
	tracked, ok := l.entries[target]
	if !ok {
		l.mu.Unlock()
		return Snapshot{}, fmt.Errorf("%w: %s", ErrNotTracked, target)
	}
	transition, err := content.ApplyVote(tracked.displayDir, direction)
	if err != nil {
		l.mu.Unlock()
		return Snapshot{}, err
	}
	tracked.displayNet += transition.Delta
	tracked.displayDir = transition.Next
	tracked.state = StatePending
	tracked.issuedSeq++
	tracked.inFlight++
	seq := tracked.issuedSeq
	owner := tracked.item.OwnerID
	l.mu.Unlock()

	result, castErr := l.client.CastVote(ctx, cred, target, direction)

	l.mu.Lock()
	tracked, ok = l.entries[target]
	if !ok {
		l.mu.Unlock()
		if castErr == nil {
			l.invalidateStats(target, owner)
		}
		return Snapshot{}, castErr
	}
	tracked.inFlight--
	if castErr != nil {
		l.rejectLocked(tracked, seq, castErr)
	} else {
		l.acceptLocked(tracked, seq, result)
	}
	snapshot := tracked.snapshot()
	l.mu.Unlock()

	if castErr != nil {
		return snapshot, castErr
	}
	l.invalidateStats(target, owner)
	return snapshot, nil
}

// Only resource votes feed collection stats; an answer's owner is a question.
func (l *Ledger) invalidateStats(target content.Target, owner content.ItemID) {
	if l.stats == nil || target.Kind != content.KindResource {
		return
	}
	l.stats.Invalidate(owner)
}

func (l *Ledger) acceptLocked(tracked *entry, seq uint64, result client.VoteResult) {
	if seq > tracked.answeredSeq {
		tracked.answeredSeq = seq
	}
	if result.Version <= tracked.version {
		l.logger.Debug("discarding stale vote response",
			zap.String("target", tracked.item.Target.String()),
			zap.Uint64("sequence", seq),
			zap.Int64("version", result.Version),
			zap.Int64("applied_version", tracked.version))
		if tracked.inFlight == 0 && tracked.state == StatePending {
			tracked.state = StateReconciled
		}
		return
	}
	tracked.version = result.Version
	tracked.confirmedNet, tracked.confirmedDir = result.Net, result.Direction
	tracked.displayNet, tracked.displayDir = result.Net, result.Direction
	tracked.stale = false
	if tracked.inFlight == 0 {
		tracked.state = StateReconciled
	} else {
		tracked.state = StatePending
	}
}

func (l *Ledger) rejectLocked(tracked *entry, seq uint64, castErr error) {
	if seq <= tracked.answeredSeq {
		return
	}
	if errors.Is(castErr, client.ErrNotFound) {
		tracked.stale = true
	}
	if tracked.inFlight > 0 {
		return
	}
	tracked.displayNet, tracked.displayDir = tracked.confirmedNet, tracked.confirmedDir
	tracked.state = StateRolledBack
}
