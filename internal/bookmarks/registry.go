// Package bookmarks holds the client-side set of the caller's bookmarked items.
package bookmarks

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/MarcoPoloResearchLab/hubs/internal/client"
	"github.com/MarcoPoloResearchLab/hubs/internal/content"
	"go.uber.org/zap"
)

var (
	// ErrNotBookmarkable indicates a toggle on a kind that cannot be saved.
	ErrNotBookmarkable = errors.New("bookmarks: kind cannot be bookmarked")

	errMissingClient = errors.New("bookmarks: client required")
)

// Client is the transport the registry hydrates and toggles through.
type Client interface {
	ToggleBookmark(ctx context.Context, cred client.Credential, target content.Target) (client.BookmarkResult, error)
	ListBookmarks(ctx context.Context, cred client.Credential, kind content.Kind) ([]client.BookmarkEntry, error)
}

type member struct {
	details     client.BookmarkEntry
	saved       bool
	confirmed   bool
	version     int64
	issuedSeq   uint64
	answeredSeq uint64
	inFlight    int
}

// Registry is a set keyed by (kind, id). It is safe for concurrent use. A toggle
// response is adopted only when its version is above the one already applied.
type Registry struct {
	client Client
	logger *zap.Logger

	mu       sync.Mutex
	members  map[content.Target]*member
	order    map[content.Kind][]content.Target
	hydrated map[content.Kind]bool
}

// New constructs an empty Registry. Logger is optional.
func New(apiClient Client, logger *zap.Logger) (*Registry, error) {
	if apiClient == nil {
		return nil, errMissingClient
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		client:   apiClient,
		logger:   logger,
		members:  make(map[content.Target]*member),
		order:    make(map[content.Kind][]content.Target),
		hydrated: make(map[content.Kind]bool),
	}, nil
}

// Hydrate lists the caller's bookmarks for each kind not hydrated yet. Kinds already
// hydrated are skipped, so a surface can call it for every kind it renders.
func (r *Registry) Hydrate(ctx context.Context, cred client.Credential, kinds ...content.Kind) error {
	for _, kind := range kinds {
		if !kind.Bookmarkable() {
			return fmt.Errorf("%w: %s", ErrNotBookmarkable, kind)
		}
		r.mu.Lock()
		done := r.hydrated[kind]
		r.mu.Unlock()
		if done {
			continue
		}

		entries, err := r.client.ListBookmarks(ctx, cred, kind)
		if err != nil {
			return err
		}

		r.mu.Lock()
		for _, details := range entries {
			if details.Target.Kind != kind {
				continue
			}
			existing, ok := r.members[details.Target]
			if ok && (existing.inFlight > 0 || details.Version < existing.version) {
				existing.details = details
				continue
			}
			if !ok {
				existing = &member{}
				r.members[details.Target] = existing
			}
			existing.details = details
			existing.saved, existing.confirmed = true, true
			existing.version = details.Version
			r.appendOrderLocked(details.Target)
		}
		r.hydrated[kind] = true
		r.mu.Unlock()
	}
	return nil
}

func (r *Registry) appendOrderLocked(target content.Target) {
	if !slices.Contains(r.order[target.Kind], target) {
		r.order[target.Kind] = append(r.order[target.Kind], target)
	}
}

// Contains reports whether target is currently displayed as saved.
func (r *Registry) Contains(target content.Target) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.members[target]
	return ok && existing.saved
}

// List returns the saved entries of kind: hydrated entries first, in listing order,
// then entries saved since, in toggle order.
func (r *Registry) List(kind content.Kind) []client.BookmarkEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	entries := make([]client.BookmarkEntry, 0, len(r.order[kind]))
	for _, target := range r.order[kind] {
		existing, ok := r.members[target]
		if !ok || !existing.saved {
			continue
		}
		entries = append(entries, existing.details)
	}
	return entries
}

// Toggle flips membership optimistically, then adopts the status the repository reports.
// On failure the membership returns to the last confirmed state and the error is returned.
func (r *Registry) Toggle(ctx context.Context, cred client.Credential, target content.Target) (content.BookmarkStatus, error) {
	if !target.Kind.Bookmarkable() {
		return "", fmt.Errorf("%w: %s", ErrNotBookmarkable, target.Kind)
	}

	r.mu.Lock()
	existing, ok := r.members[target]
	if !ok {
		existing = &member{details: client.BookmarkEntry{Target: target}}
		r.members[target] = existing
	}
	existing.saved = !existing.saved
	if existing.saved {
		r.appendOrderLocked(target)
	}
	existing.issuedSeq++
	existing.inFlight++
	seq := existing.issuedSeq
	r.mu.Unlock()

	result, err := r.client.ToggleBookmark(ctx, cred, target)

	r.mu.Lock()
	defer r.mu.Unlock()
	existing.inFlight--
	if err != nil {
		if seq > existing.answeredSeq && existing.inFlight == 0 {
			existing.saved = existing.confirmed
		}
		return statusOf(existing.saved), err
	}
	if seq > existing.answeredSeq {
		existing.answeredSeq = seq
	}
	if result.Version <= existing.version {
		r.logger.Debug("discarding stale bookmark response",
			zap.String("target", target.String()),
			zap.Uint64("sequence", seq),
			zap.Int64("version", result.Version),
			zap.Int64("applied_version", existing.version))
		if existing.inFlight == 0 {
			existing.saved = existing.confirmed
		}
		return statusOf(existing.saved), nil
	}
	existing.version = result.Version
	existing.details.Version = result.Version
	existing.saved = result.Status.Saved()
	existing.confirmed = existing.saved
	if existing.saved {
		r.appendOrderLocked(target)
	}
	return result.Status, nil
}

func statusOf(saved bool) content.BookmarkStatus {
	if saved {
		return content.BookmarkSaved
	}
	return content.BookmarkUnsaved
}
