package content

import (
	"errors"
	"fmt"
	"strings"
)

// Direction is the polarity of a vote. DirectionNone means no opinion.
type Direction string

const (
	// DirectionNone records the absence of a vote.
	DirectionNone Direction = ""
	// DirectionUp is an upvote.
	DirectionUp Direction = "up"
	// DirectionDown is a downvote.
	DirectionDown Direction = "down"
)

// ErrInvalidDirection indicates a direction other than up or down was requested.
var ErrInvalidDirection = errors.New("content: invalid vote direction")

// ParseDirection validates a requested vote direction. Only up and down are castable.
func ParseDirection(rawInput string) (Direction, error) {
	switch Direction(strings.ToLower(strings.TrimSpace(rawInput))) {
	case DirectionUp:
		return DirectionUp, nil
	case DirectionDown:
		return DirectionDown, nil
	default:
		return DirectionNone, fmt.Errorf("%w: %q", ErrInvalidDirection, rawInput)
	}
}

// ParseStoredDirection accepts the empty string as DirectionNone.
func ParseStoredDirection(rawInput string) (Direction, error) {
	if strings.TrimSpace(rawInput) == "" {
		return DirectionNone, nil
	}
	return ParseDirection(rawInput)
}

// String returns the wire value.
func (d Direction) String() string {
	return string(d)
}

// Contribution is the amount this direction adds to a net vote count.
func (d Direction) Contribution() int64 {
	switch d {
	case DirectionUp:
		return 1
	case DirectionDown:
		return -1
	default:
		return 0
	}
}

// VoteTransition is the outcome of applying a cast to an existing direction.
type VoteTransition struct {
	Previous Direction
	Next     Direction
	Delta    int64
}

// Retracted reports whether the cast removed the caller's vote.
func (t VoteTransition) Retracted() bool {
	return t.Previous != DirectionNone && t.Next == DirectionNone
}

// ApplyVote is the three-way toggle shared by the client projection and the repository:
// no vote creates one, the same direction retracts, the opposite direction flips.
func ApplyVote(current Direction, requested Direction) (VoteTransition, error) {
	if requested != DirectionUp && requested != DirectionDown {
		return VoteTransition{}, fmt.Errorf("%w: %q", ErrInvalidDirection, requested)
	}
	next := requested
	if current == requested {
		next = DirectionNone
	}
	return VoteTransition{
		Previous: current,
		Next:     next,
		Delta:    next.Contribution() - current.Contribution(),
	}, nil
}

// BookmarkStatus is the state a bookmark toggle left the target in.
type BookmarkStatus string

const (
	// BookmarkSaved means the target is bookmarked.
	BookmarkSaved BookmarkStatus = "saved"
	// BookmarkUnsaved means the target is not bookmarked.
	BookmarkUnsaved BookmarkStatus = "unsaved"
)

// ErrInvalidBookmarkStatus indicates a status other than saved or unsaved.
var ErrInvalidBookmarkStatus = errors.New("content: invalid bookmark status")

// ParseBookmarkStatus validates a status reported by the repository.
func ParseBookmarkStatus(rawInput string) (BookmarkStatus, error) {
	switch BookmarkStatus(strings.ToLower(strings.TrimSpace(rawInput))) {
	case BookmarkSaved:
		return BookmarkSaved, nil
	case BookmarkUnsaved:
		return BookmarkUnsaved, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidBookmarkStatus, rawInput)
	}
}

// Saved reports whether the status means present.
func (s BookmarkStatus) Saved() bool {
	return s == BookmarkSaved
}
