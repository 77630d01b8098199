// Package ranking orders a fetched resource snapshot by net votes.
package ranking

import (
	"cmp"
	"slices"

	"github.com/MarcoPoloResearchLab/hubs/internal/content"
)

// Entry pairs an item with its net vote count as fetched.
type Entry struct {
	Item  content.Item
	Votes int64
}

// Result is the ranked snapshot. Top is nil when the snapshot is empty.
type Result struct {
	Ordered []Entry
	Top     *Entry
}

// IsTop reports whether the target holds the top position.
func (r Result) IsTop(target content.Target) bool {
	return r.Top != nil && r.Top.Item.Target == target
}

// Rank sorts a copy of entries by votes descending. Equal counts keep their arrival
// order, so the first-arrived item among those tied at the maximum is the top item.
func Rank(entries []Entry) Result {
	ordered := slices.Clone(entries)
	slices.SortStableFunc(ordered, func(left, right Entry) int {
		return cmp.Compare(right.Votes, left.Votes)
	})

	result := Result{Ordered: ordered}
	if len(ordered) > 0 {
		top := ordered[0]
		result.Top = &top
	}
	return result
}
