package align

import (
	"cmp"
	"fmt"
	"slices"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// GroupEntry is one distinct (reference, hypothesis) pair of a [Group] and
// the number of times it occurred.
type GroupEntry struct {
	Reference  string `json:"reference"`
	Hypothesis string `json:"hypothesis"`
	Count      int    `json:"count"`
}

// Pair returns the grouping identity of e.
func (e GroupEntry) Pair() Pair {
	return Pair{Reference: e.Reference, Hypothesis: e.Hypothesis}
}

// Group records the operations of a single kind, in backtrace order.
// It is not safe for concurrent use.
type Group struct {
	kind OpKind
	ops  []Operation
}

// NewGroup returns an empty group for kind.
func NewGroup(kind OpKind) *Group {
	return &Group{kind: kind}
}

// Kind returns the operation kind held by g.
func (g *Group) Kind() OpKind { return g.kind }

// Len returns the number of recorded operations, duplicates included.
func (g *Group) Len() int { return len(g.ops) }

// Add records op. It fails with [ErrKindMismatch] when op is of another kind.
func (g *Group) Add(op Operation) error {
	if op.Kind != g.kind {
		return fmt.Errorf("%w: %s into %s group", ErrKindMismatch, op.Kind, g.kind)
	}
	g.ops = append(g.ops, op)
	return nil
}

// Collect deduplicates the recorded operations by word pair and returns them
// sorted by descending count. Pairs with equal counts keep the order in which
// they are first met scanning the recording backwards.
func (g *Group) Collect() []GroupEntry {
	counts := orderedmap.New[Pair, int]()
	for i := len(g.ops) - 1; i >= 0; i-- {
		k := g.ops[i].Pair()
		n, _ := counts.Get(k)
		counts.Set(k, n+1)
	}
	return SortEntries(counts)
}

// SortEntries flattens counts into entries ordered by descending count,
// stable on the map's insertion order.
func SortEntries(counts *orderedmap.OrderedMap[Pair, int]) []GroupEntry {
	entries := make([]GroupEntry, 0, counts.Len())
	for p := counts.Oldest(); p != nil; p = p.Next() {
		entries = append(entries, GroupEntry{
			Reference:  p.Key.Reference,
			Hypothesis: p.Key.Hypothesis,
			Count:      p.Value,
		})
	}
	slices.SortStableFunc(entries, func(a, b GroupEntry) int {
		return cmp.Compare(b.Count, a.Count)
	})
	return entries
}
