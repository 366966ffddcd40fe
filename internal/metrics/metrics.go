// Package metrics turns backtraces into word-accuracy statistics and rolls
// them up from utterances to files to a whole corpus.
//
// Every level carries the same three-scope [Metrics] shape: the overall text,
// the text without event tags, and one entry per event tag plus "all".
// Levels are computed by [Aggregate], which sums raw counts of its inputs and
// recomputes the rates from the sums. Rates are never averaged.
package metrics

import (
	"github.com/MrWong99/asreval/internal/align"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// OperationGroups maps an operation kind name (CORRECT, INSERTION, DELETION,
// SUBSTITUTION) to its ranked word pairs.
type OperationGroups map[string][]align.GroupEntry

func emptyGroups() OperationGroups {
	g := make(OperationGroups, len(align.Kinds))
	for _, k := range align.Kinds {
		g[k.String()] = []align.GroupEntry{}
	}
	return g
}

func collectGroups(acc *align.Accumulator) OperationGroups {
	g := make(OperationGroups, len(align.Kinds))
	for _, k := range align.Kinds {
		g[k.String()] = acc.Groups[k].Collect()
	}
	return g
}

// mergeGroups sums counts per (kind, reference, hypothesis) across groups and
// re-sorts every kind by descending count.
func mergeGroups(groups []OperationGroups) OperationGroups {
	merged := emptyGroups()
	for _, k := range align.Kinds {
		name := k.String()
		counts := orderedmap.New[align.Pair, int]()
		for _, g := range groups {
			for _, e := range g[name] {
				n, _ := counts.Get(e.Pair())
				counts.Set(e.Pair(), n+e.Count)
			}
		}
		merged[name] = align.SortEntries(counts)
	}
	return merged
}

// Scope is the statistics of one view of the text.
type Scope struct {
	Totals          Totals          `json:"totals"`
	OperationGroups OperationGroups `json:"operations_groups"`
}

// ZeroScope is the scope of a view no operation contributed to.
func ZeroScope() Scope {
	return Scope{Totals: NewTotals(align.Counts{}), OperationGroups: emptyGroups()}
}

func newScope(acc *align.Accumulator) Scope {
	return Scope{Totals: NewTotals(acc.Counts), OperationGroups: collectGroups(acc)}
}

func sumScopes(scopes []Scope) Scope {
	var c align.Counts
	groups := make([]OperationGroups, len(scopes))
	for i, s := range scopes {
		c = c.Add(s.Totals.Counts())
		groups[i] = s.OperationGroups
	}
	return Scope{Totals: NewTotals(c), OperationGroups: mergeGroups(groups)}
}

// Metrics is the three-scope statistics structure shared by every level.
type Metrics struct {
	OverallText     Scope `json:"overall_text"`
	WithoutTagsText Scope `json:"without_tags_text"`

	// EventTags is keyed by lower-case event type plus [align.EventKeyAll],
	// in order of discovery. Absent keys had no operations.
	EventTags *orderedmap.OrderedMap[string, Scope] `json:"event_tags"`
}

// EventTag returns the scope recorded for key, or [ZeroScope] when no
// operation carried that event.
func (m *Metrics) EventTag(key string) Scope {
	if m.EventTags == nil {
		return ZeroScope()
	}
	s, ok := m.EventTags.Get(key)
	if !ok {
		return ZeroScope()
	}
	return s
}

// EventKeys returns the event-tag keys of m in discovery order.
func (m *Metrics) EventKeys() []string {
	if m.EventTags == nil {
		return nil
	}
	keys := make([]string, 0, m.EventTags.Len())
	for p := m.EventTags.Oldest(); p != nil; p = p.Next() {
		keys = append(keys, p.Key)
	}
	return keys
}

func fromBacktrace(bt *align.Backtrace) Metrics {
	m := Metrics{
		OverallText:     newScope(bt.Overall),
		WithoutTagsText: newScope(bt.WithoutEvents),
		EventTags:       orderedmap.New[string, Scope](),
	}
	for p := bt.Events.Oldest(); p != nil; p = p.Next() {
		m.EventTags.Set(p.Key, newScope(p.Value))
	}
	return m
}

// sum adds up ms scope by scope. Event-tag keys are collected from every
// input in order of first appearance.
func sum(ms []*Metrics) Metrics {
	overall := make([]Scope, len(ms))
	without := make([]Scope, len(ms))
	byTag := orderedmap.New[string, []Scope]()
	for i, m := range ms {
		overall[i] = m.OverallText
		without[i] = m.WithoutTagsText
		if m.EventTags == nil {
			continue
		}
		for p := m.EventTags.Oldest(); p != nil; p = p.Next() {
			scopes, _ := byTag.Get(p.Key)
			byTag.Set(p.Key, append(scopes, p.Value))
		}
	}

	out := Metrics{
		OverallText:     sumScopes(overall),
		WithoutTagsText: sumScopes(without),
		EventTags:       orderedmap.New[string, Scope](),
	}
	for p := byTag.Oldest(); p != nil; p = p.Next() {
		out.EventTags.Set(p.Key, sumScopes(p.Value))
	}
	return out
}
