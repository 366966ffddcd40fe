package align

import (
	"fmt"
	"slices"
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/MrWong99/asreval/pkg/types"
)

// EventKeyAll is the event-tags key that counts every event-bearing operation once.
const EventKeyAll = "all"

// Counts are the raw totals accumulated during a backtrace.
type Counts struct {
	RefLen int
	HypLen int
	Cor    int
	Sub    int
	Del    int
	Ins    int
}

// Add returns the field-wise sum of c and o.
func (c Counts) Add(o Counts) Counts {
	return Counts{
		RefLen: c.RefLen + o.RefLen,
		HypLen: c.HypLen + o.HypLen,
		Cor:    c.Cor + o.Cor,
		Sub:    c.Sub + o.Sub,
		Del:    c.Del + o.Del,
		Ins:    c.Ins + o.Ins,
	}
}

// Accumulator holds the counts and per-kind operation groups of one
// statistical view of a backtrace.
type Accumulator struct {
	Counts Counts
	Groups map[OpKind]*Group
}

func newAccumulator() *Accumulator {
	a := &Accumulator{Groups: make(map[OpKind]*Group, len(Kinds))}
	for _, k := range Kinds {
		a.Groups[k] = NewGroup(k)
	}
	return a
}

// add counts op. Both RefLen and HypLen grow for every non-insertion.
func (a *Accumulator) add(op Operation) {
	switch op.Kind {
	case OpCorrect:
		a.Counts.Cor++
	case OpSubstitution:
		a.Counts.Sub++
	case OpInsertion:
		a.Counts.Ins++
	case OpDeletion:
		a.Counts.Del++
	}
	if op.Kind != OpInsertion {
		a.Counts.RefLen++
		a.Counts.HypLen++
	}
	a.Groups[op.Kind].ops = append(a.Groups[op.Kind].ops, op)
}

// LogRow is one line of the flat operation log.
type LogRow struct {
	Op         string
	Reference  string
	Hypothesis string
	Events     string
}

// Record returns r as CSV fields in header order.
func (r LogRow) Record() []string {
	return []string{r.Op, r.Reference, r.Hypothesis, r.Events}
}

// LogHeader is the CSV header matching [LogRow.Record].
var LogHeader = []string{"operation", "reference_word", "hypothesis_word", "events"}

func newLogRow(op Operation) LogRow {
	events := make([]string, len(op.Ref.Events))
	for i, ev := range op.Ref.Events {
		events[i] = ev.String()
	}
	return LogRow{
		Op:         op.Kind.Code(),
		Reference:  op.Ref.Word,
		Hypothesis: op.Hyp.Word,
		Events:     strings.Join(events, ";"),
	}
}

// Backtrace is the result of walking a [Matrix]: three parallel views of the
// same operations and the flat log.
type Backtrace struct {
	// Overall counts every operation.
	Overall *Accumulator

	// WithoutEvents counts operations whose reference token has no event.
	WithoutEvents *Accumulator

	// Events counts event-bearing operations under [EventKeyAll] and under
	// each event type they carry, in order of discovery.
	Events *orderedmap.OrderedMap[string, *Accumulator]

	// Log lists the operations in forward (reference) order.
	Log []LogRow
}

// Event returns the accumulator for key, if any operation populated it.
func (b *Backtrace) Event(key string) (*Accumulator, bool) {
	return b.Events.Get(key)
}

func (b *Backtrace) event(key string) *Accumulator {
	a, ok := b.Events.Get(key)
	if !ok {
		a = newAccumulator()
		b.Events.Set(key, a)
	}
	return a
}

// Trace walks m from the terminal cell to the origin, classifying every
// operation into the overall, without-events, and per-event views.
func Trace(m *Matrix) (*Backtrace, error) {
	if m.rows != len(m.ref)+1 || m.cols != len(m.hyp)+1 || len(m.cells) != m.rows*m.cols {
		return nil, fmt.Errorf("%w: %dx%d matrix for %d reference and %d hypothesis tokens",
			ErrInconsistentLength, m.rows, m.cols, len(m.ref), len(m.hyp))
	}

	bt := &Backtrace{
		Overall:       newAccumulator(),
		WithoutEvents: newAccumulator(),
		Events:        orderedmap.New[string, *Accumulator](),
	}

	i, j := m.rows-1, m.cols-1
	for i > 0 || j > 0 {
		op := m.At(i, j)
		switch op.Kind {
		case OpCorrect, OpSubstitution:
			if i == 0 || j == 0 {
				return nil, fmt.Errorf("%w: %s at (%d,%d)", ErrMalformedOperation, op.Kind, i, j)
			}
			i--
			j--
		case OpInsertion:
			if j == 0 {
				return nil, fmt.Errorf("%w: %s at (%d,%d)", ErrMalformedOperation, op.Kind, i, j)
			}
			j--
		case OpDeletion:
			if i == 0 {
				return nil, fmt.Errorf("%w: %s at (%d,%d)", ErrMalformedOperation, op.Kind, i, j)
			}
			i--
		default:
			return nil, fmt.Errorf("%w: %s at (%d,%d)", ErrMalformedOperation, op.Kind, i, j)
		}

		bt.Overall.add(op)
		if !op.Ref.HasEvents() {
			bt.WithoutEvents.add(op)
		} else {
			bt.event(EventKeyAll).add(op)
			for _, key := range eventKeys(op.Ref.Events) {
				bt.event(key).add(op)
			}
		}
		bt.Log = append(bt.Log, newLogRow(op))
	}

	slices.Reverse(bt.Log)
	return bt, nil
}

// eventKeys returns the distinct lower-cased event types of events in order.
func eventKeys(events []types.Event) []string {
	keys := make([]string, 0, len(events))
	for _, ev := range events {
		k := strings.ToLower(string(ev.Type))
		if !slices.Contains(keys, k) {
			keys = append(keys, k)
		}
	}
	return keys
}
