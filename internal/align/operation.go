package align

import (
	"errors"
	"fmt"
	"strings"

	"github.com/MrWong99/asreval/pkg/types"
)

// Error kinds surfaced by the aligner and backtracer. Both indicate a bug or
// a caller mistake rather than bad data, so the evaluation of the affected
// utterance is aborted.
var (
	// ErrMalformedOperation reports a matrix cell whose kind is outside the
	// four known operations, or whose kind would walk off the matrix.
	ErrMalformedOperation = errors.New("align: malformed operation")

	// ErrInconsistentLength reports sequence lengths that do not match the
	// matrix dimensions.
	ErrInconsistentLength = errors.New("align: inconsistent sequence length")

	// ErrKindMismatch is returned by [Group.Add] for an operation of another kind.
	ErrKindMismatch = errors.New("align: operation kind does not match group")
)

// UtteranceError attaches the offending utterance ID to an alignment failure.
type UtteranceError struct {
	ID  string
	Err error
}

func (e *UtteranceError) Error() string {
	return fmt.Sprintf("align: utterance %q: %v", e.ID, e.Err)
}

func (e *UtteranceError) Unwrap() error { return e.Err }

// OpKind is the kind of a single alignment decision.
type OpKind int

const (
	OpCorrect OpKind = iota
	OpInsertion
	OpDeletion
	OpSubstitution
)

// Kinds lists every valid [OpKind] in declaration order.
var Kinds = []OpKind{OpCorrect, OpInsertion, OpDeletion, OpSubstitution}

var opNames = [...]string{
	OpCorrect:      "CORRECT",
	OpInsertion:    "INSERTION",
	OpDeletion:     "DELETION",
	OpSubstitution: "SUBSTITUTION",
}

// IsValid reports whether k is one of the four operation kinds.
func (k OpKind) IsValid() bool {
	return k >= OpCorrect && k <= OpSubstitution
}

func (k OpKind) String() string {
	if !k.IsValid() {
		return fmt.Sprintf("OpKind(%d)", int(k))
	}
	return opNames[k]
}

// Code returns the three-letter code used in backtrace logs (COR, INS, DEL, SUB).
func (k OpKind) Code() string {
	return k.String()[:3]
}

// ParseOpKind maps an operation name (as returned by String) back to its kind.
func ParseOpKind(s string) (OpKind, error) {
	for i, name := range opNames {
		if strings.EqualFold(name, s) {
			return OpKind(i), nil
		}
	}
	return 0, fmt.Errorf("align: unknown operation kind %q", s)
}

// Penalties are the edit weights used by the aligner.
type Penalties struct {
	// Correct is the nominal weight of a match. It is informational only:
	// [Build] gives a correct cell the cost of its diagonal predecessor.
	Correct      int
	Insertion    int
	Deletion     int
	Substitution int
}

// DefaultPenalties follow the SCTK weighting.
var DefaultPenalties = Penalties{
	Correct:      0,
	Insertion:    1,
	Deletion:     1,
	Substitution: 2,
}

// Pair is the word-text identity of an operation. Two operations are equal
// for grouping purposes iff their pairs are equal.
type Pair struct {
	Reference  string
	Hypothesis string
}

func (p Pair) String() string {
	return p.Reference + " ==> " + p.Hypothesis
}

// Operation is one cell of the alignment matrix: a reference token, a
// hypothesis token, the decision taken and the cumulative cost. Either token
// may have an empty Word, meaning "absent".
type Operation struct {
	Ref  types.Token
	Hyp  types.Token
	Kind OpKind
	Cost int
}

// Pair returns the grouping identity of op.
func (op Operation) Pair() Pair {
	return Pair{Reference: op.Ref.Word, Hypothesis: op.Hyp.Word}
}
