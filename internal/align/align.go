// Package align implements the weighted Levenshtein aligner between a
// reference and a hypothesis token sequence, the backtracer that classifies
// each alignment decision, and the grouping of recurring operations.
//
// The aligner is a pure function of its inputs. Given a reference with m
// lexical tokens and a hypothesis with n tokens, [Build] fills an
// (m+1)×(n+1) matrix of [Operation]s and [Trace] walks it from the terminal
// cell back to the origin.
//
// When several operations reach the same minimal cost, insertion is preferred
// over deletion and deletion over substitution. Changing this order changes
// reported error rates, so it is fixed.
package align

import (
	"fmt"
	"slices"

	"github.com/MrWong99/asreval/pkg/types"
)

// Variant selects the pre-processing policy applied before alignment.
type Variant int

const (
	// VariantDefault aligns the lexical reference against the hypothesis and
	// lets deleted or substituted event placeholders surface their events.
	VariantDefault Variant = iota

	// VariantExternal strips event placeholders from both sequences before
	// alignment, mirroring transcriptions prepared for external scoring tools.
	VariantExternal
)

func (v Variant) String() string {
	switch v {
	case VariantDefault:
		return "default"
	case VariantExternal:
		return "external"
	}
	return fmt.Sprintf("Variant(%d)", int(v))
}

// IsValid reports whether v is a known variant.
func (v Variant) IsValid() bool {
	return v == VariantDefault || v == VariantExternal
}

// ParseVariant parses "default" or "external". The empty string is "default".
func ParseVariant(s string) (Variant, error) {
	switch s {
	case "", "default":
		return VariantDefault, nil
	case "external":
		return VariantExternal, nil
	}
	return 0, fmt.Errorf("align: unknown variant %q", s)
}

// Config carries every parameter of an alignment. There is no package-level
// state.
type Config struct {
	Variant   Variant
	Penalties Penalties

	// TypeB lists the token kinds excluded from lexical matching.
	TypeB []types.TokenKind
}

// DefaultConfig returns the default variant with SCTK penalties and
// [types.DefaultTypeB].
func DefaultConfig() Config {
	return Config{
		Variant:   VariantDefault,
		Penalties: DefaultPenalties,
		TypeB:     slices.Clone(types.DefaultTypeB),
	}
}

// Lexical returns tokens without the Type-B event placeholders.
func Lexical(cfg Config, tokens []types.Token) []types.Token {
	out := make([]types.Token, 0, len(tokens))
	for _, t := range tokens {
		if !t.IsKind(cfg.TypeB) {
			out = append(out, t)
		}
	}
	return out
}

// Matrix is the completed alignment matrix for one utterance.
type Matrix struct {
	rows, cols int
	cells      []Operation
	ref        []types.Token
	hyp        []types.Token
}

// Dims returns the number of rows (m+1) and columns (n+1).
func (m *Matrix) Dims() (rows, cols int) {
	return m.rows, m.cols
}

// At returns the operation recorded at row i, column j.
func (m *Matrix) At(i, j int) Operation {
	return m.cells[i*m.cols+j]
}

// Distance returns the weighted edit distance, the cost of the terminal cell.
func (m *Matrix) Distance() int {
	return m.At(m.rows-1, m.cols-1).Cost
}

func (m *Matrix) set(i, j int, op Operation) {
	m.cells[i*m.cols+j] = op
}

// Align applies cfg.Variant to ref and hyp, derives the lexical reference
// and builds the matrix.
func Align(cfg Config, ref, hyp []types.Token) (*Matrix, error) {
	original := ref
	if cfg.Variant == VariantExternal {
		original = Lexical(cfg, ref)
		hyp = Lexical(cfg, hyp)
	}
	return Build(cfg, original, Lexical(cfg, original), hyp)
}

// Build fills the alignment matrix between filtered (the lexical reference R)
// and hyp (H). original is the reference before Type-B removal; its tokens
// are consulted index-parallel with filtered to carry placeholder events onto
// the produced operations.
func Build(cfg Config, original, filtered, hyp []types.Token) (*Matrix, error) {
	if len(original) < len(filtered) {
		return nil, fmt.Errorf("%w: %d original reference tokens for %d lexical tokens",
			ErrInconsistentLength, len(original), len(filtered))
	}

	p := cfg.Penalties
	rows, cols := len(filtered)+1, len(hyp)+1
	m := &Matrix{
		rows:  rows,
		cols:  cols,
		cells: make([]Operation, rows*cols),
		ref:   filtered,
		hyp:   hyp,
	}

	m.set(0, 0, Operation{Kind: OpCorrect, Cost: 0})

	// Column 0: reach an empty hypothesis by deleting every reference word.
	for i := 1; i < rows; i++ {
		m.set(i, 0, Operation{
			Ref:  cfg.referenceToken(original[i-1], filtered[i-1], OpDeletion),
			Kind: OpDeletion,
			Cost: i * p.Deletion,
		})
	}

	// Row 0: reach the hypothesis from an empty reference by inserting every word.
	var head types.Token
	if len(original) > 0 {
		head = types.Token{Events: original[0].Events}
	}
	for j := 1; j < cols; j++ {
		m.set(0, j, Operation{
			Ref:  head,
			Hyp:  hyp[j-1],
			Kind: OpInsertion,
			Cost: j * p.Insertion,
		})
	}

	for i := 1; i < rows; i++ {
		for j := 1; j < cols; j++ {
			r, h := filtered[i-1], hyp[j-1]
			if r.Word == h.Word {
				m.set(i, j, Operation{Ref: r, Hyp: h, Kind: OpCorrect, Cost: m.At(i-1, j-1).Cost})
				continue
			}

			sub := m.At(i-1, j-1).Cost + p.Substitution
			ins := m.At(i, j-1).Cost + p.Insertion
			del := m.At(i-1, j).Cost + p.Deletion
			cost := min(sub, ins, del)

			op := Operation{Cost: cost}
			switch cost {
			case ins:
				op.Kind, op.Hyp = OpInsertion, h
			case del:
				op.Kind = OpDeletion
			default:
				op.Kind, op.Hyp = OpSubstitution, h
			}
			op.Ref = cfg.referenceToken(original[i-1], r, op.Kind)
			m.set(i, j, op)
		}
	}
	return m, nil
}

// referenceToken builds the reference side of a non-correct operation. The
// word is absent for insertions. When the original token at the same position
// is an event placeholder its events are prepended to the lexical token's own.
func (cfg Config) referenceToken(original, filtered types.Token, kind OpKind) types.Token {
	t := types.Token{
		Word:   filtered.Word,
		Kind:   filtered.Kind,
		Start:  filtered.Start,
		End:    filtered.End,
		Events: filtered.Events,
	}
	if kind == OpInsertion {
		t.Word = ""
	}
	if original.IsKind(cfg.TypeB) {
		t.Events = slices.Concat(original.Events, filtered.Events)
	}
	return t
}
