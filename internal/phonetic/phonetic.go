// Package phonetic scores how alike a reference word and the word recognised
// in its place sound.
//
// A pair is compared in two ways:
//
//  1. Double Metaphone codes of both words. Sharing any primary or secondary
//     code marks the pair as a phonetic match.
//  2. Jaro-Winkler similarity of the lower-cased strings.
//
// A pair [Scorer.Homophone] is a phonetic match whose similarity reaches the
// phonetic threshold, or any pair whose similarity alone reaches the higher
// fuzzy threshold. Confusion reports use this to separate mishearings from
// unrelated substitutions.
package phonetic

import (
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.85
)

// Option configures a [Scorer].
type Option func(*Scorer)

// WithPhoneticThreshold sets the similarity a phonetic match needs to count as
// a homophone. Default: 0.70.
func WithPhoneticThreshold(threshold float64) Option {
	return func(s *Scorer) {
		s.phoneticThreshold = threshold
	}
}

// WithFuzzyThreshold sets the similarity that makes any pair a homophone.
// Default: 0.85.
func WithFuzzyThreshold(threshold float64) Option {
	return func(s *Scorer) {
		s.fuzzyThreshold = threshold
	}
}

// Scorer compares word pairs. It is read-only after construction and safe for
// concurrent use.
type Scorer struct {
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// New returns a Scorer configured by opts.
func New(opts ...Option) *Scorer {
	s := &Scorer{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Score is the comparison of one word pair.
type Score struct {
	// Similarity is the Jaro-Winkler similarity in [0, 1].
	Similarity float64 `json:"similarity"`

	// Phonetic reports whether the words share a Double Metaphone code.
	Phonetic bool `json:"phonetic"`

	// Homophone is the verdict of [Scorer.Homophone].
	Homophone bool `json:"homophone"`
}

// Compare scores ref against hyp. Multi-word inputs are compared as whole
// strings, without spaces, and word by word; the best similarity wins.
func (s *Scorer) Compare(ref, hyp string) Score {
	refTokens := strings.Fields(strings.ToLower(ref))
	hypTokens := strings.Fields(strings.ToLower(hyp))
	if len(refTokens) == 0 || len(hypTokens) == 0 {
		return Score{}
	}

	sc := Score{
		Similarity: bestSimilarity(refTokens, hypTokens),
		Phonetic:   codesOverlap(codes(refTokens), codes(hypTokens)),
	}
	sc.Homophone = s.homophone(sc)
	return sc
}

// Homophone reports whether ref and hyp sound alike.
func (s *Scorer) Homophone(ref, hyp string) bool {
	return s.Compare(ref, hyp).Homophone
}

func (s *Scorer) homophone(sc Score) bool {
	if sc.Phonetic && sc.Similarity >= s.phoneticThreshold {
		return true
	}
	return sc.Similarity >= s.fuzzyThreshold
}

// codes returns the union of the non-empty Double Metaphone codes of tokens.
func codes(tokens []string) map[string]struct{} {
	out := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		p, alt := matchr.DoubleMetaphone(t)
		if p != "" {
			out[p] = struct{}{}
		}
		if alt != "" {
			out[alt] = struct{}{}
		}
	}
	return out
}

func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for c := range a {
		if _, ok := b[c]; ok {
			return true
		}
	}
	return false
}

func bestSimilarity(a, b []string) float64 {
	score := matchr.JaroWinkler(strings.Join(a, " "), strings.Join(b, " "), false)
	if len(a) > 1 || len(b) > 1 {
		if sc := matchr.JaroWinkler(strings.Join(a, ""), strings.Join(b, ""), false); sc > score {
			score = sc
		}
		for _, x := range a {
			for _, y := range b {
				if sc := matchr.JaroWinkler(x, y, false); sc > score {
					score = sc
				}
			}
		}
	}
	return score
}
