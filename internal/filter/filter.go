// Package filter normalises token streams before alignment.
//
// Each toggle of [Options] removes or rewrites tokens the same way in the
// reference and the hypothesis, so that differences a scorer should not
// penalise (punctuation, accents, function words) never reach the aligner.
// Event placeholders (tokens with no word) are never touched.
package filter

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/MrWong99/asreval/pkg/types"
)

// Options selects the normalisations applied by a [Filter].
type Options struct {
	// Punctuation drops punctuation tokens and words made only of punctuation.
	Punctuation bool

	// Diacritics strips combining marks, so "là" and "la" compare equal.
	Diacritics bool

	// Elisions drops elided forms such as "l'" or "qu’".
	Elisions bool

	// StopWords drops the words listed for the utterance language in
	// StopWordList. Matching is case-insensitive.
	StopWords    bool
	StopWordList map[string][]string
}

// Filter applies [Options] to tokens. It is read-only after construction and
// safe for concurrent use.
type Filter struct {
	opts  Options
	stops map[string]map[string]struct{}
}

// New returns a Filter for opts.
func New(opts Options) *Filter {
	f := &Filter{opts: opts, stops: make(map[string]map[string]struct{}, len(opts.StopWordList))}
	for lang, words := range opts.StopWordList {
		set := make(map[string]struct{}, len(words))
		for _, w := range words {
			set[strings.ToLower(w)] = struct{}{}
		}
		f.stops[strings.ToLower(lang)] = set
	}
	return f
}

// Enabled reports whether f changes anything at all.
func (f *Filter) Enabled() bool {
	return f.opts.Punctuation || f.opts.Diacritics || f.opts.Elisions || f.opts.StopWords
}

// Tokens returns a filtered copy of tokens spoken in language. The input
// slice is never modified.
func (f *Filter) Tokens(language string, tokens []types.Token) []types.Token {
	if !f.Enabled() {
		return tokens
	}
	stops := f.stops[strings.ToLower(language)]
	out := make([]types.Token, 0, len(tokens))
	for _, tok := range tokens {
		if tok.Word == "" && tok.Kind != types.KindPunctuation {
			out = append(out, tok)
			continue
		}
		if f.opts.Punctuation && (tok.Kind == types.KindPunctuation || isPunctuation(tok.Word)) {
			continue
		}
		if f.opts.Elisions && isElided(tok.Word) {
			continue
		}
		if f.opts.StopWords {
			if _, ok := stops[strings.ToLower(tok.Word)]; ok {
				continue
			}
		}
		if f.opts.Diacritics {
			tok.Word = StripDiacritics(tok.Word)
		}
		out = append(out, tok)
	}
	return out
}

// Utterance returns a copy of u with its tokens filtered.
func (f *Filter) Utterance(u types.Utterance) types.Utterance {
	u.Tokens = f.Tokens(u.Language, u.Tokens)
	return u
}

// StripDiacritics removes combining marks from s after canonical
// decomposition and recomposes the rest.
func StripDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

func isPunctuation(w string) bool {
	if w == "" {
		return false
	}
	for _, r := range w {
		if !unicode.IsPunct(r) && !unicode.IsSymbol(r) {
			return false
		}
	}
	return true
}

func isElided(w string) bool {
	return utf8.RuneCountInString(w) > 1 && (strings.HasSuffix(w, "'") || strings.HasSuffix(w, "’"))
}
