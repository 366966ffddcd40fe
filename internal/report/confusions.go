package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/MrWong99/asreval/internal/align"
	"github.com/MrWong99/asreval/internal/metrics"
	"github.com/MrWong99/asreval/internal/phonetic"
)

// Confusion is one ranked substitution pair with its phonetic comparison.
type Confusion struct {
	align.GroupEntry
	phonetic.Score
}

// Confusions ranks the substitutions of s, keeping the top n (all when n is
// zero or less), and scores each pair with scorer.
func Confusions(s metrics.Scope, scorer *phonetic.Scorer, n int) []Confusion {
	subs := s.OperationGroups[align.OpSubstitution.String()]
	if n > 0 && len(subs) > n {
		subs = subs[:n]
	}
	out := make([]Confusion, len(subs))
	for i, e := range subs {
		out[i] = Confusion{GroupEntry: e, Score: scorer.Compare(e.Reference, e.Hypothesis)}
	}
	return out
}

var confusionHeader = []string{"reference", "hypothesis", "count", "similarity", "phonetic", "homophone"}

// WriteConfusions writes cs as CSV.
func WriteConfusions(w io.Writer, cs []Confusion) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(confusionHeader); err != nil {
		return fmt.Errorf("report: write confusions header: %w", err)
	}
	for _, c := range cs {
		rec := []string{
			c.Reference,
			c.Hypothesis,
			strconv.Itoa(c.Count),
			strconv.FormatFloat(c.Similarity, 'f', 3, 64),
			strconv.FormatBool(c.Phonetic),
			strconv.FormatBool(c.Homophone),
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("report: write confusion: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
