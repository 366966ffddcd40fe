package metrics

import (
	"slices"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/MrWong99/asreval/internal/align"
	"github.com/MrWong99/asreval/pkg/types"
)

// Unit is anything [Aggregate] can fold: it exposes its own three-scope
// metrics and the language and annotation-note slices it can be split into.
type Unit interface {
	Scopes() *Metrics
	LanguageSlices() []Slice
	NoteSlices() []Slice
}

// Slice is a keyed part of a [Unit].
type Slice struct {
	Key  string
	Unit Unit
}

// node is a Unit assembled from already computed parts.
type node struct {
	metrics   *Metrics
	languages []Slice
	notes     []Slice
}

func (n node) Scopes() *Metrics        { return n.metrics }
func (n node) LanguageSlices() []Slice { return n.languages }
func (n node) NoteSlices() []Slice     { return n.notes }

func leafSlices(m *orderedmap.OrderedMap[string, *Metrics]) []Slice {
	out := make([]Slice, 0, m.Len())
	for p := m.Oldest(); p != nil; p = p.Next() {
		out = append(out, Slice{Key: p.Key, Unit: node{metrics: p.Value}})
	}
	return out
}

// LanguageMetrics are the metrics of one language, further split by note.
type LanguageMetrics struct {
	Metrics
	Notes *orderedmap.OrderedMap[string, *Metrics] `json:"audio_notes"`
}

func (l *LanguageMetrics) Scopes() *Metrics        { return &l.Metrics }
func (l *LanguageMetrics) LanguageSlices() []Slice { return nil }
func (l *LanguageMetrics) NoteSlices() []Slice     { return leafSlices(l.Notes) }

// Summary is the result of aggregating a set of units.
type Summary struct {
	Metrics
	Languages *orderedmap.OrderedMap[string, *LanguageMetrics] `json:"languages"`
	Notes     *orderedmap.OrderedMap[string, *Metrics]         `json:"audio_notes"`
}

// Aggregate sums units into a [Summary]: totals over all units, per language
// (with per-note totals inside each language), and per note. It is the only
// summation used for files, corpora, and ad-hoc selections.
func Aggregate(units []Unit) *Summary {
	s := &Summary{
		Metrics:   sum(scopesOf(units)),
		Languages: orderedmap.New[string, *LanguageMetrics](),
		Notes:     sumGroups(groupSlices(units, Unit.NoteSlices)),
	}
	langs := groupSlices(units, Unit.LanguageSlices)
	for p := langs.Oldest(); p != nil; p = p.Next() {
		s.Languages.Set(p.Key, &LanguageMetrics{
			Metrics: sum(scopesOf(p.Value)),
			Notes:   sumGroups(groupSlices(p.Value, Unit.NoteSlices)),
		})
	}
	return s
}

func scopesOf(units []Unit) []*Metrics {
	out := make([]*Metrics, len(units))
	for i, u := range units {
		out[i] = u.Scopes()
	}
	return out
}

// groupSlices collects, per key, every unit slice under that key. Keys are
// inserted on first sight so the result follows input order.
func groupSlices(units []Unit, slicesOf func(Unit) []Slice) *orderedmap.OrderedMap[string, []Unit] {
	groups := orderedmap.New[string, []Unit]()
	for _, u := range units {
		for _, s := range slicesOf(u) {
			members, _ := groups.Get(s.Key)
			groups.Set(s.Key, append(members, s.Unit))
		}
	}
	return groups
}

func sumGroups(groups *orderedmap.OrderedMap[string, []Unit]) *orderedmap.OrderedMap[string, *Metrics] {
	out := orderedmap.New[string, *Metrics]()
	for p := groups.Oldest(); p != nil; p = p.Next() {
		m := sum(scopesOf(p.Value))
		out.Set(p.Key, &m)
	}
	return out
}

// UtteranceMetrics are the metrics of a single aligned utterance.
type UtteranceMetrics struct {
	ID        string `json:"-"`
	Language  string `json:"language"`
	Note      string `json:"audio_note"`
	SpeakerID string `json:"speaker,omitempty"`
	Metrics

	// Log is the flat operation log in reference order. It is exported
	// separately as CSV.
	Log []align.LogRow `json:"-"`
}

// NewUtteranceMetrics computes the metrics of u from its backtrace.
func NewUtteranceMetrics(u *types.Utterance, bt *align.Backtrace) *UtteranceMetrics {
	return &UtteranceMetrics{
		ID:        u.ID,
		Language:  u.Language,
		Note:      u.Note,
		SpeakerID: u.SpeakerID,
		Metrics:   fromBacktrace(bt),
		Log:       bt.Log,
	}
}

func (u *UtteranceMetrics) Scopes() *Metrics { return &u.Metrics }

func (u *UtteranceMetrics) LanguageSlices() []Slice {
	return []Slice{{Key: u.Language, Unit: u}}
}

func (u *UtteranceMetrics) NoteSlices() []Slice {
	return []Slice{{Key: u.Note, Unit: u}}
}

// FileMetrics are the metrics of one recording.
type FileMetrics struct {
	Name string `json:"-"`
	Summary
	Utterances *orderedmap.OrderedMap[string, *UtteranceMetrics] `json:"utterances"`
}

// NewFileMetrics aggregates the utterances of one recording, keyed by
// utterance ID in reference order.
func NewFileMetrics(name string, utterances *orderedmap.OrderedMap[string, *UtteranceMetrics]) *FileMetrics {
	units := make([]Unit, 0, utterances.Len())
	for p := utterances.Oldest(); p != nil; p = p.Next() {
		units = append(units, p.Value)
	}
	return &FileMetrics{
		Name:       name,
		Summary:    *Aggregate(units),
		Utterances: utterances,
	}
}

func (f *FileMetrics) Scopes() *Metrics { return &f.Metrics }

func (f *FileMetrics) LanguageSlices() []Slice {
	out := make([]Slice, 0, f.Languages.Len())
	for p := f.Languages.Oldest(); p != nil; p = p.Next() {
		out = append(out, Slice{Key: p.Key, Unit: p.Value})
	}
	return out
}

func (f *FileMetrics) NoteSlices() []Slice { return leafSlices(f.Notes) }

// Log returns the operation logs of every utterance of f, concatenated in
// utterance order.
func (f *FileMetrics) Log() []align.LogRow {
	var rows []align.LogRow
	for p := f.Utterances.Oldest(); p != nil; p = p.Next() {
		rows = append(rows, p.Value.Log...)
	}
	return rows
}

// CorpusMetrics are the metrics of a whole evaluation run.
type CorpusMetrics struct {
	Summary
	Files *orderedmap.OrderedMap[string, *FileMetrics] `json:"files"`
}

// NewCorpusMetrics aggregates files, keyed by file name.
func NewCorpusMetrics(files *orderedmap.OrderedMap[string, *FileMetrics]) *CorpusMetrics {
	units := make([]Unit, 0, files.Len())
	for p := files.Oldest(); p != nil; p = p.Next() {
		units = append(units, p.Value)
	}
	return &CorpusMetrics{Summary: *Aggregate(units), Files: files}
}

// Selection restricts a re-aggregation. Empty fields select everything.
//
// Notes selects file-level note slices, which are not split by language. A
// selection with Notes but no Languages therefore yields a [Summary] whose
// Languages map is empty; add Languages to get per-language totals restricted
// to those notes.
type Selection struct {
	Files     []string `json:"files,omitempty"`
	Languages []string `json:"languages,omitempty"`
	Notes     []string `json:"notes,omitempty"`
	EventTags []string `json:"event_tags,omitempty"`
}

func selected(filter []string, key string) bool {
	return len(filter) == 0 || slices.Contains(filter, key)
}

// Reslice re-aggregates the already computed file metrics of c restricted to
// sel. Selecting notes without languages drops the per-language breakdown,
// since file-level note slices are not split by language.
func Reslice(c *CorpusMetrics, sel Selection) *Summary {
	var units []Unit
	for p := c.Files.Oldest(); p != nil; p = p.Next() {
		f := p.Value
		if !selected(sel.Files, p.Key) {
			continue
		}
		switch {
		case len(sel.Languages) > 0:
			for lp := f.Languages.Oldest(); lp != nil; lp = lp.Next() {
				if !selected(sel.Languages, lp.Key) {
					continue
				}
				units = append(units, languageUnits(lp.Key, lp.Value, sel.Notes)...)
			}
		case len(sel.Notes) > 0:
			for np := f.Notes.Oldest(); np != nil; np = np.Next() {
				if selected(sel.Notes, np.Key) {
					leaf := node{metrics: np.Value}
					units = append(units, node{metrics: np.Value, notes: []Slice{{Key: np.Key, Unit: leaf}}})
				}
			}
		default:
			units = append(units, f)
		}
	}

	s := Aggregate(units)
	if len(sel.EventTags) > 0 {
		s.keepEventTags(sel.EventTags)
	}
	return s
}

// languageUnits returns the units of one language slice of a file, optionally
// narrowed to notes.
func languageUnits(lang string, l *LanguageMetrics, notes []string) []Unit {
	if len(notes) == 0 {
		return []Unit{node{
			metrics:   &l.Metrics,
			languages: []Slice{{Key: lang, Unit: l}},
			notes:     l.NoteSlices(),
		}}
	}
	var units []Unit
	for np := l.Notes.Oldest(); np != nil; np = np.Next() {
		if !selected(notes, np.Key) {
			continue
		}
		noteSlice := []Slice{{Key: np.Key, Unit: node{metrics: np.Value}}}
		units = append(units, node{
			metrics:   np.Value,
			languages: []Slice{{Key: lang, Unit: node{metrics: np.Value, notes: noteSlice}}},
			notes:     noteSlice,
		})
	}
	return units
}

func (m *Metrics) keepEventTags(keys []string) {
	kept := orderedmap.New[string, Scope]()
	for p := m.EventTags.Oldest(); p != nil; p = p.Next() {
		if slices.Contains(keys, p.Key) {
			kept.Set(p.Key, p.Value)
		}
	}
	m.EventTags = kept
}

func (s *Summary) keepEventTags(keys []string) {
	s.Metrics.keepEventTags(keys)
	for p := s.Languages.Oldest(); p != nil; p = p.Next() {
		p.Value.Metrics.keepEventTags(keys)
		for np := p.Value.Notes.Oldest(); np != nil; np = np.Next() {
			np.Value.keepEventTags(keys)
		}
	}
	for p := s.Notes.Oldest(); p != nil; p = p.Next() {
		p.Value.keepEventTags(keys)
	}
}
