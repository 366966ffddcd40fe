// Package report writes evaluation results to disk: one backtrace CSV per
// recording, the corpus metrics as JSON, and a ranked confusion table.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/MrWong99/asreval/internal/align"
	"github.com/MrWong99/asreval/internal/metrics"
	"github.com/MrWong99/asreval/internal/phonetic"
)

// File names produced by [Writer.WriteAll].
const (
	CorpusFile     = "Corpus_Metrics.json"
	ConfusionsFile = "Confusions.csv"
	backtraceExt   = "_Backtrace.csv"
)

// BacktraceFile returns the backtrace CSV name of the named recording.
func BacktraceFile(name string) string {
	return name + backtraceExt
}

// WriteBacktrace writes rows as CSV preceded by [align.LogHeader].
func WriteBacktrace(w io.Writer, rows []align.LogRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(align.LogHeader); err != nil {
		return fmt.Errorf("report: write backtrace header: %w", err)
	}
	for _, r := range rows {
		if err := cw.Write(r.Record()); err != nil {
			return fmt.Errorf("report: write backtrace row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("report: flush backtrace: %w", err)
	}
	return nil
}

// WriteCorpus writes c as indented JSON.
func WriteCorpus(w io.Writer, c *metrics.CorpusMetrics) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(c); err != nil {
		return fmt.Errorf("report: encode corpus: %w", err)
	}
	return nil
}

// ReadCorpus parses corpus metrics written by [WriteCorpus]. File names and
// utterance IDs are restored from their map keys; operation logs are not part
// of the JSON and stay empty.
func ReadCorpus(r io.Reader) (*metrics.CorpusMetrics, error) {
	var c metrics.CorpusMetrics
	if err := json.NewDecoder(r).Decode(&c); err != nil {
		return nil, fmt.Errorf("report: decode corpus: %w", err)
	}
	if c.Files == nil {
		return nil, fmt.Errorf("report: decode corpus: no files")
	}
	for p := c.Files.Oldest(); p != nil; p = p.Next() {
		if p.Value == nil {
			return nil, fmt.Errorf("report: decode corpus: file %q is null", p.Key)
		}
		p.Value.Name = p.Key
		if p.Value.Utterances == nil {
			continue
		}
		for u := p.Value.Utterances.Oldest(); u != nil; u = u.Next() {
			if u.Value != nil {
				u.Value.ID = u.Key
			}
		}
	}
	return &c, nil
}

// Option configures a [Writer].
type Option func(*Writer)

// WithConfusionsTop limits the confusion table to the n most frequent
// substitutions. Zero or less keeps all.
func WithConfusionsTop(n int) Option {
	return func(w *Writer) { w.top = n }
}

// WithScorer sets the phonetic scorer used for the confusion table.
func WithScorer(s *phonetic.Scorer) Option {
	return func(w *Writer) { w.scorer = s }
}

// Writer writes every report of a run into one directory.
type Writer struct {
	dir    string
	top    int
	scorer *phonetic.Scorer
}

// NewWriter returns a Writer targeting dir.
func NewWriter(dir string, opts ...Option) *Writer {
	w := &Writer{dir: dir}
	for _, o := range opts {
		o(w)
	}
	if w.scorer == nil {
		w.scorer = phonetic.New()
	}
	return w
}

// WriteAll creates the output directory and writes the backtrace of every
// file, the corpus JSON and the confusion table.
func (w *Writer) WriteAll(c *metrics.CorpusMetrics) error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("report: create %q: %w", w.dir, err)
	}

	for p := c.Files.Oldest(); p != nil; p = p.Next() {
		rows := p.Value.Log()
		if err := w.create(BacktraceFile(p.Key), func(f io.Writer) error {
			return WriteBacktrace(f, rows)
		}); err != nil {
			return err
		}
	}
	if err := w.create(CorpusFile, func(f io.Writer) error {
		return WriteCorpus(f, c)
	}); err != nil {
		return err
	}
	conf := Confusions(c.OverallText, w.scorer, w.top)
	if err := w.create(ConfusionsFile, func(f io.Writer) error {
		return WriteConfusions(f, conf)
	}); err != nil {
		return err
	}

	slog.Info("report: written", "dir", w.dir, "files", c.Files.Len(), "confusions", len(conf))
	return nil
}

func (w *Writer) create(name string, write func(io.Writer) error) (err error) {
	path := filepath.Join(w.dir, name)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("report: create %q: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("report: close %q: %w", path, cerr)
		}
	}()
	return write(f)
}
