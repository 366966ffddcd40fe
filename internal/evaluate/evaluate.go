// Package evaluate runs the alignment pipeline over a corpus.
//
// Work is split into independent units at two levels: the utterances of a
// recording and the recordings of a corpus. Both levels fan out, but every
// alignment takes a slot from one semaphore owned by the [Evaluator], so at
// most the configured number of alignments run at once across the whole run.
// Results are collected by position and keyed in reference order only after
// every unit of a level has completed, so aggregation never sees a partial
// level and its output does not depend on scheduling.
//
// Any utterance failure aborts the whole run; there is no partial corpus.
package evaluate

import (
	"context"
	"fmt"
	"runtime"
	"time"

	orderedmap "github.com/wk8/go-ordered-map/v2"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/MrWong99/asreval/internal/align"
	"github.com/MrWong99/asreval/internal/corpus"
	"github.com/MrWong99/asreval/internal/filter"
	"github.com/MrWong99/asreval/internal/metrics"
	"github.com/MrWong99/asreval/internal/observe"
	"github.com/MrWong99/asreval/pkg/types"
)

// Option configures an [Evaluator].
type Option func(*Evaluator)

// WithWorkers bounds the number of alignments running concurrently, shared
// by all files of a corpus. Values below one are ignored.
func WithWorkers(n int) Option {
	return func(e *Evaluator) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithAlignment sets the aligner configuration.
func WithAlignment(cfg align.Config) Option {
	return func(e *Evaluator) { e.align = cfg }
}

// WithFilter sets the token filter applied to both streams before alignment.
func WithFilter(f *filter.Filter) Option {
	return func(e *Evaluator) { e.filter = f }
}

// WithMetrics sets the instruments the evaluator records to.
func WithMetrics(m *observe.Metrics) Option {
	return func(e *Evaluator) { e.metrics = m }
}

// Evaluator aligns and scores utterances, recordings and corpora. It holds
// no per-run state and is safe for concurrent use.
type Evaluator struct {
	workers int
	slots   *semaphore.Weighted
	align   align.Config
	filter  *filter.Filter
	metrics *observe.Metrics
}

// New returns an Evaluator. Without options it uses one worker per CPU, the
// default aligner configuration, a filter that drops punctuation, and
// [observe.DefaultMetrics].
func New(opts ...Option) *Evaluator {
	e := &Evaluator{
		workers: runtime.GOMAXPROCS(0),
		align:   align.DefaultConfig(),
		filter:  filter.New(filter.Options{Punctuation: true}),
	}
	for _, o := range opts {
		o(e)
	}
	e.slots = semaphore.NewWeighted(int64(e.workers))
	if e.metrics == nil {
		e.metrics = observe.DefaultMetrics()
	}
	return e
}

// EvaluateUtterance aligns hyp against the tokens of ref and computes its
// metrics. It blocks until a worker slot is free or ctx is done. Alignment
// failures are returned as [*align.UtteranceError].
func (e *Evaluator) EvaluateUtterance(ctx context.Context, ref types.Utterance, hyp []types.Token) (*metrics.UtteranceMetrics, error) {
	if err := e.slots.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer e.slots.Release(1)

	start := time.Now()
	ref = e.filter.Utterance(ref)
	hyp = e.filter.Tokens(ref.Language, hyp)

	um, err := e.score(ref, hyp)
	wer := 0.0
	if err == nil {
		wer = um.OverallText.Totals.WER
		for _, k := range align.Kinds {
			e.metrics.RecordOperations(ctx, k.String(), countOf(um.OverallText.Totals, k))
		}
	}
	e.metrics.RecordUtterance(ctx, ref.Language, time.Since(start), wer, err)
	if err != nil {
		return nil, &align.UtteranceError{ID: ref.ID, Err: err}
	}
	return um, nil
}

func (e *Evaluator) score(ref types.Utterance, hyp []types.Token) (*metrics.UtteranceMetrics, error) {
	m, err := align.Align(e.align, ref.Tokens, hyp)
	if err != nil {
		return nil, err
	}
	bt, err := align.Trace(m)
	if err != nil {
		return nil, err
	}
	return metrics.NewUtteranceMetrics(&ref, bt), nil
}

func countOf(t metrics.Totals, k align.OpKind) int {
	switch k {
	case align.OpCorrect:
		return t.Cor
	case align.OpSubstitution:
		return t.Sub
	case align.OpInsertion:
		return t.Ins
	case align.OpDeletion:
		return t.Del
	}
	return 0
}

// EvaluateFile evaluates every reference utterance of p against its
// hypothesis counterpart and rolls them up.
func (e *Evaluator) EvaluateFile(ctx context.Context, p corpus.FilePair) (fm *metrics.FileMetrics, err error) {
	start := time.Now()
	ctx, span := observe.StartSpan(ctx, "evaluate.file", "file", p.Name)
	defer func() {
		e.metrics.RecordFile(ctx, time.Since(start), err)
		observe.EndSpan(span, err)
	}()
	log := observe.Logger(ctx).With("file", p.Name)

	pairs, unmatched := p.Utterances()
	if len(unmatched) > 0 {
		log.Warn("evaluate: hypothesis utterances without reference ignored", "count", len(unmatched), "ids", unmatched)
	}

	results := make([]*metrics.UtteranceMetrics, len(pairs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i, up := range pairs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			um, err := e.EvaluateUtterance(gctx, up.Reference, up.Hypothesis)
			if err != nil {
				return err
			}
			results[i] = um
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("evaluate: file %q: %w", p.Name, err)
	}

	utterances := orderedmap.New[string, *metrics.UtteranceMetrics]()
	for _, um := range results {
		utterances.Set(um.ID, um)
	}
	fm = metrics.NewFileMetrics(p.Name, utterances)
	log.Debug("evaluate: file done",
		"utterances", utterances.Len(),
		"wer", fm.OverallText.Totals.WER,
		"duration", time.Since(start),
	)
	return fm, nil
}

// EvaluateCorpus evaluates every file pair and rolls them up into corpus
// metrics keyed by file name in input order. Duplicate file names are an
// error.
func (e *Evaluator) EvaluateCorpus(ctx context.Context, pairs []corpus.FilePair) (*metrics.CorpusMetrics, error) {
	ctx, span := observe.StartSpan(ctx, "evaluate.corpus")
	var err error
	defer func() { observe.EndSpan(span, err) }()

	seen := make(map[string]struct{}, len(pairs))
	for _, p := range pairs {
		if _, dup := seen[p.Name]; dup {
			err = fmt.Errorf("evaluate: duplicate file %q", p.Name)
			return nil, err
		}
		seen[p.Name] = struct{}{}
	}

	results := make([]*metrics.FileMetrics, len(pairs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i, p := range pairs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			fm, err := e.EvaluateFile(gctx, p)
			if err != nil {
				return err
			}
			results[i] = fm
			return nil
		})
	}
	if err = g.Wait(); err != nil {
		return nil, err
	}

	files := orderedmap.New[string, *metrics.FileMetrics]()
	for _, fm := range results {
		files.Set(fm.Name, fm)
	}
	c := metrics.NewCorpusMetrics(files)
	observe.Logger(ctx).Info("evaluate: corpus done",
		"files", files.Len(),
		"wer", c.OverallText.Totals.WER,
	)
	return c, nil
}
