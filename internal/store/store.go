// Package store keeps snapshots of evaluated corpora so they can be
// re-sliced later without re-running alignment.
package store

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/asreval/internal/metrics"
)

// ErrNotFound is returned when no run has the requested ID.
var ErrNotFound = errors.New("store: run not found")

// Run describes one stored corpus snapshot.
type Run struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Files     int       `json:"files"`
	WER       float64   `json:"wer"`
	CreatedAt time.Time `json:"created_at"`
}

// Store persists corpus snapshots. Implementations must be safe for
// concurrent use.
type Store interface {
	// Save stores c under a new run ID.
	Save(ctx context.Context, name string, c *metrics.CorpusMetrics) (Run, error)

	// Get returns the snapshot of run id, or [ErrNotFound].
	Get(ctx context.Context, id string) (*metrics.CorpusMetrics, Run, error)

	// List returns up to limit runs, newest first. A limit of zero or less
	// returns every run.
	List(ctx context.Context, limit int) ([]Run, error)

	// Delete removes run id. Deleting an unknown run is not an error.
	Delete(ctx context.Context, id string) error
}

func newRun(name string, c *metrics.CorpusMetrics, now time.Time) Run {
	return Run{
		ID:        uuid.NewString(),
		Name:      name,
		Files:     c.Files.Len(),
		WER:       c.OverallText.Totals.WER,
		CreatedAt: now.UTC(),
	}
}

var _ Store = (*MemStore)(nil)

// MemStore is an in-memory [Store]. The zero value is ready to use.
type MemStore struct {
	mu   sync.RWMutex
	runs map[string]memRun
}

type memRun struct {
	run    Run
	corpus *metrics.CorpusMetrics
}

// NewMemStore returns an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{runs: make(map[string]memRun)}
}

// Save implements [Store.Save]. The snapshot is kept by reference and must
// not be modified afterwards.
func (s *MemStore) Save(_ context.Context, name string, c *metrics.CorpusMetrics) (Run, error) {
	r := newRun(name, c, time.Now())

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runs == nil {
		s.runs = make(map[string]memRun)
	}
	s.runs[r.ID] = memRun{run: r, corpus: c}
	return r, nil
}

// Get implements [Store.Get].
func (s *MemStore) Get(_ context.Context, id string) (*metrics.CorpusMetrics, Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	mr, ok := s.runs[id]
	if !ok {
		return nil, Run{}, ErrNotFound
	}
	return mr.corpus, mr.run, nil
}

// List implements [Store.List].
func (s *MemStore) List(_ context.Context, limit int) ([]Run, error) {
	s.mu.RLock()
	runs := make([]Run, 0, len(s.runs))
	for _, mr := range s.runs {
		runs = append(runs, mr.run)
	}
	s.mu.RUnlock()

	slices.SortFunc(runs, func(a, b Run) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

// Delete implements [Store.Delete].
func (s *MemStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.runs, id)
	return nil
}
