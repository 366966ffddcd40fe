package store

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/asreval/internal/metrics"
)

// ErrUnavailable is returned by a [Guarded] store while its breaker is open.
var ErrUnavailable = errors.New("store: backend unavailable")

// BreakerState is the operating mode of a [Breaker].
type BreakerState int

const (
	// BreakerClosed forwards every call.
	BreakerClosed BreakerState = iota

	// BreakerOpen rejects calls until the reset timeout elapses.
	BreakerOpen

	// BreakerHalfOpen lets a limited number of probe calls through.
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig tunes a [Breaker]. Zero fields take defaults.
type BreakerConfig struct {
	// MaxFailures opens the breaker after this many consecutive failures.
	// Default: 5.
	MaxFailures int

	// ResetTimeout is how long the breaker stays open. Default: 30s.
	ResetTimeout time.Duration

	// HalfOpenMax is the number of successful probes needed to close again.
	// Default: 3.
	HalfOpenMax int
}

// Breaker is a three-state circuit breaker for backend calls. Not-found
// results and caller cancellations are not counted as backend failures.
type Breaker struct {
	maxFailures  int
	resetTimeout time.Duration
	halfOpenMax  int
	now          func() time.Time

	mu          sync.Mutex
	state       BreakerState
	failures    int
	lastFailure time.Time
	probes      int
}

// NewBreaker returns a closed Breaker.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = 3
	}
	return &Breaker{
		maxFailures:  cfg.MaxFailures,
		resetTimeout: cfg.ResetTimeout,
		halfOpenMax:  cfg.HalfOpenMax,
		now:          time.Now,
	}
}

// Do runs fn unless the breaker is open, in which case it returns
// [ErrUnavailable] without calling fn.
func (b *Breaker) Do(fn func() error) error {
	b.mu.Lock()
	switch b.state {
	case BreakerOpen:
		if b.now().Sub(b.lastFailure) < b.resetTimeout {
			b.mu.Unlock()
			return ErrUnavailable
		}
		b.state = BreakerHalfOpen
		b.probes = 0
		slog.Info("store: breaker half-open")
	case BreakerHalfOpen:
		if b.probes >= b.halfOpenMax {
			b.mu.Unlock()
			return ErrUnavailable
		}
	}
	probing := b.state == BreakerHalfOpen
	if probing {
		b.probes++
	}
	b.mu.Unlock()

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()
	if countsAsFailure(err) {
		b.fail(probing)
	} else {
		b.succeed(probing)
	}
	return err
}

func countsAsFailure(err error) bool {
	return err != nil &&
		!errors.Is(err, ErrNotFound) &&
		!errors.Is(err, context.Canceled)
}

// fail must be called with b.mu held.
func (b *Breaker) fail(probing bool) {
	b.lastFailure = b.now()
	if probing {
		b.state = BreakerOpen
		slog.Warn("store: breaker re-opened")
		return
	}
	b.failures++
	if b.failures >= b.maxFailures && b.state == BreakerClosed {
		b.state = BreakerOpen
		slog.Warn("store: breaker opened", "consecutive_failures", b.failures)
	}
}

// succeed must be called with b.mu held.
func (b *Breaker) succeed(probing bool) {
	if !probing {
		b.failures = 0
		return
	}
	if b.probes >= b.halfOpenMax {
		b.state = BreakerClosed
		b.failures = 0
		b.probes = 0
		slog.Info("store: breaker closed")
	}
}

// State returns the current state. An open breaker past its reset timeout
// reports half-open.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == BreakerOpen && b.now().Sub(b.lastFailure) >= b.resetTimeout {
		return BreakerHalfOpen
	}
	return b.state
}

var _ Store = (*Guarded)(nil)

// Guarded is a [Store] whose calls go through a [Breaker], so an unreachable
// database fails requests fast instead of tying up handlers.
type Guarded struct {
	next    Store
	breaker *Breaker
}

// Guard wraps next with b.
func Guard(next Store, b *Breaker) *Guarded {
	return &Guarded{next: next, breaker: b}
}

// Save implements [Store.Save].
func (g *Guarded) Save(ctx context.Context, name string, c *metrics.CorpusMetrics) (r Run, err error) {
	err = g.breaker.Do(func() error {
		r, err = g.next.Save(ctx, name, c)
		return err
	})
	return r, err
}

// Get implements [Store.Get].
func (g *Guarded) Get(ctx context.Context, id string) (c *metrics.CorpusMetrics, r Run, err error) {
	err = g.breaker.Do(func() error {
		c, r, err = g.next.Get(ctx, id)
		return err
	})
	return c, r, err
}

// List implements [Store.List].
func (g *Guarded) List(ctx context.Context, limit int) (runs []Run, err error) {
	err = g.breaker.Do(func() error {
		runs, err = g.next.List(ctx, limit)
		return err
	})
	return runs, err
}

// Delete implements [Store.Delete].
func (g *Guarded) Delete(ctx context.Context, id string) error {
	return g.breaker.Do(func() error { return g.next.Delete(ctx, id) })
}
