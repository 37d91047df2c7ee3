// Package circuitbreaker provides a fail-fast guard for storage operations.
// When the backing store is down, repeated payment deliveries would otherwise
// pile up on a dead connection pool; the breaker rejects them immediately
// until a cooldown elapses, and the upstream gateway redelivers later.
package circuitbreaker

import (
	"errors"
	"sync"
	"time"
)

// State represents the breaker state.
type State int

const (
	Closed   State = iota // Normal operation — calls pass through.
	Open                  // Failing — calls are rejected immediately.
	HalfOpen              // Cooldown elapsed — a single probe call is allowed.
)

// ErrCircuitOpen is returned when a call is rejected without being attempted.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// Breaker opens after maxFailures consecutive failures and allows a single
// probe call after resetTimeout. Errors matching an ignored sentinel are
// treated as successful outcomes: a duplicate payment event is a domain
// verdict, not a storage failure, and must never trip the breaker.
type Breaker struct {
	mu           sync.Mutex
	state        State
	consecutive  int
	maxFailures  int
	resetTimeout time.Duration
	openedAt     time.Time
	probing      bool
	ignored      []error
}

// Option configures a Breaker.
type Option func(*Breaker)

// WithIgnored registers sentinel errors that do not count as failures.
// Matching uses errors.Is, so wrapped sentinels are recognized.
func WithIgnored(errs ...error) Option {
	return func(b *Breaker) {
		b.ignored = append(b.ignored, errs...)
	}
}

// New creates a Breaker.
func New(maxFailures int, resetTimeout time.Duration, opts ...Option) *Breaker {
	b := &Breaker{
		state:        Closed,
		maxFailures:  maxFailures,
		resetTimeout: resetTimeout,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Execute runs fn through the breaker. If the circuit is open and the
// cooldown has not elapsed, ErrCircuitOpen is returned without calling fn.
// While a half-open probe is in flight, concurrent calls are also rejected.
func (b *Breaker) Execute(fn func() error) error {
	b.mu.Lock()
	switch b.state {
	case Open:
		if time.Since(b.openedAt) <= b.resetTimeout {
			b.mu.Unlock()
			return ErrCircuitOpen
		}
		b.state = HalfOpen
		b.probing = true
	case HalfOpen:
		if b.probing {
			b.mu.Unlock()
			return ErrCircuitOpen
		}
		b.probing = true
	}
	b.mu.Unlock()

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()
	b.probing = false

	if err != nil && !b.isIgnored(err) {
		b.consecutive++
		if b.state == HalfOpen || b.consecutive >= b.maxFailures {
			b.state = Open
			b.openedAt = time.Now()
		}
		return err
	}

	b.consecutive = 0
	b.state = Closed
	return err
}

func (b *Breaker) isIgnored(err error) bool {
	for _, sentinel := range b.ignored {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}

// State returns the current breaker state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
