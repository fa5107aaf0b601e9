// Package breaker implements a circuit breaker over outbound upstream
// calls. After repeated systemic failures the circuit opens and calls are
// rejected without touching the upstream, until a recovery timeout elapses
// and a limited number of trial calls probe whether it has recovered.
package breaker

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrOpen is returned by Call when the circuit is open and the call was
// rejected without invoking the function.
var ErrOpen = errors.New("breaker: circuit open")

// State is the circuit breaker state.
type State string

const (
	// StateClosed passes calls through while counting failures.
	StateClosed State = "closed"
	// StateOpen rejects calls immediately.
	StateOpen State = "open"
	// StateHalfOpen allows a bounded number of trial calls.
	StateHalfOpen State = "half_open"
)

// Config holds circuit breaker tuning.
type Config struct {
	// FailureThreshold is the number of consecutive failures in CLOSED
	// state that opens the circuit.
	FailureThreshold int
	// SuccessThreshold is the number of consecutive HALF_OPEN successes
	// required to close the circuit again.
	SuccessThreshold int
	// RecoveryTimeout is how long the circuit stays OPEN before trial
	// calls are admitted.
	RecoveryTimeout time.Duration
	// HalfOpenMaxCalls bounds concurrent trial calls in HALF_OPEN.
	HalfOpenMaxCalls int
	// IsFailure classifies an error from the guarded call. Errors for
	// which it returns false (permanent per-item errors, validation
	// failures) never trip the breaker. A nil IsFailure counts every
	// non-nil error.
	IsFailure func(error) bool
}

// DefaultConfig matches the upstream quota behaviour this pipeline was
// tuned against: open after 5 consecutive systemic failures, probe after
// 30 seconds, close after 2 clean trials.
var DefaultConfig = Config{
	FailureThreshold: 5,
	SuccessThreshold: 2,
	RecoveryTimeout:  30 * time.Second,
	HalfOpenMaxCalls: 1,
}

// Breaker guards calls to a single upstream target. State is process-wide
// per target and not persisted across restarts. All transitions happen
// under one mutex, so concurrent callers never observe a torn state.
type Breaker struct {
	mu  sync.Mutex
	cfg Config

	state     State
	failures  int
	successes int
	openedAt  time.Time
	inFlight  int // trial calls currently running in HALF_OPEN

	// generation increments every time the circuit opens. Outcomes of
	// calls admitted in an earlier generation are stale and discarded,
	// so a slow call from before an open cannot consume a trial slot or
	// count toward closing the circuit.
	generation uint64

	now func() time.Time
}

// New creates a closed breaker. Zero config fields fall back to
// DefaultConfig values.
func New(cfg Config) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultConfig.FailureThreshold
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = DefaultConfig.SuccessThreshold
	}
	if cfg.RecoveryTimeout <= 0 {
		cfg.RecoveryTimeout = DefaultConfig.RecoveryTimeout
	}
	if cfg.HalfOpenMaxCalls <= 0 {
		cfg.HalfOpenMaxCalls = DefaultConfig.HalfOpenMaxCalls
	}
	return &Breaker{
		cfg:   cfg,
		state: StateClosed,
		now:   time.Now,
	}
}

// Call executes fn if the gate admits traffic, otherwise returns ErrOpen
// without invoking fn. fn's error is returned unchanged; whether it counts
// as a breaker failure is decided by the configured IsFailure.
func (b *Breaker) Call(ctx context.Context, fn func(context.Context) error) error {
	gen, err := b.admit()
	if err != nil {
		return err
	}
	err = fn(ctx)
	b.record(gen, err)
	return err
}

// State returns the current circuit state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.currentState()
}

// RetryAfter returns how long until the open circuit admits a trial call.
// Zero when traffic is already admitted.
func (b *Breaker) RetryAfter() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.currentState() != StateOpen {
		return 0
	}
	return b.openedAt.Add(b.cfg.RecoveryTimeout).Sub(b.now())
}

// admit decides whether a call may proceed, transitioning OPEN to
// HALF_OPEN when the recovery timeout has elapsed. It returns the
// generation the call was admitted under.
func (b *Breaker) admit() (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.currentState() {
	case StateClosed:
		return b.generation, nil
	case StateOpen:
		return b.generation, ErrOpen
	default: // StateHalfOpen
		if b.inFlight >= b.cfg.HalfOpenMaxCalls {
			return b.generation, ErrOpen
		}
		b.inFlight++
		return b.generation, nil
	}
}

// record applies the call outcome to the state machine.
func (b *Breaker) record(gen uint64, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if gen != b.generation {
		// The circuit opened after this call was admitted. The outcome
		// belongs to a dead generation; it never held a trial slot in
		// the current one.
		return
	}

	failed := err != nil
	if failed && b.cfg.IsFailure != nil {
		failed = b.cfg.IsFailure(err)
	}

	switch b.currentState() {
	case StateClosed:
		if !failed {
			b.failures = 0
			return
		}
		b.failures++
		if b.failures >= b.cfg.FailureThreshold {
			b.open()
		}

	case StateHalfOpen:
		b.inFlight--
		if failed {
			// One trial failure reopens the circuit.
			b.open()
			return
		}
		b.successes++
		if b.successes >= b.cfg.SuccessThreshold {
			b.close()
		}

	case StateOpen:
		// Unreachable for a same-generation call: opening the circuit
		// bumps the generation, so late outcomes are filtered above.
	}
}

// currentState resolves the lazy OPEN -> HALF_OPEN transition.
// Caller must hold the mutex.
func (b *Breaker) currentState() State {
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.cfg.RecoveryTimeout {
		b.state = StateHalfOpen
		b.successes = 0
		b.inFlight = 0
	}
	return b.state
}

func (b *Breaker) open() {
	b.state = StateOpen
	b.openedAt = b.now()
	b.failures = 0
	b.successes = 0
	b.inFlight = 0
	b.generation++
}

func (b *Breaker) close() {
	b.state = StateClosed
	b.failures = 0
	b.successes = 0
	b.inFlight = 0
}
