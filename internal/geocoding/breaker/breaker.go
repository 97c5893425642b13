// Package breaker implements a per-provider circuit breaker with a
// half-open trial state. One breaker instance guards one upstream vendor;
// instances are never shared across service instances.
package breaker

import (
	"context"
	"errors"
	"sync"
	"time"
)

// State is the breaker state.
type State int

const (
	// StateClosed passes calls through and counts consecutive failures.
	StateClosed State = iota
	// StateOpen fails fast without invoking the wrapped operation.
	StateOpen
	// StateHalfOpen admits exactly one concurrent trial call.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// ErrOpen is returned when the breaker rejects a call without invoking the
// wrapped operation.
var ErrOpen = errors.New("circuit breaker is open")

// Classifier decides whether an error counts as a breaker-relevant failure.
type Classifier func(error) bool

// TransitionFunc observes state changes. It must not block.
type TransitionFunc func(name string, from, to State, failureCount int)

// Options configures a Breaker.
type Options struct {
	// Name identifies the guarded provider in transitions.
	Name string
	// FailureThreshold is the number of consecutive matching failures that
	// opens the breaker.
	FailureThreshold int
	// RecoveryTimeout is how long the breaker stays open before admitting a
	// trial call.
	RecoveryTimeout time.Duration
	// IsFailure classifies errors; nil counts every non-nil error.
	IsFailure Classifier
	// OnTransition is invoked after each state change, outside the lock.
	OnTransition TransitionFunc
	// Now is the clock; nil uses time.Now. Tests inject a fake.
	Now func() time.Time
}

// Breaker is a circuit breaker. All state transitions happen under a single
// mutex so concurrent failures cannot double-count or flap.
type Breaker struct {
	mu            sync.Mutex
	state         State
	failures      int
	openedAt      time.Time
	trialInFlight bool

	name         string
	threshold    int
	recovery     time.Duration
	isFailure    Classifier
	onTransition TransitionFunc
	now          func() time.Time
}

// New creates a closed breaker.
func New(opts Options) *Breaker {
	if opts.FailureThreshold < 1 {
		opts.FailureThreshold = 1
	}
	if opts.IsFailure == nil {
		opts.IsFailure = func(err error) bool { return err != nil }
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Breaker{
		state:        StateClosed,
		name:         opts.Name,
		threshold:    opts.FailureThreshold,
		recovery:     opts.RecoveryTimeout,
		isFailure:    opts.IsFailure,
		onTransition: opts.OnTransition,
		now:          opts.Now,
	}
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// FailureCount returns the current consecutive failure count.
func (b *Breaker) FailureCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}

// Execute runs op under the breaker. When the breaker is open (and the
// recovery timeout has not elapsed) it returns ErrOpen without invoking op.
// When the timeout has elapsed, exactly one caller is admitted as a trial;
// concurrent callers keep failing fast until the trial settles.
func (b *Breaker) Execute(ctx context.Context, op func(context.Context) error) error {
	trial, err := b.admit()
	if err != nil {
		return err
	}

	opErr := op(ctx)
	b.settle(trial, opErr)
	return opErr
}

// admit decides whether a call may proceed, returning whether it runs as a
// half-open trial.
func (b *Breaker) admit() (trial bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return false, nil
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.recovery {
			return false, ErrOpen
		}
		b.transition(StateHalfOpen)
		b.trialInFlight = true
		return true, nil
	case StateHalfOpen:
		if b.trialInFlight {
			return false, ErrOpen
		}
		b.trialInFlight = true
		return true, nil
	default:
		return false, ErrOpen
	}
}

// settle records the outcome of an admitted call. Errors outside the failure
// class leave breaker state untouched apart from releasing the trial slot.
func (b *Breaker) settle(trial bool, opErr error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if trial {
		b.trialInFlight = false
	}

	switch {
	case opErr == nil:
		b.failures = 0
		if b.state != StateClosed {
			b.transition(StateClosed)
		}
	case b.isFailure(opErr):
		if trial || b.state == StateHalfOpen {
			// Failed trial: re-open and restart the recovery timer.
			b.openedAt = b.now()
			b.transition(StateOpen)
			return
		}
		b.failures++
		if b.state == StateClosed && b.failures >= b.threshold {
			b.openedAt = b.now()
			b.transition(StateOpen)
		}
	default:
		// Non-matching error: pass through unaffected. A trial stays in
		// half-open; the next caller gets another trial slot.
	}
}

// transition must be called with the lock held.
func (b *Breaker) transition(to State) {
	from := b.state
	b.state = to
	if b.onTransition != nil {
		from, failures := from, b.failures
		go b.onTransition(b.name, from, to, failures)
	}
}
