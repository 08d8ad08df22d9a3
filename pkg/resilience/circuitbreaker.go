// Package resilience guards calls to external services with a circuit breaker
// and a token bucket limiter.
package resilience

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/WessleyAI/carsearch/pkg/fn"
)

// State is the breaker position.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	}
	return "unknown"
}

var ErrCircuitOpen = errors.New("circuit breaker is open")

// BreakerOpts configures a Breaker.
type BreakerOpts struct {
	// FailThreshold consecutive failures open the breaker.
	FailThreshold int
	// Timeout is how long the breaker stays open before probing.
	Timeout time.Duration
	// HalfOpenMax probe calls are let through while half-open.
	HalfOpenMax int
	// OnStateChange is called outside the lock after each transition.
	OnStateChange func(from, to State)
}

var DefaultBreakerOpts = BreakerOpts{
	FailThreshold: 5,
	Timeout:       30 * time.Second,
	HalfOpenMax:   1,
}

// Breaker rejects calls after repeated failures until a probe succeeds.
// Caller cancellation is not counted as a failure.
type Breaker struct {
	mu       sync.Mutex
	opts     BreakerOpts
	state    State
	failures int
	openedAt time.Time
	probes   int
	now      func() time.Time
}

func NewBreaker(opts BreakerOpts) *Breaker {
	if opts.FailThreshold <= 0 {
		opts.FailThreshold = DefaultBreakerOpts.FailThreshold
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultBreakerOpts.Timeout
	}
	if opts.HalfOpenMax <= 0 {
		opts.HalfOpenMax = DefaultBreakerOpts.HalfOpenMax
	}
	return &Breaker{opts: opts, now: time.Now}
}

func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.opts.Timeout {
		return StateHalfOpen
	}
	return b.state
}

// advance moves open to half-open once the timeout elapsed. Must hold mu.
func (b *Breaker) advance() (State, bool) {
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.opts.Timeout {
		b.state = StateHalfOpen
		b.probes = 0
		return b.state, true
	}
	return b.state, false
}

func (b *Breaker) acquire() (bool, []func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var notes []func()
	if s, moved := b.advance(); moved {
		notes = append(notes, b.note(StateOpen, s))
	}
	switch b.state {
	case StateOpen:
		return false, notes
	case StateHalfOpen:
		if b.probes >= b.opts.HalfOpenMax {
			return false, notes
		}
		b.probes++
	}
	return true, notes
}

func (b *Breaker) release(err error) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if errors.Is(err, context.Canceled) {
		if b.state == StateHalfOpen && b.probes > 0 {
			b.probes--
		}
		return nil
	}
	from := b.state
	if err != nil {
		b.failures++
		if b.state == StateHalfOpen || b.failures >= b.opts.FailThreshold {
			b.state = StateOpen
			b.openedAt = b.now()
			b.failures = 0
			b.probes = 0
		}
	} else {
		b.state = StateClosed
		b.failures = 0
	}
	if from != b.state {
		return b.note(from, b.state)
	}
	return nil
}

func (b *Breaker) note(from, to State) func() {
	if b.opts.OnStateChange == nil {
		return nil
	}
	cb := b.opts.OnStateChange
	return func() { cb(from, to) }
}

func fire(notes ...func()) {
	for _, n := range notes {
		if n != nil {
			n()
		}
	}
}

// Call runs f unless the breaker is open.
func (b *Breaker) Call(ctx context.Context, f func(context.Context) error) error {
	ok, notes := b.acquire()
	fire(notes...)
	if !ok {
		return ErrCircuitOpen
	}
	err := f(ctx)
	fire(b.release(err))
	return err
}

// Do is Call for functions that return a value.
func Do[T any](b *Breaker, ctx context.Context, f func(context.Context) (T, error)) (T, error) {
	var out T
	err := b.Call(ctx, func(ctx context.Context) error {
		v, err := f(ctx)
		out = v
		return err
	})
	return out, err
}

// BreakerStage wraps an fn.Stage with b.
func BreakerStage[In, Out any](b *Breaker, stage fn.Stage[In, Out]) fn.Stage[In, Out] {
	return func(ctx context.Context, in In) fn.Result[Out] {
		return fn.FromPair(Do(b, ctx, func(ctx context.Context) (Out, error) {
			return stage(ctx, in).Unwrap()
		}))
	}
}
