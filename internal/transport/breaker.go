package transport

import (
	"sync"
	"time"
)

// State is a circuit breaker state.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half_open"
)

// StateChangeFunc is invoked on every breaker transition. Called outside the
// breaker lock; implementations may log or publish events but must not call
// back into the breaker.
type StateChangeFunc func(from, to State, failures int)

// breaker is a per-client circuit breaker. One instance guards exactly one
// downstream base URL and is never shared between clients.
type breaker struct {
	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	trialing bool

	threshold int
	coolDown  time.Duration
	onChange  StateChangeFunc
	now       func() time.Time
}

func newBreaker(threshold int, coolDown time.Duration, onChange StateChangeFunc) *breaker {
	if threshold <= 0 {
		threshold = DefaultBreakerThreshold
	}
	if coolDown <= 0 {
		coolDown = DefaultBreakerCoolDown
	}
	return &breaker{
		state:     StateClosed,
		threshold: threshold,
		coolDown:  coolDown,
		onChange:  onChange,
		now:       time.Now,
	}
}

// allow reports whether a call may proceed. In the open state it returns
// false until the cool-down elapses, then transitions to half-open and admits
// exactly one trial call.
func (b *breaker) allow() bool {
	b.mu.Lock()

	switch b.state {
	case StateClosed:
		b.mu.Unlock()
		return true

	case StateOpen:
		if b.now().Sub(b.openedAt) < b.coolDown {
			b.mu.Unlock()
			return false
		}
		from := b.state
		b.state = StateHalfOpen
		b.trialing = true
		failures := b.failures
		b.mu.Unlock()
		b.notify(from, StateHalfOpen, failures)
		return true

	case StateHalfOpen:
		if b.trialing {
			// A trial call is already in flight.
			b.mu.Unlock()
			return false
		}
		b.trialing = true
		b.mu.Unlock()
		return true
	}

	b.mu.Unlock()
	return false
}

// recordSuccess resets the breaker. A successful half-open trial closes the
// circuit.
func (b *breaker) recordSuccess() {
	b.mu.Lock()
	from := b.state
	b.state = StateClosed
	b.failures = 0
	b.trialing = false
	b.mu.Unlock()

	if from != StateClosed {
		b.notify(from, StateClosed, 0)
	}
}

// recordFailure counts a failure. Crossing the threshold, or failing the
// half-open trial, opens the circuit with a fresh cool-down window.
func (b *breaker) recordFailure() {
	b.mu.Lock()
	from := b.state
	b.failures++
	b.trialing = false

	if b.state == StateHalfOpen || b.failures >= b.threshold {
		b.state = StateOpen
		b.openedAt = b.now()
	}
	to := b.state
	failures := b.failures
	b.mu.Unlock()

	if from != to {
		b.notify(from, to, failures)
	}
}

func (b *breaker) current() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *breaker) notify(from, to State, failures int) {
	if b.onChange != nil {
		b.onChange(from, to, failures)
	}
}
