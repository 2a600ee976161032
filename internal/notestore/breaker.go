package notestore

import (
	"sync"
	"time"
)

// State represents the circuit breaker state.
type State string

const (
	StateClosed State = "closed"
	StateOpen   State = "open"
)

// Change reports a state transition caused by a recorded outcome.
type Change struct {
	Opened bool
	Closed bool
}

// Breaker is a failure-counting circuit breaker for the note-store API.
// Consecutive failures past the threshold open the circuit; once open, Allow
// admits a probe per cooldown interval and consecutive successes close it
// again. Counter updates are mutex-guarded; callers may share one breaker
// across pipeline goroutines.
type Breaker struct {
	name             string
	failureThreshold int
	successThreshold int
	cooldown         time.Duration
	clock            func() time.Time

	mu           sync.Mutex
	state        State
	failureCount int
	successCount int
	lastAttempt  time.Time
}

// BreakerOption configures a Breaker.
type BreakerOption func(*Breaker)

// WithFailureThreshold sets how many consecutive failures open the circuit.
func WithFailureThreshold(n int) BreakerOption {
	return func(b *Breaker) {
		if n > 0 {
			b.failureThreshold = n
		}
	}
}

// WithSuccessThreshold sets how many consecutive successes close an open circuit.
func WithSuccessThreshold(n int) BreakerOption {
	return func(b *Breaker) {
		if n > 0 {
			b.successThreshold = n
		}
	}
}

// WithCooldown sets the interval between probe attempts while open.
func WithCooldown(d time.Duration) BreakerOption {
	return func(b *Breaker) {
		if d > 0 {
			b.cooldown = d
		}
	}
}

// WithBreakerClock sets the clock function for testability.
func WithBreakerClock(clock func() time.Time) BreakerOption {
	return func(b *Breaker) {
		if clock != nil {
			b.clock = clock
		}
	}
}

// NewBreaker constructs a closed breaker.
func NewBreaker(name string, opts ...BreakerOption) *Breaker {
	b := &Breaker{
		name:             name,
		failureThreshold: 5,
		successThreshold: 2,
		cooldown:         30 * time.Second,
		clock:            time.Now,
		state:            StateClosed,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name returns the breaker name.
func (b *Breaker) Name() string { return b.name }

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// IsOpen reports whether the circuit is open.
func (b *Breaker) IsOpen() bool {
	return b.State() == StateOpen
}

// Allow reports whether a call may be attempted. Closed circuits always
// allow; open circuits admit one probe per cooldown interval.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateClosed {
		return true
	}
	now := b.clock()
	if now.Sub(b.lastAttempt) >= b.cooldown {
		b.lastAttempt = now
		return true
	}
	return false
}

// RecordFailure records a failed call. The first return value is true when
// callers should fail fast instead of retrying.
func (b *Breaker) RecordFailure() (useFallback bool, change Change) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.successCount = 0
	if b.state == StateOpen {
		return true, Change{}
	}

	b.failureCount++
	if b.failureCount >= b.failureThreshold {
		b.state = StateOpen
		b.lastAttempt = b.clock()
		return true, Change{Opened: true}
	}
	return false, Change{}
}

// RecordSuccess records a successful call. The first return value is true
// when the circuit is (now) closed.
func (b *Breaker) RecordSuccess() (usePrimary bool, change Change) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failureCount = 0
	if b.state == StateClosed {
		return true, Change{}
	}

	b.successCount++
	if b.successCount >= b.successThreshold {
		b.state = StateClosed
		b.successCount = 0
		return true, Change{Closed: true}
	}
	return false, Change{}
}

// Reset forces the breaker closed and clears all counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.failureCount = 0
	b.successCount = 0
}
