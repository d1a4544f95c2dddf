package cache

import (
	"log/slog"
	"sync"
	"time"
)

// State is the circuit breaker state
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half_open"
)

const (
	defaultWindowSize   = 10
	defaultMinCalls     = 5
	defaultFailureRatio = 0.5
	defaultCooldown     = 10 * time.Second
)

// BreakerConfig tunes the circuit breaker
type BreakerConfig struct {
	// WindowSize is how many recent call outcomes the failure ratio is
	// computed over
	WindowSize int
	// MinCalls is the minimum number of recorded outcomes before the
	// ratio is evaluated at all
	MinCalls int
	// FailureRatio opens the circuit when reached (0.5 = 50%)
	FailureRatio float64
	// Cooldown is how long the circuit stays open before a trial call
	Cooldown time.Duration

	// Now overrides the clock, for tests
	Now func() time.Time
	// OnStateChange is invoked (outside the lock) on every transition
	OnStateChange func(from, to State)
}

// Breaker is a Closed/Open/Half-Open circuit breaker driven by a sliding
// window of call outcomes. Safe for concurrent use.
type Breaker struct {
	mu sync.Mutex

	state    State
	window   []bool // ring buffer, true = failure
	idx      int
	count    int
	failures int

	openedAt time.Time
	trial    bool // half-open trial call in flight

	minCalls     int
	failureRatio float64
	cooldown     time.Duration

	now           func() time.Time
	onStateChange func(from, to State)
}

// NewBreaker creates a breaker in the Closed state
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = defaultWindowSize
	}
	if cfg.MinCalls <= 0 {
		cfg.MinCalls = defaultMinCalls
	}
	if cfg.FailureRatio <= 0 {
		cfg.FailureRatio = defaultFailureRatio
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = defaultCooldown
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Breaker{
		state:         StateClosed,
		window:        make([]bool, cfg.WindowSize),
		minCalls:      cfg.MinCalls,
		failureRatio:  cfg.FailureRatio,
		cooldown:      cfg.Cooldown,
		now:           cfg.Now,
		onStateChange: cfg.OnStateChange,
	}
}

// Allow reports whether a call may proceed. In the Open state it returns
// false until the cooldown elapses, then admits exactly one trial call
// (Half-Open). The caller must report the outcome via Record.
func (b *Breaker) Allow() bool {
	b.mu.Lock()

	switch b.state {
	case StateClosed:
		b.mu.Unlock()
		return true
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.cooldown {
			b.mu.Unlock()
			return false
		}
		notify := b.transition(StateHalfOpen)
		b.trial = true
		b.mu.Unlock()
		notify()
		return true
	case StateHalfOpen:
		// One trial at a time
		if b.trial {
			b.mu.Unlock()
			return false
		}
		b.trial = true
		b.mu.Unlock()
		return true
	}

	b.mu.Unlock()
	return true
}

// Record reports the outcome of a call previously admitted by Allow
func (b *Breaker) Record(success bool) {
	b.mu.Lock()

	notify := func() {}

	switch b.state {
	case StateHalfOpen:
		b.trial = false
		if success {
			b.reset()
			notify = b.transition(StateClosed)
		} else {
			b.openedAt = b.now()
			notify = b.transition(StateOpen)
		}
	case StateClosed:
		b.push(!success)
		if b.count >= b.minCalls && float64(b.failures)/float64(b.count) >= b.failureRatio {
			b.reset()
			b.openedAt = b.now()
			notify = b.transition(StateOpen)
		}
	case StateOpen:
		// Late outcome from a call admitted before the circuit opened
	}

	b.mu.Unlock()
	notify()
}

// State returns the current breaker state
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// push records one outcome in the ring buffer
func (b *Breaker) push(failure bool) {
	if b.count == len(b.window) {
		if b.window[b.idx] {
			b.failures--
		}
	} else {
		b.count++
	}
	b.window[b.idx] = failure
	if failure {
		b.failures++
	}
	b.idx = (b.idx + 1) % len(b.window)
}

// reset clears the outcome window
func (b *Breaker) reset() {
	for i := range b.window {
		b.window[i] = false
	}
	b.idx = 0
	b.count = 0
	b.failures = 0
}

// transition changes state and returns the notification to run once the
// lock is released, so observers can never block an in-flight request
func (b *Breaker) transition(to State) func() {
	from := b.state
	b.state = to
	cb := b.onStateChange
	return func() {
		slog.Warn("cache circuit breaker state change", "from", string(from), "to", string(to))
		if cb != nil {
			cb(from, to)
		}
	}
}
