package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	ErrCircuitOpen     = errors.New("circuit breaker is open")
	ErrTooManyRequests = errors.New("too many requests in half-open state")
)

type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

type Config struct {
	// MaxRequests caps probe traffic while half-open.
	MaxRequests uint32
	// Interval resets the failure count while closed; zero never resets.
	Interval time.Duration
	// Timeout is how long the breaker stays open before probing.
	Timeout          time.Duration
	FailureThreshold uint32
	SuccessThreshold uint32
	Logger           *zap.Logger
}

// CircuitBreaker sheds load from a failing dependency. Closed passes
// everything through; consecutive failures trip it open; after the timeout
// it half-opens and a few successful probes close it again.
type CircuitBreaker struct {
	name string
	cfg  Config

	mu            sync.Mutex
	state         State
	consecFails   uint32
	consecOKs     uint32
	halfOpenInUse uint32
	openedAt      time.Time
	lastReset     time.Time
}

func NewCircuitBreaker(name string, cfg Config) *CircuitBreaker {
	if cfg.MaxRequests == 0 {
		cfg.MaxRequests = 1
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.SuccessThreshold == 0 {
		cfg.SuccessThreshold = 2
	}

	return &CircuitBreaker{
		name:      name,
		cfg:       cfg,
		state:     StateClosed,
		lastReset: time.Now(),
	}
}

// Execute runs fn under the breaker's admission control. A panic in fn
// counts as a failure and is re-raised.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func() error) error {
	if err := cb.admit(); err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			cb.report(false)
			panic(r)
		}
	}()

	err := fn()
	cb.report(err == nil)
	return err
}

func (cb *CircuitBreaker) admit() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := time.Now()
	cb.advance(now)

	switch cb.state {
	case StateOpen:
		return ErrCircuitOpen
	case StateHalfOpen:
		if cb.halfOpenInUse >= cb.cfg.MaxRequests {
			return ErrTooManyRequests
		}
		cb.halfOpenInUse++
	}
	return nil
}

func (cb *CircuitBreaker) report(success bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := time.Now()
	cb.advance(now)

	if cb.state == StateHalfOpen && cb.halfOpenInUse > 0 {
		cb.halfOpenInUse--
	}

	if success {
		cb.consecFails = 0
		cb.consecOKs++
		if cb.state == StateHalfOpen && cb.consecOKs >= cb.cfg.SuccessThreshold {
			cb.transition(StateClosed, now)
		}
		return
	}

	cb.consecOKs = 0
	cb.consecFails++

	switch cb.state {
	case StateClosed:
		if cb.consecFails >= cb.cfg.FailureThreshold {
			cb.transition(StateOpen, now)
		}
	case StateHalfOpen:
		// One failed probe re-opens immediately.
		cb.transition(StateOpen, now)
	}
}

// advance applies time-driven transitions: open -> half-open after the
// timeout, and the periodic failure-count reset while closed.
func (cb *CircuitBreaker) advance(now time.Time) {
	switch cb.state {
	case StateOpen:
		if now.Sub(cb.openedAt) >= cb.cfg.Timeout {
			cb.transition(StateHalfOpen, now)
		}
	case StateClosed:
		if cb.cfg.Interval > 0 && now.Sub(cb.lastReset) >= cb.cfg.Interval {
			cb.consecFails = 0
			cb.consecOKs = 0
			cb.lastReset = now
		}
	}
}

func (cb *CircuitBreaker) transition(state State, now time.Time) {
	if cb.state == state {
		return
	}

	prev := cb.state
	cb.state = state
	cb.consecFails = 0
	cb.consecOKs = 0
	cb.halfOpenInUse = 0
	cb.lastReset = now
	if state == StateOpen {
		cb.openedAt = now
	}

	if cb.cfg.Logger != nil {
		cb.cfg.Logger.Info("Circuit breaker state changed",
			zap.String("name", cb.name),
			zap.String("from", prev.String()),
			zap.String("to", state.String()),
		)
	}
}

func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.advance(time.Now())
	return cb.state
}
