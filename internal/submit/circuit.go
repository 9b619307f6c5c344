package submit

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// CircuitState is the state of a CircuitBreaker.
type CircuitState int

const (
	CircuitClosed   CircuitState = iota // calls go through
	CircuitOpen                         // calls fail fast
	CircuitHalfOpen                     // calls go through until one fails
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig configures a CircuitBreaker.
type CircuitBreakerConfig struct {
	FailureThreshold int           // transient failures within FailureWindow that open the circuit
	SuccessThreshold int           // half-open successes that close it again
	Timeout          time.Duration // how long the circuit stays open
	FailureWindow    time.Duration
}

// CircuitBreaker stops calling an output that keeps failing. Only errors
// worth retrying count against the output.
type CircuitBreaker struct {
	output string
	cfg    CircuitBreakerConfig
	log    *zap.Logger
	now    func() time.Time

	mu       sync.Mutex
	state    CircuitState
	failures []time.Time
	probes   int
	openedAt time.Time
}

// NewCircuitBreaker creates a closed breaker for output.
func NewCircuitBreaker(output string, cfg CircuitBreakerConfig, log *zap.Logger) *CircuitBreaker {
	if log == nil {
		log = zap.NewNop()
	}
	return &CircuitBreaker{output: output, cfg: cfg, log: log, now: time.Now}
}

// Execute calls fn unless the circuit is open.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if !cb.allow() {
		return &CircuitOpenError{Output: cb.output}
	}

	err := fn(ctx)

	cb.mu.Lock()
	defer cb.mu.Unlock()
	switch {
	case err == nil:
		cb.succeeded()
	case shouldRetry(err):
		cb.failed()
	}
	return err
}

// State returns the current state.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == CircuitOpen && cb.now().Sub(cb.openedAt) >= cb.cfg.Timeout {
		cb.set(CircuitHalfOpen)
	}
	return cb.state != CircuitOpen
}

func (cb *CircuitBreaker) succeeded() {
	if cb.state != CircuitHalfOpen {
		cb.failures = cb.failures[:0]
		return
	}
	cb.probes++
	if cb.probes >= cb.cfg.SuccessThreshold {
		cb.set(CircuitClosed)
	}
}

func (cb *CircuitBreaker) failed() {
	if cb.state == CircuitHalfOpen {
		cb.set(CircuitOpen)
		return
	}

	now := cb.now()
	cutoff := now.Add(-cb.cfg.FailureWindow)
	recent := cb.failures[:0]
	for _, t := range cb.failures {
		if t.After(cutoff) {
			recent = append(recent, t)
		}
	}
	cb.failures = append(recent, now)
	if len(cb.failures) >= cb.cfg.FailureThreshold {
		cb.set(CircuitOpen)
	}
}

// set must be called with mu held.
func (cb *CircuitBreaker) set(state CircuitState) {
	if cb.state == state {
		return
	}
	cb.log.Info("Circuit state changed",
		zap.String("output", cb.output), zap.Stringer("from", cb.state), zap.Stringer("to", state))
	cb.state = state
	cb.probes = 0
	cb.failures = cb.failures[:0]
	if state == CircuitOpen {
		cb.openedAt = cb.now()
	}
}
