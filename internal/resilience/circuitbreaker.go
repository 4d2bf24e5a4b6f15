package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by [CircuitBreaker.Execute] when the breaker is
// open and the cooldown has not yet elapsed.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreakerConfig holds tuning knobs for a [CircuitBreaker].
// Zero-value fields take defaults.
type CircuitBreakerConfig struct {
	// Name is a label used in log messages.
	Name string

	// MaxFailures is the number of consecutive failures before the breaker
	// opens. Default: 5.
	MaxFailures int

	// Cooldown is how long the breaker rejects calls after opening before
	// allowing a probe. Default: 30s.
	Cooldown time.Duration
}

// CircuitBreaker rejects calls after a run of consecutive failures, then
// allows a single probe once the cooldown elapses. A successful probe closes
// the breaker; a failed probe restarts the cooldown.
//
// Safe for concurrent use.
type CircuitBreaker struct {
	name        string
	maxFailures int
	cooldown    time.Duration

	mu       sync.Mutex
	failures int
	openedAt time.Time
	probing  bool
}

// NewCircuitBreaker creates a [CircuitBreaker] from cfg.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	return &CircuitBreaker{
		name:        cfg.Name,
		maxFailures: cfg.MaxFailures,
		cooldown:    cfg.Cooldown,
	}
}

// Execute runs fn if the breaker allows it, recording the outcome. While open
// it returns [ErrCircuitOpen] without calling fn, except for one probe call
// per cooldown window.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	cb.mu.Lock()
	isProbe := false
	if cb.open() {
		if time.Since(cb.openedAt) < cb.cooldown || cb.probing {
			cb.mu.Unlock()
			return ErrCircuitOpen
		}
		cb.probing = true
		isProbe = true
		slog.Info("circuit breaker probing", "name", cb.name)
	}
	cb.mu.Unlock()

	err := fn()

	cb.mu.Lock()
	defer cb.mu.Unlock()
	if isProbe {
		cb.probing = false
	}
	if err != nil {
		cb.failures++
		if cb.failures >= cb.maxFailures {
			cb.failures = cb.maxFailures
			cb.openedAt = time.Now()
			slog.Warn("circuit breaker opened", "name", cb.name)
		}
		return err
	}
	if cb.open() {
		slog.Info("circuit breaker closed", "name", cb.name)
	}
	cb.failures = 0
	return nil
}

// open reports whether the failure count has tripped the breaker.
// Must be called with cb.mu held.
func (cb *CircuitBreaker) open() bool {
	return cb.failures >= cb.maxFailures
}

// Open reports whether the breaker is currently rejecting calls.
func (cb *CircuitBreaker) Open() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.open() && time.Since(cb.openedAt) < cb.cooldown
}

// Reset forces the breaker closed, clearing the failure count.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures = 0
	cb.probing = false
}
