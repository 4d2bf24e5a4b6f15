package resilience

import (
	"errors"
	"fmt"
	"log/slog"
)

// ErrAllFailed is returned when every entry in a [Chain] fails or has an open
// circuit breaker.
var ErrAllFailed = errors.New("all providers failed")

// chainEntry pairs a provider value with its dedicated circuit breaker.
type chainEntry[T any] struct {
	name    string
	value   T
	breaker *CircuitBreaker
}

// Chain holds a primary and zero or more fallback instances of the same
// provider type, each guarded by its own circuit breaker. Calls go to the
// first entry whose breaker admits them and which succeeds.
//
// Chain is safe for concurrent use after construction.
type Chain[T any] struct {
	entries []chainEntry[T]
	cbCfg   CircuitBreakerConfig
}

// NewChain creates a [Chain] with primary as the first entry. cbCfg.Name is
// overridden per entry.
func NewChain[T any](primaryName string, primary T, cbCfg CircuitBreakerConfig) *Chain[T] {
	c := &Chain[T]{cbCfg: cbCfg}
	c.Add(primaryName, primary)
	return c
}

// Add appends a fallback provider. Fallbacks are tried in the order added,
// after the primary.
func (c *Chain[T]) Add(name string, v T) {
	cfg := c.cbCfg
	cfg.Name = name
	c.entries = append(c.entries, chainEntry[T]{
		name:    name,
		value:   v,
		breaker: NewCircuitBreaker(cfg),
	})
}

// Do tries fn against each entry in order until one succeeds. Entries with an
// open breaker are skipped. Returns [ErrAllFailed] wrapping the last error if
// every entry fails.
func (c *Chain[T]) Do(fn func(T) error) error {
	_, err := DoResult(c, func(v T) (struct{}, error) {
		return struct{}{}, fn(v)
	})
	return err
}

// DoResult is [Chain.Do] with a result value. It is a package-level function
// because Go does not support method-level type parameters.
func DoResult[T, R any](c *Chain[T], fn func(T) (R, error)) (R, error) {
	var (
		lastErr error
		zero    R
	)
	for i := range c.entries {
		entry := &c.entries[i]
		var result R
		err := entry.breaker.Execute(func() error {
			var innerErr error
			result, innerErr = fn(entry.value)
			return innerErr
		})
		if err == nil {
			return result, nil
		}
		lastErr = err
		if errors.Is(err, ErrCircuitOpen) {
			slog.Debug("skipping provider, circuit open", "provider", entry.name)
		} else {
			slog.Warn("provider failed, trying next", "provider", entry.name, "error", err)
		}
	}
	return zero, fmt.Errorf("%w: %v", ErrAllFailed, lastErr)
}
