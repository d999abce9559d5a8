package errors

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"
)

// ============================================================
// Retry Policy
// ============================================================

// Policy defines retry behavior.
type Policy struct {
	// MaxAttempts counts the first call, so 1 means no retry.
	MaxAttempts int

	// InitialDelay is the delay before the first retry
	InitialDelay time.Duration

	// MaxDelay caps the backoff
	MaxDelay time.Duration

	// Multiplier is the backoff multiplier
	Multiplier float64

	// Jitter adds up to 10% random delay
	Jitter bool

	// RetryIf determines if an error is retryable. Nil retries everything.
	RetryIf func(error) bool
}

// DefaultPolicy retries errors marked Retryable, three attempts in total.
func DefaultPolicy() *Policy {
	return &Policy{
		MaxAttempts:  3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
		RetryIf:      IsRetryable,
	}
}

// NoRetry returns a policy that makes exactly one attempt.
func NoRetry() *Policy {
	return &Policy{
		MaxAttempts: 1,
		Multiplier:  1.0,
		RetryIf:     func(error) bool { return false },
	}
}

// backoff returns the delay after current, capped by MaxDelay.
func (p *Policy) backoff(current time.Duration) time.Duration {
	next := time.Duration(float64(current) * p.Multiplier)
	if p.MaxDelay > 0 && next > p.MaxDelay {
		next = p.MaxDelay
	}
	if p.Jitter && next > 0 {
		next += time.Duration(rand.Float64() * float64(next) * 0.1)
	}
	return next
}

// ============================================================
// Retry Functions
// ============================================================

// DoWithResult calls fn until it succeeds, the policy gives up, or ctx ends.
// The result of the last attempt is returned even when it failed, so
// callers can report partial responses. An error's RetryAfter raises the
// wait before the next attempt.
func DoWithResult[T any](ctx context.Context, policy *Policy, fn func() (T, error)) (T, error) {
	if policy == nil {
		policy = DefaultPolicy()
	}
	attempts := max(policy.MaxAttempts, 1)

	var (
		result  T
		lastErr error
	)
	delay := policy.InitialDelay

	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			wait := max(delay, GetRetryAfter(lastErr))
			select {
			case <-ctx.Done():
				return result, fmt.Errorf("retry canceled: %w", ctx.Err())
			case <-time.After(wait):
			}
			delay = policy.backoff(delay)
		}

		result, lastErr = fn()
		if lastErr == nil {
			return result, nil
		}
		if policy.RetryIf != nil && !policy.RetryIf(lastErr) {
			return result, lastErr
		}
	}

	if attempts == 1 {
		return result, lastErr
	}
	return result, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// Do is DoWithResult for functions without a result.
func Do(ctx context.Context, policy *Policy, fn func() error) error {
	_, err := DoWithResult(ctx, policy, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// ============================================================
// Circuit Breaker
// ============================================================

// State represents the circuit breaker state.
type State int

const (
	StateClosed   State = iota // calls pass through
	StateOpen                  // calls are rejected
	StateHalfOpen              // a limited number of probe calls pass
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned when a circuit breaker rejects a request.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreakerConfig configures a circuit breaker.
type CircuitBreakerConfig struct {
	// MaxFailures is the number of consecutive failures before opening
	MaxFailures int

	// ResetTimeout is how long the breaker stays open
	ResetTimeout time.Duration

	// HalfOpenAttempts is how many calls may pass while half-open
	HalfOpenAttempts int
}

// DefaultCircuitBreakerConfig opens after three failures for thirty seconds.
func DefaultCircuitBreakerConfig() *CircuitBreakerConfig {
	return &CircuitBreakerConfig{
		MaxFailures:      3,
		ResetTimeout:     30 * time.Second,
		HalfOpenAttempts: 1,
	}
}

// CircuitBreaker stops calls to a dependency that keeps failing.
type CircuitBreaker struct {
	mu sync.Mutex

	name   string
	config CircuitBreakerConfig

	state         State
	failures      int
	openedAt      time.Time
	halfOpenCalls int
	now           func() time.Time
}

// NewCircuitBreaker creates a closed circuit breaker. Nil config uses defaults.
func NewCircuitBreaker(name string, config *CircuitBreakerConfig) *CircuitBreaker {
	if config == nil {
		config = DefaultCircuitBreakerConfig()
	}
	return &CircuitBreaker{
		name:   name,
		config: *config,
		state:  StateClosed,
		now:    time.Now,
	}
}

// Execute runs fn unless the breaker is open.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if !cb.allow() {
		return fmt.Errorf("%s: %w", cb.name, ErrCircuitOpen)
	}
	err := fn()
	cb.record(err)
	return err
}

func (cb *CircuitBreaker) allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if cb.now().Sub(cb.openedAt) < cb.config.ResetTimeout {
			return false
		}
		cb.state = StateHalfOpen
		cb.halfOpenCalls = 1
		return true
	case StateHalfOpen:
		if cb.halfOpenCalls >= cb.config.HalfOpenAttempts {
			return false
		}
		cb.halfOpenCalls++
		return true
	default:
		return true
	}
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err == nil {
		cb.state = StateClosed
		cb.failures = 0
		cb.halfOpenCalls = 0
		return
	}

	cb.failures++
	if cb.state == StateHalfOpen || cb.failures >= cb.config.MaxFailures {
		cb.state = StateOpen
		cb.openedAt = cb.now()
		cb.halfOpenCalls = 0
	}
}

// State returns the current state. An open breaker whose reset timeout
// has passed reports half-open.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == StateOpen && cb.now().Sub(cb.openedAt) >= cb.config.ResetTimeout {
		return StateHalfOpen
	}
	return cb.state
}

// RetryAfter returns how long an open breaker keeps rejecting calls.
func (cb *CircuitBreaker) RetryAfter() time.Duration {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state != StateOpen {
		return 0
	}
	return max(cb.config.ResetTimeout-cb.now().Sub(cb.openedAt), 0)
}

// Reset closes the breaker.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = StateClosed
	cb.failures = 0
	cb.halfOpenCalls = 0
}
