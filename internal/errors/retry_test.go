package errors

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy(attempts int) *Policy {
	p := DefaultPolicy()
	p.MaxAttempts = attempts
	p.InitialDelay = time.Millisecond
	p.MaxDelay = 5 * time.Millisecond
	p.Jitter = false
	return p
}

func TestDoRetriesTransientErrors(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastPolicy(3), func() error {
		calls++
		if calls < 3 {
			return BackendUnavailable("http://x", nil)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoStopsOnPermanentError(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastPolicy(5), func() error {
		calls++
		return ModelUnavailable("llava", nil)
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.True(t, IsModelUnavailable(err))
}

func TestDoExhaustsAttempts(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastPolicy(2), func() error {
		calls++
		return BackendTimeout("llama3", time.Second, nil)
	})
	require.Error(t, err)
	assert.Equal(t, 2, calls)
	assert.Contains(t, err.Error(), "max retries exceeded")
	assert.True(t, IsBackendTimeout(err))
}

func TestDoHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	policy := fastPolicy(3)
	policy.InitialDelay = time.Hour

	calls := 0
	err := Do(ctx, policy, func() error {
		calls++
		cancel()
		return fmt.Errorf("transient")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.True(t, Is(err, context.Canceled))
}

func TestDoWaitsForRetryAfter(t *testing.T) {
	calls := 0
	start := time.Now()
	err := Do(context.Background(), fastPolicy(2), func() error {
		calls++
		if calls == 1 {
			e := BackendUnavailable("http://x", ErrCircuitOpen)
			e.RetryAfter = 40 * time.Millisecond
			return e
		}
		return nil
	})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}

func TestDoWithResultKeepsLastResult(t *testing.T) {
	calls := 0
	got, err := DoWithResult(context.Background(), fastPolicy(3), func() (string, error) {
		calls++
		if calls == 1 {
			return "", BackendUnavailable("http://x", nil)
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", got)

	got, err = DoWithResult(context.Background(), NoRetry(), func() (string, error) {
		return "failed response", BackendUnavailable("http://x", nil)
	})
	require.Error(t, err)
	assert.Equal(t, "failed response", got)
	assert.NotContains(t, err.Error(), "max retries exceeded", "a single attempt is not a retry")
}

func testBreaker(maxFailures int, reset time.Duration) (*CircuitBreaker, *time.Time) {
	now := time.Unix(1_700_000_000, 0)
	cb := NewCircuitBreaker("ollama", &CircuitBreakerConfig{
		MaxFailures:      maxFailures,
		ResetTimeout:     reset,
		HalfOpenAttempts: 1,
	})
	cb.now = func() time.Time { return now }
	return cb, &now
}

func TestCircuitBreakerOpensAndRecovers(t *testing.T) {
	cb, now := testBreaker(2, 30*time.Second)
	fail := func() error { return fmt.Errorf("refused") }

	assert.Error(t, cb.Execute(fail))
	assert.Equal(t, StateClosed, cb.State())
	assert.Error(t, cb.Execute(fail))
	assert.Equal(t, StateOpen, cb.State())
	assert.Equal(t, "open", cb.State().String())
	assert.Equal(t, 30*time.Second, cb.RetryAfter())

	called := false
	err := cb.Execute(func() error { called = true; return nil })
	assert.True(t, Is(err, ErrCircuitOpen))
	assert.False(t, called)

	*now = now.Add(10 * time.Second)
	assert.Equal(t, 20*time.Second, cb.RetryAfter())

	*now = now.Add(25 * time.Second)
	assert.Equal(t, StateHalfOpen, cb.State())
	require.NoError(t, cb.Execute(func() error { return nil }))
	assert.Equal(t, StateClosed, cb.State())
	assert.Zero(t, cb.RetryAfter())
}

func TestCircuitBreakerHalfOpenFailureReopens(t *testing.T) {
	cb, now := testBreaker(3, time.Second)
	for i := 0; i < 3; i++ {
		_ = cb.Execute(func() error { return fmt.Errorf("refused") })
	}
	require.Equal(t, StateOpen, cb.State())

	*now = now.Add(2 * time.Second)
	err := cb.Execute(func() error { return fmt.Errorf("still down") })
	require.Error(t, err)
	assert.False(t, Is(err, ErrCircuitOpen))
	assert.Equal(t, StateOpen, cb.State(), "one half-open failure reopens")

	cb.Reset()
	assert.Equal(t, StateClosed, cb.State())
	assert.NoError(t, cb.Execute(func() error { return nil }))
}
