package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBackend = errors.New("backend unavailable")

func failing(context.Context) error { return errBackend }
func succeeding(context.Context) error { return nil }

func newTestBreaker(opts ...Option) *CircuitBreaker {
	base := []Option{
		WithFailureThreshold(2),
		WithSuccessThreshold(2),
		WithTimeout(20 * time.Millisecond),
		WithMaxHalfOpenRequests(1),
	}
	return New("test", append(base, opts...)...)
}

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb := newTestBreaker()
	ctx := context.Background()

	require.ErrorIs(t, cb.Execute(ctx, failing), errBackend)
	assert.True(t, cb.IsClosed())

	require.ErrorIs(t, cb.Execute(ctx, failing), errBackend)
	assert.True(t, cb.IsOpen())

	// While open, the function is never invoked.
	calls := 0
	err := cb.Execute(ctx, func(context.Context) error {
		calls++
		return nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, 0, calls)
}

func TestCircuitBreaker_SuccessResetsFailureCount(t *testing.T) {
	cb := newTestBreaker()
	ctx := context.Background()

	require.Error(t, cb.Execute(ctx, failing))
	require.NoError(t, cb.Execute(ctx, succeeding))
	require.Error(t, cb.Execute(ctx, failing))

	// One failure after a success is below the threshold of two.
	assert.True(t, cb.IsClosed())
}

func TestCircuitBreaker_RecoversThroughHalfOpen(t *testing.T) {
	cb := newTestBreaker()
	ctx := context.Background()

	cb.Execute(ctx, failing)
	cb.Execute(ctx, failing)
	require.True(t, cb.IsOpen())

	time.Sleep(25 * time.Millisecond)

	// Two successes are needed to close; probes run one at a time.
	require.NoError(t, cb.Execute(ctx, succeeding))
	assert.Equal(t, StateHalfOpen, cb.State())
	require.NoError(t, cb.Execute(ctx, succeeding))
	assert.True(t, cb.IsClosed())
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb := newTestBreaker()
	ctx := context.Background()

	cb.Execute(ctx, failing)
	cb.Execute(ctx, failing)
	time.Sleep(25 * time.Millisecond)

	require.ErrorIs(t, cb.Execute(ctx, failing), errBackend)
	assert.True(t, cb.IsOpen())
}

func TestCircuitBreaker_ExecuteWithFallback(t *testing.T) {
	cb := newTestBreaker()
	ctx := context.Background()

	cb.Execute(ctx, failing)
	cb.Execute(ctx, failing)
	require.True(t, cb.IsOpen())

	fallbackRan := false
	err := cb.ExecuteWithFallback(ctx, succeeding, func(cause error) error {
		fallbackRan = true
		assert.ErrorIs(t, cause, ErrCircuitOpen)
		return nil
	})
	assert.NoError(t, err)
	assert.True(t, fallbackRan)

	// Ordinary errors bypass the fallback.
	cb.Reset()
	err = cb.ExecuteWithFallback(ctx, failing, func(error) error { return nil })
	assert.ErrorIs(t, err, errBackend)
}

func TestCircuitBreaker_IsFailureFilter(t *testing.T) {
	errIgnorable := errors.New("not found")
	cb := newTestBreaker(WithIsFailure(func(err error) bool {
		return !errors.Is(err, errIgnorable)
	}))
	ctx := context.Background()

	// Filtered errors are returned to the caller but never trip the breaker.
	for i := 0; i < 5; i++ {
		require.ErrorIs(t, cb.Execute(ctx, func(context.Context) error { return errIgnorable }), errIgnorable)
	}
	assert.True(t, cb.IsClosed())

	cb.Execute(ctx, failing)
	cb.Execute(ctx, failing)
	assert.True(t, cb.IsOpen())
}

func TestCircuitBreaker_Reset(t *testing.T) {
	cb := newTestBreaker()
	ctx := context.Background()

	cb.Execute(ctx, failing)
	cb.Execute(ctx, failing)
	require.True(t, cb.IsOpen())

	cb.Reset()
	assert.True(t, cb.IsClosed())
	assert.Equal(t, Counts{}, cb.Counts())
	assert.NoError(t, cb.Execute(ctx, succeeding))
}

func TestCircuitBreaker_Counts(t *testing.T) {
	cb := newTestBreaker(WithFailureThreshold(10))
	ctx := context.Background()

	cb.Execute(ctx, succeeding)
	cb.Execute(ctx, succeeding)
	cb.Execute(ctx, failing)

	counts := cb.Counts()
	assert.Equal(t, 3, counts.Requests)
	assert.Equal(t, 2, counts.TotalSuccesses)
	assert.Equal(t, 1, counts.TotalFailures)
	assert.Equal(t, 1, counts.ConsecutiveFailures)
}

func TestCircuitBreaker_StateChangeCallback(t *testing.T) {
	var transitions []string
	cb := newTestBreaker(WithOnStateChange(func(name string, from, to State) {
		transitions = append(transitions, from.String()+">"+to.String())
	}))
	ctx := context.Background()

	cb.Execute(ctx, failing)
	cb.Execute(ctx, failing)
	time.Sleep(25 * time.Millisecond)
	cb.Execute(ctx, succeeding)
	cb.Execute(ctx, succeeding)

	assert.Equal(t, []string{"closed>open", "open>half-open", "half-open>closed"}, transitions)
}
