package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCircuitBreaker_PassesThroughSuccess(t *testing.T) {
	cb := NewCircuitBreaker()

	result, err := cb.Execute(context.Background(), func() (interface{}, error) {
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, "closed", cb.State())
}

func TestCircuitBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	cb := NewCircuitBreakerWithConfig(CircuitBreakerConfig{
		MaxFailures:          3,
		Timeout:              time.Minute,
		HalfOpenMaxSuccesses: 1,
	})
	boom := errors.New("backend down")

	for i := 0; i < 3; i++ {
		_, err := cb.Execute(context.Background(), func() (interface{}, error) {
			return nil, boom
		})
		assert.ErrorIs(t, err, boom)
	}
	assert.Equal(t, "open", cb.State())

	_, err := cb.Execute(context.Background(), func() (interface{}, error) {
		t.Fatal("function must not run while the circuit is open")
		return nil, nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestCircuitBreaker_RecoversAfterTimeout(t *testing.T) {
	cb := NewCircuitBreakerWithConfig(CircuitBreakerConfig{
		MaxFailures:          1,
		Timeout:              20 * time.Millisecond,
		HalfOpenMaxSuccesses: 1,
	})

	_, err := cb.Execute(context.Background(), func() (interface{}, error) {
		return nil, errors.New("boom")
	})
	require.Error(t, err)
	require.Equal(t, "open", cb.State())

	time.Sleep(30 * time.Millisecond)

	result, err := cb.Execute(context.Background(), func() (interface{}, error) {
		return "recovered", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "recovered", result)
	assert.Equal(t, "closed", cb.State())
}

func TestCircuitBreaker_CancelledContext(t *testing.T) {
	cb := NewCircuitBreaker()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := cb.Execute(ctx, func() (interface{}, error) {
		return "unreachable", nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCircuitBreaker_Metrics(t *testing.T) {
	cb := NewCircuitBreaker()

	_, _ = cb.Execute(context.Background(), func() (interface{}, error) { return nil, nil })
	_, _ = cb.Execute(context.Background(), func() (interface{}, error) { return nil, errors.New("x") })

	m := cb.Metrics()
	assert.Equal(t, uint64(2), m.TotalRequests)
	assert.Equal(t, uint64(1), m.TotalSuccesses)
	assert.Equal(t, uint64(1), m.TotalFailures)
}
