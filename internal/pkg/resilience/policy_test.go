package resilience

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errTransient = errors.New("dependency unavailable")
var errBusiness = errors.New("insufficient stock")

func transientOnly(err error) bool {
	return errors.Is(err, errTransient)
}

func newTestPolicy(maxAttempts int, minRequests uint32) *Policy {
	return New(Options{
		Name:           "test",
		MaxAttempts:    maxAttempts,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
		FailureRatio:   0.5,
		MinRequests:    minRequests,
		OpenTimeout:    time.Minute,
		Transient:      transientOnly,
	})
}

func TestExecute_RetriesTransientThenSucceeds(t *testing.T) {
	p := newTestPolicy(3, 100)

	calls := 0
	err := p.Execute(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errTransient
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestExecute_DoesNotRetryBusinessErrors(t *testing.T) {
	p := newTestPolicy(5, 100)

	calls := 0
	err := p.Execute(context.Background(), func(ctx context.Context) error {
		calls++
		return errBusiness
	})

	require.ErrorIs(t, err, errBusiness)
	assert.Equal(t, 1, calls, "business errors must not be retried")
}

func TestExecute_ExhaustsRetries(t *testing.T) {
	p := newTestPolicy(3, 100)

	calls := 0
	err := p.Execute(context.Background(), func(ctx context.Context) error {
		calls++
		return errTransient
	})

	require.ErrorIs(t, err, errTransient)
	assert.Equal(t, 3, calls)
}

func TestExecute_OpensBreakerAfterSustainedFailures(t *testing.T) {
	p := newTestPolicy(1, 4)

	for i := 0; i < 4; i++ {
		_ = p.Execute(context.Background(), func(ctx context.Context) error {
			return errTransient
		})
	}

	calls := 0
	err := p.Execute(context.Background(), func(ctx context.Context) error {
		calls++
		return nil
	})

	require.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, 0, calls, "open breaker must short-circuit without invoking the operation")
}

func TestExecute_BusinessErrorsDoNotTripBreaker(t *testing.T) {
	p := newTestPolicy(1, 4)

	for i := 0; i < 20; i++ {
		_ = p.Execute(context.Background(), func(ctx context.Context) error {
			return errBusiness
		})
	}

	err := p.Execute(context.Background(), func(ctx context.Context) error {
		return nil
	})
	require.NoError(t, err, "business failures must not open the breaker")
}

func TestExecute_RespectsContextCancellationDuringBackoff(t *testing.T) {
	p := New(Options{
		Name:           "test",
		MaxAttempts:    5,
		InitialBackoff: time.Hour, // 退避远大于取消时间
		MinRequests:    100,
		Transient:      transientOnly,
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := p.Execute(ctx, func(ctx context.Context) error {
		return errTransient
	})
	require.ErrorIs(t, err, context.Canceled)
}
