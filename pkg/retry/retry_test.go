package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPolicyDo_SucceedsFirstAttempt(t *testing.T) {
	calls := 0
	p := Policy{MaxAttempts: 3, InitialBackoff: time.Second, Multiplier: 2}

	err := p.Do(context.Background(), func() error {
		calls++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestPolicyDo_RetriesUntilSuccess(t *testing.T) {
	calls := 0
	p := Policy{MaxAttempts: 3, InitialBackoff: time.Millisecond, Multiplier: 2}

	err := p.Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestPolicyDo_ExhaustsAttempts(t *testing.T) {
	calls := 0
	lastErr := errors.New("still failing")
	p := Policy{MaxAttempts: 3, InitialBackoff: time.Millisecond, Multiplier: 2}

	err := p.Do(context.Background(), func() error {
		calls++
		return lastErr
	})

	require.ErrorIs(t, err, lastErr)
	assert.Equal(t, 3, calls)
}

func TestPolicyDo_NonRetryableStopsImmediately(t *testing.T) {
	calls := 0
	fatal := errors.New("fatal")
	p := Policy{
		MaxAttempts:    5,
		InitialBackoff: time.Millisecond,
		Multiplier:     2,
		Retryable:      func(err error) bool { return !errors.Is(err, fatal) },
	}

	err := p.Do(context.Background(), func() error {
		calls++
		return fatal
	})

	require.ErrorIs(t, err, fatal)
	assert.Equal(t, 1, calls, "non-retryable error must not be retried")
}

func TestPolicyDo_BackoffDoubles(t *testing.T) {
	calls := 0
	p := Policy{MaxAttempts: 3, InitialBackoff: 10 * time.Millisecond, Multiplier: 2}

	start := time.Now()
	err := p.Do(context.Background(), func() error {
		calls++
		return errors.New("transient")
	})
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	// 两次退避：10ms + 20ms
	assert.GreaterOrEqual(t, elapsed, 30*time.Millisecond)
}

func TestPolicyDo_BackoffHonorsCap(t *testing.T) {
	calls := 0
	p := Policy{
		MaxAttempts:    4,
		InitialBackoff: 5 * time.Millisecond,
		MaxBackoff:     8 * time.Millisecond,
		Multiplier:     2,
	}

	start := time.Now()
	err := p.Do(context.Background(), func() error {
		calls++
		return errors.New("transient")
	})
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.Equal(t, 4, calls)
	// 三次退避：5ms + 8ms + 8ms（倍增到 10ms 和 16ms 均被压到上限）
	assert.GreaterOrEqual(t, elapsed, 21*time.Millisecond)
	assert.Less(t, elapsed, 500*time.Millisecond)
}

func TestPolicyDo_ContextCancelDuringBackoff(t *testing.T) {
	calls := 0
	p := Policy{MaxAttempts: 3, InitialBackoff: 5 * time.Second, Multiplier: 2}

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	start := time.Now()
	err := p.Do(ctx, func() error {
		calls++
		return errors.New("transient")
	})

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
	assert.Less(t, time.Since(start), time.Second, "cancel must interrupt the backoff wait")
}
