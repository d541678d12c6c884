package browser

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepeatEvery(t *testing.T) {
	t.Run("should run until the tick budget is exhausted", func(t *testing.T) {
		var calls int
		ticks, err := repeatEvery(context.Background(), time.Millisecond, 5, func(ctx context.Context, tick int) (bool, error) {
			calls++
			assert.Equal(t, calls, tick)
			return false, nil
		})

		require.NoError(t, err)
		assert.Equal(t, 5, ticks)
		assert.Equal(t, 5, calls)
	})

	t.Run("should stop early when the callback asks to", func(t *testing.T) {
		ticks, err := repeatEvery(context.Background(), time.Millisecond, 10, func(ctx context.Context, tick int) (bool, error) {
			return tick == 3, nil
		})

		require.NoError(t, err)
		assert.Equal(t, 3, ticks)
	})

	t.Run("should propagate a callback error immediately", func(t *testing.T) {
		boom := errors.New("boom")
		ticks, err := repeatEvery(context.Background(), time.Millisecond, 10, func(ctx context.Context, tick int) (bool, error) {
			if tick == 2 {
				return false, boom
			}
			return false, nil
		})

		require.ErrorIs(t, err, boom)
		assert.Equal(t, 2, ticks)
	})

	t.Run("should abort when the context is cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		ticks, err := repeatEvery(ctx, time.Millisecond, 0, func(ctx context.Context, tick int) (bool, error) {
			if tick == 2 {
				cancel()
			}
			return false, nil
		})

		require.ErrorIs(t, err, context.Canceled)
		assert.GreaterOrEqual(t, ticks, 2)
	})
}

func TestPause(t *testing.T) {
	t.Run("should return immediately for a zero duration", func(t *testing.T) {
		require.NoError(t, pause(context.Background(), 0))
	})

	t.Run("should wait out the duration", func(t *testing.T) {
		start := time.Now()
		require.NoError(t, pause(context.Background(), 20*time.Millisecond))
		assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
	})

	t.Run("should abort on context cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		require.ErrorIs(t, pause(ctx, time.Minute), context.Canceled)
	})
}
