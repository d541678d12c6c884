package progress

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/guhesse/script-wf-sub000/api/schemas"
)

func newTestTracker() *Tracker {
	return NewTracker(zap.NewNop())
}

func TestTrackerLifecycle(t *testing.T) {
	t.Run("should start idle and done", func(t *testing.T) {
		tr := newTestTracker()
		snap := tr.Get()
		assert.Equal(t, schemas.PhaseIdle, snap.Phase)
		assert.True(t, snap.Done)
		assert.False(t, tr.IsRunning())
		assert.Empty(t, snap.AttemptID)
	})

	t.Run("should move through a successful attempt", func(t *testing.T) {
		tr := newTestTracker()
		require.NoError(t, tr.Start())
		assert.True(t, tr.IsRunning())

		started := tr.Get()
		assert.Equal(t, schemas.PhaseStarting, started.Phase)
		assert.NotEmpty(t, started.AttemptID)
		assert.False(t, started.StartedAt.IsZero())
		assert.Zero(t, started.Attempts)

		tr.Update(schemas.PhaseNavigating, "opening portal")
		tr.IncAttempts()
		tr.IncAttempts()
		tr.Success("session persisted")

		final := tr.Get()
		assert.Equal(t, schemas.PhaseSuccess, final.Phase)
		assert.Equal(t, "session persisted", final.Message)
		assert.Equal(t, 2, final.Attempts)
		assert.True(t, final.Done)
		assert.Empty(t, final.Error)
		assert.False(t, tr.IsRunning())
		assert.Equal(t, started.AttemptID, final.AttemptID,
			"the attempt identifier must be stable across the attempt")
	})

	t.Run("should record failure reasons", func(t *testing.T) {
		tr := newTestTracker()
		require.NoError(t, tr.Start())
		tr.Update(schemas.PhaseWaitingSSO, "waiting for provider")
		tr.Fail("device confirmation timed out")

		snap := tr.Get()
		assert.Equal(t, schemas.PhaseFailed, snap.Phase)
		assert.Equal(t, "device confirmation timed out", snap.Error)
		assert.True(t, snap.Done)
	})

	t.Run("should allow a new attempt after a finished one", func(t *testing.T) {
		tr := newTestTracker()
		require.NoError(t, tr.Start())
		first := tr.Get().AttemptID
		tr.Fail("boom")

		require.NoError(t, tr.Start())
		second := tr.Get().AttemptID
		assert.NotEqual(t, first, second, "each attempt gets a fresh identifier")
	})
}

func TestTrackerSingleFlight(t *testing.T) {
	t.Run("should reject a second start while running", func(t *testing.T) {
		tr := newTestTracker()
		require.NoError(t, tr.Start())

		err := tr.Start()
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrAlreadyRunning)
	})

	t.Run("should admit exactly one concurrent starter", func(t *testing.T) {
		tr := newTestTracker()

		const goroutines = 32
		var wins atomic.Int32
		var wg sync.WaitGroup
		wg.Add(goroutines)
		for i := 0; i < goroutines; i++ {
			go func() {
				defer wg.Done()
				if tr.Start() == nil {
					wins.Add(1)
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, int32(1), wins.Load(), "only one Start may win the race")
		assert.True(t, tr.IsRunning())
	})
}

func TestTrackerReset(t *testing.T) {
	t.Run("should return to idle from a running attempt", func(t *testing.T) {
		tr := newTestTracker()
		require.NoError(t, tr.Start())
		tr.Update(schemas.PhaseWaitingDeviceConfirmation, "push sent")

		tr.Reset()

		snap := tr.Get()
		assert.Equal(t, schemas.PhaseIdle, snap.Phase)
		assert.True(t, snap.Done)
		assert.Empty(t, snap.AttemptID)
		assert.False(t, tr.IsRunning())

		// A reset unblocks the next attempt.
		assert.NoError(t, tr.Start())
	})

	t.Run("should be harmless when already idle", func(t *testing.T) {
		tr := newTestTracker()
		tr.Reset()
		tr.Reset()
		assert.False(t, tr.IsRunning())
	})
}

func TestTrackerSnapshotIsolation(t *testing.T) {
	tr := newTestTracker()
	require.NoError(t, tr.Start())

	snap := tr.Get()
	snap.Phase = schemas.PhaseFailed
	snap.Message = "mutated copy"

	current := tr.Get()
	assert.Equal(t, schemas.PhaseStarting, current.Phase,
		"mutating a returned snapshot must not affect the tracker")
	assert.NotEqual(t, "mutated copy", current.Message)
}
