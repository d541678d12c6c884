package humanoid

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestTypist(t *testing.T, cfg Config) *Typist {
	t.Helper()
	if cfg.Rng == nil {
		cfg.Rng = rand.New(rand.NewSource(42))
	}
	return NewTypist(cfg, zap.NewNop())
}

func TestNewTypistAppliesDefaults(t *testing.T) {
	typist := newTestTypist(t, Config{Enabled: true})
	assert.Equal(t, defaultKeyDelayMeanMs, typist.cfg.KeyDelayMeanMs)
	assert.Equal(t, defaultKeyDelayJitterMs, typist.cfg.KeyDelayJitterMs)
}

func TestKeyDelayBounds(t *testing.T) {
	typist := newTestTypist(t, Config{Enabled: true, KeyDelayMeanMs: 70, KeyDelayJitterMs: 40})

	runes := []rune("correct-horse-battery")
	for i := 1; i < len(runes); i++ {
		d := typist.keyDelay(runes, i)
		assert.GreaterOrEqual(t, d, time.Duration(0), "delay must never be negative")
		assert.GreaterOrEqual(t, d, time.Duration(minKeyDelayMs*0.55)*time.Millisecond,
			"delay must respect the scaled floor")
		assert.Less(t, d, time.Second, "delay should stay in a human range")
	}
}

func TestKeyDelayNgramSpeedup(t *testing.T) {
	// Averaged over many samples, a common digraph boundary should be faster
	// than an uncommon one because its mean is scaled down.
	typist := newTestTypist(t, Config{Enabled: true, KeyDelayMeanMs: 200, KeyDelayJitterMs: 1})

	const samples = 200
	var common, uncommon time.Duration
	for i := 0; i < samples; i++ {
		common += typist.keyDelay([]rune("th"), 1)
		uncommon += typist.keyDelay([]rune("qz"), 1)
	}
	assert.Less(t, common/samples, uncommon/samples,
		"common digraphs should be typed faster on average")
}

func TestHoldDurationFloor(t *testing.T) {
	typist := newTestTypist(t, Config{Enabled: true})
	for i := 0; i < 100; i++ {
		assert.GreaterOrEqual(t, typist.holdDuration(), 15*time.Millisecond)
	}
}

func TestPauseHonorsContext(t *testing.T) {
	typist := newTestTypist(t, Config{Enabled: true})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := typist.pause(ctx, time.Minute)
	require.Error(t, err, "a canceled context must abort the pause")
}

func TestPauseZeroDuration(t *testing.T) {
	typist := newTestTypist(t, Config{Enabled: true})
	assert.NoError(t, typist.pause(context.Background(), 0), "zero duration should return without waiting")
}
