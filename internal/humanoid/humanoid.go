// Package humanoid synthesizes human-paced keyboard input for credential
// fields. It only shapes timing; the characters sent always match the input
// exactly, so a credential can never be corrupted by the simulation.
package humanoid

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/aquilax/go-perlin"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// Config tunes the typing cadence. Zero values fall back to the package
// defaults applied in NewTypist.
type Config struct {
	Enabled          bool `mapstructure:"enabled"`
	KeyDelayMeanMs   int  `mapstructure:"key_delay_mean_ms"`
	KeyDelayJitterMs int  `mapstructure:"key_delay_jitter_ms"`

	// Rng overrides the randomness source. Tests inject a seeded source for
	// reproducible delays.
	Rng *rand.Rand `mapstructure:"-"`
}

const (
	defaultKeyDelayMeanMs   = 70
	defaultKeyDelayJitterMs = 40
	minKeyDelayMs           = 25.0
)

// commonNgrams are letter sequences trained typists produce faster than
// isolated keys. Matching sequences shorten the inter-key delay.
var commonNgrams = map[string]bool{
	"th": true, "he": true, "in": true, "er": true, "an": true, "re": true,
	"es": true, "on": true, "st": true, "nt": true,
	"the": true, "and": true, "ing": true, "ion": true, "tio": true,
}

// Typist produces keyboard actions with human-like inter-key timing. Delays
// follow a normal distribution around the configured mean, drifted slowly by
// Perlin noise so long inputs speed up and slow down the way a hand does.
type Typist struct {
	cfg    Config
	logger *zap.Logger

	mu    sync.Mutex
	rng   *rand.Rand
	noise *perlin.Perlin
	step  float64
}

// NewTypist creates a Typist from the given configuration.
func NewTypist(cfg Config, logger *zap.Logger) *Typist {
	if cfg.KeyDelayMeanMs <= 0 {
		cfg.KeyDelayMeanMs = defaultKeyDelayMeanMs
	}
	if cfg.KeyDelayJitterMs <= 0 {
		cfg.KeyDelayJitterMs = defaultKeyDelayJitterMs
	}

	seed := time.Now().UnixNano()
	rng := cfg.Rng
	if rng == nil {
		rng = rand.New(rand.NewSource(seed))
	}

	// Standard Perlin parameters.
	alpha, beta, n := 2.0, 2.0, int32(3)

	return &Typist{
		cfg:    cfg,
		logger: logger,
		rng:    rng,
		noise:  perlin.NewPerlin(alpha, beta, n, seed),
	}
}

// Type returns an action that focuses the selector and sends the text one
// key at a time with paced delays. When the cadence is disabled the text is
// sent in a single burst.
func (t *Typist) Type(selector, text string) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := chromedp.Focus(selector, chromedp.ByQuery).Do(ctx); err != nil {
			return fmt.Errorf("humanoid: failed to focus selector %q: %w", selector, err)
		}

		if !t.cfg.Enabled {
			return chromedp.SendKeys(selector, text, chromedp.ByQuery).Do(ctx)
		}

		// Settling pause between focus and the first keystroke.
		if err := t.pause(ctx, t.keyDelay(nil, 0)*3); err != nil {
			return err
		}

		runes := []rune(text)
		for i := 0; i < len(runes); i++ {
			if i > 0 {
				if err := t.pause(ctx, t.keyDelay(runes, i)); err != nil {
					return err
				}
			}
			if err := t.sendKey(ctx, runes[i]); err != nil {
				return fmt.Errorf("humanoid: failed to send key %d of %d: %w", i+1, len(runes), err)
			}
		}
		return nil
	})
}

// sendKey dispatches a single key to the focused element.
func (t *Typist) sendKey(ctx context.Context, key rune) error {
	action := chromedp.SendKeys(
		// The element was focused by Type(), so target the active element.
		"document.activeElement",
		string(key),
		chromedp.ByJSPath,
	)
	return action.Do(ctx)
}

// holdDuration approximates the dwell time of a single keypress.
func (t *Typist) holdDuration() time.Duration {
	t.mu.Lock()
	hold := t.rng.NormFloat64()*8.0 + 45.0
	t.mu.Unlock()
	if hold < 15.0 {
		hold = 15.0
	}
	return time.Duration(hold) * time.Millisecond
}

// keyDelay computes the inter-key delay before the rune at index. Common
// digraphs and trigraphs land faster; Perlin drift varies the base rhythm
// across the whole input.
func (t *Typist) keyDelay(runes []rune, index int) time.Duration {
	mean := float64(t.cfg.KeyDelayMeanMs)
	jitter := float64(t.cfg.KeyDelayJitterMs)

	ngramFactor := 1.0
	if runes != nil && index > 0 && index < len(runes) {
		if index >= 2 {
			trigraph := strings.ToLower(string(runes[index-2 : index+1]))
			if commonNgrams[trigraph] {
				ngramFactor = 0.55
			}
		}
		if ngramFactor == 1.0 {
			digraph := strings.ToLower(string(runes[index-1 : index+1]))
			if commonNgrams[digraph] {
				ngramFactor = 0.7
			}
		}
	}

	t.mu.Lock()
	t.step += 0.13
	drift := 1.0 + 0.15*t.noise.Noise1D(t.step)
	delay := t.rng.NormFloat64()*jitter + mean*ngramFactor*drift
	t.mu.Unlock()

	final := math.Max(minKeyDelayMs*ngramFactor, delay)
	return time.Duration(final) * time.Millisecond
}

// pause sleeps for the duration unless the context ends first.
func (t *Typist) pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
