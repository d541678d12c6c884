package browser

import (
	"context"
	"time"
)

// tickFunc runs once per repeater tick. Returning stop ends the loop early;
// returning an error ends it immediately with that error.
type tickFunc func(ctx context.Context, tick int) (stop bool, err error)

// repeatEvery invokes fn every interval until fn asks to stop, maxTicks runs
// have completed (maxTicks <= 0 means no limit), or ctx ends. The ticker is
// always released before return, so no timer outlives the loop. It reports
// how many ticks ran and, for a context abort, the context's error.
func repeatEvery(ctx context.Context, interval time.Duration, maxTicks int, fn tickFunc) (int, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	ticks := 0
	for {
		if maxTicks > 0 && ticks >= maxTicks {
			return ticks, nil
		}
		select {
		case <-ctx.Done():
			return ticks, ctx.Err()
		case <-ticker.C:
			ticks++
			stop, err := fn(ctx, ticks)
			if err != nil {
				return ticks, err
			}
			if stop {
				return ticks, nil
			}
		}
	}
}

// pause blocks for d or until ctx ends, whichever comes first.
func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
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
