package humanoid

import (
	"context"
	"time"
)

// CognitivePause sleeps for a normally distributed duration, floored at zero.
func (h *Humanoid) CognitivePause(ctx context.Context, meanMs, stdDevMs float64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.pause(ctx, meanMs, stdDevMs)
}

func (h *Humanoid) pause(ctx context.Context, meanMs, stdDevMs float64) error {
	ms := sampleGaussian(h.rng, meanMs, stdDevMs)
	if ms <= 0 {
		return nil
	}
	return h.executor.Sleep(ctx, time.Duration(ms*float64(time.Millisecond)))
}
