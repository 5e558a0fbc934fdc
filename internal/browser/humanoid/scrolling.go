package humanoid

import (
	"context"
	"math"

	"github.com/xkilldash9x/sociallink/api/schemas"
)

// Scroll turns the wheel by roughly deltaY pixels in notch-sized increments,
// pausing briefly between notches. Positive values scroll down.
func (h *Humanoid) Scroll(ctx context.Context, deltaY float64) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	step := h.cfg.ScrollStep
	if step <= 0 {
		step = 120
	}
	remaining := math.Abs(deltaY)
	dir := 1.0
	if deltaY < 0 {
		dir = -1.0
	}
	for remaining > 0 {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		notch := math.Min(step, remaining)
		ev := schemas.MouseEventData{
			Type:   schemas.MouseWheel,
			X:      h.currentPos.X,
			Y:      h.currentPos.Y,
			Button: schemas.ButtonNone,
			DeltaY: notch * dir,
		}
		if err := h.executor.DispatchMouseEvent(ctx, ev); err != nil {
			return err
		}
		remaining -= notch
		if err := h.executor.Sleep(ctx, uniformDuration(h.rng, h.cfg.KeyDelayMin, h.cfg.KeyDelayMax)); err != nil {
			return err
		}
	}
	return nil
}
