package humanoid

import (
	"context"
)

// MoveTo moves the pointer onto the element matched by selector.
func (h *Humanoid) MoveTo(ctx context.Context, selector string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.moveToSelector(ctx, selector)
}

// MoveToVector moves the pointer to an absolute viewport position.
func (h *Humanoid) MoveToVector(ctx context.Context, target Vector2D) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.simulateTrajectory(ctx, target, 20)
}

func (h *Humanoid) moveToSelector(ctx context.Context, selector string) error {
	target, geo, err := h.targetPoint(ctx, selector)
	if err != nil {
		return err
	}
	width := float64(geo.Width)
	if float64(geo.Height) < width {
		width = float64(geo.Height)
	}
	return h.simulateTrajectory(ctx, target, width)
}
