package humanoid

import (
	"context"

	"github.com/xkilldash9x/sociallink/api/schemas"
)

// IntelligentClick moves onto the element and presses the left button for a
// sampled hold time.
func (h *Humanoid) IntelligentClick(ctx context.Context, selector string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.click(ctx, selector)
}

func (h *Humanoid) click(ctx context.Context, selector string) error {
	if err := h.moveToSelector(ctx, selector); err != nil {
		return err
	}

	// Settle before pressing.
	if err := h.executor.Sleep(ctx, uniformDuration(h.rng, h.cfg.KeyDelayMin/2, h.cfg.KeyDelayMax/2)); err != nil {
		return err
	}

	pos := h.currentPos
	if err := h.executor.DispatchMouseEvent(ctx, schemas.MouseEventData{
		Type:       schemas.MousePress,
		X:          pos.X,
		Y:          pos.Y,
		Button:     schemas.ButtonLeft,
		ClickCount: 1,
		Buttons:    1,
	}); err != nil {
		return err
	}
	h.currentButtonState = schemas.ButtonLeft

	holdErr := h.executor.Sleep(ctx, uniformDuration(h.rng, h.cfg.ClickHoldMin, h.cfg.ClickHoldMax))

	// Always release, even when the hold was interrupted.
	releaseCtx := ctx
	if holdErr != nil {
		releaseCtx = context.WithoutCancel(ctx)
	}
	if err := h.executor.DispatchMouseEvent(releaseCtx, schemas.MouseEventData{
		Type:       schemas.MouseRelease,
		X:          pos.X,
		Y:          pos.Y,
		Button:     schemas.ButtonLeft,
		ClickCount: 1,
		Buttons:    0,
	}); err != nil {
		return err
	}
	h.currentButtonState = schemas.ButtonNone
	return holdErr
}
