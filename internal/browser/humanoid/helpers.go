package humanoid

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/sociallink/api/schemas"
)

const scrollIntoViewScript = `(function(selector) {
	const el = document.querySelector(selector);
	if (!el) { return false; }
	const r = el.getBoundingClientRect();
	if (r.top >= 0 && r.bottom <= window.innerHeight) { return true; }
	el.scrollIntoView({block: 'center', inline: 'nearest', behavior: 'instant'});
	return true;
})`

// boxToCenter calculates the geometric center of an element's geometry.
func boxToCenter(geo *schemas.ElementGeometry) (center Vector2D, valid bool) {
	if geo == nil || len(geo.Vertices) < 8 {
		return Vector2D{}, false
	}
	centerX := (geo.Vertices[0] + geo.Vertices[2] + geo.Vertices[4] + geo.Vertices[6]) / 4
	centerY := (geo.Vertices[1] + geo.Vertices[3] + geo.Vertices[5] + geo.Vertices[7]) / 4
	return Vector2D{X: centerX, Y: centerY}, true
}

// ensureVisible scrolls the element into the viewport when it sits outside it.
func (h *Humanoid) ensureVisible(ctx context.Context, selector string) error {
	if _, err := h.executor.ExecuteScript(ctx, scrollIntoViewScript, []interface{}{selector}); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// A failed scroll is not fatal; geometry lookup decides interactability.
		h.logger.Debug("Scroll into view failed.", zap.String("selector", selector), zap.Error(err))
	}
	return nil
}

func (h *Humanoid) getElementBoxBySelector(ctx context.Context, selector string) (*schemas.ElementGeometry, error) {
	geo, err := h.executor.GetElementGeometry(ctx, selector)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("humanoid: geometry retrieval failed for '%s': %w", selector, err)
	}
	if geo == nil {
		return nil, fmt.Errorf("humanoid: executor returned nil geometry for '%s'", selector)
	}
	if len(geo.Vertices) < 8 {
		return nil, fmt.Errorf("humanoid: element '%s' returned invalid geometry", selector)
	}
	if geo.Width <= 0 || geo.Height <= 0 {
		h.logger.Debug("Element found but has zero size.",
			zap.String("selector", selector),
			zap.Int64("width", geo.Width),
			zap.Int64("height", geo.Height))
		return nil, fmt.Errorf("humanoid: element '%s' is not interactable (zero size)", selector)
	}
	return geo, nil
}

// targetPoint picks a point inside the element, biased toward its center.
func (h *Humanoid) targetPoint(ctx context.Context, selector string) (Vector2D, *schemas.ElementGeometry, error) {
	if err := h.ensureVisible(ctx, selector); err != nil {
		return Vector2D{}, nil, err
	}
	geo, err := h.getElementBoxBySelector(ctx, selector)
	if err != nil {
		return Vector2D{}, nil, err
	}
	center, valid := boxToCenter(geo)
	if !valid {
		return Vector2D{}, nil, fmt.Errorf("humanoid: element '%s' has invalid geometry structure", selector)
	}
	// Aim within the inner third of the box.
	offset := Vector2D{
		X: clamp(h.rng.NormFloat64()*float64(geo.Width)/6, -float64(geo.Width)/3, float64(geo.Width)/3),
		Y: clamp(h.rng.NormFloat64()*float64(geo.Height)/6, -float64(geo.Height)/3, float64(geo.Height)/3),
	}
	return center.Add(offset), geo, nil
}

func (h *Humanoid) calculateButtonsBitfield(buttonState schemas.MouseButton) int64 {
	switch buttonState {
	case schemas.ButtonLeft:
		return 1
	case schemas.ButtonRight:
		return 2
	case schemas.ButtonMiddle:
		return 4
	default:
		return 0
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
