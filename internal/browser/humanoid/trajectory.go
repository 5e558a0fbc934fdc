package humanoid

import (
	"context"
	"math"
	"time"

	"github.com/xkilldash9x/sociallink/api/schemas"
)

// computeEaseInOutCubic provides a smooth acceleration and deceleration profile for movement.
func computeEaseInOutCubic(t float64) float64 {
	if t < 0.5 {
		return 4 * t * t * t
	}
	return 1 - math.Pow(-2*t+2, 3)/2
}

// fittsDuration returns the movement time for a target of the given width.
func (h *Humanoid) fittsDuration(distance, width float64) time.Duration {
	if width < 1 {
		width = 1
	}
	id := math.Log2(1.0 + distance/width)
	mt := h.cfg.FittsA + h.cfg.FittsB*id
	mt += mt * (h.rng.Float64()*0.3 - 0.15)
	if mt < 0 {
		mt = 0
	}
	return time.Duration(mt * float64(time.Millisecond))
}

// stepCount scales with distance between the configured bounds.
func (h *Humanoid) stepCount(distance float64) int {
	n := h.cfg.MinSteps + int(distance/80)
	n += h.rng.Intn(3)
	if n > h.cfg.MaxSteps {
		n = h.cfg.MaxSteps
	}
	if n < 2 {
		n = 2
	}
	return n
}

// generateIdealPath samples a cubic Bezier from start to end whose control
// points are pushed to one side of the straight line.
func (h *Humanoid) generateIdealPath(start, end Vector2D, numSteps int) []Vector2D {
	mainVec := end.Sub(start)
	dist := mainVec.Mag()
	if dist < 1.0 || numSteps <= 1 {
		return []Vector2D{end}
	}

	normal := Vector2D{X: -mainVec.Y, Y: mainVec.X}.Normalize()
	side := 1.0
	if h.rng.Intn(2) == 0 {
		side = -1.0
	}
	bend1 := dist * h.cfg.Curvature * (0.3 + 0.7*h.rng.Float64()) * side
	bend2 := dist * h.cfg.Curvature * (0.3 + 0.7*h.rng.Float64()) * side

	p0, p3 := start, end
	p1 := start.Add(mainVec.Mul(1.0 / 3.0)).Add(normal.Mul(bend1))
	p2 := start.Add(mainVec.Mul(2.0 / 3.0)).Add(normal.Mul(bend2))

	path := make([]Vector2D, numSteps)
	for i := 0; i < numSteps; i++ {
		t := computeEaseInOutCubic(float64(i+1) / float64(numSteps))
		omt := 1.0 - t
		path[i] = p0.Mul(omt * omt * omt).
			Add(p1.Mul(3 * omt * omt * t)).
			Add(p2.Mul(3 * omt * t * t)).
			Add(p3.Mul(t * t * t))
	}
	path[numSteps-1] = end
	return path
}

func (h *Humanoid) applyGaussianNoise(point Vector2D) Vector2D {
	return Vector2D{
		X: point.X + h.rng.NormFloat64()*h.cfg.GaussianStrength,
		Y: point.Y + h.rng.NormFloat64()*h.cfg.GaussianStrength,
	}
}

// simulateTrajectory dispatches a pointer path from the current position to
// end, spreading the Fitts's law duration over the steps.
func (h *Humanoid) simulateTrajectory(ctx context.Context, end Vector2D, targetWidth float64) error {
	start := h.currentPos
	dist := start.Dist(end)
	steps := h.stepCount(dist)
	path := h.generateIdealPath(start, end, steps)
	total := h.fittsDuration(dist, targetWidth)
	perStep := total / time.Duration(len(path))
	buttons := h.calculateButtonsBitfield(h.currentButtonState)

	for i, p := range path {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if i < len(path)-1 {
			p = h.applyGaussianNoise(p)
		}
		ev := schemas.MouseEventData{
			Type:    schemas.MouseMove,
			X:       p.X,
			Y:       p.Y,
			Button:  schemas.ButtonNone,
			Buttons: buttons,
		}
		if err := h.executor.DispatchMouseEvent(ctx, ev); err != nil {
			return err
		}
		h.currentPos = p
		if perStep > 0 {
			if err := h.executor.Sleep(ctx, perStep); err != nil {
				return err
			}
		}
	}
	return nil
}
