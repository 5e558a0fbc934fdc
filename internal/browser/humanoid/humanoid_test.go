package humanoid

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/sociallink/api/schemas"
	"github.com/xkilldash9x/sociallink/internal/config"
)

var errNoSuchElement = errors.New("no such element")

func TestFromConfig(t *testing.T) {
	cfg := FromConfig(config.HumanoidConfig{
		FittsA:         80,
		FittsB:         90,
		MinSteps:       5,
		MaxSteps:       9,
		KeyDelayMinMs:  10,
		KeyDelayMaxMs:  20,
		ClickHoldMinMs: 30,
		ClickHoldMaxMs: 40,
		TypoRate:       0.1,
	})
	assert.Equal(t, 80.0, cfg.FittsA)
	assert.Equal(t, 90.0, cfg.FittsB)
	assert.Equal(t, 5, cfg.MinSteps)
	assert.Equal(t, 9, cfg.MaxSteps)
	assert.Equal(t, 10*time.Millisecond, cfg.KeyDelayMin)
	assert.Equal(t, 20*time.Millisecond, cfg.KeyDelayMax)
	assert.Equal(t, 30*time.Millisecond, cfg.ClickHoldMin)
	assert.Equal(t, 40*time.Millisecond, cfg.ClickHoldMax)
	assert.Equal(t, 0.1, cfg.TypoRate)

	t.Run("zero values keep defaults", func(t *testing.T) {
		assert.Equal(t, DefaultConfig(), FromConfig(config.HumanoidConfig{}))
	})
}

func TestGenerateIdealPath(t *testing.T) {
	h := NewTestHumanoid(newMockExecutor(), 1)
	start := Vector2D{X: 10, Y: 10}
	end := Vector2D{X: 400, Y: 300}

	path := h.generateIdealPath(start, end, 15)
	require.Len(t, path, 15)
	assert.Equal(t, end, path[len(path)-1])

	t.Run("degenerate distance", func(t *testing.T) {
		assert.Equal(t, []Vector2D{end}, h.generateIdealPath(end, end, 15))
	})
}

func TestFittsDurationGrowsWithDistance(t *testing.T) {
	h := NewTestHumanoid(newMockExecutor(), 2)
	near := h.fittsDuration(10, 20)
	far := h.fittsDuration(1000, 20)
	assert.Greater(t, far, near)
}

func TestMoveTo(t *testing.T) {
	mock := newMockExecutor()
	mock.box("#target", 300, 200, 90, 30)
	h := NewTestHumanoid(mock, 3)

	require.NoError(t, h.MoveTo(context.Background(), "#target"))

	moves := mock.eventsOfType(schemas.MouseMove)
	cfg := DefaultConfig()
	assert.GreaterOrEqual(t, len(moves), cfg.MinSteps)
	assert.LessOrEqual(t, len(moves), cfg.MaxSteps)
	assert.Equal(t, 1, mock.scripts, "scroll into view runs once")

	last := moves[len(moves)-1]
	assert.Equal(t, h.Position(), Vector2D{X: last.X, Y: last.Y})
	assert.InDelta(t, 345, last.X, 30+1e-9)
	assert.InDelta(t, 215, last.Y, 10+1e-9)
	assert.Len(t, mock.sleepDurations, len(moves), "one pacing sleep per step")
}

func TestMoveTo_Errors(t *testing.T) {
	mock := newMockExecutor()
	mock.box("#flat", 0, 0, 0, 0)
	h := NewTestHumanoid(mock, 4)

	err := h.MoveTo(context.Background(), "#missing")
	assert.ErrorIs(t, err, errNoSuchElement)

	err = h.MoveTo(context.Background(), "#flat")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not interactable")
	assert.Empty(t, mock.eventsOfType(schemas.MouseMove))
}

func TestIntelligentClick(t *testing.T) {
	mock := newMockExecutor()
	mock.box("button.send", 100, 100, 40, 20)
	h := NewTestHumanoid(mock, 5)

	require.NoError(t, h.IntelligentClick(context.Background(), "button.send"))

	presses := mock.eventsOfType(schemas.MousePress)
	releases := mock.eventsOfType(schemas.MouseRelease)
	require.Len(t, presses, 1)
	require.Len(t, releases, 1)
	assert.Equal(t, int64(1), presses[0].Buttons)
	assert.Equal(t, int64(0), releases[0].Buttons)
	assert.Equal(t, presses[0].X, releases[0].X)
	assert.Equal(t, presses[0].Y, releases[0].Y)

	hold := mock.sleepDurations[len(mock.sleepDurations)-1]
	cfg := DefaultConfig()
	assert.GreaterOrEqual(t, hold, cfg.ClickHoldMin)
	assert.LessOrEqual(t, hold, cfg.ClickHoldMax)
	assert.Equal(t, schemas.ButtonNone, h.currentButtonState)
}

func TestIntelligentClick_ReleasesAfterCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mock := newMockExecutor()
	mock.box("#b", 10, 10, 50, 50)
	mock.MockDispatchMouseEvent = func(_ context.Context, data schemas.MouseEventData) error {
		if data.Type == schemas.MousePress {
			cancel()
		}
		return nil
	}
	h := NewTestHumanoid(mock, 6)

	err := h.IntelligentClick(ctx, "#b")
	assert.ErrorIs(t, err, context.Canceled)
	require.Len(t, mock.eventsOfType(schemas.MouseRelease), 1)
	assert.Equal(t, schemas.ButtonNone, h.currentButtonState)
}

func TestTypeText(t *testing.T) {
	mock := newMockExecutor()
	h := NewTestHumanoid(mock, 7)

	require.NoError(t, h.TypeText(context.Background(), "hi there"))
	assert.Equal(t, []string{"h", "i", " ", "t", "h", "e", "r", "e"}, mock.sentKeys)
	require.Len(t, mock.sleepDurations, 8)

	cfg := DefaultConfig()
	for _, d := range mock.sleepDurations {
		assert.GreaterOrEqual(t, d, cfg.KeyDelayMin)
		assert.LessOrEqual(t, d, cfg.KeyDelayMax+cfg.KeyDelayMax/2)
	}
}

func TestTypeText_CorrectsTypos(t *testing.T) {
	mock := newMockExecutor()
	h := NewTestHumanoid(mock, 8)
	h.cfg.TypoRate = 1

	require.NoError(t, h.TypeText(context.Background(), "ab"))
	require.Len(t, mock.sentKeys, 6)
	assert.Contains(t, keyboardNeighbors['a'], mock.sentKeys[0])
	assert.Equal(t, string(KeyBackspace), mock.sentKeys[1])
	assert.Equal(t, "a", mock.sentKeys[2])
	assert.Equal(t, string(KeyBackspace), mock.sentKeys[4])
	assert.Equal(t, "b", mock.sentKeys[5])
}

func TestType_FocusesFirst(t *testing.T) {
	mock := newMockExecutor()
	mock.box("textarea", 50, 500, 300, 60)
	h := NewTestHumanoid(mock, 9)

	require.NoError(t, h.Type(context.Background(), "textarea", "yo"))
	assert.Len(t, mock.eventsOfType(schemas.MousePress), 1)
	assert.Equal(t, []string{"y", "o"}, mock.sentKeys)

	t.Run("focus failure is wrapped", func(t *testing.T) {
		err := h.Type(context.Background(), "#gone", "x")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to click/focus selector '#gone'")
	})
}

func TestPressKey(t *testing.T) {
	mock := newMockExecutor()
	h := NewTestHumanoid(mock, 10)
	require.NoError(t, h.PressKey(context.Background(), "Enter"))
	assert.Equal(t, []schemas.KeyEventData{{Key: "Enter", Modifiers: schemas.ModNone}}, mock.structuredKeys)
}

func TestScroll(t *testing.T) {
	mock := newMockExecutor()
	h := NewTestHumanoid(mock, 11)

	require.NoError(t, h.Scroll(context.Background(), 300))
	wheels := mock.eventsOfType(schemas.MouseWheel)
	require.Len(t, wheels, 3)
	assert.Equal(t, 120.0, wheels[0].DeltaY)
	assert.Equal(t, 120.0, wheels[1].DeltaY)
	assert.Equal(t, 60.0, wheels[2].DeltaY)

	require.NoError(t, h.Scroll(context.Background(), -100))
	wheels = mock.eventsOfType(schemas.MouseWheel)
	assert.Equal(t, -100.0, wheels[len(wheels)-1].DeltaY)
}

func TestCognitivePause(t *testing.T) {
	mock := newMockExecutor()
	h := NewTestHumanoid(mock, 12)

	require.NoError(t, h.CognitivePause(context.Background(), 0, 0))
	assert.Empty(t, mock.sleepDurations)

	require.NoError(t, h.CognitivePause(context.Background(), 300, 0))
	assert.Equal(t, []time.Duration{300 * time.Millisecond}, mock.sleepDurations)
}

func TestRandomDelay(t *testing.T) {
	mock := newMockExecutor()
	h := NewTestHumanoid(mock, 13)
	for i := 0; i < 20; i++ {
		require.NoError(t, h.RandomDelay(context.Background(), 400*time.Millisecond, 1200*time.Millisecond))
	}
	for _, d := range mock.sleepDurations {
		assert.GreaterOrEqual(t, d, 400*time.Millisecond)
		assert.LessOrEqual(t, d, 1200*time.Millisecond)
	}
}
