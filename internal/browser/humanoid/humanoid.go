// Package humanoid drives a page through pointer and keyboard events that
// follow human timing: curved pointer paths, Fitts's law movement times,
// per-key typing rhythm and short cognitive pauses.
package humanoid

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/sociallink/api/schemas"
)

// Humanoid defines the state and capabilities for simulating human like interactions.
type Humanoid struct {
	// mu serializes actions on one page and guards rng and pointer state.
	// Exported methods take it; unexported helpers assume it is held.
	mu                 sync.Mutex
	cfg                Config
	logger             *zap.Logger
	executor           Executor
	currentPos         Vector2D
	currentButtonState schemas.MouseButton
	rng                *rand.Rand
}

var _ Controller = (*Humanoid)(nil)

// New creates and initializes a new Humanoid instance.
func New(cfg Config, logger *zap.Logger, executor Executor) *Humanoid {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	return newHumanoid(cfg, logger, executor, rng)
}

// NewTestHumanoid creates a Humanoid with a seeded rng and the default model.
func NewTestHumanoid(executor Executor, seed int64) *Humanoid {
	h := newHumanoid(DefaultConfig(), zap.NewNop(), executor, rand.New(rand.NewSource(seed)))
	h.cfg.FittsA = 100
	h.cfg.FittsB = 150
	return h
}

func newHumanoid(cfg Config, logger *zap.Logger, executor Executor, rng *rand.Rand) *Humanoid {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.normalize()
	cfg.FinalizeSessionPersona(rng)
	return &Humanoid{
		cfg:                cfg,
		logger:             logger.Named("humanoid"),
		executor:           executor,
		rng:                rng,
		currentButtonState: schemas.ButtonNone,
	}
}

// Position returns the last pointer position dispatched.
func (h *Humanoid) Position() Vector2D {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.currentPos
}

// RandomDelay sleeps for a uniformly drawn duration in [min, max].
func (h *Humanoid) RandomDelay(ctx context.Context, min, max time.Duration) error {
	h.mu.Lock()
	d := uniformDuration(h.rng, min, max)
	h.mu.Unlock()
	return h.executor.Sleep(ctx, d)
}
