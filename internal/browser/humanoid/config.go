package humanoid

import (
	"math/rand"
	"time"

	"github.com/xkilldash9x/sociallink/internal/config"
)

// Config holds the parameters of the pointer and typing model.
type Config struct {
	// Fitts's law coefficients in milliseconds: MT = A + B * log2(1 + D/W).
	FittsA float64
	FittsB float64

	// Bounds on the number of discrete pointer moves per movement.
	MinSteps int
	MaxSteps int

	// Pixel standard deviation of the jitter applied to intermediate points.
	GaussianStrength float64
	// Maximum lateral offset of the Bezier control points, as a share of distance.
	Curvature float64

	KeyDelayMin  time.Duration
	KeyDelayMax  time.Duration
	ClickHoldMin time.Duration
	ClickHoldMax time.Duration

	// Probability per character of a neighbor-key typo that is then corrected.
	TypoRate float64

	// Pixels per wheel notch.
	ScrollStep float64
}

// DefaultConfig returns the model defaults.
func DefaultConfig() Config {
	return Config{
		FittsA:           100,
		FittsB:           120,
		MinSteps:         12,
		MaxSteps:         25,
		GaussianStrength: 0.8,
		Curvature:        0.25,
		KeyDelayMin:      60 * time.Millisecond,
		KeyDelayMax:      180 * time.Millisecond,
		ClickHoldMin:     50 * time.Millisecond,
		ClickHoldMax:     120 * time.Millisecond,
		TypoRate:         0,
		ScrollStep:       120,
	}
}

// FromConfig maps the configuration section onto the model, keeping defaults
// for anything left unset.
func FromConfig(c config.HumanoidConfig) Config {
	cfg := DefaultConfig()
	if c.FittsA > 0 {
		cfg.FittsA = c.FittsA
	}
	if c.FittsB > 0 {
		cfg.FittsB = c.FittsB
	}
	if c.MinSteps > 0 {
		cfg.MinSteps = c.MinSteps
	}
	if c.MaxSteps >= cfg.MinSteps {
		cfg.MaxSteps = c.MaxSteps
	}
	if c.KeyDelayMinMs > 0 {
		cfg.KeyDelayMin = time.Duration(c.KeyDelayMinMs) * time.Millisecond
	}
	if c.KeyDelayMaxMs > 0 {
		cfg.KeyDelayMax = time.Duration(c.KeyDelayMaxMs) * time.Millisecond
	}
	if c.ClickHoldMinMs > 0 {
		cfg.ClickHoldMin = time.Duration(c.ClickHoldMinMs) * time.Millisecond
	}
	if c.ClickHoldMaxMs > 0 {
		cfg.ClickHoldMax = time.Duration(c.ClickHoldMaxMs) * time.Millisecond
	}
	if c.TypoRate >= 0 && c.TypoRate < 1 {
		cfg.TypoRate = c.TypoRate
	}
	cfg.normalize()
	return cfg
}

func (c *Config) normalize() {
	if c.MaxSteps < c.MinSteps {
		c.MaxSteps = c.MinSteps
	}
	if c.KeyDelayMax < c.KeyDelayMin {
		c.KeyDelayMax = c.KeyDelayMin
	}
	if c.ClickHoldMax < c.ClickHoldMin {
		c.ClickHoldMax = c.ClickHoldMin
	}
}

// FinalizeSessionPersona perturbs the motor parameters once per instance so
// that two sessions do not share an identical rhythm.
func (c *Config) FinalizeSessionPersona(rng *rand.Rand) {
	skill := 1.0 + sampleGaussian(rng, 0, 0.08)
	if skill < 0.8 {
		skill = 0.8
	}
	if skill > 1.2 {
		skill = 1.2
	}
	c.FittsA *= skill
	c.FittsB *= skill
}

func sampleGaussian(rng *rand.Rand, mean, stdDev float64) float64 {
	return mean + rng.NormFloat64()*stdDev
}

// uniformDuration draws a duration in [min, max].
func uniformDuration(rng *rand.Rand, min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(rng.Int63n(int64(max-min)+1))
}
