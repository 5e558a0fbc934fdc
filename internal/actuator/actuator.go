// Package actuator sends direct messages through the platform UI with
// humanized pointer and keyboard input.
package actuator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/sociallink/api/schemas"
	"github.com/xkilldash9x/sociallink/internal/browser"
	"github.com/xkilldash9x/sociallink/internal/browser/humanoid"
	"github.com/xkilldash9x/sociallink/internal/config"
	"github.com/xkilldash9x/sociallink/internal/observability"
	"github.com/xkilldash9x/sociallink/internal/platform"
	"github.com/xkilldash9x/sociallink/internal/steps"
)

const lookupInterval = 250 * time.Millisecond

// Reasons reported on a recoverable send failure.
const (
	ReasonProfileNotFound = "profile not found"
	ReasonNoMessageButton = "message button not found"
	ReasonNoComposer      = "message composer not found"
)

// Target is the session a message is sent from.
type Target interface {
	AccountID() string
	Page() browser.Page
}

// Actuator drives the outbound message sequence.
type Actuator struct {
	platform  *platform.Platform
	catalogue platform.Catalogue
	cfg       config.ActuatorConfig
	humanoid  humanoid.Config
	logger    *zap.Logger
}

// Option configures an Actuator.
type Option func(*Actuator)

// WithHumanoid sets the pointer and typing model.
func WithHumanoid(cfg humanoid.Config) Option {
	return func(a *Actuator) { a.humanoid = cfg }
}

// New creates an Actuator.
func New(plat *platform.Platform, catalogue platform.Catalogue, cfg config.ActuatorConfig, logger *zap.Logger, opts ...Option) *Actuator {
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 30 * time.Second
	}
	if cfg.LookupTimeout <= 0 {
		cfg.LookupTimeout = 15 * time.Second
	}
	if cfg.DelayMax < cfg.DelayMin {
		cfg.DelayMax = cfg.DelayMin
	}
	a := &Actuator{
		platform:  plat,
		catalogue: catalogue,
		cfg:       cfg,
		humanoid:  humanoid.DefaultConfig(),
		logger:    logger.Named("actuator"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// SendDirectMessage opens the target's profile, starts a conversation and
// types text into the composer. Missing UI affordances are reported through
// SendResult.Reason; a login redirect is ErrSessionExpired and driver
// failures are returned as errors.
func (a *Actuator) SendDirectMessage(ctx context.Context, t Target, targetHandle, text string) (schemas.SendResult, *steps.Report, error) {
	report := steps.NewReport("send_direct_message")
	handle := strings.TrimPrefix(strings.TrimSpace(targetHandle), "@")
	if handle == "" || strings.TrimSpace(text) == "" {
		return schemas.SendResult{}, report, fmt.Errorf("target handle and text are required: %w", schemas.ErrMalformedInput)
	}

	logger := a.logger.With(observability.Account(t.AccountID()), zap.String("target", handle))
	defer report.Log(logger)

	page := t.Page()
	h := humanoid.New(a.humanoid, logger, page.Executor())
	var reason string

	err := report.Run(ctx, "navigate_profile", func(ctx context.Context) error {
		surface, err := a.navigate(ctx, page, a.platform.ProfileURL(handle))
		if err != nil {
			return err
		}
		switch surface {
		case platform.SurfaceLogin:
			return fmt.Errorf("profile redirected to login: %w", schemas.ErrSessionExpired)
		case platform.SurfaceNotFound:
			reason = ReasonProfileNotFound
			return errors.New(reason)
		}
		return nil
	})
	if err != nil {
		return failure(report, reason, err)
	}

	err = report.Run(ctx, "open_conversation", func(ctx context.Context) error {
		sel, err := a.lookup(ctx, page, platform.MessageButton)
		if errors.Is(err, schemas.ErrAffordanceNotFound) {
			reason = ReasonNoMessageButton
		}
		if err != nil {
			return err
		}
		if err := h.IntelligentClick(ctx, sel); err != nil {
			return schemas.NewDriverError("click", err)
		}
		return h.RandomDelay(ctx, a.cfg.DelayMin, a.cfg.DelayMax)
	})
	if err != nil {
		return failure(report, reason, err)
	}

	err = report.Run(ctx, "type_message", func(ctx context.Context) error {
		sel, err := a.lookup(ctx, page, platform.Composer)
		if errors.Is(err, schemas.ErrAffordanceNotFound) {
			reason = ReasonNoComposer
		}
		if err != nil {
			return err
		}
		if err := h.Type(ctx, sel, text); err != nil {
			return schemas.NewDriverError("type", err)
		}
		return h.RandomDelay(ctx, a.cfg.DelayMin, a.cfg.DelayMax)
	})
	if err != nil {
		return failure(report, reason, err)
	}

	err = report.Run(ctx, "send", func(ctx context.Context) error {
		sel, err := a.catalogue.LocateAffordance(ctx, page, platform.SendButton)
		switch {
		case errors.Is(err, schemas.ErrAffordanceNotFound):
			if err := h.PressKey(ctx, "Enter"); err != nil {
				return schemas.NewDriverError("press_enter", err)
			}
		case err != nil:
			return err
		default:
			if err := h.IntelligentClick(ctx, sel); err != nil {
				return schemas.NewDriverError("click", err)
			}
		}
		return h.CognitivePause(ctx, 600, 150)
	})
	if err != nil {
		return failure(report, reason, err)
	}

	err = report.Run(ctx, "confirm_session", func(ctx context.Context) error {
		landed, err := page.URL(ctx)
		if err != nil {
			return schemas.NewDriverError("url", err)
		}
		if a.platform.IsLoginSurface(landed) {
			return fmt.Errorf("logged out while sending: %w", schemas.ErrSessionExpired)
		}
		return nil
	})
	if err != nil {
		return failure(report, reason, err)
	}

	logger.Info("Direct message sent.", zap.Int("runes", len([]rune(text))))
	return schemas.SendResult{Success: true}, report, nil
}

// failure turns a missing affordance into a reported reason and passes
// everything else through as an error.
func failure(report *steps.Report, reason string, err error) (schemas.SendResult, *steps.Report, error) {
	if reason != "" {
		return schemas.SendResult{Success: false, Reason: reason}, report, nil
	}
	return schemas.SendResult{}, report, err
}

func (a *Actuator) navigate(ctx context.Context, page browser.Page, url string) (platform.Surface, error) {
	navCtx, cancel := context.WithTimeout(ctx, a.cfg.NavigationTimeout)
	defer cancel()
	if err := page.Navigate(navCtx, url, a.cfg.NavigationTimeout); err != nil {
		return 0, schemas.NewDriverError("navigate", err)
	}
	landed, err := page.URL(navCtx)
	if err != nil {
		return 0, schemas.NewDriverError("url", err)
	}
	return a.platform.Classify(landed), nil
}

// lookup retries the affordance until it renders or the lookup window closes.
func (a *Actuator) lookup(ctx context.Context, page browser.Page, aff platform.Affordance) (string, error) {
	attempts := int(a.cfg.LookupTimeout / lookupInterval)
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for i := 0; i < attempts; i++ {
		var sel string
		sel, err = a.catalogue.LocateAffordance(ctx, page, aff)
		if !errors.Is(err, schemas.ErrAffordanceNotFound) {
			return sel, err
		}
		if i < attempts-1 {
			if serr := page.Executor().Sleep(ctx, lookupInterval); serr != nil {
				return "", serr
			}
		}
	}
	return "", err
}
