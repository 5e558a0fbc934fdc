package session

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/sociallink/api/schemas"
	"github.com/xkilldash9x/sociallink/internal/config"
	"github.com/xkilldash9x/sociallink/internal/credentials"
	"github.com/xkilldash9x/sociallink/internal/observability"
	"github.com/xkilldash9x/sociallink/internal/platform"
)

const settleInterval = 500 * time.Millisecond

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Validator checks whether a credential set authenticates.
type Validator struct {
	launcher      *Launcher
	platform      *platform.Platform
	normalizer    *credentials.Normalizer
	timeout       time.Duration
	settleTimeout time.Duration
	sleep         SleepFunc
	now           func() time.Time
	logger        *zap.Logger
}

// ValidatorOption configures a Validator.
type ValidatorOption func(*Validator)

// WithSleep replaces the wait used while the page settles.
func WithSleep(fn SleepFunc) ValidatorOption {
	return func(v *Validator) { v.sleep = fn }
}

// WithValidatorClock replaces the time source.
func WithValidatorClock(now func() time.Time) ValidatorOption {
	return func(v *Validator) { v.now = now }
}

// NewValidator creates a Validator.
func NewValidator(launcher *Launcher, plat *platform.Platform, cfg config.SessionConfig, logger *zap.Logger, opts ...ValidatorOption) *Validator {
	v := &Validator{
		launcher:      launcher,
		platform:      plat,
		normalizer:    credentials.New(plat.CookieDomain()),
		timeout:       cfg.ValidationTimeout,
		settleTimeout: cfg.SettleTimeout,
		sleep:         sleepContext,
		now:           time.Now,
		logger:        logger.Named("session_validator"),
	}
	if v.timeout <= 0 {
		v.timeout = 30 * time.Second
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate opens a fresh browser, injects creds and reports whether the
// authenticated-only probe page stays reachable. A login or not-found landing
// is (false, nil); only driver failures are errors. The browser is always closed.
func (v *Validator) Validate(ctx context.Context, creds []schemas.Credential) (bool, error) {
	h, surface, err := v.open(ctx, creds)
	if err != nil {
		return false, err
	}
	if cerr := h.Close(ctx); cerr != nil {
		v.logger.Warn("Failed to close validation browser.", zap.Error(cerr))
	}
	return surface == platform.SurfaceAuthenticated, nil
}

// open prepares creds, opens a browser with them and navigates to the probe.
// The handle is returned open whatever the surface; on error it is closed.
func (v *Validator) open(ctx context.Context, creds []schemas.Credential) (*Handle, platform.Surface, error) {
	prepared := v.normalizer.NormalizeRecords(creds)
	if len(prepared) == 0 {
		return nil, platform.SurfaceNotFound, schemas.ErrMalformedInput
	}
	v.logger.Debug("Opening session.", observability.CredentialNames(prepared))

	h, err := v.launcher.Open(ctx, prepared)
	if err != nil {
		return nil, platform.SurfaceNotFound, err
	}

	navCtx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	if err := h.Page.Navigate(navCtx, v.platform.ProbeURL(), v.timeout); err != nil {
		_ = h.Close(ctx)
		return nil, platform.SurfaceNotFound, schemas.NewDriverError("navigate", err)
	}
	landed, err := v.settle(navCtx, h)
	if err != nil {
		_ = h.Close(ctx)
		return nil, platform.SurfaceNotFound, err
	}
	surface := v.platform.Classify(landed)
	v.logger.Debug("Probe navigation settled.", zap.String("surface", surface.String()))
	return h, surface, nil
}

// settle polls the page URL until two consecutive reads agree or the settle
// window closes, so client-side redirects to the login page are observed.
func (v *Validator) settle(ctx context.Context, h *Handle) (string, error) {
	deadline := v.now().Add(v.settleTimeout)
	last, err := h.Page.URL(ctx)
	if err != nil {
		return "", schemas.NewDriverError("url", err)
	}
	for v.now().Before(deadline) {
		if err := v.sleep(ctx, settleInterval); err != nil {
			return "", schemas.NewDriverError("settle", err)
		}
		current, err := h.Page.URL(ctx)
		if err != nil {
			return "", schemas.NewDriverError("url", err)
		}
		if current == last {
			return current, nil
		}
		last = current
	}
	return last, nil
}
