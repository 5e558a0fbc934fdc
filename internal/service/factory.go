// File: internal/service/factory.go
package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/sociallink/internal/actuator"
	"github.com/xkilldash9x/sociallink/internal/browser"
	"github.com/xkilldash9x/sociallink/internal/browser/humanoid"
	"github.com/xkilldash9x/sociallink/internal/config"
	"github.com/xkilldash9x/sociallink/internal/credentials"
	"github.com/xkilldash9x/sociallink/internal/engine"
	"github.com/xkilldash9x/sociallink/internal/platform"
	"github.com/xkilldash9x/sociallink/internal/qrconnect"
	"github.com/xkilldash9x/sociallink/internal/ratelimit"
	"github.com/xkilldash9x/sociallink/internal/scraper"
	"github.com/xkilldash9x/sociallink/internal/session"
	"github.com/xkilldash9x/sociallink/internal/vault"
)

// ComponentFactory builds the full component graph from configuration.
// Commands depend on this interface so tests can substitute a fake.
type ComponentFactory interface {
	Create(ctx context.Context, cfg config.Interface, logger *zap.Logger) (*Components, error)
}

// FactoryOption configures the production factory.
type FactoryOption func(*concreteFactory)

// WithDriver replaces the Chrome driver, typically with a fake in tests.
func WithDriver(d browser.Driver) FactoryOption {
	return func(f *concreteFactory) { f.driver = d }
}

// WithSealer supplies the credential sealer instead of deriving it from the
// vault configuration.
func WithSealer(s *vault.Sealer) FactoryOption {
	return func(f *concreteFactory) { f.sealer = s }
}

// concreteFactory is the production implementation of the ComponentFactory.
type concreteFactory struct {
	driver browser.Driver
	sealer *vault.Sealer
}

// NewComponentFactory creates a new production-ready component factory.
func NewComponentFactory(opts ...FactoryOption) ComponentFactory {
	f := &concreteFactory{}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Create handles the full dependency injection and initialization of components.
func (f *concreteFactory) Create(ctx context.Context, cfg config.Interface, logger *zap.Logger) (*Components, error) {
	if cfg == nil {
		return nil, errors.New("configuration cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	components := &Components{Config: cfg, logger: logger}

	// Ensure cleanup happens if initialization fails midway.
	var initializationErr error
	defer func() {
		if initializationErr != nil {
			logger.Warn("Initialization failed, shutting down partially created components.", zap.Error(initializationErr))
			components.Shutdown()
		}
	}()
	fail := func(format string, err error) (*Components, error) {
		initializationErr = fmt.Errorf(format, err)
		return nil, initializationErr
	}

	// 1. Platform surfaces and the selector catalogue.
	plat, err := platform.New(cfg.Platform())
	if err != nil {
		return fail("failed to configure platform: %w", err)
	}
	components.Platform = plat
	catalogue, err := platform.LoadCatalogue(cfg.Platform().SelectorsFile)
	if err != nil {
		return fail("failed to load selector catalogue: %w", err)
	}
	components.Normalizer = credentials.New(plat.CookieDomain())
	logger.Debug("Platform initialized.", zap.String("base_url", cfg.Platform().BaseURL))

	// 2. Metrics.
	recorder, registry := InitializeMetrics(cfg.Metrics())
	components.Metrics, components.Registry = recorder, registry

	// 3. Credential sealing and storage.
	sealer := f.sealer
	if sealer == nil {
		if sealer, err = vault.NewSealerFromConfig(cfg.Vault()); err != nil {
			return fail("failed to initialize credential vault (hint: check SOCIALLINK_VAULT_KEY): %w", err)
		}
	}
	storage, err := InitializeStorage(ctx, cfg, sealer, logger)
	if err != nil {
		return fail("failed to initialize storage: %w", err)
	}
	components.Storage = storage

	// 4. Browser launching.
	driver := f.driver
	if driver == nil {
		driver = browser.NewChromeDriver(logger, cfg.Browser().UserAgent)
	}
	launcher := session.NewLauncher(driver,
		browser.LaunchOptionsFromConfig(cfg.Browser()),
		browser.PersonaFromConfig(cfg.Browser()),
		logger,
	)
	human := humanoid.FromConfig(cfg.Browser().Humanoid)

	// 5. Sessions.
	components.Validator = session.NewValidator(launcher, plat, cfg.Session(), logger)
	components.Sessions = session.NewManager(components.Validator, storage.Credentials, logger, session.WithMetrics(recorder))
	logger.Debug("Session manager initialized.")

	// 6. Connection handshakes, scraping, messaging and limits.
	components.QR = qrconnect.New(launcher, plat, catalogue, cfg.QR(), logger,
		qrconnect.WithMetrics(recorder), qrconnect.WithHumanoid(human))
	scr := scraper.New(plat, catalogue, cfg.Scraper(), logger,
		scraper.WithMetrics(recorder), scraper.WithHumanoid(human))
	act := actuator.New(plat, catalogue, cfg.Actuator(), logger, actuator.WithHumanoid(human))
	components.Limiter = ratelimit.New(cfg.RateLimit())

	// 7. Engine.
	eng, err := engine.New(engine.Dependencies{
		Sessions:    components.Sessions,
		Scraper:     scr,
		Actuator:    act,
		QR:          components.QR,
		Limiter:     components.Limiter,
		Credentials: storage.Credentials,
		Sink:        storage.Sink,
		Accounts:    storage.Accounts,
		Metrics:     recorder,
	}, cfg.Engine(), logger)
	if err != nil {
		return fail("failed to initialize engine: %w", err)
	}
	components.Engine = eng
	logger.Debug("Engine initialized.")

	return components, nil
}
