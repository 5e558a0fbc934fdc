// Package session builds, validates and caches authenticated browser sessions.
//
// A Validator opens a throwaway browser to answer "do these credentials
// authenticate?". A Manager keeps at most one live browser per account,
// reuses it while its page still looks authenticated and persists a
// credential snapshot so a restart can rebuild it.
package session

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/sociallink/api/schemas"
	"github.com/xkilldash9x/sociallink/internal/browser"
)

const closeTimeout = 10 * time.Second

// Handle is one browser with one isolated context and one page.
type Handle struct {
	Browser browser.Browser
	Context browser.BrowserContext
	Page    browser.Page
}

// Close tears the handle down page first. It runs on a context detached from
// ctx's cancellation so a cancelled caller still releases the browser.
func (h *Handle) Close(ctx context.Context) error {
	if h == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(browser.Detach(ctx), closeTimeout)
	defer cancel()

	var errs []error
	if h.Page != nil {
		errs = append(errs, h.Page.Close(ctx))
	}
	if h.Context != nil {
		errs = append(errs, h.Context.Close(ctx))
	}
	if h.Browser != nil {
		errs = append(errs, h.Browser.Close(ctx))
	}
	return errors.Join(errs...)
}

// Launcher opens browsers with a fixed launch profile and persona.
type Launcher struct {
	driver  browser.Driver
	opts    browser.LaunchOptions
	persona schemas.Persona
	logger  *zap.Logger
}

// NewLauncher creates a Launcher.
func NewLauncher(driver browser.Driver, opts browser.LaunchOptions, persona schemas.Persona, logger *zap.Logger) *Launcher {
	return &Launcher{driver: driver, opts: opts, persona: persona, logger: logger.Named("launcher")}
}

// Open launches a browser, creates a context, injects creds (if any) and opens
// a blank page. On failure everything opened so far is closed.
func (l *Launcher) Open(ctx context.Context, creds []schemas.Credential) (*Handle, error) {
	h := &Handle{}
	fail := func(op string, err error) (*Handle, error) {
		if cerr := h.Close(ctx); cerr != nil {
			l.logger.Debug("Cleanup after failed open reported an error.", zap.String("op", op), zap.Error(cerr))
		}
		return nil, schemas.NewDriverError(op, err)
	}

	var err error
	if h.Browser, err = l.driver.Launch(ctx, l.opts); err != nil {
		return fail("launch", err)
	}
	if h.Context, err = h.Browser.NewContext(ctx, browser.ContextOptions{Persona: l.persona}); err != nil {
		return fail("new_context", err)
	}
	if len(creds) > 0 {
		if err = h.Context.AddCredentials(ctx, creds); err != nil {
			return fail("add_credentials", err)
		}
	}
	if h.Page, err = h.Context.NewPage(ctx); err != nil {
		return fail("new_page", err)
	}
	return h, nil
}
