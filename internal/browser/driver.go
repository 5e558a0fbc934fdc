// Package browser abstracts the headless browser behind a small driver
// interface so that session, connection and scraping code can be exercised
// against scripted fakes. The production implementation speaks the Chrome
// DevTools Protocol through chromedp.
package browser

import (
	"context"
	"strings"
	"time"

	"github.com/xkilldash9x/sociallink/api/schemas"
	"github.com/xkilldash9x/sociallink/internal/browser/humanoid"
	"github.com/xkilldash9x/sociallink/internal/config"
)

// LaunchOptions configures a browser process.
type LaunchOptions struct {
	Headless bool
	ExecPath string
	Args     []string
	Timeout  time.Duration
}

// LaunchOptionsFromConfig maps the browser section onto LaunchOptions.
func LaunchOptionsFromConfig(cfg config.BrowserConfig) LaunchOptions {
	return LaunchOptions{
		Headless: cfg.Headless,
		ExecPath: cfg.ExecPath,
		Args:     cfg.Args,
		Timeout:  cfg.LaunchTimeout,
	}
}

// PersonaFromConfig overlays configured browser identity onto the default persona.
func PersonaFromConfig(cfg config.BrowserConfig) schemas.Persona {
	p := schemas.DefaultPersona
	p.Languages = append([]string(nil), p.Languages...)
	if cfg.UserAgent != "" {
		p.UserAgent = cfg.UserAgent
	}
	if cfg.Locale != "" {
		p.Locale = cfg.Locale
		if base, _, ok := strings.Cut(cfg.Locale, "-"); ok {
			p.Languages = []string{cfg.Locale, base}
		} else {
			p.Languages = []string{cfg.Locale}
		}
	}
	if cfg.Timezone != "" {
		p.Timezone = cfg.Timezone
	}
	if cfg.ViewportWidth > 0 {
		p.Width = cfg.ViewportWidth
	}
	if cfg.ViewportHeight > 0 {
		p.Height = cfg.ViewportHeight
	}
	return p
}

// ContextOptions configures an isolated browser context.
type ContextOptions struct {
	Persona schemas.Persona
}

// Driver launches browser processes.
type Driver interface {
	Launch(ctx context.Context, opts LaunchOptions) (Browser, error)
}

// Browser is a running browser process.
type Browser interface {
	NewContext(ctx context.Context, opts ContextOptions) (BrowserContext, error)
	Close(ctx context.Context) error
}

// BrowserContext is an isolated cookie jar with its own pages.
type BrowserContext interface {
	AddCredentials(ctx context.Context, creds []schemas.Credential) error
	Credentials(ctx context.Context) ([]schemas.Credential, error)
	NewPage(ctx context.Context) (Page, error)
	Close(ctx context.Context) error
}

// Page is a single tab.
type Page interface {
	// Navigate loads url and waits for the load event, bounded by timeout.
	Navigate(ctx context.Context, url string, timeout time.Duration) error
	URL(ctx context.Context) (string, error)
	// Evaluate runs an expression and decodes its JSON result into out.
	Evaluate(ctx context.Context, expression string, out interface{}) error
	WaitVisible(ctx context.Context, selector string, timeout time.Duration) error
	// Screenshot captures the element matched by selector, or the viewport
	// when selector is empty.
	Screenshot(ctx context.Context, selector string) ([]byte, error)
	Executor() humanoid.Executor
	Close(ctx context.Context) error
}
