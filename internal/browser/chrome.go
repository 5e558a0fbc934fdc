package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/sociallink/api/schemas"
	"github.com/xkilldash9x/sociallink/internal/browser/humanoid"
	"github.com/xkilldash9x/sociallink/internal/browser/stealth"
)

const (
	defaultLaunchTimeout = 30 * time.Second
	closeTimeout         = 10 * time.Second
)

// ChromeDriver launches Chromium processes through chromedp.
type ChromeDriver struct {
	logger    *zap.Logger
	userAgent string
}

var _ Driver = (*ChromeDriver)(nil)

// NewChromeDriver creates a driver. userAgent, when set, is passed as a launch flag.
func NewChromeDriver(logger *zap.Logger, userAgent string) *ChromeDriver {
	return &ChromeDriver{logger: logger.Named("chrome"), userAgent: userAgent}
}

// Launch starts a browser process and waits for it to accept commands.
func (d *ChromeDriver) Launch(ctx context.Context, opts LaunchOptions) (Browser, error) {
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), DefaultAllocatorOptions(opts, d.userAgent)...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(d.logger.Sugar().Debugf),
		chromedp.WithErrorf(d.logger.Sugar().Debugf),
	)

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultLaunchTimeout
	}

	// The first Run allocates the process and binds its lifetime to
	// browserCtx, so it must not be given a derived context.
	started := make(chan error, 1)
	go func() { started <- chromedp.Run(browserCtx) }()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case err := <-started:
		if err != nil {
			browserCancel()
			allocCancel()
			return nil, schemas.NewDriverError("launch", err)
		}
	case <-timer.C:
		browserCancel()
		allocCancel()
		return nil, schemas.NewDriverError("launch", fmt.Errorf("browser did not start within %v", timeout))
	case <-ctx.Done():
		browserCancel()
		allocCancel()
		return nil, schemas.NewDriverError("launch", ctx.Err())
	}

	d.logger.Debug("Browser launched.", zap.Bool("headless", opts.Headless))
	return &chromeBrowser{
		ctx:         browserCtx,
		cancel:      browserCancel,
		allocCancel: allocCancel,
		logger:      d.logger,
	}, nil
}

type chromeBrowser struct {
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
	logger      *zap.Logger

	// creation of browser contexts is serialized per process
	createMu  sync.Mutex
	closeOnce sync.Once
}

// browserExec runs fn against the browser-level executor rather than the
// initial tab.
func (b *chromeBrowser) browserExec(ctx context.Context, fn func(ctx context.Context) error) error {
	runCtx, cancel := CombineContext(b.ctx, ctx)
	defer cancel()
	return chromedp.Run(runCtx, chromedp.ActionFunc(func(c context.Context) error {
		return fn(cdp.WithExecutor(c, chromedp.FromContext(c).Browser))
	}))
}

func (b *chromeBrowser) NewContext(ctx context.Context, opts ContextOptions) (BrowserContext, error) {
	b.createMu.Lock()
	defer b.createMu.Unlock()

	var id cdp.BrowserContextID
	err := b.browserExec(ctx, func(c context.Context) (err error) {
		id, err = target.CreateBrowserContext().Do(c)
		return err
	})
	if err != nil {
		return nil, schemas.NewDriverError("create context", err)
	}
	return &chromeContext{browser: b, id: id, persona: opts.Persona, logger: b.logger.With(zap.String("browser_context", string(id)))}, nil
}

func (b *chromeBrowser) Close(ctx context.Context) error {
	var err error
	b.closeOnce.Do(func() {
		done := make(chan error, 1)
		go func() { done <- chromedp.Cancel(b.ctx) }()
		select {
		case err = <-done:
		case <-ctx.Done():
			err = ctx.Err()
		case <-time.After(closeTimeout):
			err = fmt.Errorf("browser did not close within %v", closeTimeout)
		}
		b.cancel()
		b.allocCancel()
	})
	if err != nil {
		return schemas.NewDriverError("close browser", err)
	}
	return nil
}

type chromeContext struct {
	browser *chromeBrowser
	id      cdp.BrowserContextID
	persona schemas.Persona
	logger  *zap.Logger

	mu     sync.Mutex
	pages  []*chromePage
	closed bool
}

func (c *chromeContext) AddCredentials(ctx context.Context, creds []schemas.Credential) error {
	if len(creds) == 0 {
		return nil
	}
	params := toCookieParams(creds)
	err := c.browser.browserExec(ctx, func(bc context.Context) error {
		return storage.SetCookies(params).WithBrowserContextID(c.id).Do(bc)
	})
	return schemas.NewDriverError("set cookies", err)
}

func (c *chromeContext) Credentials(ctx context.Context) ([]schemas.Credential, error) {
	var creds []schemas.Credential
	err := c.browser.browserExec(ctx, func(bc context.Context) error {
		cookies, err := storage.GetCookies().WithBrowserContextID(c.id).Do(bc)
		if err != nil {
			return err
		}
		creds = fromCookies(cookies)
		return nil
	})
	if err != nil {
		return nil, schemas.NewDriverError("get cookies", err)
	}
	return creds, nil
}

func (c *chromeContext) NewPage(ctx context.Context) (Page, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, schemas.NewDriverError("new page", fmt.Errorf("browser context is closed"))
	}

	var targetID target.ID
	err := c.browser.browserExec(ctx, func(bc context.Context) (err error) {
		targetID, err = target.CreateTarget("about:blank").WithBrowserContextID(c.id).Do(bc)
		return err
	})
	if err != nil {
		return nil, schemas.NewDriverError("create target", err)
	}

	pageCtx, pageCancel := chromedp.NewContext(c.browser.ctx, chromedp.WithTargetID(targetID))
	if err := attach(ctx, pageCtx); err != nil {
		pageCancel()
		return nil, schemas.NewDriverError("attach target", err)
	}
	p := &chromePage{ctx: pageCtx, cancel: pageCancel, logger: c.logger}

	persona := c.persona
	if persona.UserAgent == "" {
		persona = schemas.DefaultPersona
	}
	setup := chromedp.Tasks{
		stealth.Apply(persona, c.logger),
		emulation.SetDeviceMetricsOverride(persona.Width, persona.Height, 1, persona.Mobile),
	}
	if err := p.run(ctx, setup); err != nil {
		pageCancel()
		return nil, schemas.NewDriverError("prepare page", err)
	}
	c.pages = append(c.pages, p)
	return p, nil
}

func (c *chromeContext) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	pages := c.pages
	c.pages = nil
	c.mu.Unlock()

	for _, p := range pages {
		p.cancel()
	}
	if c.browser.ctx.Err() != nil {
		return nil
	}
	disposeCtx, cancel := context.WithTimeout(Detach(ctx), closeTimeout)
	defer cancel()
	err := c.browser.browserExec(disposeCtx, func(bc context.Context) error {
		return target.DisposeBrowserContext(c.id).Do(bc)
	})
	if err != nil {
		c.logger.Warn("Failed to dispose of browser context. It may be orphaned.", zap.Error(err))
		return schemas.NewDriverError("dispose context", err)
	}
	return nil
}

// attach runs the first action on a new target context. The target's event
// loop lives as long as the context given to that first Run, so it gets
// pageCtx itself while ctx only bounds the wait.
func attach(ctx context.Context, pageCtx context.Context) error {
	done := make(chan error, 1)
	go func() { done <- chromedp.Run(pageCtx) }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

type chromePage struct {
	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.Logger
}

// run executes actions on the page target, bounded by the caller's context.
func (p *chromePage) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := CombineContext(p.ctx, ctx)
	defer cancel()
	return chromedp.Run(runCtx, actions...)
}

func (p *chromePage) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return schemas.NewDriverError("navigate", p.run(ctx, chromedp.Navigate(url)))
}

func (p *chromePage) URL(ctx context.Context) (string, error) {
	var u string
	if err := p.run(ctx, chromedp.Location(&u)); err != nil {
		return "", schemas.NewDriverError("location", err)
	}
	return u, nil
}

func (p *chromePage) Evaluate(ctx context.Context, expression string, out interface{}) error {
	return schemas.NewDriverError("evaluate", p.run(ctx, chromedp.Evaluate(expression, out)))
}

func (p *chromePage) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return schemas.NewDriverError("wait visible", p.run(ctx, chromedp.WaitVisible(selector, chromedp.ByQuery)))
}

func (p *chromePage) Screenshot(ctx context.Context, selector string) ([]byte, error) {
	var buf []byte
	var action chromedp.Action = chromedp.CaptureScreenshot(&buf)
	if selector != "" {
		action = chromedp.Screenshot(selector, &buf, chromedp.ByQuery, chromedp.NodeVisible)
	}
	if err := p.run(ctx, action); err != nil {
		return nil, schemas.NewDriverError("screenshot", err)
	}
	return buf, nil
}

func (p *chromePage) Executor() humanoid.Executor {
	return &cdpExecutor{logger: p.logger, run: p.run}
}

func (p *chromePage) Close(context.Context) error {
	p.cancel()
	return nil
}
