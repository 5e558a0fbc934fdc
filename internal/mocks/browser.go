package mocks

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/xkilldash9x/sociallink/api/schemas"
	"github.com/xkilldash9x/sociallink/internal/browser"
	"github.com/xkilldash9x/sociallink/internal/browser/humanoid"
)

// ErrClosed is returned by fake handles used after Close.
var ErrClosed = errors.New("fake browser: handle closed")

// RouteFunc decides where a navigation lands given the requested URL and
// the credentials present in the context.
type RouteFunc func(requested string, creds []schemas.Credential) string

// EvaluateFunc answers page.Evaluate calls. Use Decode to fill out.
type EvaluateFunc func(ctx context.Context, page *FakePage, expression string, out interface{}) error

// FakeDriver is an in-memory browser.Driver. Fields may be set before use;
// the counters are safe to read concurrently.
type FakeDriver struct {
	Route       RouteFunc
	Evaluate    EvaluateFunc
	Screenshot  []byte
	LaunchErr   error
	NavigateErr error

	// Failures injected after a successful launch.
	NewContextErr     error
	AddCredentialsErr error
	NewPageErr        error

	// ScreenshotErr, when set, may fail a screenshot of the given selector.
	ScreenshotErr func(selector string) error

	// LaunchDelay widens race windows in concurrency tests.
	LaunchDelay time.Duration

	mu       sync.Mutex
	browsers []*FakeBrowser
}

var _ browser.Driver = (*FakeDriver)(nil)

// Launch implements browser.Driver.
func (d *FakeDriver) Launch(ctx context.Context, _ browser.LaunchOptions) (browser.Browser, error) {
	if d.LaunchDelay > 0 {
		select {
		case <-time.After(d.LaunchDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if d.LaunchErr != nil {
		return nil, d.LaunchErr
	}
	b := &FakeBrowser{driver: d}
	d.mu.Lock()
	d.browsers = append(d.browsers, b)
	d.mu.Unlock()
	return b, nil
}

// Launches counts every browser launched so far.
func (d *FakeDriver) Launches() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.browsers)
}

// OpenBrowsers counts launched browsers not yet closed.
func (d *FakeDriver) OpenBrowsers() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, b := range d.browsers {
		if !b.Closed() {
			n++
		}
	}
	return n
}

// Browsers returns a copy of every launched browser.
func (d *FakeDriver) Browsers() []*FakeBrowser {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*FakeBrowser(nil), d.browsers...)
}

// LastPage returns the most recently opened page across all browsers.
func (d *FakeDriver) LastPage() *FakePage {
	browsers := d.Browsers()
	for i := len(browsers) - 1; i >= 0; i-- {
		if p := browsers[i].lastPage(); p != nil {
			return p
		}
	}
	return nil
}

// FakeBrowser is a launched fake browser.
type FakeBrowser struct {
	driver   *FakeDriver
	mu       sync.Mutex
	contexts []*FakeContext
	closed   bool
}

func (b *FakeBrowser) NewContext(_ context.Context, opts browser.ContextOptions) (browser.BrowserContext, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}
	if b.driver.NewContextErr != nil {
		return nil, b.driver.NewContextErr
	}
	c := &FakeContext{browser: b, Persona: opts.Persona}
	b.contexts = append(b.contexts, c)
	return c, nil
}

func (b *FakeBrowser) Close(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

// Closed reports whether Close was called.
func (b *FakeBrowser) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// Contexts returns a copy of the contexts created in this browser.
func (b *FakeBrowser) Contexts() []*FakeContext {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*FakeContext(nil), b.contexts...)
}

func (b *FakeBrowser) lastPage() *FakePage {
	ctxs := b.Contexts()
	for i := len(ctxs) - 1; i >= 0; i-- {
		if p := ctxs[i].lastPage(); p != nil {
			return p
		}
	}
	return nil
}

// FakeContext is an isolated cookie jar.
type FakeContext struct {
	Persona schemas.Persona

	browser *FakeBrowser
	mu      sync.Mutex
	creds   []schemas.Credential
	pages   []*FakePage
	closed  bool
}

func (c *FakeContext) AddCredentials(_ context.Context, creds []schemas.Credential) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.browser.driver.AddCredentialsErr != nil {
		return c.browser.driver.AddCredentialsErr
	}
	c.creds = append(c.creds, creds...)
	return nil
}

func (c *FakeContext) Credentials(context.Context) ([]schemas.Credential, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	return append([]schemas.Credential(nil), c.creds...), nil
}

// SetCredentials replaces the jar, as a login completed out of band would.
func (c *FakeContext) SetCredentials(creds []schemas.Credential) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.creds = append([]schemas.Credential(nil), creds...)
}

func (c *FakeContext) NewPage(context.Context) (browser.Page, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	if c.browser.driver.NewPageErr != nil {
		return nil, c.browser.driver.NewPageErr
	}
	p := &FakePage{context: c, executor: &FakeExecutor{}}
	c.pages = append(c.pages, p)
	return p, nil
}

func (c *FakeContext) Close(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// Closed reports whether Close was called.
func (c *FakeContext) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *FakeContext) lastPage() *FakePage {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.pages) == 0 {
		return nil
	}
	return c.pages[len(c.pages)-1]
}

// FakePage is a tab whose URL follows the driver's Route.
type FakePage struct {
	context  *FakeContext
	executor *FakeExecutor

	mu          sync.Mutex
	url         string
	navigations []string
	screenshots []string
	closed      bool
}

func (p *FakePage) driver() *FakeDriver { return p.context.browser.driver }

func (p *FakePage) Navigate(ctx context.Context, url string, _ time.Duration) error {
	if err := ctx.Err(); err != nil {
		return schemas.NewDriverError("navigate", err)
	}
	d := p.driver()
	if d.NavigateErr != nil {
		return d.NavigateErr
	}
	creds, _ := p.context.Credentials(ctx)
	landed := url
	if d.Route != nil {
		landed = d.Route(url, creds)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	p.navigations = append(p.navigations, url)
	p.url = landed
	return nil
}

func (p *FakePage) URL(context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return "", ErrClosed
	}
	return p.url, nil
}

// SetURL moves the page without a navigation, as a client-side redirect would.
func (p *FakePage) SetURL(url string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.url = url
}

func (p *FakePage) Evaluate(ctx context.Context, expression string, out interface{}) error {
	if fn := p.driver().Evaluate; fn != nil {
		return fn(ctx, p, expression, out)
	}
	return nil
}

func (p *FakePage) WaitVisible(ctx context.Context, _ string, _ time.Duration) error {
	return ctx.Err()
}

func (p *FakePage) Screenshot(_ context.Context, selector string) ([]byte, error) {
	p.mu.Lock()
	p.screenshots = append(p.screenshots, selector)
	p.mu.Unlock()
	if fn := p.driver().ScreenshotErr; fn != nil {
		if err := fn(selector); err != nil {
			return nil, err
		}
	}
	data := p.driver().Screenshot
	if data == nil {
		data = []byte("\x89PNG fake")
	}
	return data, nil
}

func (p *FakePage) Executor() humanoid.Executor { return p.executor }

func (p *FakePage) Close(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// Context returns the owning context.
func (p *FakePage) Context() *FakeContext { return p.context }

// FakeExec returns the recording executor behind Executor.
func (p *FakePage) FakeExec() *FakeExecutor { return p.executor }

// Navigations returns the requested URLs in order.
func (p *FakePage) Navigations() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.navigations...)
}

// Screenshots returns the selectors passed to Screenshot in order.
func (p *FakePage) Screenshots() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.screenshots...)
}

// FakeExecutor records low-level input and reports a fixed element box for every selector.
type FakeExecutor struct {
	mu         sync.Mutex
	Mouse      []schemas.MouseEventData
	Keys       []string
	Structured []schemas.KeyEventData
	Sleeps     []time.Duration
	// MissingSelectors yields a zero-size geometry for the listed selectors.
	MissingSelectors map[string]bool
}

var _ humanoid.Executor = (*FakeExecutor)(nil)

func (e *FakeExecutor) Sleep(ctx context.Context, d time.Duration) error {
	e.mu.Lock()
	e.Sleeps = append(e.Sleeps, d)
	e.mu.Unlock()
	return ctx.Err()
}

func (e *FakeExecutor) DispatchMouseEvent(_ context.Context, data schemas.MouseEventData) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Mouse = append(e.Mouse, data)
	return nil
}

func (e *FakeExecutor) SendKeys(_ context.Context, keys string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Keys = append(e.Keys, keys)
	return nil
}

func (e *FakeExecutor) DispatchStructuredKey(_ context.Context, data schemas.KeyEventData) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Structured = append(e.Structured, data)
	return nil
}

func (e *FakeExecutor) GetElementGeometry(_ context.Context, selector string) (*schemas.ElementGeometry, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.MissingSelectors[selector] {
		return &schemas.ElementGeometry{}, nil
	}
	return &schemas.ElementGeometry{
		Vertices: []float64{200, 300, 300, 300, 300, 340, 200, 340},
		Width:    100,
		Height:   40,
		TagName:  "BUTTON",
	}, nil
}

func (e *FakeExecutor) ExecuteScript(context.Context, string, []interface{}) (json.RawMessage, error) {
	return json.RawMessage("true"), nil
}

// Typed joins every SendKeys payload.
func (e *FakeExecutor) Typed() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return strings.Join(e.Keys, "")
}

// Clicks counts mouse presses.
func (e *FakeExecutor) Clicks() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, m := range e.Mouse {
		if m.Type == schemas.MousePress {
			n++
		}
	}
	return n
}

// PressedKeys lists the named keys dispatched through DispatchStructuredKey.
func (e *FakeExecutor) PressedKeys() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	keys := make([]string, 0, len(e.Structured))
	for _, k := range e.Structured {
		keys = append(keys, k.Key)
	}
	return keys
}

// Decode fills out with v the way a JSON round trip through the page would.
func Decode(v interface{}, out interface{}) error {
	data, err := jsoniter.Marshal(v)
	if err != nil {
		return err
	}
	return jsoniter.Unmarshal(data, out)
}
