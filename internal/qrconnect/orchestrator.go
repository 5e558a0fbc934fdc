// Package qrconnect drives the device-handshake login: an unauthenticated
// browser shows the platform's QR login surface, the code is captured for the
// user, and a bounded polling loop watches for the login to complete on the
// user's phone.
//
// Connection states only move forward:
//
//	waiting -> scanning -> connected
//	                    -> expired
//	(any non-terminal)  -> error
package qrconnect

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/sociallink/api/schemas"
	"github.com/xkilldash9x/sociallink/internal/browser"
	"github.com/xkilldash9x/sociallink/internal/browser/humanoid"
	"github.com/xkilldash9x/sociallink/internal/config"
	"github.com/xkilldash9x/sociallink/internal/credentials"
	"github.com/xkilldash9x/sociallink/internal/metrics"
	"github.com/xkilldash9x/sociallink/internal/platform"
	"github.com/xkilldash9x/sociallink/internal/session"
	"github.com/xkilldash9x/sociallink/internal/steps"
)

const (
	navigationTimeout = 30 * time.Second
	closeTimeout      = 10 * time.Second
)

// connection is one handshake. state and handle are guarded by mu.
type connection struct {
	mu     sync.Mutex
	state  schemas.QRConnectionState
	handle *session.Handle
	stop   context.CancelFunc
}

// Orchestrator owns every in-flight handshake. It is safe for concurrent use.
type Orchestrator struct {
	launcher   *session.Launcher
	platform   *platform.Platform
	catalogue  platform.Catalogue
	normalizer *credentials.Normalizer
	cfg        config.QRConfig
	humanoid   humanoid.Config
	sleep      session.SleepFunc
	now        func() time.Time
	metrics    metrics.Recorder
	logger     *zap.Logger

	// lifetime bounds every polling goroutine.
	lifetime context.Context
	shutdown context.CancelFunc
	wg       sync.WaitGroup

	mu    sync.Mutex
	conns map[string]*connection
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithSleep replaces the wait between polls.
func WithSleep(fn session.SleepFunc) Option {
	return func(o *Orchestrator) { o.sleep = fn }
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithMetrics reports terminal states to r.
func WithMetrics(r metrics.Recorder) Option {
	return func(o *Orchestrator) { o.metrics = r }
}

// WithHumanoid sets the pointer model used to click the "use code" option.
func WithHumanoid(cfg humanoid.Config) Option {
	return func(o *Orchestrator) { o.humanoid = cfg }
}

// New creates an Orchestrator.
func New(launcher *session.Launcher, plat *platform.Platform, catalogue platform.Catalogue, cfg config.QRConfig, logger *zap.Logger, opts ...Option) *Orchestrator {
	lifetime, shutdown := context.WithCancel(context.Background())
	o := &Orchestrator{
		launcher:   launcher,
		platform:   plat,
		catalogue:  catalogue,
		normalizer: credentials.New(plat.CookieDomain()),
		cfg:        cfg,
		humanoid:   humanoid.DefaultConfig(),
		sleep:      defaultSleep,
		now:        time.Now,
		metrics:    metrics.Nop{},
		logger:     logger.Named("qr_orchestrator"),
		lifetime:   lifetime,
		shutdown:   shutdown,
		conns:      make(map[string]*connection),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func defaultSleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Initiate opens a dedicated browser on the QR login surface, captures the
// code and starts polling for completion. On a capture failure the connection
// is kept in the error state so Status can report it.
func (o *Orchestrator) Initiate(ctx context.Context, workspaceID string) (schemas.QRInitiation, error) {
	now := o.now()
	conn := &connection{state: schemas.QRConnectionState{
		ConnectionID: uuid.NewString(),
		WorkspaceID:  workspaceID,
		State:        schemas.QRWaiting,
		CreatedAt:    now,
		ExpiresAt:    now.Add(o.cfg.TTL),
	}}
	id := conn.state.ConnectionID
	logger := o.logger.With(zap.String("connection_id", id), zap.String("workspace_id", workspaceID))

	o.mu.Lock()
	o.conns[id] = conn
	o.mu.Unlock()

	h, err := o.launcher.Open(ctx, nil)
	if err != nil {
		o.fail(conn, err)
		return schemas.QRInitiation{ConnectionID: id}, err
	}
	conn.mu.Lock()
	conn.handle = h
	conn.mu.Unlock()

	report := steps.NewReport("qr_capture")
	code, err := o.capture(ctx, h, report)
	report.Log(logger)
	if err != nil {
		o.fail(conn, err)
		return schemas.QRInitiation{ConnectionID: id}, err
	}

	pollCtx, stop := context.WithCancel(o.lifetime)
	conn.mu.Lock()
	conn.state.Code = code
	conn.stop = stop
	advanced := o.advanceLocked(conn, schemas.QRScanning)
	expiresAt := conn.state.ExpiresAt
	conn.mu.Unlock()
	if !advanced {
		stop()
		return schemas.QRInitiation{ConnectionID: id}, schemas.ErrConnectionNotFound
	}

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer stop()
		o.poll(pollCtx, conn)
	}()

	logger.Info("QR code captured, waiting for device scan.", zap.Int("code_bytes", len(code)))
	return schemas.QRInitiation{ConnectionID: id, Code: code, ExpiresAt: expiresAt}, nil
}

// capture loads the login surface and returns whatever best shows the code.
// A missing or unreadable code element degrades to a wider screenshot; only
// navigation and viewport capture failures are errors.
func (o *Orchestrator) capture(ctx context.Context, h *session.Handle, report *steps.Report) ([]byte, error) {
	page := h.Page
	err := report.Run(ctx, "navigate_login", func(ctx context.Context) error {
		navCtx, cancel := context.WithTimeout(ctx, navigationTimeout)
		defer cancel()
		return schemas.NewDriverError("navigate", page.Navigate(navCtx, o.platform.QRLoginURL(), navigationTimeout))
	})
	if err != nil {
		return nil, err
	}

	err = report.Run(ctx, "use_qr_option", func(ctx context.Context) error {
		sel, err := o.catalogue.LocateAffordance(ctx, page, platform.UseQROption)
		if errors.Is(err, schemas.ErrAffordanceNotFound) {
			return fmt.Errorf("%v: %w", err, steps.ErrSkip)
		}
		if err != nil {
			return err
		}
		h := humanoid.New(o.humanoid, o.logger, page.Executor())
		if err := h.IntelligentClick(ctx, sel); err != nil {
			return schemas.NewDriverError("click", err)
		}
		return h.CognitivePause(ctx, 800, 200)
	})
	if err != nil {
		return nil, err
	}

	var code []byte
	for _, target := range []platform.Affordance{platform.QRCode, platform.QRRegion} {
		if code != nil {
			report.Skipf("capture_"+string(target), "code already captured")
			continue
		}
		err := report.Run(ctx, "capture_"+string(target), func(ctx context.Context) error {
			sel, err := o.catalogue.LocateAffordance(ctx, page, target)
			if errors.Is(err, schemas.ErrAffordanceNotFound) {
				return fmt.Errorf("%v: %w", err, steps.ErrSkip)
			}
			if err != nil {
				return err
			}
			shot, err := page.Screenshot(ctx, sel)
			if err != nil {
				if ctx.Err() != nil {
					return err
				}
				// A failed element capture falls through like a missing element.
				return fmt.Errorf("%v: %w", schemas.NewDriverError("screenshot", err), steps.ErrSkip)
			}
			code = shot
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	if code != nil {
		return code, nil
	}

	err = report.Run(ctx, "capture_viewport", func(ctx context.Context) error {
		var err error
		code, err = page.Screenshot(ctx, "")
		return schemas.NewDriverError("screenshot", err)
	})
	return code, err
}

// poll watches the page URL until it leaves the login surface or the attempt
// cap is reached.
func (o *Orchestrator) poll(ctx context.Context, conn *connection) {
	conn.mu.Lock()
	page := conn.handle.Page
	id := conn.state.ConnectionID
	conn.mu.Unlock()
	logger := o.logger.With(zap.String("connection_id", id))

	for attempt := 1; attempt <= o.cfg.MaxAttempts; attempt++ {
		if err := o.sleep(ctx, o.cfg.PollInterval); err != nil {
			logger.Debug("Polling stopped.", zap.Error(err))
			return
		}
		url, err := page.URL(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			o.fail(conn, schemas.NewDriverError("url", err))
			return
		}
		if o.platform.IsLoginSurface(url) {
			continue
		}
		logger.Info("Login surface left, confirming session.", zap.Int("attempt", attempt))
		if err := o.confirm(ctx, conn); err != nil {
			if ctx.Err() != nil {
				return
			}
			o.fail(conn, err)
		}
		return
	}

	conn.mu.Lock()
	expired := o.advanceLocked(conn, schemas.QRExpired)
	h := conn.handle
	conn.handle = nil
	conn.mu.Unlock()
	if expired {
		logger.Info("QR connection expired without a scan.", zap.Int("attempts", o.cfg.MaxAttempts))
		o.closeHandle(h)
	}
}

// confirm re-navigates to the probe, extracts the cookie jar and a
// best-effort username, and moves the connection to connected.
func (o *Orchestrator) confirm(ctx context.Context, conn *connection) error {
	conn.mu.Lock()
	h := conn.handle
	conn.mu.Unlock()
	if h == nil {
		// Released by a concurrent expiry.
		return nil
	}

	navCtx, cancel := context.WithTimeout(ctx, navigationTimeout)
	defer cancel()
	if err := h.Page.Navigate(navCtx, o.platform.ProbeURL(), navigationTimeout); err != nil {
		return schemas.NewDriverError("navigate", err)
	}
	landed, err := h.Page.URL(navCtx)
	if err != nil {
		return schemas.NewDriverError("url", err)
	}
	if !o.platform.IsAuthenticated(landed) {
		return fmt.Errorf("probe after scan landed on %s: %w", o.platform.Classify(landed), schemas.ErrSessionRejected)
	}

	jar, err := h.Context.Credentials(navCtx)
	if err != nil {
		return schemas.NewDriverError("get_cookies", err)
	}
	creds := o.normalizer.NormalizeRecords(jar)
	if len(creds) == 0 {
		return fmt.Errorf("no cookies after login: %w", schemas.ErrMalformedInput)
	}

	username := platform.UsernameFromURL(landed)
	if username == "" {
		username = o.lookupUsername(navCtx, h.Page)
	}

	conn.mu.Lock()
	defer conn.mu.Unlock()
	conn.state.Credentials = creds
	conn.state.Username = username
	if o.advanceLocked(conn, schemas.QRConnected) {
		o.logger.Info("QR connection confirmed.",
			zap.String("connection_id", conn.state.ConnectionID),
			zap.String("username", username),
			zap.Int("credential_count", len(creds)))
	}
	return nil
}

func (o *Orchestrator) lookupUsername(ctx context.Context, page browser.Page) string {
	sel, err := o.catalogue.LocateAffordance(ctx, page, platform.UsernameLink)
	if err != nil {
		return ""
	}
	href, err := platform.ReadAttribute(ctx, page, sel, "href")
	if err != nil {
		return ""
	}
	return platform.UsernameFromURL(href)
}

// advanceLocked applies a forward transition. Caller holds conn.mu.
func (o *Orchestrator) advanceLocked(conn *connection, to schemas.QRState) bool {
	from := conn.state.State
	ok := false
	switch to {
	case schemas.QRScanning:
		ok = from == schemas.QRWaiting
	case schemas.QRConnected, schemas.QRExpired:
		ok = from == schemas.QRScanning
	case schemas.QRError:
		ok = !from.IsTerminal()
	}
	if !ok {
		return false
	}
	conn.state.State = to
	if to.IsTerminal() {
		o.metrics.QROutcome(string(to))
	}
	return true
}

// fail moves conn to error and releases its browser.
func (o *Orchestrator) fail(conn *connection, err error) {
	conn.mu.Lock()
	failed := o.advanceLocked(conn, schemas.QRError)
	if failed {
		conn.state.Error = err.Error()
	}
	h := conn.handle
	conn.handle = nil
	id := conn.state.ConnectionID
	conn.mu.Unlock()
	if failed {
		o.logger.Warn("QR connection failed.", zap.String("connection_id", id), zap.Error(err))
	}
	o.closeHandle(h)
}

func (o *Orchestrator) closeHandle(h *session.Handle) {
	if h == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	if err := h.Close(ctx); err != nil {
		o.logger.Debug("Error closing QR browser.", zap.Error(err))
	}
}

func (o *Orchestrator) lookup(id string) (*connection, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	conn, ok := o.conns[id]
	return conn, ok
}

// Status returns a snapshot of the connection. The only mutations are the
// lazy scanning->expired transition once ExpiresAt has passed, and releasing
// the browser of a connection read as connected.
func (o *Orchestrator) Status(id string) (schemas.QRConnectionState, error) {
	conn, ok := o.lookup(id)
	if !ok {
		return schemas.QRConnectionState{}, schemas.ErrConnectionNotFound
	}
	conn.mu.Lock()
	var release *session.Handle
	if conn.state.State == schemas.QRScanning && !o.now().Before(conn.state.ExpiresAt) {
		o.advanceLocked(conn, schemas.QRExpired)
		if conn.stop != nil {
			conn.stop()
		}
	}
	if conn.state.State.IsTerminal() {
		release = conn.handle
		conn.handle = nil
	}
	snap := snapshot(conn.state)
	conn.mu.Unlock()

	if release != nil {
		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			o.closeHandle(release)
		}()
	}
	return snap, nil
}

// Complete claims a connected handshake and forgets it. Connections in any
// other state return ErrConnectionNotReady and stay registered.
func (o *Orchestrator) Complete(ctx context.Context, id string) (schemas.QRConnectionState, error) {
	conn, ok := o.lookup(id)
	if !ok {
		return schemas.QRConnectionState{}, schemas.ErrConnectionNotFound
	}
	conn.mu.Lock()
	if conn.state.State != schemas.QRConnected {
		state := conn.state.State
		conn.mu.Unlock()
		return schemas.QRConnectionState{}, fmt.Errorf("connection %s is %s: %w", id, state, schemas.ErrConnectionNotReady)
	}
	snap := snapshot(conn.state)
	h := conn.handle
	conn.handle = nil
	conn.mu.Unlock()

	o.mu.Lock()
	delete(o.conns, id)
	o.mu.Unlock()

	if h != nil {
		if err := h.Close(browser.Detach(ctx)); err != nil {
			o.logger.Debug("Error closing QR browser.", zap.Error(err))
		}
	}
	return snap, nil
}

// Collect forgets every connection past ExpiresAt, whatever its state, and
// releases their browsers. It returns how many were collected.
func (o *Orchestrator) Collect(ctx context.Context) int {
	now := o.now()
	var expired []*connection
	o.mu.Lock()
	for id, conn := range o.conns {
		conn.mu.Lock()
		past := !now.Before(conn.state.ExpiresAt)
		conn.mu.Unlock()
		if past {
			expired = append(expired, conn)
			delete(o.conns, id)
		}
	}
	o.mu.Unlock()

	for _, conn := range expired {
		conn.mu.Lock()
		o.advanceLocked(conn, schemas.QRExpired)
		if conn.stop != nil {
			conn.stop()
		}
		h := conn.handle
		conn.handle = nil
		conn.mu.Unlock()
		if h != nil {
			if err := h.Close(browser.Detach(ctx)); err != nil {
				o.logger.Debug("Error closing QR browser.", zap.Error(err))
			}
		}
	}
	if len(expired) > 0 {
		o.logger.Info("Collected expired QR connections.", zap.Int("count", len(expired)))
	}
	return len(expired)
}

// Len returns the number of registered connections.
func (o *Orchestrator) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.conns)
}

// Close stops every poller and releases every browser.
func (o *Orchestrator) Close(ctx context.Context) error {
	o.shutdown()
	o.wg.Wait()

	o.mu.Lock()
	conns := o.conns
	o.conns = make(map[string]*connection)
	o.mu.Unlock()

	var errs []error
	for _, conn := range conns {
		conn.mu.Lock()
		h := conn.handle
		conn.handle = nil
		conn.mu.Unlock()
		if h != nil {
			errs = append(errs, h.Close(browser.Detach(ctx)))
		}
	}
	return errors.Join(errs...)
}

func snapshot(s schemas.QRConnectionState) schemas.QRConnectionState {
	s.Code = append([]byte(nil), s.Code...)
	s.Credentials = append([]schemas.Credential(nil), s.Credentials...)
	return s
}
