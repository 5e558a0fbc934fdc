// Package engine is the entry point the scheduler and API layer call. It
// serializes work per account, applies rate limits, and turns dead sessions
// into account deactivations.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/sociallink/api/schemas"
	"github.com/xkilldash9x/sociallink/internal/actuator"
	"github.com/xkilldash9x/sociallink/internal/browser"
	"github.com/xkilldash9x/sociallink/internal/config"
	"github.com/xkilldash9x/sociallink/internal/metrics"
	"github.com/xkilldash9x/sociallink/internal/observability"
	"github.com/xkilldash9x/sociallink/internal/qrconnect"
	"github.com/xkilldash9x/sociallink/internal/ratelimit"
	"github.com/xkilldash9x/sociallink/internal/scraper"
	"github.com/xkilldash9x/sociallink/internal/session"
)

// -- Interfaces for Dependency Inversion --

// InteractionSink persists scraped events and reports which are new.
type InteractionSink interface {
	SaveInteractions(ctx context.Context, accountID string, events []schemas.InteractionEvent) ([]schemas.InteractionEvent, int, error)
}

// AccountRepository tracks which accounts are usable.
type AccountRepository interface {
	Deactivate(ctx context.Context, accountID, reason string) error
	Activate(ctx context.Context, workspaceID, username string) (string, error)
	ActiveAccounts(ctx context.Context) ([]string, error)
}

// Dependencies are the components an Engine coordinates.
type Dependencies struct {
	Sessions    *session.Manager
	Scraper     *scraper.Scraper
	Actuator    *actuator.Actuator
	QR          *qrconnect.Orchestrator
	Limiter     *ratelimit.Limiter
	Credentials session.CredentialStore
	Sink        InteractionSink
	Accounts    AccountRepository
	Metrics     metrics.Recorder
}

// Outcome is one account's result within SyncAll.
type Outcome struct {
	AccountID string
	Result    schemas.SyncResult
	Err       error
}

// Engine is safe for concurrent use.
type Engine struct {
	deps     Dependencies
	cfg      config.EngineConfig
	launches *rate.Limiter
	logger   *zap.Logger

	mu   sync.Mutex
	busy map[string]struct{}
}

// New creates an Engine.
func New(deps Dependencies, cfg config.EngineConfig, logger *zap.Logger) (*Engine, error) {
	switch {
	case deps.Sessions == nil:
		return nil, errors.New("session manager cannot be nil")
	case deps.Scraper == nil:
		return nil, errors.New("scraper cannot be nil")
	case deps.Actuator == nil:
		return nil, errors.New("actuator cannot be nil")
	case deps.QR == nil:
		return nil, errors.New("qr orchestrator cannot be nil")
	case deps.Limiter == nil:
		return nil, errors.New("rate limiter cannot be nil")
	case deps.Credentials == nil:
		return nil, errors.New("credential store cannot be nil")
	case deps.Sink == nil:
		return nil, errors.New("interaction sink cannot be nil")
	case deps.Accounts == nil:
		return nil, errors.New("account repository cannot be nil")
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.Nop{}
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	limit := rate.Inf
	if cfg.LaunchRate > 0 {
		limit = rate.Limit(cfg.LaunchRate)
	}
	return &Engine{
		deps:     deps,
		cfg:      cfg,
		launches: rate.NewLimiter(limit, 1),
		logger:   logger.With(zap.String("component", "engine")),
		busy:     make(map[string]struct{}),
	}, nil
}

// claim marks accountID as in progress. The returned func clears the mark.
func (e *Engine) claim(accountID string) (func(), error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.busy[accountID]; ok {
		return nil, fmt.Errorf("account %s: %w", accountID, schemas.ErrAccountBusy)
	}
	e.busy[accountID] = struct{}{}
	return func() {
		e.mu.Lock()
		delete(e.busy, accountID)
		e.mu.Unlock()
	}, nil
}

// Busy reports whether an operation is running for accountID.
func (e *Engine) Busy(accountID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.busy[accountID]
	return ok
}

// SyncInteractions scrapes the account's activity surface and persists what
// it finds. creds may be nil to reuse a cached session or the stored snapshot.
func (e *Engine) SyncInteractions(ctx context.Context, accountID string, creds []schemas.Credential) (res schemas.SyncResult, err error) {
	start := time.Now()
	defer func() { e.deps.Metrics.ObserveOperation("sync_interactions", time.Since(start), err) }()

	release, err := e.claim(accountID)
	if err != nil {
		return schemas.SyncResult{}, err
	}
	defer release()
	logger := e.logger.With(observability.Account(accountID))

	if d := e.deps.Limiter.CanAct(accountID); !d.Allowed {
		e.deps.Metrics.RateLimited(string(ratelimit.ClassAction))
		return schemas.SyncResult{}, fmt.Errorf("%s, retry in %ds: %w", d.Reason, d.RetryAfterSeconds(), schemas.ErrRateLimited)
	}

	sess, err := e.deps.Sessions.Acquire(ctx, accountID, creds)
	if err != nil {
		e.handleFailure(ctx, accountID, err)
		return schemas.SyncResult{}, err
	}
	e.deps.Limiter.RecordAction(accountID)

	events, _, err := e.deps.Scraper.Scrape(ctx, sess)
	if err != nil {
		e.handleFailure(ctx, accountID, err)
		return schemas.SyncResult{}, err
	}
	sess.Touch()

	saved, created, err := e.deps.Sink.SaveInteractions(ctx, accountID, events)
	if err != nil {
		return schemas.SyncResult{}, fmt.Errorf("failed to persist interactions: %w", err)
	}
	e.deps.Metrics.InteractionsCreated(created)
	if saved == nil {
		saved = []schemas.InteractionEvent{}
	}

	logger.Info("Interactions synced.", zap.Int("collected", len(events)), zap.Int("created", created))
	return schemas.SyncResult{
		AccountID:      accountID,
		CollectedCount: len(events),
		CreatedCount:   created,
		Interactions:   saved,
	}, nil
}

// SendDirectMessage sends text to targetHandle from the account. Exhausted
// rate limits and missing UI affordances are reported in the result; dead
// sessions and driver failures are errors.
func (e *Engine) SendDirectMessage(ctx context.Context, accountID, targetHandle, text string) (res schemas.SendResult, err error) {
	start := time.Now()
	defer func() { e.deps.Metrics.ObserveOperation("send_direct_message", time.Since(start), err) }()

	release, err := e.claim(accountID)
	if err != nil {
		return schemas.SendResult{Reason: "account busy"}, err
	}
	defer release()

	if d := e.deps.Limiter.CanSend(accountID); !d.Allowed {
		e.deps.Metrics.RateLimited(string(ratelimit.ClassMessage))
		return schemas.SendResult{Success: false, Reason: d.Reason, RetryAfter: d.RetryAfter}, nil
	}

	sess, err := e.deps.Sessions.Acquire(ctx, accountID, nil)
	if err != nil {
		e.handleFailure(ctx, accountID, err)
		return schemas.SendResult{}, err
	}

	res, _, err = e.deps.Actuator.SendDirectMessage(ctx, sess, targetHandle, text)
	if err != nil {
		e.handleFailure(ctx, accountID, err)
		return schemas.SendResult{}, err
	}
	sess.Touch()
	if res.Success {
		e.deps.Limiter.RecordSent(accountID)
		e.deps.Metrics.MessageSent()
	}
	return res, nil
}

// InitiateQRConnection starts a device-handshake login for a workspace.
func (e *Engine) InitiateQRConnection(ctx context.Context, workspaceID string) (schemas.QRInitiation, error) {
	return e.deps.QR.Initiate(ctx, workspaceID)
}

// GetConnectionStatus reports a handshake's state.
func (e *Engine) GetConnectionStatus(connectionID string) (schemas.QRConnectionState, error) {
	return e.deps.QR.Status(connectionID)
}

// CompleteConnection claims a connected handshake: the account is activated,
// its credentials stored, and the connection removed. The account is
// persisted before the connection is released so a storage failure can be
// retried.
func (e *Engine) CompleteConnection(ctx context.Context, connectionID string) (schemas.ConnectionResult, error) {
	st, err := e.deps.QR.Status(connectionID)
	if err != nil {
		return schemas.ConnectionResult{}, err
	}
	if st.State != schemas.QRConnected {
		return schemas.ConnectionResult{}, fmt.Errorf("connection %s is %s: %w", connectionID, st.State, schemas.ErrConnectionNotReady)
	}

	accountID, err := e.deps.Accounts.Activate(ctx, st.WorkspaceID, st.Username)
	if err != nil {
		return schemas.ConnectionResult{}, err
	}
	if err := e.deps.Credentials.SaveCredentials(ctx, accountID, st.Credentials); err != nil {
		return schemas.ConnectionResult{}, fmt.Errorf("failed to store credentials for %s: %w", accountID, err)
	}
	if _, err := e.deps.QR.Complete(ctx, connectionID); err != nil && !errors.Is(err, schemas.ErrConnectionNotFound) {
		return schemas.ConnectionResult{}, err
	}

	e.logger.Info("Connection completed.",
		zap.String("connection_id", connectionID),
		observability.Account(accountID),
		zap.String("username", st.Username),
		observability.CredentialNames(st.Credentials),
	)
	return schemas.ConnectionResult{AccountID: accountID, Username: st.Username, Credentials: st.Credentials}, nil
}

// SyncAll runs SyncInteractions for every active account with bounded
// concurrency and paced browser launches. One account's failure never stops
// the others; every account gets an Outcome.
func (e *Engine) SyncAll(ctx context.Context) ([]Outcome, error) {
	ids, err := e.deps.Accounts.ActiveAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list active accounts: %w", err)
	}

	outcomes := make([]Outcome, len(ids))
	var g errgroup.Group
	g.SetLimit(e.cfg.Concurrency)
	for i, id := range ids {
		g.Go(func() error {
			outcomes[i].AccountID = id
			if err := e.launches.Wait(ctx); err != nil {
				outcomes[i].Err = err
				return nil
			}
			outcomes[i].Result, outcomes[i].Err = e.SyncInteractions(ctx, id, nil)
			return nil
		})
	}
	_ = g.Wait()

	var failed int
	for _, o := range outcomes {
		if o.Err != nil {
			failed++
			e.logger.Warn("Account sync failed.", observability.Account(o.AccountID), zap.Error(o.Err))
		}
	}
	e.logger.Info("Sync fan-out finished.", zap.Int("accounts", len(ids)), zap.Int("failed", failed))
	return outcomes, nil
}

// handleFailure drops the cached session after a failure that leaves it
// unusable, and deactivates the account when the session itself is dead.
func (e *Engine) handleFailure(ctx context.Context, accountID string, err error) {
	logger := e.logger.With(observability.Account(accountID))
	switch {
	case schemas.IsAccountFailure(err):
		cleanupCtx, cancel := context.WithTimeout(browser.Detach(ctx), 30*time.Second)
		defer cancel()
		e.deps.Sessions.Discard(cleanupCtx, accountID)
		if derr := e.deps.Accounts.Deactivate(cleanupCtx, accountID, err.Error()); derr != nil {
			logger.Error("Failed to deactivate account.", zap.Error(derr))
			return
		}
		logger.Warn("Account deactivated, reconnection required.", zap.Error(err))
	case schemas.IsDriverError(err):
		cleanupCtx, cancel := context.WithTimeout(browser.Detach(ctx), 30*time.Second)
		defer cancel()
		e.deps.Sessions.Discard(cleanupCtx, accountID)
		logger.Warn("Browser failure, session discarded.", zap.Error(err))
	}
}
