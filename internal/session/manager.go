package session

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/sociallink/api/schemas"
	"github.com/xkilldash9x/sociallink/internal/browser"
	"github.com/xkilldash9x/sociallink/internal/metrics"
	"github.com/xkilldash9x/sociallink/internal/observability"
	"github.com/xkilldash9x/sociallink/internal/platform"
)

const refreshTimeout = 10 * time.Second

// CredentialStore persists credential snapshots keyed by account.
type CredentialStore interface {
	SaveCredentials(ctx context.Context, accountID string, creds []schemas.Credential) error
	LoadCredentials(ctx context.Context, accountID string) ([]schemas.Credential, error)
}

// Session is a live, authenticated browser bound to one account. Operations
// borrow its page; only the Manager closes it.
type Session struct {
	accountID   string
	handle      *Handle
	credentials []schemas.Credential
	fingerprint string
	createdAt   time.Time
	lastUsed    atomic.Int64
	now         func() time.Time
}

func (s *Session) AccountID() string { return s.accountID }

// Page is the session's tab.
func (s *Session) Page() browser.Page { return s.handle.Page }

// BrowserContext is the session's cookie jar.
func (s *Session) BrowserContext() browser.BrowserContext { return s.handle.Context }

// Credentials returns the records the session was built from.
func (s *Session) Credentials() []schemas.Credential {
	return append([]schemas.Credential(nil), s.credentials...)
}

func (s *Session) CreatedAt() time.Time { return s.createdAt }

// LastUsedAt is the last Acquire or Touch.
func (s *Session) LastUsedAt() time.Time { return time.Unix(0, s.lastUsed.Load()) }

// Touch marks the session as used now.
func (s *Session) Touch() { s.lastUsed.Store(s.now().UnixNano()) }

type entry struct {
	mu   sync.Mutex
	sess *Session
	// dead entries were removed from the map; holders must look up again.
	dead bool
}

// Manager owns the per-account session cache.
type Manager struct {
	validator *Validator
	store     CredentialStore
	metrics   metrics.Recorder
	now       func() time.Time
	logger    *zap.Logger

	mu      sync.Mutex
	entries map[string]*entry
	live    atomic.Int64
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithClock replaces the time source used for staleness.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) { m.now = now }
}

// WithMetrics reports session counts to r.
func WithMetrics(r metrics.Recorder) ManagerOption {
	return func(m *Manager) { m.metrics = r }
}

// NewManager creates a Manager. store may be nil, in which case snapshots are
// neither persisted nor restored.
func NewManager(validator *Validator, store CredentialStore, logger *zap.Logger, opts ...ManagerOption) *Manager {
	m := &Manager{
		validator: validator,
		store:     store,
		metrics:   metrics.Nop{},
		now:       time.Now,
		logger:    logger.Named("session_manager"),
		entries:   make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) entry(accountID string) *entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[accountID]
	if !ok {
		e = &entry{}
		m.entries[accountID] = e
	}
	return e
}

// remove drops e from the map if it is still the current entry. Caller holds e.mu.
func (m *Manager) remove(accountID string, e *entry) {
	m.mu.Lock()
	if m.entries[accountID] == e {
		delete(m.entries, accountID)
	}
	m.mu.Unlock()
	e.dead = true
}

// Acquire returns the live session for accountID, building one if needed.
// Calls for the same account serialize. A cached session is reused when its
// page still looks authenticated and creds are empty or unchanged; otherwise
// it is replaced. Empty creds restore the persisted snapshot. Credentials that
// do not authenticate yield an error wrapping schemas.ErrSessionRejected.
func (m *Manager) Acquire(ctx context.Context, accountID string, creds []schemas.Credential) (*Session, error) {
	for {
		e := m.entry(accountID)
		e.mu.Lock()
		if e.dead {
			e.mu.Unlock()
			continue
		}
		sess, err := m.acquireLocked(ctx, accountID, e, creds)
		e.mu.Unlock()
		return sess, err
	}
}

func (m *Manager) acquireLocked(ctx context.Context, accountID string, e *entry, creds []schemas.Credential) (*Session, error) {
	logger := m.logger.With(observability.Account(accountID))

	if e.sess != nil {
		reason := m.reuseBlocker(ctx, e.sess, creds)
		if reason == "" {
			e.sess.Touch()
			logger.Debug("Reusing cached session.")
			return e.sess, nil
		}
		logger.Info("Replacing cached session.", zap.String("reason", reason))
		m.closeSession(ctx, e.sess, false)
		e.sess = nil
	}

	if len(creds) == 0 {
		restored, err := m.Restore(ctx, accountID)
		if err != nil {
			return nil, err
		}
		creds = restored
	}

	h, surface, err := m.validator.open(ctx, creds)
	if err != nil {
		return nil, err
	}
	if surface != platform.SurfaceAuthenticated {
		_ = h.Close(ctx)
		m.metrics.SessionRejected()
		logger.Warn("Credentials did not authenticate.", zap.String("surface", surface.String()))
		return nil, fmt.Errorf("account %s landed on %s surface: %w", accountID, surface, schemas.ErrSessionRejected)
	}

	prepared := m.validator.normalizer.NormalizeRecords(creds)
	sess := &Session{
		accountID:   accountID,
		handle:      h,
		credentials: prepared,
		fingerprint: fingerprint(prepared),
		createdAt:   m.now(),
		now:         m.now,
	}
	sess.Touch()
	e.sess = sess
	m.metrics.SessionCreated()
	m.metrics.SetLiveSessions(int(m.live.Add(1)))
	m.persist(ctx, accountID, prepared)
	logger.Info("Session established.", observability.CredentialNames(prepared))
	return sess, nil
}

// reuseBlocker returns why sess cannot be reused, or "" if it can. The check
// only inspects the current URL.
func (m *Manager) reuseBlocker(ctx context.Context, sess *Session, creds []schemas.Credential) string {
	if len(creds) > 0 && fingerprint(m.validator.normalizer.NormalizeRecords(creds)) != sess.fingerprint {
		return "credentials changed"
	}
	url, err := sess.Page().URL(ctx)
	if err != nil {
		return "page unreachable"
	}
	if !m.validator.platform.IsAuthenticated(url) {
		return "page left authenticated surface"
	}
	return ""
}

// Restore loads the persisted snapshot for accountID.
func (m *Manager) Restore(ctx context.Context, accountID string) ([]schemas.Credential, error) {
	if m.store == nil {
		return nil, fmt.Errorf("no credentials supplied and no snapshot store: %w", schemas.ErrMalformedInput)
	}
	creds, err := m.store.LoadCredentials(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("restore snapshot for %s: %w: %w", accountID, err, schemas.ErrMalformedInput)
	}
	if len(creds) == 0 {
		return nil, fmt.Errorf("snapshot for %s is empty: %w", accountID, schemas.ErrMalformedInput)
	}
	m.logger.Debug("Restored credential snapshot.", observability.Account(accountID), zap.Int("count", len(creds)))
	return creds, nil
}

func (m *Manager) persist(ctx context.Context, accountID string, creds []schemas.Credential) {
	if m.store == nil || len(creds) == 0 {
		return
	}
	if err := m.store.SaveCredentials(ctx, accountID, creds); err != nil {
		m.logger.Warn("Failed to persist credential snapshot.", observability.Account(accountID), zap.Error(err))
	}
}

// closeSession optionally reads the live cookie jar back into the store, then
// closes the browser.
func (m *Manager) closeSession(ctx context.Context, sess *Session, refresh bool) {
	if refresh {
		m.refresh(ctx, sess)
	}
	if err := sess.handle.Close(ctx); err != nil {
		m.logger.Warn("Failed to close session browser.", observability.Account(sess.accountID), zap.Error(err))
	}
	m.metrics.SessionEvicted()
	m.metrics.SetLiveSessions(int(m.live.Add(-1)))
}

func (m *Manager) refresh(ctx context.Context, sess *Session) {
	if m.store == nil {
		return
	}
	rctx, cancel := context.WithTimeout(browser.Detach(ctx), refreshTimeout)
	defer cancel()
	creds, err := sess.BrowserContext().Credentials(rctx)
	if err != nil {
		m.logger.Debug("Could not read cookies back from session.", observability.Account(sess.accountID), zap.Error(err))
		return
	}
	creds = m.validator.normalizer.NormalizeRecords(creds)
	if len(creds) == 0 {
		return
	}
	m.persist(rctx, sess.accountID, creds)
}

// Release closes the session for accountID, persisting its current cookies.
// It is a no-op when nothing is cached.
func (m *Manager) Release(ctx context.Context, accountID string) {
	m.mu.Lock()
	e, ok := m.entries[accountID]
	m.mu.Unlock()
	if !ok {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.dead {
		return
	}
	if e.sess != nil {
		m.closeSession(ctx, e.sess, true)
		e.sess = nil
	}
	m.remove(accountID, e)
}

// Discard closes the session for accountID without persisting its cookies.
// Used when the session is known to be dead.
func (m *Manager) Discard(ctx context.Context, accountID string) {
	m.mu.Lock()
	e, ok := m.entries[accountID]
	m.mu.Unlock()
	if !ok {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.dead {
		return
	}
	if e.sess != nil {
		m.closeSession(ctx, e.sess, false)
		e.sess = nil
	}
	m.remove(accountID, e)
}

// EvictStale closes every session unused for longer than maxIdle and returns
// the evicted account ids. Sessions whose account is mid-acquire are skipped.
func (m *Manager) EvictStale(ctx context.Context, maxIdle time.Duration) []string {
	m.mu.Lock()
	snapshot := make(map[string]*entry, len(m.entries))
	for id, e := range m.entries {
		snapshot[id] = e
	}
	m.mu.Unlock()

	cutoff := m.now().Add(-maxIdle)
	var evicted []string
	for id, e := range snapshot {
		if !e.mu.TryLock() {
			continue
		}
		if !e.dead && (e.sess == nil || e.sess.LastUsedAt().Before(cutoff)) {
			if e.sess != nil {
				m.logger.Info("Evicting idle session.", observability.Account(id), zap.Time("last_used", e.sess.LastUsedAt()))
				m.closeSession(ctx, e.sess, true)
				e.sess = nil
				evicted = append(evicted, id)
			}
			m.remove(id, e)
		}
		e.mu.Unlock()
	}
	sort.Strings(evicted)
	return evicted
}

// Len returns the number of live sessions.
func (m *Manager) Len() int { return int(m.live.Load()) }

// Close closes every cached session concurrently, persisting cookies.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	snapshot := make(map[string]*entry, len(m.entries))
	for id, e := range m.entries {
		snapshot[id] = e
	}
	m.mu.Unlock()

	closeCtx := browser.Detach(ctx)
	var g errgroup.Group
	g.SetLimit(8)
	for id, e := range snapshot {
		g.Go(func() error {
			e.mu.Lock()
			defer e.mu.Unlock()
			if e.dead {
				return nil
			}
			if e.sess != nil {
				m.closeSession(closeCtx, e.sess, true)
				e.sess = nil
			}
			m.remove(id, e)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	m.logger.Info("Session manager closed.", zap.Int("sessions", len(snapshot)))
	return nil
}

// fingerprint identifies a credential set independent of order.
func fingerprint(creds []schemas.Credential) string {
	parts := make([]string, 0, len(creds))
	for _, c := range creds {
		parts = append(parts, c.Name+"="+c.Value)
	}
	sort.Strings(parts)
	return strings.Join(parts, ";")
}
