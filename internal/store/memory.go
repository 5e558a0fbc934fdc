package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/sociallink/api/schemas"
)

// dedupKey mirrors the interactions table's unique constraint.
type dedupKey struct {
	accountID string
	kind      schemas.InteractionKind
	actor     string
	contentID string
	bucket    time.Time
}

type memAccount struct {
	id          string
	workspaceID string
	username    string
	active      bool
	reason      string
	createdAt   time.Time
	seq         int
}

// Memory holds accounts and interactions in process. It applies the same
// deduplication rule as Store and loses everything on exit.
type Memory struct {
	mu       sync.Mutex
	seen     map[dedupKey]struct{}
	accounts map[string]*memAccount
	nextSeq  int
	now      func() time.Time
	log      *zap.Logger
}

// NewMemory creates an empty Memory.
func NewMemory(logger *zap.Logger) *Memory {
	return &Memory{
		seen:     make(map[dedupKey]struct{}),
		accounts: make(map[string]*memAccount),
		now:      time.Now,
		log:      logger.Named("memstore"),
	}
}

// SaveInteractions records events, flagging those not seen before.
func (m *Memory) SaveInteractions(_ context.Context, accountID string, events []schemas.InteractionEvent) ([]schemas.InteractionEvent, int, error) {
	if len(events) == 0 {
		return nil, 0, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]schemas.InteractionEvent, len(events))
	created := 0
	for i, ev := range events {
		k := dedupKey{
			accountID: accountID,
			kind:      ev.Kind,
			actor:     ev.ActorHandle,
			contentID: deref(ev.RelatedContentID),
			bucket:    ev.ObservedAt.UTC().Truncate(time.Hour),
		}
		_, dup := m.seen[k]
		if !dup {
			m.seen[k] = struct{}{}
			created++
		}
		ev.IsNewlyObserved = !dup
		out[i] = ev
	}
	return out, created, nil
}

// Activate creates or reactivates the account for username in a workspace.
func (m *Memory) Activate(_ context.Context, workspaceID, username string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if username != "" {
		for _, a := range m.accounts {
			if a.workspaceID == workspaceID && a.username == username {
				a.active, a.reason = true, ""
				return a.id, nil
			}
		}
	}
	a := &memAccount{
		id:          uuid.NewString(),
		workspaceID: workspaceID,
		username:    username,
		active:      true,
		createdAt:   m.now(),
		seq:         m.nextSeq,
	}
	m.nextSeq++
	m.accounts[a.id] = a
	return a.id, nil
}

// Deactivate marks an account as needing reconnection.
func (m *Memory) Deactivate(_ context.Context, accountID, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[accountID]
	if !ok {
		m.log.Warn("Deactivated an unknown account.", zap.String("account_id", accountID))
		return nil
	}
	a.active, a.reason = false, reason
	return nil
}

// ActiveAccounts lists active accounts, oldest first.
func (m *Memory) ActiveAccounts(context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	active := make([]*memAccount, 0, len(m.accounts))
	for _, a := range m.accounts {
		if a.active {
			active = append(active, a)
		}
	}
	sort.Slice(active, func(i, j int) bool { return active[i].seq < active[j].seq })
	ids := make([]string, len(active))
	for i, a := range active {
		ids[i] = a.id
	}
	return ids, nil
}

// Ping always succeeds.
func (m *Memory) Ping(context.Context) error { return nil }
