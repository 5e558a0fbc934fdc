package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/xkilldash9x/sociallink/api/schemas"
	"github.com/xkilldash9x/sociallink/internal/vault"
)

// Account status values.
const (
	StatusActive   = "active"
	StatusInactive = "inactive"
)

// DBPool is an interface that abstracts the pgxpool.Pool to allow for mocking in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Store is the PostgreSQL persistence for accounts, sealed credential
// snapshots and interactions.
type Store struct {
	pool   DBPool
	sealer *vault.Sealer
	now    func() time.Time
	log    *zap.Logger
}

// New creates a new store instance and verifies the connection.
func New(ctx context.Context, pool DBPool, sealer *vault.Sealer, logger *zap.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &Store{
		pool:   pool,
		sealer: sealer,
		now:    func() time.Time { return time.Now().UTC() },
		log:    logger.Named("store"),
	}, nil
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// -- Credential snapshots --

const sqlUpsertCredentials = `
        INSERT INTO account_credentials (account_id, blob, updated_at)
        VALUES ($1, $2, $3)
        ON CONFLICT (account_id) DO UPDATE SET
            blob = EXCLUDED.blob,
            updated_at = EXCLUDED.updated_at;
    `

// SaveCredentials seals creds and replaces the account's snapshot.
func (s *Store) SaveCredentials(ctx context.Context, accountID string, creds []schemas.Credential) error {
	blob, err := s.sealer.SealCredentials(accountID, creds)
	if err != nil {
		return err
	}
	if _, err := s.pool.Exec(ctx, sqlUpsertCredentials, accountID, blob, s.now()); err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}
	return nil
}

// LoadCredentials opens the account's snapshot. vault.ErrNotFound is
// returned when none was saved.
func (s *Store) LoadCredentials(ctx context.Context, accountID string) ([]schemas.Credential, error) {
	var blob []byte
	err := s.pool.QueryRow(ctx, `SELECT blob FROM account_credentials WHERE account_id = $1;`, accountID).Scan(&blob)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("account %s: %w", accountID, vault.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load credentials: %w", err)
	}
	return s.sealer.OpenCredentials(accountID, blob)
}

// DeleteCredentials removes the snapshot. Deleting a missing one is not an error.
func (s *Store) DeleteCredentials(ctx context.Context, accountID string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM account_credentials WHERE account_id = $1;`, accountID); err != nil {
		return fmt.Errorf("failed to delete credentials: %w", err)
	}
	return nil
}

// -- Interactions --

const sqlInsertInteraction = `
        INSERT INTO interactions (id, account_id, kind, actor_handle, related_content_id, related_content_url, text_body, observed_at, observed_bucket, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
        ON CONFLICT (account_id, kind, actor_handle, related_content_id, observed_bucket) DO NOTHING;
    `

// SaveInteractions inserts events for an account, skipping any that match an
// existing row on kind, actor, related content and hour of observation. The
// returned events carry IsNewlyObserved accordingly, in input order.
func (s *Store) SaveInteractions(ctx context.Context, accountID string, events []schemas.InteractionEvent) ([]schemas.InteractionEvent, int, error) {
	if len(events) == 0 {
		return nil, 0, nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		// Rollback after a successful commit reports ErrTxClosed.
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			s.log.Error("Failed to rollback transaction", zap.Error(rollbackErr))
		}
	}()

	now := s.now()
	batch := &pgx.Batch{}
	for _, ev := range events {
		observed := ev.ObservedAt.UTC()
		batch.Queue(sqlInsertInteraction,
			uuid.NewString(), accountID, string(ev.Kind), ev.ActorHandle,
			deref(ev.RelatedContentID), ev.RelatedContentURL, ev.TextBody,
			observed, observed.Truncate(time.Hour), now,
		)
	}

	br := tx.SendBatch(ctx, batch)
	if br == nil {
		return nil, 0, fmt.Errorf("failed to send batch: batch results is nil")
	}

	out := make([]schemas.InteractionEvent, len(events))
	created := 0
	for i, ev := range events {
		tag, err := br.Exec()
		if err != nil {
			_ = br.Close()
			return nil, 0, fmt.Errorf("failed to insert interaction %d (%s by %s): %w", i, ev.Kind, ev.ActorHandle, err)
		}
		ev.IsNewlyObserved = tag.RowsAffected() > 0
		if ev.IsNewlyObserved {
			created++
		}
		out[i] = ev
	}
	if err := br.Close(); err != nil {
		return nil, 0, fmt.Errorf("failed to close batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return out, created, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// -- Accounts --

const sqlActivateAccount = `
        INSERT INTO accounts (id, workspace_id, username, status, created_at, updated_at)
        VALUES ($1, $2, $3, 'active', $4, $4)
        ON CONFLICT (workspace_id, username) DO UPDATE SET
            status = 'active',
            deactivated_reason = NULL,
            updated_at = EXCLUDED.updated_at
        RETURNING id;
    `

// Activate creates or reactivates the account for username in a workspace
// and returns its id. An empty username always creates a new account.
func (s *Store) Activate(ctx context.Context, workspaceID, username string) (string, error) {
	var name *string
	if username != "" {
		name = &username
	}
	var id string
	err := s.pool.QueryRow(ctx, sqlActivateAccount, uuid.NewString(), workspaceID, name, s.now()).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("failed to activate account: %w", err)
	}
	return id, nil
}

// Deactivate marks an account as needing reconnection.
func (s *Store) Deactivate(ctx context.Context, accountID, reason string) error {
	tag, err := s.pool.Exec(ctx, `
        UPDATE accounts SET status = 'inactive', deactivated_reason = $2, updated_at = $3
        WHERE id = $1;
    `, accountID, reason, s.now())
	if err != nil {
		return fmt.Errorf("failed to deactivate account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		s.log.Warn("Deactivated an unknown account.", zap.String("account_id", accountID))
	}
	return nil
}

// ActiveAccounts lists accounts eligible for scheduled work, oldest first.
func (s *Store) ActiveAccounts(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
        SELECT id FROM accounts
        WHERE status = 'active'
        ORDER BY created_at ASC;
    `)
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan account row: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return ids, nil
}
