package vault

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/mitchellh/go-homedir"
	"go.uber.org/zap"

	"github.com/xkilldash9x/sociallink/api/schemas"
)

// ErrNotFound means no snapshot exists for the account.
var ErrNotFound = errors.New("vault: no credential snapshot for account")

var safeAccountID = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// FileStore keeps one sealed snapshot file per account in a directory.
type FileStore struct {
	dir    string
	sealer *Sealer
	logger *zap.Logger
}

// NewFileStore creates the directory if needed.
func NewFileStore(dir string, sealer *Sealer, logger *zap.Logger) (*FileStore, error) {
	expanded, err := homedir.Expand(dir)
	if err != nil {
		return nil, fmt.Errorf("vault: could not expand credential dir: %w", err)
	}
	if err := os.MkdirAll(expanded, 0o700); err != nil {
		return nil, fmt.Errorf("vault: could not create credential dir: %w", err)
	}
	return &FileStore{dir: expanded, sealer: sealer, logger: logger.Named("vault")}, nil
}

func (f *FileStore) path(accountID string) (string, error) {
	if !safeAccountID.MatchString(accountID) {
		return "", fmt.Errorf("vault: account id %q is not usable as a file name", accountID)
	}
	return filepath.Join(f.dir, accountID+".sealed"), nil
}

// SaveCredentials seals and atomically replaces the snapshot for accountID.
func (f *FileStore) SaveCredentials(_ context.Context, accountID string, creds []schemas.Credential) error {
	path, err := f.path(accountID)
	if err != nil {
		return err
	}
	blob, err := f.sealer.SealCredentials(accountID, creds)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(f.dir, accountID+".*.tmp")
	if err != nil {
		return fmt.Errorf("vault: could not create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(blob); err != nil {
		tmp.Close()
		return fmt.Errorf("vault: could not write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("vault: could not close snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("vault: could not replace snapshot: %w", err)
	}
	f.logger.Debug("Credential snapshot saved.", zap.String("account_id", accountID), zap.Int("count", len(creds)))
	return nil
}

// LoadCredentials opens the snapshot for accountID.
func (f *FileStore) LoadCredentials(_ context.Context, accountID string) ([]schemas.Credential, error) {
	path, err := f.path(accountID)
	if err != nil {
		return nil, err
	}
	blob, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("vault: could not read snapshot: %w", err)
	}
	return f.sealer.OpenCredentials(accountID, blob)
}

// DeleteCredentials removes the snapshot. Missing snapshots are not an error.
func (f *FileStore) DeleteCredentials(_ context.Context, accountID string) error {
	path, err := f.path(accountID)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("vault: could not delete snapshot: %w", err)
	}
	return nil
}
