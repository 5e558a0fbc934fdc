// File: internal/mocks/mocks.go
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/sociallink/api/schemas"
)

// -- Persistence Mocks --

// MockCredentialStore mocks encrypted credential snapshot storage.
type MockCredentialStore struct {
	mock.Mock
}

func (m *MockCredentialStore) SaveCredentials(ctx context.Context, accountID string, creds []schemas.Credential) error {
	args := m.Called(ctx, accountID, creds)
	return args.Error(0)
}

func (m *MockCredentialStore) LoadCredentials(ctx context.Context, accountID string) ([]schemas.Credential, error) {
	args := m.Called(ctx, accountID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]schemas.Credential), args.Error(1)
}

// MockInteractionSink mocks interaction persistence.
type MockInteractionSink struct {
	mock.Mock
}

func (m *MockInteractionSink) SaveInteractions(ctx context.Context, accountID string, events []schemas.InteractionEvent) ([]schemas.InteractionEvent, int, error) {
	args := m.Called(ctx, accountID, events)
	var out []schemas.InteractionEvent
	if v := args.Get(0); v != nil {
		out = v.([]schemas.InteractionEvent)
	}
	return out, args.Int(1), args.Error(2)
}

// MockAccountRepository mocks account activation state.
type MockAccountRepository struct {
	mock.Mock
}

func (m *MockAccountRepository) Deactivate(ctx context.Context, accountID, reason string) error {
	args := m.Called(ctx, accountID, reason)
	return args.Error(0)
}

func (m *MockAccountRepository) Activate(ctx context.Context, workspaceID, username string) (string, error) {
	args := m.Called(ctx, workspaceID, username)
	return args.String(0), args.Error(1)
}

func (m *MockAccountRepository) ActiveAccounts(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}
