package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/agroscan/agroscan-core/src/models"
)

// MockCredentialStore implements models.CredentialStore
type MockCredentialStore struct {
	mock.Mock
}

func (m *MockCredentialStore) Save(ctx context.Context, creds *models.Credentials) error {
	args := m.Called(ctx, creds)
	return args.Error(0)
}

func (m *MockCredentialStore) Load(ctx context.Context) (*models.Credentials, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Credentials), args.Error(1)
}

func (m *MockCredentialStore) SaveProfile(ctx context.Context, profile *models.UserProfile) error {
	args := m.Called(ctx, profile)
	return args.Error(0)
}

func (m *MockCredentialStore) LoadProfile(ctx context.Context) (*models.UserProfile, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.UserProfile), args.Error(1)
}

func (m *MockCredentialStore) Clear(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockCredentialStore) Close() error {
	args := m.Called()
	return args.Error(0)
}

// MockTokenSource implements models.TokenSource
type MockTokenSource struct {
	mock.Mock
}

func (m *MockTokenSource) AccessToken(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockTokenSource) Refresh(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

// MockIdentityProvider implements models.IdentityProvider
type MockIdentityProvider struct {
	mock.Mock
}

func (m *MockIdentityProvider) SignIn(ctx context.Context) (*models.GoogleIdentity, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.GoogleIdentity), args.Error(1)
}

func (m *MockIdentityProvider) SignOut(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
