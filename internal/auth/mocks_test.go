package auth

import (
	"context"

	"github.com/stretchr/testify/mock"

	"easierfocus/internal/model"
)

// MockGateway is a mock implementation of the Gateway interface.
type MockGateway struct {
	mock.Mock
}

var _ Gateway = (*MockGateway)(nil)

func (m *MockGateway) SignIn(ctx context.Context, email, password string) (*model.Session, error) {
	args := m.Called(ctx, email, password)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Session), args.Error(1)
}

func (m *MockGateway) SignUp(ctx context.Context, email, password string, metadata map[string]any) (*SignUpResult, error) {
	args := m.Called(ctx, email, password, metadata)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*SignUpResult), args.Error(1)
}

func (m *MockGateway) SignOut(ctx context.Context, accessToken string) error {
	args := m.Called(ctx, accessToken)
	return args.Error(0)
}

func (m *MockGateway) ResetPassword(ctx context.Context, email, redirectTo string) error {
	args := m.Called(ctx, email, redirectTo)
	return args.Error(0)
}

func (m *MockGateway) Refresh(ctx context.Context, refreshToken string) (*model.Session, error) {
	args := m.Called(ctx, refreshToken)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Session), args.Error(1)
}

func (m *MockGateway) User(ctx context.Context, accessToken string) (*model.User, error) {
	args := m.Called(ctx, accessToken)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.User), args.Error(1)
}

func (m *MockGateway) ExchangeCode(ctx context.Context, authCode, codeVerifier string) (*model.Session, error) {
	args := m.Called(ctx, authCode, codeVerifier)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Session), args.Error(1)
}

func testSession(access, refresh, userID string) *model.Session {
	return &model.Session{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    3600,
		ExpiresAt:    1767268800,
		TokenType:    "bearer",
		User:         model.User{ID: userID, Email: "user" + userID + "@example.com"},
	}
}
