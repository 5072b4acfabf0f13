package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/markbates/goth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/viseupoint/sme-atlas/internal/types"
)

// MockAuthService is a mock implementation of the AuthService interface
type MockAuthService struct {
	mock.Mock
}

func (m *MockAuthService) Register(ctx context.Context, username, email, password string) (*types.UserAuth, error) {
	args := m.Called(ctx, username, email, password)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.UserAuth), args.Error(1)
}

func (m *MockAuthService) Login(ctx context.Context, identifier, password string, origin types.Origin) (string, string, error) {
	args := m.Called(ctx, identifier, password, origin)
	return args.String(0), args.String(1), args.Error(2)
}

func (m *MockAuthService) GetOrCreateUserFromProvider(ctx context.Context, provider string, providerUser goth.User) (*types.UserAuth, error) {
	args := m.Called(ctx, provider, providerUser)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.UserAuth), args.Error(1)
}

func (m *MockAuthService) LoginFromProvider(ctx context.Context, provider string, providerUser goth.User, origin types.Origin) (string, string, error) {
	args := m.Called(ctx, provider, providerUser, origin)
	return args.String(0), args.String(1), args.Error(2)
}

func (m *MockAuthService) RefreshSession(ctx context.Context, refreshToken string) (string, string, error) {
	args := m.Called(ctx, refreshToken)
	return args.String(0), args.String(1), args.Error(2)
}

func (m *MockAuthService) Logout(ctx context.Context, refreshToken string) error {
	args := m.Called(ctx, refreshToken)
	return args.Error(0)
}

func (m *MockAuthService) GetUserByID(ctx context.Context, userID string) (*types.UserAuth, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.UserAuth), args.Error(1)
}

func (m *MockAuthService) Setup2FA(ctx context.Context, userID string) (*TwoFactorSetupResponse, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*TwoFactorSetupResponse), args.Error(1)
}

func (m *MockAuthService) Enable2FA(ctx context.Context, userID string) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

func (m *MockAuthService) RedeemBackupCode(ctx context.Context, userID, code string, origin types.Origin) error {
	args := m.Called(ctx, userID, code, origin)
	return args.Error(0)
}

func (m *MockAuthService) GrantRole(ctx context.Context, actingAdminID, targetUserID, role string, origin types.Origin) error {
	args := m.Called(ctx, actingAdminID, targetUserID, role, origin)
	return args.Error(0)
}

func (m *MockAuthService) RecordAudit(ctx context.Context, entry types.AuditLogEntry) {
	m.Called(ctx, entry)
}

func postJSON(t *testing.T, handler http.HandlerFunc, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	assert.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, target, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func TestLoginHandler(t *testing.T) {
	mockService := new(MockAuthService)
	handler := NewAuthHandlerImpl(mockService, slog.Default())

	t.Run("Success", func(t *testing.T) {
		mockService.On("Login", mock.Anything, "maria@example.com", "password123", mock.AnythingOfType("types.Origin")).
			Return("access-token", "refresh-token", nil).Once()

		rec := postJSON(t, handler.Login, "/api/v1/auth/login", LoginRequest{
			Identifier: "maria@example.com",
			Password:   "password123",
		})

		assert.Equal(t, http.StatusOK, rec.Code)
		var resp LoginResponse
		assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "access-token", resp.AccessToken)
		assert.Equal(t, "refresh-token", resp.RefreshToken)
		mockService.AssertExpectations(t)
	})

	t.Run("BadCredentialsGenericMessage", func(t *testing.T) {
		mockService.On("Login", mock.Anything, "maria@example.com", "nope", mock.AnythingOfType("types.Origin")).
			Return("", "", types.ErrUnauthenticated).Once()

		rec := postJSON(t, handler.Login, "/api/v1/auth/login", LoginRequest{
			Identifier: "maria@example.com",
			Password:   "nope",
		})

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		// The body never says which factor failed.
		assert.Contains(t, rec.Body.String(), "Invalid credentials")
		assert.NotContains(t, rec.Body.String(), "password")
		mockService.AssertExpectations(t)
	})

	t.Run("MissingFields", func(t *testing.T) {
		rec := postJSON(t, handler.Login, "/api/v1/auth/login", LoginRequest{Identifier: "maria"})

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestRegisterHandler(t *testing.T) {
	mockService := new(MockAuthService)
	handler := NewAuthHandlerImpl(mockService, slog.Default())

	t.Run("Success", func(t *testing.T) {
		created := &types.UserAuth{ID: "u-1", Username: "maria", Email: "maria@example.com", Role: types.RoleUser}
		mockService.On("Register", mock.Anything, "maria", "maria@example.com", "password123").
			Return(created, nil).Once()

		rec := postJSON(t, handler.Register, "/api/v1/auth/register", RegisterRequest{
			Username: "maria",
			Email:    "maria@example.com",
			Password: "password123",
		})

		assert.Equal(t, http.StatusCreated, rec.Code)
		mockService.AssertExpectations(t)
	})

	t.Run("ShortPassword", func(t *testing.T) {
		rec := postJSON(t, handler.Register, "/api/v1/auth/register", RegisterRequest{
			Username: "maria",
			Email:    "maria@example.com",
			Password: "short",
		})

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("Conflict", func(t *testing.T) {
		mockService.On("Register", mock.Anything, "maria", "maria@example.com", "password123").
			Return(nil, types.ErrConflict).Once()

		rec := postJSON(t, handler.Register, "/api/v1/auth/register", RegisterRequest{
			Username: "maria",
			Email:    "maria@example.com",
			Password: "password123",
		})

		assert.Equal(t, http.StatusConflict, rec.Code)
		mockService.AssertExpectations(t)
	})
}

func TestSessionHandler(t *testing.T) {
	mockService := new(MockAuthService)
	handler := NewAuthHandlerImpl(mockService, slog.Default())

	t.Run("AuthenticatedView", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/session", nil)
		ctx := context.WithValue(req.Context(), UserIDKey, "user-1")
		ctx = context.WithValue(ctx, UserRoleKey, types.RoleAdmin)
		rec := httptest.NewRecorder()

		handler.Session(rec, req.WithContext(ctx))

		assert.Equal(t, http.StatusOK, rec.Code)
		var view types.SessionView
		assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
		assert.True(t, view.IsAuthenticated)
		assert.True(t, view.IsAdmin)
		assert.Equal(t, "user-1", view.UserID)
	})

	t.Run("AnonymousView", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/session", nil)
		rec := httptest.NewRecorder()

		handler.Session(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		var view types.SessionView
		assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
		assert.False(t, view.IsAuthenticated)
	})
}

func TestGrantRoleHandler(t *testing.T) {
	mockService := new(MockAuthService)
	handler := NewAuthHandlerImpl(mockService, slog.Default())

	t.Run("Success", func(t *testing.T) {
		mockService.On("GrantRole", mock.Anything, "admin-1", "target-1", types.RoleAdmin, mock.AnythingOfType("types.Origin")).
			Return(nil).Once()

		raw, _ := json.Marshal(GrantRoleRequest{UserID: "target-1", Role: types.RoleAdmin})
		req := httptest.NewRequest(http.MethodPut, "/api/v1/admin/users/role", bytes.NewReader(raw))
		req.Header.Set("Content-Type", "application/json")
		ctx := context.WithValue(req.Context(), UserIDKey, "admin-1")
		ctx = context.WithValue(ctx, UserRoleKey, types.RoleAdmin)
		rec := httptest.NewRecorder()

		handler.GrantRole(rec, req.WithContext(ctx))

		assert.Equal(t, http.StatusOK, rec.Code)
		mockService.AssertExpectations(t)
	})

	t.Run("NoClaims", func(t *testing.T) {
		raw, _ := json.Marshal(GrantRoleRequest{UserID: "target-1", Role: types.RoleAdmin})
		req := httptest.NewRequest(http.MethodPut, "/api/v1/admin/users/role", bytes.NewReader(raw))
		rec := httptest.NewRecorder()

		handler.GrantRole(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}
