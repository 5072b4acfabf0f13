package auth

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/viseupoint/sme-atlas/config"
	"github.com/viseupoint/sme-atlas/internal/types"
)

func testJWTConfig() config.JWTConfig {
	return config.JWTConfig{
		SecretKey:       "test-access-secret",
		Issuer:          "test-issuer",
		Audience:        "test-audience",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 7 * 24 * time.Hour,
	}
}

func signToken(t *testing.T, cfg config.JWTConfig, userID, role string, expiresAt time.Time) string {
	t.Helper()
	claims := types.Claims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    cfg.Issuer,
			Audience:  jwt.ClaimStrings{cfg.Audience},
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-time.Minute)),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.SecretKey))
	require.NoError(t, err)
	return signed
}

func TestAuthenticate(t *testing.T) {
	cfg := testJWTConfig()
	logger := slog.Default()
	middleware := Authenticate(logger, cfg)

	okHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, _ := GetUserIDFromContext(r.Context())
		role, _ := GetUserRoleFromContext(r.Context())
		w.Header().Set("X-User-ID", userID)
		w.Header().Set("X-User-Role", role)
		w.WriteHeader(http.StatusOK)
	})

	t.Run("ValidToken", func(t *testing.T) {
		token := signToken(t, cfg, "user123", types.RoleUser, time.Now().Add(10*time.Minute))

		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()

		middleware(okHandler).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "user123", rec.Header().Get("X-User-ID"))
		assert.Equal(t, types.RoleUser, rec.Header().Get("X-User-Role"))
	})

	t.Run("MissingHeader", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		rec := httptest.NewRecorder()

		middleware(okHandler).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("MalformedHeader", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		req.Header.Set("Authorization", "Token abc")
		rec := httptest.NewRecorder()

		middleware(okHandler).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("ExpiredToken", func(t *testing.T) {
		token := signToken(t, cfg, "user123", types.RoleUser, time.Now().Add(-time.Minute))

		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()

		middleware(okHandler).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), "expired")
	})

	t.Run("WrongSignature", func(t *testing.T) {
		otherCfg := cfg
		otherCfg.SecretKey = "some-other-secret"
		token := signToken(t, otherCfg, "user123", types.RoleUser, time.Now().Add(10*time.Minute))

		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()

		middleware(okHandler).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("WrongIssuer", func(t *testing.T) {
		otherCfg := cfg
		otherCfg.Issuer = "imposter"
		token := signToken(t, otherCfg, "user123", types.RoleUser, time.Now().Add(10*time.Minute))

		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()

		middleware(okHandler).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestRequireRole(t *testing.T) {
	logger := slog.Default()
	adminOnly := RequireRole(logger, types.RoleAdmin)

	okHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	t.Run("AdminAllowed", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/admin", nil)
		ctx := context.WithValue(req.Context(), UserIDKey, "admin-1")
		ctx = context.WithValue(ctx, UserRoleKey, types.RoleAdmin)
		rec := httptest.NewRecorder()

		adminOnly(okHandler).ServeHTTP(rec, req.WithContext(ctx))

		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("UserForbidden", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/admin", nil)
		ctx := context.WithValue(req.Context(), UserIDKey, "user-1")
		ctx = context.WithValue(ctx, UserRoleKey, types.RoleUser)
		rec := httptest.NewRecorder()

		adminOnly(okHandler).ServeHTTP(rec, req.WithContext(ctx))

		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("NoClaimsForbidden", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/admin", nil)
		rec := httptest.NewRecorder()

		adminOnly(okHandler).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}

func TestSessionFromContext(t *testing.T) {
	t.Run("Unauthenticated", func(t *testing.T) {
		view := SessionFromContext(context.Background())

		assert.False(t, view.IsAuthenticated)
		assert.False(t, view.IsAdmin)
		assert.False(t, view.IsUser)
		assert.Empty(t, view.UserID)
	})

	t.Run("AdminClaims", func(t *testing.T) {
		ctx := context.WithValue(context.Background(), UserIDKey, "admin-1")
		ctx = context.WithValue(ctx, UserRoleKey, types.RoleAdmin)

		view := SessionFromContext(ctx)

		assert.True(t, view.IsAuthenticated)
		assert.True(t, view.IsAdmin)
		assert.False(t, view.IsUser)
		assert.Equal(t, "admin-1", view.UserID)
	})

	t.Run("UserClaims", func(t *testing.T) {
		ctx := context.WithValue(context.Background(), UserIDKey, "user-1")
		ctx = context.WithValue(ctx, UserRoleKey, types.RoleUser)

		view := SessionFromContext(ctx)

		assert.True(t, view.IsAuthenticated)
		assert.False(t, view.IsAdmin)
		assert.True(t, view.IsUser)
	})
}
