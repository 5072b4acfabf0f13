package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/markbates/goth/gothic"

	"github.com/viseupoint/sme-atlas/internal/api"
	"github.com/viseupoint/sme-atlas/internal/types"
)

type HandlerImpl struct {
	authService AuthService
	logger      *slog.Logger
}

func NewAuthHandlerImpl(authService AuthService, logger *slog.Logger) *HandlerImpl {
	return &HandlerImpl{
		authService: authService,
		logger:      logger,
	}
}

// mapAuthError converts service errors to HTTP statuses without leaking
// which factor was wrong.
func (h *HandlerImpl) mapAuthError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, types.ErrUnauthenticated), errors.Is(err, types.ErrNotFound):
		api.ErrorResponse(w, r, http.StatusUnauthorized, "Invalid credentials")
	case errors.Is(err, types.ErrConflict):
		api.ErrorResponse(w, r, http.StatusConflict, "Username or email already taken")
	case errors.Is(err, types.ErrValidation):
		api.ErrorResponse(w, r, http.StatusBadRequest, "Invalid input")
	case errors.Is(err, types.ErrForbidden):
		api.ErrorResponse(w, r, http.StatusForbidden, "Access denied")
	default:
		h.logger.ErrorContext(r.Context(), "Unexpected auth failure", slog.Any("error", err))
		api.ErrorResponse(w, r, http.StatusInternalServerError, "Something went wrong, please try again")
	}
}

// Register godoc
// @Summary  Register a new account
// @Tags     auth
// @Accept   json
// @Produce  json
// @Param    body body RegisterRequest true "signup input"
// @Success  201 {object} types.UserAuth
// @Router   /auth/register [post]
func (h *HandlerImpl) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := api.DecodeJSONBody(w, r, &req); err != nil {
		api.ErrorResponse(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.Username == "" || req.Email == "" || len(req.Password) < 8 {
		api.ErrorResponse(w, r, http.StatusBadRequest, "username, email and a password of at least 8 characters are required")
		return
	}

	user, err := h.authService.Register(r.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		h.mapAuthError(w, r, err)
		return
	}

	api.WriteJSONResponse(w, r, http.StatusCreated, user)
}

// Login godoc
// @Summary  Log in with email or username plus password
// @Tags     auth
// @Accept   json
// @Produce  json
// @Param    body body LoginRequest true "credentials"
// @Success  200 {object} LoginResponse
// @Router   /auth/login [post]
func (h *HandlerImpl) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := api.DecodeJSONBody(w, r, &req); err != nil {
		api.ErrorResponse(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.Identifier == "" || req.Password == "" {
		api.ErrorResponse(w, r, http.StatusBadRequest, "identifier and password are required")
		return
	}

	accessToken, refreshToken, err := h.authService.Login(r.Context(), req.Identifier, req.Password, OriginFromRequest(r))
	if err != nil {
		h.mapAuthError(w, r, err)
		return
	}

	api.WriteJSONResponse(w, r, http.StatusOK, LoginResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		Message:      "Login successful",
	})
}

// RefreshSession godoc
// @Summary  Rotate the refresh token
// @Tags     auth
// @Router   /auth/refresh [post]
func (h *HandlerImpl) RefreshSession(w http.ResponseWriter, r *http.Request) {
	var req RefreshTokenRequest
	if err := api.DecodeJSONBody(w, r, &req); err != nil {
		api.ErrorResponse(w, r, http.StatusBadRequest, err.Error())
		return
	}

	accessToken, refreshToken, err := h.authService.RefreshSession(r.Context(), req.RefreshToken)
	if err != nil {
		h.mapAuthError(w, r, err)
		return
	}

	api.WriteJSONResponse(w, r, http.StatusOK, TokenResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	})
}

// Logout godoc
// @Summary  Revoke a refresh token
// @Tags     auth
// @Router   /auth/logout [post]
func (h *HandlerImpl) Logout(w http.ResponseWriter, r *http.Request) {
	var req LogoutRequest
	if err := api.DecodeJSONBody(w, r, &req); err != nil {
		api.ErrorResponse(w, r, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.authService.Logout(r.Context(), req.RefreshToken); err != nil {
		h.mapAuthError(w, r, err)
		return
	}

	api.WriteJSONResponse(w, r, http.StatusOK, Response{Success: true, Message: "Logged out"})
}

// Session godoc
// @Summary  Current session view
// @Tags     auth
// @Success  200 {object} types.SessionView
// @Router   /auth/session [get]
func (h *HandlerImpl) Session(w http.ResponseWriter, r *http.Request) {
	api.WriteJSONResponse(w, r, http.StatusOK, SessionFromContext(r.Context()))
}

// BeginOAuth hands the request to goth for the provider redirect.
// The provider comes from the route param, e.g. /auth/google.
func (h *HandlerImpl) BeginOAuth(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")
	r = r.WithContext(context.WithValue(r.Context(), gothicProviderKey, provider))
	gothic.BeginAuthHandler(w, r)
}

// OAuthCallback completes the provider dance and signs the asserted
// identity in. The federation protocol itself is goth's problem.
func (h *HandlerImpl) OAuthCallback(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")
	r = r.WithContext(context.WithValue(r.Context(), gothicProviderKey, provider))

	providerUser, err := gothic.CompleteUserAuth(w, r)
	if err != nil {
		h.logger.WarnContext(r.Context(), "OAuth callback failed", slog.Any("error", err))
		api.ErrorResponse(w, r, http.StatusUnauthorized, "Sign-in failed, please try again")
		return
	}

	accessToken, refreshToken, err := h.authService.LoginFromProvider(r.Context(), provider, providerUser, OriginFromRequest(r))
	if err != nil {
		h.mapAuthError(w, r, err)
		return
	}

	api.WriteJSONResponse(w, r, http.StatusOK, LoginResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		Message:      "Login successful",
	})
}

// Setup2FA godoc
// @Summary  Initiate 2FA setup for the current user
// @Tags     auth
// @Success  200 {object} TwoFactorSetupResponse
// @Router   /auth/2fa/setup [post]
func (h *HandlerImpl) Setup2FA(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		api.ErrorResponse(w, r, http.StatusUnauthorized, "Authentication required")
		return
	}

	setup, err := h.authService.Setup2FA(r.Context(), userID)
	if err != nil {
		h.mapAuthError(w, r, err)
		return
	}

	api.WriteJSONResponse(w, r, http.StatusOK, setup)
}

// Enable2FA godoc
// @Summary  Confirm and enable 2FA
// @Tags     auth
// @Router   /auth/2fa/enable [post]
func (h *HandlerImpl) Enable2FA(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		api.ErrorResponse(w, r, http.StatusUnauthorized, "Authentication required")
		return
	}

	if err := h.authService.Enable2FA(r.Context(), userID); err != nil {
		h.mapAuthError(w, r, err)
		return
	}

	api.WriteJSONResponse(w, r, http.StatusOK, Response{Success: true, Message: "Two-factor authentication enabled"})
}

// RedeemBackupCode godoc
// @Summary  Redeem a single-use 2FA backup code
// @Tags     auth
// @Router   /auth/2fa/backup-codes/redeem [post]
func (h *HandlerImpl) RedeemBackupCode(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		api.ErrorResponse(w, r, http.StatusUnauthorized, "Authentication required")
		return
	}

	var req BackupCodeRequest
	if err := api.DecodeJSONBody(w, r, &req); err != nil {
		api.ErrorResponse(w, r, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.authService.RedeemBackupCode(r.Context(), userID, req.Code, OriginFromRequest(r)); err != nil {
		h.mapAuthError(w, r, err)
		return
	}

	api.WriteJSONResponse(w, r, http.StatusOK, Response{Success: true, Message: "Backup code accepted"})
}

// GrantRole godoc
// @Summary  Change a user's role (admin only)
// @Tags     admin
// @Router   /admin/users/role [put]
func (h *HandlerImpl) GrantRole(w http.ResponseWriter, r *http.Request) {
	adminID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		api.ErrorResponse(w, r, http.StatusUnauthorized, "Authentication required")
		return
	}

	var req GrantRoleRequest
	if err := api.DecodeJSONBody(w, r, &req); err != nil {
		api.ErrorResponse(w, r, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.authService.GrantRole(r.Context(), adminID, req.UserID, req.Role, OriginFromRequest(r)); err != nil {
		h.mapAuthError(w, r, err)
		return
	}

	api.WriteJSONResponse(w, r, http.StatusOK, Response{Success: true, Message: "Role updated"})
}

// gothicProviderKey matches the untyped "provider" key gothic reads from the
// request context when the provider is not in the query string.
const gothicProviderKey = "provider"
