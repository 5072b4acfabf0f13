package user

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/viseupoint/sme-atlas/internal/api"
	"github.com/viseupoint/sme-atlas/internal/api/auth"
	"github.com/viseupoint/sme-atlas/internal/types"
)

type UpdateProfileRequest struct {
	DisplayName *string `json:"display_name,omitempty"`
	AvatarURL   *string `json:"avatar_url,omitempty"`
	Bio         *string `json:"bio,omitempty"`
	Location    *string `json:"location,omitempty"`
}

type ChangePasswordRequest struct {
	OldPassword string `json:"old_password" binding:"required"`
	NewPassword string `json:"new_password" binding:"required,min=8"`
}

type HandlerImpl struct {
	userService UserService
	logger      *slog.Logger
}

func NewHandlerImpl(userService UserService, logger *slog.Logger) *HandlerImpl {
	return &HandlerImpl{
		userService: userService,
		logger:      logger,
	}
}

func (h *HandlerImpl) mapError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, types.ErrNotFound):
		api.ErrorResponse(w, r, http.StatusNotFound, "User not found")
	case errors.Is(err, types.ErrUnauthenticated):
		api.ErrorResponse(w, r, http.StatusUnauthorized, "Invalid credentials")
	case errors.Is(err, types.ErrValidation):
		api.ErrorResponse(w, r, http.StatusBadRequest, "Invalid input")
	default:
		h.logger.ErrorContext(r.Context(), "Unexpected user handler failure", slog.Any("error", err))
		api.ErrorResponse(w, r, http.StatusInternalServerError, "Something went wrong, please try again")
	}
}

// GetMe godoc
// @Summary  Current user's profile
// @Tags     users
// @Success  200 {object} types.UserAuth
// @Router   /users/me [get]
func (h *HandlerImpl) GetMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		api.ErrorResponse(w, r, http.StatusUnauthorized, "Authentication required")
		return
	}

	profile, err := h.userService.GetProfile(r.Context(), userID)
	if err != nil {
		h.mapError(w, r, err)
		return
	}
	api.WriteJSONResponse(w, r, http.StatusOK, profile)
}

// UpdateMe godoc
// @Summary  Update the current user's profile
// @Tags     users
// @Router   /users/me [put]
func (h *HandlerImpl) UpdateMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		api.ErrorResponse(w, r, http.StatusUnauthorized, "Authentication required")
		return
	}

	var req UpdateProfileRequest
	if err := api.DecodeJSONBody(w, r, &req); err != nil {
		api.ErrorResponse(w, r, http.StatusBadRequest, err.Error())
		return
	}

	err := h.userService.UpdateProfile(r.Context(), userID, UpdateProfileParams{
		DisplayName: req.DisplayName,
		AvatarURL:   req.AvatarURL,
		Bio:         req.Bio,
		Location:    req.Location,
	})
	if err != nil {
		h.mapError(w, r, err)
		return
	}
	api.WriteJSONResponse(w, r, http.StatusNoContent, nil)
}

// ChangePassword godoc
// @Summary  Change the current user's password
// @Tags     users
// @Router   /users/me/password [put]
func (h *HandlerImpl) ChangePassword(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		api.ErrorResponse(w, r, http.StatusUnauthorized, "Authentication required")
		return
	}

	var req ChangePasswordRequest
	if err := api.DecodeJSONBody(w, r, &req); err != nil {
		api.ErrorResponse(w, r, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.userService.ChangePassword(r.Context(), userID, req.OldPassword, req.NewPassword); err != nil {
		h.mapError(w, r, err)
		return
	}
	api.WriteJSONResponse(w, r, http.StatusOK, map[string]any{"success": true, "message": "Password updated"})
}

// DeactivateMe godoc
// @Summary  Deactivate the current user's account
// @Tags     users
// @Router   /users/me [delete]
func (h *HandlerImpl) DeactivateMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		api.ErrorResponse(w, r, http.StatusUnauthorized, "Authentication required")
		return
	}

	if err := h.userService.DeactivateAccount(r.Context(), userID, auth.OriginFromRequest(r)); err != nil {
		h.mapError(w, r, err)
		return
	}
	api.WriteJSONResponse(w, r, http.StatusNoContent, nil)
}

// VerifyEmail godoc
// @Summary  Mark the current user's email as verified
// @Tags     users
// @Router   /users/me/verify-email [post]
func (h *HandlerImpl) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		api.ErrorResponse(w, r, http.StatusUnauthorized, "Authentication required")
		return
	}

	if err := h.userService.MarkEmailVerified(r.Context(), userID); err != nil {
		h.mapError(w, r, err)
		return
	}
	api.WriteJSONResponse(w, r, http.StatusOK, map[string]any{"success": true, "message": "Email verified"})
}
