package business

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/viseupoint/sme-atlas/internal/api"
	"github.com/viseupoint/sme-atlas/internal/api/auth"
	"github.com/viseupoint/sme-atlas/internal/types"
)

type CreateBusinessRequest struct {
	Name        string   `json:"name" binding:"required"`
	Description *string  `json:"description,omitempty"`
	CategoryID  string   `json:"category_id" binding:"required"`
	RegionID    string   `json:"region_id" binding:"required"`
	Address     *string  `json:"address,omitempty"`
	Latitude    *float64 `json:"latitude,omitempty"`
	Longitude   *float64 `json:"longitude,omitempty"`
	Phone       *string  `json:"phone,omitempty"`
	Website     *string  `json:"website,omitempty"`
}

type UpdateBusinessRequest struct {
	Name        *string  `json:"name,omitempty"`
	Description *string  `json:"description,omitempty"`
	Address     *string  `json:"address,omitempty"`
	Latitude    *float64 `json:"latitude,omitempty"`
	Longitude   *float64 `json:"longitude,omitempty"`
	Phone       *string  `json:"phone,omitempty"`
	Website     *string  `json:"website,omitempty"`
}

type HandlerImpl struct {
	businessService BusinessService
	logger          *slog.Logger
}

func NewHandlerImpl(businessService BusinessService, logger *slog.Logger) *HandlerImpl {
	return &HandlerImpl{
		businessService: businessService,
		logger:          logger,
	}
}

func (h *HandlerImpl) mapError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, types.ErrNotFound):
		api.ErrorResponse(w, r, http.StatusNotFound, "Business not found")
	case errors.Is(err, types.ErrConflict):
		api.ErrorResponse(w, r, http.StatusConflict, "A business with that name already exists")
	case errors.Is(err, types.ErrValidation):
		api.ErrorResponse(w, r, http.StatusBadRequest, "Invalid input")
	case errors.Is(err, types.ErrForbidden):
		api.ErrorResponse(w, r, http.StatusForbidden, "Access denied")
	default:
		h.logger.ErrorContext(r.Context(), "Unexpected business handler failure", slog.Any("error", err))
		api.ErrorResponse(w, r, http.StatusInternalServerError, "Something went wrong, please try again")
	}
}

// CreateBusiness godoc
// @Summary  Create a business listing owned by the current user
// @Tags     businesses
// @Accept   json
// @Produce  json
// @Param    body body CreateBusinessRequest true "listing input"
// @Success  201 {object} types.Business
// @Router   /businesses [post]
func (h *HandlerImpl) CreateBusiness(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		api.ErrorResponse(w, r, http.StatusUnauthorized, "Authentication required")
		return
	}

	var req CreateBusinessRequest
	if err := api.DecodeJSONBody(w, r, &req); err != nil {
		api.ErrorResponse(w, r, http.StatusBadRequest, err.Error())
		return
	}

	b, err := h.businessService.CreateBusiness(r.Context(), userID, CreateBusinessParams{
		Name:        req.Name,
		Description: req.Description,
		CategoryID:  req.CategoryID,
		RegionID:    req.RegionID,
		Address:     req.Address,
		Latitude:    req.Latitude,
		Longitude:   req.Longitude,
		Phone:       req.Phone,
		Website:     req.Website,
	})
	if err != nil {
		h.mapError(w, r, err)
		return
	}

	api.WriteJSONResponse(w, r, http.StatusCreated, b)
}

// GetBusiness godoc
// @Summary  Public business detail page
// @Tags     businesses
// @Produce  json
// @Success  200 {object} types.Business
// @Router   /businesses/{slug} [get]
func (h *HandlerImpl) GetBusiness(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")

	b, err := h.businessService.GetBusinessBySlug(r.Context(), slug)
	if err != nil {
		h.mapError(w, r, err)
		return
	}
	api.WriteJSONResponse(w, r, http.StatusOK, b)
}

// ListByRegion godoc
// @Summary  Public directory listing for a region
// @Tags     businesses
// @Produce  json
// @Success  200 {array} types.Business
// @Router   /regions/{slug}/businesses [get]
func (h *HandlerImpl) ListByRegion(w http.ResponseWriter, r *http.Request) {
	regionSlug := chi.URLParam(r, "slug")

	businesses, err := h.businessService.ListBusinessesByRegion(r.Context(), regionSlug)
	if err != nil {
		h.mapError(w, r, err)
		return
	}
	api.WriteJSONResponse(w, r, http.StatusOK, businesses)
}

// UpdateBusiness godoc
// @Summary  Update a listing (owner or admin)
// @Tags     businesses
// @Router   /businesses/{id} [put]
func (h *HandlerImpl) UpdateBusiness(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		api.ErrorResponse(w, r, http.StatusUnauthorized, "Authentication required")
		return
	}
	role, _ := auth.GetUserRoleFromContext(r.Context())
	businessID := chi.URLParam(r, "id")

	var req UpdateBusinessRequest
	if err := api.DecodeJSONBody(w, r, &req); err != nil {
		api.ErrorResponse(w, r, http.StatusBadRequest, err.Error())
		return
	}

	err := h.businessService.UpdateBusiness(r.Context(), userID, role, businessID, UpdateBusinessParams{
		Name:        req.Name,
		Description: req.Description,
		Address:     req.Address,
		Latitude:    req.Latitude,
		Longitude:   req.Longitude,
		Phone:       req.Phone,
		Website:     req.Website,
	})
	if err != nil {
		h.mapError(w, r, err)
		return
	}
	api.WriteJSONResponse(w, r, http.StatusNoContent, nil)
}

// DeactivateBusiness godoc
// @Summary  Take a listing offline (owner or admin)
// @Tags     businesses
// @Router   /businesses/{id} [delete]
func (h *HandlerImpl) DeactivateBusiness(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		api.ErrorResponse(w, r, http.StatusUnauthorized, "Authentication required")
		return
	}
	role, _ := auth.GetUserRoleFromContext(r.Context())
	businessID := chi.URLParam(r, "id")

	if err := h.businessService.DeactivateBusiness(r.Context(), userID, role, businessID, auth.OriginFromRequest(r)); err != nil {
		h.mapError(w, r, err)
		return
	}
	api.WriteJSONResponse(w, r, http.StatusNoContent, nil)
}

// VerifyBusiness godoc
// @Summary  Mark a listing as verified (admin only)
// @Tags     admin
// @Router   /admin/businesses/{id}/verify [post]
func (h *HandlerImpl) VerifyBusiness(w http.ResponseWriter, r *http.Request) {
	adminID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		api.ErrorResponse(w, r, http.StatusUnauthorized, "Authentication required")
		return
	}
	businessID := chi.URLParam(r, "id")

	if err := h.businessService.VerifyBusiness(r.Context(), adminID, businessID, auth.OriginFromRequest(r)); err != nil {
		h.mapError(w, r, err)
		return
	}
	api.WriteJSONResponse(w, r, http.StatusOK, map[string]any{"success": true, "message": "Business verified"})
}

// ListRegions godoc
// @Summary  All regions
// @Tags     directory
// @Produce  json
// @Success  200 {array} types.Region
// @Router   /regions [get]
func (h *HandlerImpl) ListRegions(w http.ResponseWriter, r *http.Request) {
	regions, err := h.businessService.ListRegions(r.Context())
	if err != nil {
		h.mapError(w, r, err)
		return
	}
	api.WriteJSONResponse(w, r, http.StatusOK, regions)
}

// ListCategories godoc
// @Summary  All categories
// @Tags     directory
// @Produce  json
// @Success  200 {array} types.Category
// @Router   /categories [get]
func (h *HandlerImpl) ListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.businessService.ListCategories(r.Context())
	if err != nil {
		h.mapError(w, r, err)
		return
	}
	api.WriteJSONResponse(w, r, http.StatusOK, categories)
}
