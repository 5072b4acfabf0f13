package business

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/viseupoint/sme-atlas/internal/types"
)

var _ BusinessService = (*BusinessServiceImpl)(nil)

// Auditor records privileged actions; satisfied by the auth service.
type Auditor interface {
	RecordAudit(ctx context.Context, entry types.AuditLogEntry)
}

type BusinessService interface {
	CreateBusiness(ctx context.Context, ownerID string, params CreateBusinessParams) (*types.Business, error)
	GetBusinessBySlug(ctx context.Context, slug string) (*types.Business, error)
	ListBusinessesByRegion(ctx context.Context, regionSlug string) ([]types.Business, error)
	UpdateBusiness(ctx context.Context, actorID, actorRole, businessID string, params UpdateBusinessParams) error
	VerifyBusiness(ctx context.Context, adminID, businessID string, origin types.Origin) error
	DeactivateBusiness(ctx context.Context, actorID, actorRole, businessID string, origin types.Origin) error
	ListRegions(ctx context.Context) ([]types.Region, error)
	ListCategories(ctx context.Context) ([]types.Category, error)
}

type BusinessServiceImpl struct {
	logger  *slog.Logger
	repo    BusinessRepo
	auditor Auditor
	cache   *cache.Cache
}

func NewBusinessService(repo BusinessRepo, auditor Auditor, logger *slog.Logger) *BusinessServiceImpl {
	return &BusinessServiceImpl{
		logger:  logger,
		repo:    repo,
		auditor: auditor,
		cache:   cache.New(5*time.Minute, 10*time.Minute),
	}
}

var slugStrip = regexp.MustCompile(`[^a-z0-9]+`)

// slugify turns "Café do Rossio" into "caf-do-rossio". Collisions surface as
// types.ErrConflict from the unique index, not here.
func slugify(name string) string {
	s := slugStrip.ReplaceAllString(strings.ToLower(name), "-")
	return strings.Trim(s, "-")
}

func (s *BusinessServiceImpl) CreateBusiness(ctx context.Context, ownerID string, params CreateBusinessParams) (*types.Business, error) {
	if strings.TrimSpace(params.Name) == "" {
		return nil, fmt.Errorf("%w: business name is required", types.ErrValidation)
	}
	if params.CategoryID == "" || params.RegionID == "" {
		return nil, fmt.Errorf("%w: category and region are required", types.ErrValidation)
	}

	params.OwnerID = ownerID
	params.Slug = slugify(params.Name)
	if params.Slug == "" {
		return nil, fmt.Errorf("%w: business name must contain letters or digits", types.ErrValidation)
	}

	b, err := s.repo.CreateBusiness(ctx, params)
	if err != nil {
		return nil, err
	}

	s.invalidateListings()
	return b, nil
}

func (s *BusinessServiceImpl) GetBusinessBySlug(ctx context.Context, slug string) (*types.Business, error) {
	return s.repo.GetBusinessBySlug(ctx, slug)
}

// ListBusinessesByRegion serves the public directory page. Results are cached
// briefly; a stale verified badge for a few minutes is acceptable.
func (s *BusinessServiceImpl) ListBusinessesByRegion(ctx context.Context, regionSlug string) ([]types.Business, error) {
	key := "region-businesses:" + regionSlug
	if cached, found := s.cache.Get(key); found {
		return cached.([]types.Business), nil
	}

	businesses, err := s.repo.ListBusinessesByRegion(ctx, regionSlug)
	if err != nil {
		return nil, err
	}
	s.cache.Set(key, businesses, cache.DefaultExpiration)
	return businesses, nil
}

func (s *BusinessServiceImpl) UpdateBusiness(ctx context.Context, actorID, actorRole, businessID string, params UpdateBusinessParams) error {
	b, err := s.repo.GetBusinessByID(ctx, businessID)
	if err != nil {
		return err
	}
	if b.OwnerID != actorID && actorRole != types.RoleAdmin {
		return types.ErrForbidden
	}

	if err := s.repo.UpdateBusiness(ctx, businessID, params); err != nil {
		return err
	}
	s.invalidateListings()
	return nil
}

// VerifyBusiness marks a listing as reviewed. Only reachable behind the
// admin route group; the grant is audited.
func (s *BusinessServiceImpl) VerifyBusiness(ctx context.Context, adminID, businessID string, origin types.Origin) error {
	b, err := s.repo.GetBusinessByID(ctx, businessID)
	if err != nil {
		return err
	}

	if err := s.repo.SetVerified(ctx, businessID, true); err != nil {
		return err
	}
	s.invalidateListings()

	details, _ := json.Marshal(map[string]string{"business_id": businessID, "slug": b.Slug})
	entry := types.AuditLogEntry{
		UserID:  adminID,
		Action:  "business.verified",
		Details: details,
	}
	if origin.IPAddress != "" {
		entry.IPAddress = &origin.IPAddress
	}
	if origin.UserAgent != "" {
		entry.UserAgent = &origin.UserAgent
	}
	s.auditor.RecordAudit(ctx, entry)
	return nil
}

func (s *BusinessServiceImpl) DeactivateBusiness(ctx context.Context, actorID, actorRole, businessID string, origin types.Origin) error {
	b, err := s.repo.GetBusinessByID(ctx, businessID)
	if err != nil {
		return err
	}
	if b.OwnerID != actorID && actorRole != types.RoleAdmin {
		return types.ErrForbidden
	}

	if err := s.repo.DeactivateBusiness(ctx, businessID); err != nil {
		return err
	}
	s.invalidateListings()

	details, _ := json.Marshal(map[string]string{"business_id": businessID, "slug": b.Slug})
	entry := types.AuditLogEntry{
		UserID:  actorID,
		Action:  "business.deactivated",
		Details: details,
	}
	if origin.IPAddress != "" {
		entry.IPAddress = &origin.IPAddress
	}
	if origin.UserAgent != "" {
		entry.UserAgent = &origin.UserAgent
	}
	s.auditor.RecordAudit(ctx, entry)
	return nil
}

func (s *BusinessServiceImpl) ListRegions(ctx context.Context) ([]types.Region, error) {
	if cached, found := s.cache.Get("regions"); found {
		return cached.([]types.Region), nil
	}
	regions, err := s.repo.ListRegions(ctx)
	if err != nil {
		return nil, err
	}
	s.cache.Set("regions", regions, 30*time.Minute)
	return regions, nil
}

func (s *BusinessServiceImpl) ListCategories(ctx context.Context) ([]types.Category, error) {
	if cached, found := s.cache.Get("categories"); found {
		return cached.([]types.Category), nil
	}
	categories, err := s.repo.ListCategories(ctx)
	if err != nil {
		return nil, err
	}
	s.cache.Set("categories", categories, 30*time.Minute)
	return categories, nil
}

// invalidateListings drops every cached directory page. Listings are keyed
// by region slug while writes carry region IDs, so we flush the whole small
// key space rather than map between the two.
func (s *BusinessServiceImpl) invalidateListings() {
	for key := range s.cache.Items() {
		if strings.HasPrefix(key, "region-businesses:") {
			s.cache.Delete(key)
		}
	}
}
