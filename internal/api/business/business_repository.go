package business

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	appmetrics "github.com/viseupoint/sme-atlas/app/observability/metrics"
	"github.com/viseupoint/sme-atlas/internal/api/auth"
	"github.com/viseupoint/sme-atlas/internal/types"
)

// observeQuery feeds the db instruments for the hot directory queries.
func observeQuery(ctx context.Context, query string, start time.Time, err error) {
	m := appmetrics.Get()
	m.DbQueryDurationSeconds.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(attribute.String("query", query)))
	if err != nil {
		m.DbQueryErrorsTotal.Add(ctx, 1,
			metric.WithAttributes(attribute.String("query", query)))
	}
}

var _ BusinessRepo = (*PostgresBusinessRepo)(nil)

// CreateBusinessParams is the listing input. Slug is derived by the service.
type CreateBusinessParams struct {
	OwnerID     string
	Name        string
	Slug        string
	Description *string
	CategoryID  string
	RegionID    string
	Address     *string
	Latitude    *float64
	Longitude   *float64
	Phone       *string
	Website     *string
}

// UpdateBusinessParams carries only fields being changed.
type UpdateBusinessParams struct {
	Name        *string
	Description *string
	Address     *string
	Latitude    *float64
	Longitude   *float64
	Phone       *string
	Website     *string
}

// BusinessRepo defines the contract for directory persistence. Lookups and
// listings only ever surface active businesses.
type BusinessRepo interface {
	CreateBusiness(ctx context.Context, params CreateBusinessParams) (*types.Business, error)
	GetBusinessByID(ctx context.Context, id string) (*types.Business, error)
	GetBusinessBySlug(ctx context.Context, slug string) (*types.Business, error)
	ListBusinessesByRegion(ctx context.Context, regionSlug string) ([]types.Business, error)
	UpdateBusiness(ctx context.Context, id string, params UpdateBusinessParams) error
	SetVerified(ctx context.Context, id string, verified bool) error
	DeactivateBusiness(ctx context.Context, id string) error
	ListRegions(ctx context.Context) ([]types.Region, error)
	ListCategories(ctx context.Context) ([]types.Category, error)
}

type PostgresBusinessRepo struct {
	logger *slog.Logger
	pgpool auth.PgxPool
}

func NewPostgresBusinessRepo(pgpool auth.PgxPool, logger *slog.Logger) *PostgresBusinessRepo {
	return &PostgresBusinessRepo{
		logger: logger,
		pgpool: pgpool,
	}
}

const businessColumns = `id, owner_id, name, slug, description, category_id, region_id,
       address, latitude, longitude, phone, website,
       is_verified, is_active, verified_at, created_at, updated_at`

func scanBusiness(row pgx.Row) (*types.Business, error) {
	var b types.Business
	err := row.Scan(&b.ID, &b.OwnerID, &b.Name, &b.Slug, &b.Description, &b.CategoryID, &b.RegionID,
		&b.Address, &b.Latitude, &b.Longitude, &b.Phone, &b.Website,
		&b.IsVerified, &b.IsActive, &b.VerifiedAt, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.ErrNotFound
		}
		return nil, fmt.Errorf("scan business: %w", err)
	}
	return &b, nil
}

func (r *PostgresBusinessRepo) CreateBusiness(ctx context.Context, params CreateBusinessParams) (*types.Business, error) {
	ctx, span := otel.Tracer("business-repo").Start(ctx, "CreateBusiness")
	defer span.End()
	span.SetAttributes(attribute.String("business.slug", params.Slug))

	start := time.Now()
	row := r.pgpool.QueryRow(ctx,
		`INSERT INTO businesses (owner_id, name, slug, description, category_id, region_id,
                                 address, latitude, longitude, phone, website)
         VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
         RETURNING `+businessColumns,
		params.OwnerID, params.Name, params.Slug, params.Description, params.CategoryID, params.RegionID,
		params.Address, params.Latitude, params.Longitude, params.Phone, params.Website)

	b, err := scanBusiness(row)
	observeQuery(ctx, "create_business", start, err)
	if err != nil {
		span.SetStatus(codes.Error, "insert failed")
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" { // Unique violation
			return nil, fmt.Errorf("business slug already taken: %w", types.ErrConflict)
		}
		return nil, fmt.Errorf("create business: %w", err)
	}
	return b, nil
}

func (r *PostgresBusinessRepo) GetBusinessByID(ctx context.Context, id string) (*types.Business, error) {
	row := r.pgpool.QueryRow(ctx,
		`SELECT `+businessColumns+` FROM businesses WHERE id = $1 AND is_active = TRUE`, id)
	return scanBusiness(row)
}

func (r *PostgresBusinessRepo) GetBusinessBySlug(ctx context.Context, slug string) (*types.Business, error) {
	row := r.pgpool.QueryRow(ctx,
		`SELECT `+businessColumns+` FROM businesses WHERE slug = $1 AND is_active = TRUE`, slug)
	return scanBusiness(row)
}

func (r *PostgresBusinessRepo) ListBusinessesByRegion(ctx context.Context, regionSlug string) ([]types.Business, error) {
	ctx, span := otel.Tracer("business-repo").Start(ctx, "ListBusinessesByRegion")
	defer span.End()
	span.SetAttributes(attribute.String("region.slug", regionSlug))

	start := time.Now()
	rows, err := r.pgpool.Query(ctx,
		`SELECT b.id, b.owner_id, b.name, b.slug, b.description, b.category_id, b.region_id,
                b.address, b.latitude, b.longitude, b.phone, b.website,
                b.is_verified, b.is_active, b.verified_at, b.created_at, b.updated_at
         FROM businesses b
         JOIN regions r ON r.id = b.region_id
         WHERE r.slug = $1 AND b.is_active = TRUE
         ORDER BY b.is_verified DESC, b.name`, regionSlug)
	observeQuery(ctx, "list_businesses_by_region", start, err)
	if err != nil {
		span.SetStatus(codes.Error, "query failed")
		return nil, fmt.Errorf("list businesses by region: %w", err)
	}
	defer rows.Close()

	var businesses []types.Business
	for rows.Next() {
		var b types.Business
		if err := rows.Scan(&b.ID, &b.OwnerID, &b.Name, &b.Slug, &b.Description, &b.CategoryID, &b.RegionID,
			&b.Address, &b.Latitude, &b.Longitude, &b.Phone, &b.Website,
			&b.IsVerified, &b.IsActive, &b.VerifiedAt, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, fmt.Errorf("list businesses by region: scan: %w", err)
		}
		businesses = append(businesses, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list businesses by region: rows: %w", err)
	}
	return businesses, nil
}

func (r *PostgresBusinessRepo) UpdateBusiness(ctx context.Context, id string, params UpdateBusinessParams) error {
	sets := make([]string, 0, 7)
	args := make([]any, 0, 8)

	add := func(column string, value any, present bool) {
		if present {
			args = append(args, value)
			sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
		}
	}
	add("name", params.Name, params.Name != nil)
	add("description", params.Description, params.Description != nil)
	add("address", params.Address, params.Address != nil)
	add("latitude", params.Latitude, params.Latitude != nil)
	add("longitude", params.Longitude, params.Longitude != nil)
	add("phone", params.Phone, params.Phone != nil)
	add("website", params.Website, params.Website != nil)

	if len(sets) == 0 {
		return nil
	}

	args = append(args, id)
	query := fmt.Sprintf(`UPDATE businesses SET %s, updated_at = now() WHERE id = $%d AND is_active = TRUE`,
		strings.Join(sets, ", "), len(args))

	tag, err := r.pgpool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update business: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return types.ErrNotFound
	}
	return nil
}

func (r *PostgresBusinessRepo) SetVerified(ctx context.Context, id string, verified bool) error {
	tag, err := r.pgpool.Exec(ctx,
		`UPDATE businesses
         SET is_verified = $1, verified_at = CASE WHEN $1 THEN now() ELSE NULL END, updated_at = now()
         WHERE id = $2 AND is_active = TRUE`, verified, id)
	if err != nil {
		return fmt.Errorf("set verified: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return types.ErrNotFound
	}
	return nil
}

func (r *PostgresBusinessRepo) DeactivateBusiness(ctx context.Context, id string) error {
	tag, err := r.pgpool.Exec(ctx,
		`UPDATE businesses SET is_active = FALSE, updated_at = now() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deactivate business: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return types.ErrNotFound
	}
	return nil
}

func (r *PostgresBusinessRepo) ListRegions(ctx context.Context) ([]types.Region, error) {
	rows, err := r.pgpool.Query(ctx, `SELECT id, name, slug FROM regions ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list regions: %w", err)
	}
	defer rows.Close()

	var regions []types.Region
	for rows.Next() {
		var reg types.Region
		if err := rows.Scan(&reg.ID, &reg.Name, &reg.Slug); err != nil {
			return nil, fmt.Errorf("list regions: scan: %w", err)
		}
		regions = append(regions, reg)
	}
	return regions, rows.Err()
}

func (r *PostgresBusinessRepo) ListCategories(ctx context.Context) ([]types.Category, error) {
	rows, err := r.pgpool.Query(ctx, `SELECT id, name, slug FROM categories ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var categories []types.Category
	for rows.Next() {
		var c types.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Slug); err != nil {
			return nil, fmt.Errorf("list categories: scan: %w", err)
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}
