package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/viseupoint/sme-atlas/internal/api/auth"
	"github.com/viseupoint/sme-atlas/internal/types"
)

var _ UserRepo = (*PostgresUserRepo)(nil)

// UpdateProfileParams carries only the fields being changed; nil means
// leave untouched.
type UpdateProfileParams struct {
	DisplayName *string
	AvatarURL   *string
	Bio         *string
	Location    *string
}

// UserRepo defines the contract for profile persistence.
type UserRepo interface {
	// GetProfile retrieves an active user's profile.
	// Returns types.ErrNotFound if the user doesn't exist or is inactive.
	GetProfile(ctx context.Context, userID string) (*types.UserAuth, error)

	// UpdateProfile updates mutable profile fields.
	UpdateProfile(ctx context.Context, userID string, params UpdateProfileParams) error

	// GetPasswordHash fetches the stored hash for a credential check.
	GetPasswordHash(ctx context.Context, userID string) (*string, error)

	// SetPasswordHash replaces the stored hash.
	SetPasswordHash(ctx context.Context, userID, newHash string) error

	// RevokeAllRefreshTokens ends every open session for the user.
	RevokeAllRefreshTokens(ctx context.Context, userID string) error

	// Deactivate marks the user inactive (soft delete).
	Deactivate(ctx context.Context, userID string) error

	// MarkEmailVerified sets the email_verified_at timestamp.
	MarkEmailVerified(ctx context.Context, userID string) error
}

type PostgresUserRepo struct {
	logger *slog.Logger
	pgpool auth.PgxPool
}

func NewPostgresUserRepo(pgpool auth.PgxPool, logger *slog.Logger) *PostgresUserRepo {
	return &PostgresUserRepo{
		logger: logger,
		pgpool: pgpool,
	}
}

func (r *PostgresUserRepo) GetProfile(ctx context.Context, userID string) (*types.UserAuth, error) {
	var u types.UserAuth
	err := r.pgpool.QueryRow(ctx,
		`SELECT id, username, email, role, provider, display_name, avatar_url, bio, location,
                email_verified_at, last_login_at, is_active, created_at, updated_at
         FROM users WHERE id = $1 AND is_active = TRUE`, userID).
		Scan(&u.ID, &u.Username, &u.Email, &u.Role, &u.Provider, &u.DisplayName, &u.AvatarURL, &u.Bio, &u.Location,
			&u.EmailVerifiedAt, &u.LastLoginAt, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.ErrNotFound
		}
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return &u, nil
}

func (r *PostgresUserRepo) UpdateProfile(ctx context.Context, userID string, params UpdateProfileParams) error {
	sets := make([]string, 0, 4)
	args := make([]any, 0, 5)

	addSet := func(column string, value *string) {
		if value != nil {
			args = append(args, *value)
			sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
		}
	}
	addSet("display_name", params.DisplayName)
	addSet("avatar_url", params.AvatarURL)
	addSet("bio", params.Bio)
	addSet("location", params.Location)

	if len(sets) == 0 {
		return nil
	}

	args = append(args, userID)
	query := fmt.Sprintf(`UPDATE users SET %s, updated_at = now() WHERE id = $%d AND is_active = TRUE`,
		strings.Join(sets, ", "), len(args))

	tag, err := r.pgpool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return types.ErrNotFound
	}
	return nil
}

func (r *PostgresUserRepo) GetPasswordHash(ctx context.Context, userID string) (*string, error) {
	var hash *string
	err := r.pgpool.QueryRow(ctx,
		`SELECT password_hash FROM users WHERE id = $1 AND is_active = TRUE`, userID).Scan(&hash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.ErrNotFound
		}
		return nil, fmt.Errorf("get password hash: %w", err)
	}
	return hash, nil
}

func (r *PostgresUserRepo) SetPasswordHash(ctx context.Context, userID, newHash string) error {
	tag, err := r.pgpool.Exec(ctx,
		`UPDATE users SET password_hash = $1, updated_at = now() WHERE id = $2`, newHash, userID)
	if err != nil {
		return fmt.Errorf("set password hash: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return types.ErrNotFound
	}
	return nil
}

func (r *PostgresUserRepo) RevokeAllRefreshTokens(ctx context.Context, userID string) error {
	_, err := r.pgpool.Exec(ctx,
		`UPDATE refresh_tokens SET revoked_at = now() WHERE user_id = $1 AND revoked_at IS NULL`, userID)
	if err != nil {
		return fmt.Errorf("revoke refresh tokens: %w", err)
	}
	return nil
}

func (r *PostgresUserRepo) Deactivate(ctx context.Context, userID string) error {
	tag, err := r.pgpool.Exec(ctx,
		`UPDATE users SET is_active = FALSE, updated_at = now() WHERE id = $1`, userID)
	if err != nil {
		return fmt.Errorf("deactivate user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return types.ErrNotFound
	}
	return nil
}

func (r *PostgresUserRepo) MarkEmailVerified(ctx context.Context, userID string) error {
	_, err := r.pgpool.Exec(ctx,
		`UPDATE users SET email_verified_at = now(), updated_at = now()
         WHERE id = $1 AND email_verified_at IS NULL`, userID)
	if err != nil {
		return fmt.Errorf("mark email verified: %w", err)
	}
	return nil
}
