package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"golang.org/x/crypto/bcrypt"

	"github.com/viseupoint/sme-atlas/internal/types"
)

var _ AuthRepo = (*PostgresAuthRepo)(nil)

// dummyHash keeps bcrypt work constant when the email matches no account,
// so a miss and a wrong password cost the same.
var dummyHash = "$2a$12$R9h/cIPz0gi.URNNX3kh2OPST9/PgBkqquzi.Ss7KIUgO2t0jWMUW"

// CreateUserParams carries signup input. Password is plaintext here and
// hashed before it touches storage; exactly one of Password or ProviderID
// must be present.
type CreateUserParams struct {
	Username    string
	Email       string
	Password    *string
	Role        string
	Provider    *string
	ProviderID  *string
	DisplayName *string
	AvatarURL   *string
}

// AuthRepo is the credential store contract. Every method is a single
// checkout from the pool; the pool releases the connection on all exit
// paths, success or error.
type AuthRepo interface {
	CreateUser(ctx context.Context, params CreateUserParams) (*types.UserAuth, error)
	GetUserByID(ctx context.Context, userID string) (*types.UserAuth, error)
	GetUserByEmail(ctx context.Context, email string) (*types.UserAuth, error)
	GetUserByUsername(ctx context.Context, username string) (*types.UserAuth, error)
	GetUserByProviderID(ctx context.Context, provider, providerID string) (*types.UserAuth, error)
	VerifyPassword(ctx context.Context, email, password string) (*types.UserAuth, error)
	UpdateLastLogin(ctx context.Context, userID string) error
	UpdatePassword(ctx context.Context, userID, newHashedPassword string) error
	DeactivateUser(ctx context.Context, userID string) error
	ReactivateUser(ctx context.Context, userID string) error
	MarkEmailVerified(ctx context.Context, userID string) error
	UpdateRole(ctx context.Context, userID, role string) error

	Create2FA(ctx context.Context, userID, secret string) (*types.TwoFactorConfig, []string, error)
	Enable2FA(ctx context.Context, userID string) error
	Get2FA(ctx context.Context, userID string) (*types.TwoFactorConfig, error)
	ConsumeBackupCode(ctx context.Context, userID, code string) error

	StoreRefreshToken(ctx context.Context, userID, token string, expiresAt time.Time) error
	GetRefreshTokenInfo(ctx context.Context, refreshToken string) (string, time.Time, *time.Time, error)
	InvalidateRefreshToken(ctx context.Context, refreshToken string) error
	InvalidateAllUserRefreshTokens(ctx context.Context, userID string) error

	LogLoginAttempt(ctx context.Context, attempt types.LoginAttempt) error
	LogAuditEvent(ctx context.Context, entry types.AuditLogEntry) error
}

// PgxPool is the subset of pgxpool.Pool the repo uses, extracted so tests
// can substitute pgxmock.
type PgxPool interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type PostgresAuthRepo struct {
	logger          *slog.Logger
	pgpool          PgxPool
	bcryptCost      int
	backupCodeCount int
}

func NewPostgresAuthRepo(pgpool PgxPool, bcryptCost, backupCodeCount int, logger *slog.Logger) *PostgresAuthRepo {
	if bcryptCost == 0 {
		bcryptCost = bcrypt.DefaultCost
	}
	if backupCodeCount == 0 {
		backupCodeCount = 8
	}
	return &PostgresAuthRepo{
		logger:          logger,
		pgpool:          pgpool,
		bcryptCost:      bcryptCost,
		backupCodeCount: backupCodeCount,
	}
}

const userColumns = `id, username, email, password_hash, role, provider, provider_id,
       display_name, avatar_url, bio, location,
       email_verified_at, last_login_at, is_active, created_at, updated_at`

func scanUser(row pgx.Row) (*types.UserAuth, error) {
	var u types.UserAuth
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.Role, &u.Provider, &u.ProviderID,
		&u.DisplayName, &u.AvatarURL, &u.Bio, &u.Location,
		&u.EmailVerifiedAt, &u.LastLoginAt, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.ErrNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return &u, nil
}

// CreateUser persists a new user. The plaintext password, when present, is
// bcrypt-hashed here so it never reaches a SQL statement.
func (r *PostgresAuthRepo) CreateUser(ctx context.Context, params CreateUserParams) (*types.UserAuth, error) {
	if params.Password == nil && params.ProviderID == nil {
		return nil, fmt.Errorf("%w: user needs a password or a federated identity", types.ErrValidation)
	}

	var passwordHash *string
	if params.Password != nil {
		hashed, err := bcrypt.GenerateFromPassword([]byte(*params.Password), r.bcryptCost)
		if err != nil {
			return nil, fmt.Errorf("failed to hash password: %w", err)
		}
		h := string(hashed)
		passwordHash = &h
	}

	role := params.Role
	if role == "" {
		role = types.RoleUser
	}

	row := r.pgpool.QueryRow(ctx,
		`INSERT INTO users (username, email, password_hash, role, provider, provider_id, display_name, avatar_url)
         VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
         RETURNING `+userColumns,
		params.Username, params.Email, passwordHash, role, params.Provider, params.ProviderID,
		params.DisplayName, params.AvatarURL)

	user, err := scanUser(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" { // unique violation
			return nil, fmt.Errorf("username or email already taken: %w", types.ErrConflict)
		}
		return nil, fmt.Errorf("create user: insert failed: %w", err)
	}
	return user, nil
}

func (r *PostgresAuthRepo) GetUserByID(ctx context.Context, userID string) (*types.UserAuth, error) {
	row := r.pgpool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1 AND is_active = TRUE`, userID)
	return scanUser(row)
}

func (r *PostgresAuthRepo) GetUserByEmail(ctx context.Context, email string) (*types.UserAuth, error) {
	row := r.pgpool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1 AND is_active = TRUE`, email)
	return scanUser(row)
}

func (r *PostgresAuthRepo) GetUserByUsername(ctx context.Context, username string) (*types.UserAuth, error) {
	row := r.pgpool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE username = $1 AND is_active = TRUE`, username)
	return scanUser(row)
}

func (r *PostgresAuthRepo) GetUserByProviderID(ctx context.Context, provider, providerID string) (*types.UserAuth, error) {
	row := r.pgpool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE provider = $1 AND provider_id = $2 AND is_active = TRUE`,
		provider, providerID)
	return scanUser(row)
}

// VerifyPassword looks up an active user by email and compares the bcrypt
// hash. Unknown email, missing hash and wrong password all return
// types.ErrUnauthenticated; a dummy compare keeps the cost uniform.
func (r *PostgresAuthRepo) VerifyPassword(ctx context.Context, email, password string) (*types.UserAuth, error) {
	user, err := r.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			_ = bcrypt.CompareHashAndPassword([]byte(dummyHash), []byte(password))
			return nil, types.ErrUnauthenticated
		}
		return nil, err
	}

	if user.PasswordHash == nil {
		_ = bcrypt.CompareHashAndPassword([]byte(dummyHash), []byte(password))
		return nil, types.ErrUnauthenticated
	}

	if err := bcrypt.CompareHashAndPassword([]byte(*user.PasswordHash), []byte(password)); err != nil {
		return nil, types.ErrUnauthenticated
	}
	return user, nil
}

// UpdateLastLogin stamps last_login_at. The write completes before the call
// returns; callers may ignore the error but the statement is synchronous.
func (r *PostgresAuthRepo) UpdateLastLogin(ctx context.Context, userID string) error {
	_, err := r.pgpool.Exec(ctx,
		`UPDATE users SET last_login_at = now() WHERE id = $1`, userID)
	if err != nil {
		return fmt.Errorf("update last login: %w", err)
	}
	return nil
}

func (r *PostgresAuthRepo) UpdatePassword(ctx context.Context, userID, newHashedPassword string) error {
	tag, err := r.pgpool.Exec(ctx,
		`UPDATE users SET password_hash = $1, updated_at = now() WHERE id = $2`,
		newHashedPassword, userID)
	if err != nil {
		return fmt.Errorf("update password: db update failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return types.ErrNotFound
	}
	return nil
}

// DeactivateUser soft-deactivates; the row survives so append-only logs keep
// a valid foreign key.
func (r *PostgresAuthRepo) DeactivateUser(ctx context.Context, userID string) error {
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

func (r *PostgresAuthRepo) ReactivateUser(ctx context.Context, userID string) error {
	tag, err := r.pgpool.Exec(ctx,
		`UPDATE users SET is_active = TRUE, updated_at = now() WHERE id = $1`, userID)
	if err != nil {
		return fmt.Errorf("reactivate user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return types.ErrNotFound
	}
	return nil
}

func (r *PostgresAuthRepo) MarkEmailVerified(ctx context.Context, userID string) error {
	_, err := r.pgpool.Exec(ctx,
		`UPDATE users SET email_verified_at = now(), updated_at = now()
         WHERE id = $1 AND email_verified_at IS NULL`, userID)
	if err != nil {
		return fmt.Errorf("mark email verified: %w", err)
	}
	return nil
}

func (r *PostgresAuthRepo) UpdateRole(ctx context.Context, userID, role string) error {
	if role != types.RoleUser && role != types.RoleAdmin {
		return fmt.Errorf("%w: unknown role %q", types.ErrValidation, role)
	}
	tag, err := r.pgpool.Exec(ctx,
		`UPDATE users SET role = $1, updated_at = now() WHERE id = $2`, role, userID)
	if err != nil {
		return fmt.Errorf("update role: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return types.ErrNotFound
	}
	return nil
}

// --- 2FA ---

func generateBackupCode() (string, error) {
	buf := make([]byte, 5)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func hashBackupCode(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}

// Create2FA upserts the per-user 2FA row in one conditional statement, so two
// concurrent setup calls cannot leave two rows. Backup codes are regenerated
// on every call; their plaintext is returned exactly once.
func (r *PostgresAuthRepo) Create2FA(ctx context.Context, userID, secret string) (*types.TwoFactorConfig, []string, error) {
	var cfg types.TwoFactorConfig
	err := r.pgpool.QueryRow(ctx,
		`INSERT INTO user_2fa (user_id, secret)
         VALUES ($1, $2)
         ON CONFLICT (user_id) DO UPDATE
             SET secret = EXCLUDED.secret, enabled = FALSE, enabled_at = NULL, updated_at = now()
         RETURNING user_id, secret, enabled, enabled_at, created_at, updated_at`,
		userID, secret).Scan(&cfg.UserID, &cfg.Secret, &cfg.Enabled, &cfg.EnabledAt, &cfg.CreatedAt, &cfg.UpdatedAt)
	if err != nil {
		return nil, nil, fmt.Errorf("create 2fa: upsert failed: %w", err)
	}

	// Old codes die with the replaced secret.
	if _, err := r.pgpool.Exec(ctx,
		`DELETE FROM user_2fa_backup_codes WHERE user_id = $1`, userID); err != nil {
		return nil, nil, fmt.Errorf("create 2fa: clearing old backup codes failed: %w", err)
	}

	codes := make([]string, 0, r.backupCodeCount)
	for i := 0; i < r.backupCodeCount; i++ {
		code, err := generateBackupCode()
		if err != nil {
			return nil, nil, fmt.Errorf("create 2fa: generating backup code failed: %w", err)
		}
		if _, err := r.pgpool.Exec(ctx,
			`INSERT INTO user_2fa_backup_codes (user_id, code_hash) VALUES ($1, $2)`,
			userID, hashBackupCode(code)); err != nil {
			return nil, nil, fmt.Errorf("create 2fa: storing backup code failed: %w", err)
		}
		codes = append(codes, code)
	}

	return &cfg, codes, nil
}

// Enable2FA flips the enabled flag. A user with no 2FA row is a no-op: no
// row is created and no error returned.
func (r *PostgresAuthRepo) Enable2FA(ctx context.Context, userID string) error {
	_, err := r.pgpool.Exec(ctx,
		`UPDATE user_2fa SET enabled = TRUE, enabled_at = COALESCE(enabled_at, now()), updated_at = now()
         WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("enable 2fa: %w", err)
	}
	return nil
}

func (r *PostgresAuthRepo) Get2FA(ctx context.Context, userID string) (*types.TwoFactorConfig, error) {
	var cfg types.TwoFactorConfig
	err := r.pgpool.QueryRow(ctx,
		`SELECT user_id, secret, enabled, enabled_at, created_at, updated_at
         FROM user_2fa WHERE user_id = $1`, userID).
		Scan(&cfg.UserID, &cfg.Secret, &cfg.Enabled, &cfg.EnabledAt, &cfg.CreatedAt, &cfg.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.ErrNotFound
		}
		return nil, fmt.Errorf("get 2fa: %w", err)
	}
	return &cfg, nil
}

// ConsumeBackupCode redeems a single-use backup code. The conditional UPDATE
// is the only serialization point: once used_at is set the same code can
// never match again, even under concurrent redemption.
func (r *PostgresAuthRepo) ConsumeBackupCode(ctx context.Context, userID, code string) error {
	tag, err := r.pgpool.Exec(ctx,
		`UPDATE user_2fa_backup_codes SET used_at = now()
         WHERE user_id = $1 AND code_hash = $2 AND used_at IS NULL`,
		userID, hashBackupCode(code))
	if err != nil {
		return fmt.Errorf("consume backup code: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return types.ErrUnauthenticated
	}
	return nil
}

// --- Refresh tokens ---

func (r *PostgresAuthRepo) StoreRefreshToken(ctx context.Context, userID, token string, expiresAt time.Time) error {
	_, err := r.pgpool.Exec(ctx,
		`INSERT INTO refresh_tokens (user_id, token, expires_at) VALUES ($1, $2, $3)`,
		userID, token, expiresAt)
	if err != nil {
		return fmt.Errorf("store refresh token: db insert failed: %w", err)
	}
	return nil
}

func (r *PostgresAuthRepo) GetRefreshTokenInfo(ctx context.Context, refreshToken string) (string, time.Time, *time.Time, error) {
	var userID string
	var expiresAt time.Time
	var revokedAt *time.Time

	err := r.pgpool.QueryRow(ctx,
		`SELECT user_id, expires_at, revoked_at FROM refresh_tokens WHERE token = $1`,
		refreshToken).Scan(&userID, &expiresAt, &revokedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", time.Time{}, nil, types.ErrUnauthenticated
		}
		return "", time.Time{}, nil, fmt.Errorf("get refresh token info: query failed: %w", err)
	}
	return userID, expiresAt, revokedAt, nil
}

func (r *PostgresAuthRepo) InvalidateRefreshToken(ctx context.Context, refreshToken string) error {
	tag, err := r.pgpool.Exec(ctx,
		`UPDATE refresh_tokens SET revoked_at = now()
         WHERE token = $1 AND revoked_at IS NULL`, refreshToken)
	if err != nil {
		return fmt.Errorf("invalidate refresh token: db update failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		r.logger.Debug("refresh token already revoked or unknown")
	}
	return nil
}

func (r *PostgresAuthRepo) InvalidateAllUserRefreshTokens(ctx context.Context, userID string) error {
	_, err := r.pgpool.Exec(ctx,
		`UPDATE refresh_tokens SET revoked_at = now()
         WHERE user_id = $1 AND revoked_at IS NULL`, userID)
	if err != nil {
		return fmt.Errorf("invalidate all tokens: db update failed: %w", err)
	}
	return nil
}

// --- Append-only logs ---

func (r *PostgresAuthRepo) LogLoginAttempt(ctx context.Context, attempt types.LoginAttempt) error {
	_, err := r.pgpool.Exec(ctx,
		`INSERT INTO login_attempts (user_id, email, success, failure_reason, ip_address, user_agent)
         VALUES ($1, $2, $3, $4, $5, $6)`,
		attempt.UserID, attempt.Email, attempt.Success, attempt.FailureReason,
		attempt.IPAddress, attempt.UserAgent)
	if err != nil {
		return fmt.Errorf("log login attempt: %w", err)
	}
	return nil
}

func (r *PostgresAuthRepo) LogAuditEvent(ctx context.Context, entry types.AuditLogEntry) error {
	_, err := r.pgpool.Exec(ctx,
		`INSERT INTO audit_logs (user_id, action, details, ip_address, user_agent)
         VALUES ($1, $2, $3, $4, $5)`,
		entry.UserID, entry.Action, entry.Details, entry.IPAddress, entry.UserAgent)
	if err != nil {
		return fmt.Errorf("log audit event: %w", err)
	}
	return nil
}
