package auth

import (
	"context"
	"crypto/rand"
	"encoding/base32"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/markbates/goth"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	appmetrics "github.com/viseupoint/sme-atlas/app/observability/metrics"
	"github.com/viseupoint/sme-atlas/config"
	"github.com/viseupoint/sme-atlas/internal/types"
)

var _ AuthService = (*AuthServiceImpl)(nil)

// AuthService mints session claims after credential or federated
// verification and owns the 2FA and audit flows around them.
type AuthService interface {
	Register(ctx context.Context, username, email, password string) (*types.UserAuth, error)
	Login(ctx context.Context, identifier, password string, origin types.Origin) (string, string, error)
	GetOrCreateUserFromProvider(ctx context.Context, provider string, providerUser goth.User) (*types.UserAuth, error)
	LoginFromProvider(ctx context.Context, provider string, providerUser goth.User, origin types.Origin) (string, string, error)
	RefreshSession(ctx context.Context, refreshToken string) (string, string, error)
	Logout(ctx context.Context, refreshToken string) error
	GetUserByID(ctx context.Context, userID string) (*types.UserAuth, error)

	Setup2FA(ctx context.Context, userID string) (*TwoFactorSetupResponse, error)
	Enable2FA(ctx context.Context, userID string) error
	RedeemBackupCode(ctx context.Context, userID, code string, origin types.Origin) error

	GrantRole(ctx context.Context, actingAdminID, targetUserID, role string, origin types.Origin) error
	RecordAudit(ctx context.Context, entry types.AuditLogEntry)
}

// AuthServiceImpl implements AuthService on top of the credential store.
type AuthServiceImpl struct {
	logger *slog.Logger
	repo   AuthRepo
	cfg    *config.Config
}

func NewAuthService(repo AuthRepo, cfg *config.Config, logger *slog.Logger) *AuthServiceImpl {
	return &AuthServiceImpl{
		logger: logger,
		repo:   repo,
		cfg:    cfg,
	}
}

func (s *AuthServiceImpl) generateAccessToken(user *types.UserAuth) (string, error) {
	now := time.Now()
	claims := types.Claims{
		UserID: user.ID,
		Role:   user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			Issuer:    s.cfg.JWT.Issuer,
			Audience:  jwt.ClaimStrings{s.cfg.JWT.Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.JWT.AccessTokenTTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.cfg.JWT.SecretKey))
	if err != nil {
		return "", fmt.Errorf("failed to sign access token: %w", err)
	}
	return signed, nil
}

func (s *AuthServiceImpl) issueTokens(ctx context.Context, user *types.UserAuth) (string, string, error) {
	accessToken, err := s.generateAccessToken(user)
	if err != nil {
		return "", "", err
	}

	refreshToken := uuid.NewString()
	expiresAt := time.Now().Add(s.cfg.JWT.RefreshTokenTTL)
	if err := s.repo.StoreRefreshToken(ctx, user.ID, refreshToken, expiresAt); err != nil {
		return "", "", err
	}
	return accessToken, refreshToken, nil
}

// logAttempt records one login-attempt row. A write failure degrades to a
// log line and a counter bump; it never fails the login itself.
func (s *AuthServiceImpl) logAttempt(ctx context.Context, user *types.UserAuth, identifier string, success bool, reason string, origin types.Origin) {
	attempt := types.LoginAttempt{
		Email:   identifier,
		Success: success,
	}
	if user != nil {
		attempt.UserID = &user.ID
		attempt.Email = user.Email
	}
	if reason != "" {
		attempt.FailureReason = &reason
	}
	if origin.IPAddress != "" {
		attempt.IPAddress = &origin.IPAddress
	}
	if origin.UserAgent != "" {
		attempt.UserAgent = &origin.UserAgent
	}

	m := appmetrics.Get()
	m.LoginAttemptsTotal.Add(ctx, 1, metric.WithAttributes(attribute.Bool("success", success)))

	if err := s.repo.LogLoginAttempt(ctx, attempt); err != nil {
		s.logger.ErrorContext(ctx, "Failed to write login attempt", slog.Any("error", err))
		m.AuditWriteFailures.Add(ctx, 1)
	}
}

// RecordAudit writes an audit row for a privileged action. Like logAttempt,
// failures are reported to the operational channel only.
func (s *AuthServiceImpl) RecordAudit(ctx context.Context, entry types.AuditLogEntry) {
	if err := s.repo.LogAuditEvent(ctx, entry); err != nil {
		s.logger.ErrorContext(ctx, "Failed to write audit event",
			slog.String("action", entry.Action), slog.Any("error", err))
		appmetrics.Get().AuditWriteFailures.Add(ctx, 1)
	}
}

// Register creates a local-credential user with the default role.
func (s *AuthServiceImpl) Register(ctx context.Context, username, email, password string) (*types.UserAuth, error) {
	user, err := s.repo.CreateUser(ctx, CreateUserParams{
		Username: username,
		Email:    email,
		Password: &password,
		Role:     types.RoleUser,
	})
	if err != nil {
		return nil, err
	}
	appmetrics.Get().RegisterRequestsTotal.Add(ctx, 1)
	return user, nil
}

// Login verifies a password credential presented with either identifier
// form. The role on the stored row is what ends up in the claims; the
// identifier form grants nothing.
func (s *AuthServiceImpl) Login(ctx context.Context, identifier, password string, origin types.Origin) (string, string, error) {
	email := identifier
	if !strings.Contains(identifier, "@") {
		user, err := s.repo.GetUserByUsername(ctx, identifier)
		if err != nil {
			if errors.Is(err, types.ErrNotFound) {
				// Run the uniform-cost verify against the raw identifier so
				// a username miss costs the same as a password miss.
				_, _ = s.repo.VerifyPassword(ctx, identifier, password)
				s.logAttempt(ctx, nil, identifier, false, "unknown identifier", origin)
				return "", "", types.ErrUnauthenticated
			}
			return "", "", err
		}
		email = user.Email
	}

	user, err := s.repo.VerifyPassword(ctx, email, password)
	if err != nil {
		if errors.Is(err, types.ErrUnauthenticated) || errors.Is(err, types.ErrNotFound) {
			s.logAttempt(ctx, nil, identifier, false, "credential mismatch", origin)
			return "", "", types.ErrUnauthenticated
		}
		return "", "", err
	}

	accessToken, refreshToken, err := s.issueTokens(ctx, user)
	if err != nil {
		return "", "", err
	}

	if err := s.repo.UpdateLastLogin(ctx, user.ID); err != nil {
		s.logger.WarnContext(ctx, "Failed to update last login", slog.Any("error", err))
	}
	s.logAttempt(ctx, user, identifier, true, "", origin)

	return accessToken, refreshToken, nil
}

// GetOrCreateUserFromProvider maps a provider-asserted identity onto a local
// user. First federated sign-in always provisions role 'user'; an admin can
// never enter through this path.
func (s *AuthServiceImpl) GetOrCreateUserFromProvider(ctx context.Context, provider string, providerUser goth.User) (*types.UserAuth, error) {
	user, err := s.repo.GetUserByProviderID(ctx, provider, providerUser.UserID)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, types.ErrNotFound) {
		return nil, err
	}

	// Fall back to the email so an existing local account picks up the
	// federated identity instead of duplicating.
	if providerUser.Email != "" {
		if user, err := s.repo.GetUserByEmail(ctx, providerUser.Email); err == nil {
			return user, nil
		} else if !errors.Is(err, types.ErrNotFound) {
			return nil, err
		}
	}

	username := providerUser.NickName
	if username == "" {
		username = fmt.Sprintf("%s_%s", provider, providerUser.UserID)
	}

	params := CreateUserParams{
		Username:   username,
		Email:      providerUser.Email,
		Role:       types.RoleUser,
		Provider:   &provider,
		ProviderID: &providerUser.UserID,
	}
	if providerUser.Name != "" {
		params.DisplayName = &providerUser.Name
	}
	if providerUser.AvatarURL != "" {
		params.AvatarURL = &providerUser.AvatarURL
	}

	user, err = s.repo.CreateUser(ctx, params)
	if err != nil {
		if errors.Is(err, types.ErrConflict) {
			// Username collision with an unrelated account; retry once with
			// a provider-qualified name.
			params.Username = fmt.Sprintf("%s_%s", provider, providerUser.UserID)
			return s.repo.CreateUser(ctx, params)
		}
		return nil, err
	}
	return user, nil
}

// LoginFromProvider completes a federated sign-in: resolve the user, stamp
// last login, log the attempt, issue tokens.
func (s *AuthServiceImpl) LoginFromProvider(ctx context.Context, provider string, providerUser goth.User, origin types.Origin) (string, string, error) {
	user, err := s.GetOrCreateUserFromProvider(ctx, provider, providerUser)
	if err != nil {
		s.logAttempt(ctx, nil, providerUser.Email, false, "federated identity rejected", origin)
		return "", "", err
	}

	accessToken, refreshToken, err := s.issueTokens(ctx, user)
	if err != nil {
		return "", "", err
	}

	if err := s.repo.UpdateLastLogin(ctx, user.ID); err != nil {
		s.logger.WarnContext(ctx, "Failed to update last login", slog.Any("error", err))
	}
	s.logAttempt(ctx, user, user.Email, true, "", origin)

	return accessToken, refreshToken, nil
}

// RefreshSession rotates the refresh token and issues a fresh access token.
func (s *AuthServiceImpl) RefreshSession(ctx context.Context, refreshToken string) (string, string, error) {
	userID, expiresAt, revokedAt, err := s.repo.GetRefreshTokenInfo(ctx, refreshToken)
	if err != nil {
		return "", "", err
	}
	if time.Now().After(expiresAt) || revokedAt != nil {
		return "", "", types.ErrUnauthenticated
	}

	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			return "", "", types.ErrUnauthenticated
		}
		return "", "", err
	}

	newAccess, newRefresh, err := s.issueTokens(ctx, user)
	if err != nil {
		return "", "", err
	}

	if err := s.repo.InvalidateRefreshToken(ctx, refreshToken); err != nil {
		s.logger.WarnContext(ctx, "Failed to revoke rotated refresh token", slog.Any("error", err))
	}

	return newAccess, newRefresh, nil
}

func (s *AuthServiceImpl) Logout(ctx context.Context, refreshToken string) error {
	return s.repo.InvalidateRefreshToken(ctx, refreshToken)
}

func (s *AuthServiceImpl) GetUserByID(ctx context.Context, userID string) (*types.UserAuth, error) {
	return s.repo.GetUserByID(ctx, userID)
}

func generateTOTPSecret() (string, error) {
	buf := make([]byte, 20)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(buf), nil
}

// Setup2FA generates a fresh secret and backup codes for the user. Calling
// it again replaces the previous secret and codes; the row count stays one.
func (s *AuthServiceImpl) Setup2FA(ctx context.Context, userID string) (*TwoFactorSetupResponse, error) {
	secret, err := generateTOTPSecret()
	if err != nil {
		return nil, fmt.Errorf("failed to generate 2fa secret: %w", err)
	}

	_, codes, err := s.repo.Create2FA(ctx, userID, secret)
	if err != nil {
		return nil, err
	}

	return &TwoFactorSetupResponse{
		Secret:      secret,
		BackupCodes: codes,
	}, nil
}

// Enable2FA confirms possession of the secret. Enabling without a prior
// setup is a safe no-op at the store level.
func (s *AuthServiceImpl) Enable2FA(ctx context.Context, userID string) error {
	return s.repo.Enable2FA(ctx, userID)
}

// RedeemBackupCode consumes a single-use recovery code and audits the use.
func (s *AuthServiceImpl) RedeemBackupCode(ctx context.Context, userID, code string, origin types.Origin) error {
	if err := s.repo.ConsumeBackupCode(ctx, userID, code); err != nil {
		return err
	}

	entry := types.AuditLogEntry{
		UserID: userID,
		Action: "2fa.backup_code_used",
	}
	if origin.IPAddress != "" {
		entry.IPAddress = &origin.IPAddress
	}
	if origin.UserAgent != "" {
		entry.UserAgent = &origin.UserAgent
	}
	s.RecordAudit(ctx, entry)
	return nil
}

// GrantRole changes a user's role. Admin-only; the caller's identity comes
// from verified claims, and the change is always audited.
func (s *AuthServiceImpl) GrantRole(ctx context.Context, actingAdminID, targetUserID, role string, origin types.Origin) error {
	if err := s.repo.UpdateRole(ctx, targetUserID, role); err != nil {
		return err
	}

	details, _ := json.Marshal(map[string]string{
		"target_user_id": targetUserID,
		"role":           role,
	})
	entry := types.AuditLogEntry{
		UserID:  actingAdminID,
		Action:  "user.role_granted",
		Details: details,
	}
	if origin.IPAddress != "" {
		entry.IPAddress = &origin.IPAddress
	}
	if origin.UserAgent != "" {
		entry.UserAgent = &origin.UserAgent
	}
	s.RecordAudit(ctx, entry)
	return nil
}
