package user

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/crypto/bcrypt"

	"github.com/viseupoint/sme-atlas/internal/types"
)

var _ UserService = (*UserServiceImpl)(nil)

// Auditor records privileged actions; satisfied by the auth service.
type Auditor interface {
	RecordAudit(ctx context.Context, entry types.AuditLogEntry)
}

type UserService interface {
	GetProfile(ctx context.Context, userID string) (*types.UserAuth, error)
	UpdateProfile(ctx context.Context, userID string, params UpdateProfileParams) error
	ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error
	DeactivateAccount(ctx context.Context, userID string, origin types.Origin) error
	MarkEmailVerified(ctx context.Context, userID string) error
}

type UserServiceImpl struct {
	logger     *slog.Logger
	repo       UserRepo
	auditor    Auditor
	bcryptCost int
}

func NewUserService(repo UserRepo, auditor Auditor, bcryptCost int, logger *slog.Logger) *UserServiceImpl {
	if bcryptCost == 0 {
		bcryptCost = bcrypt.DefaultCost
	}
	return &UserServiceImpl{
		logger:     logger,
		repo:       repo,
		auditor:    auditor,
		bcryptCost: bcryptCost,
	}
}

func (s *UserServiceImpl) GetProfile(ctx context.Context, userID string) (*types.UserAuth, error) {
	return s.repo.GetProfile(ctx, userID)
}

func (s *UserServiceImpl) UpdateProfile(ctx context.Context, userID string, params UpdateProfileParams) error {
	return s.repo.UpdateProfile(ctx, userID, params)
}

// ChangePassword verifies the old credential, replaces the hash and revokes
// all open sessions so stolen refresh tokens die with the old password.
func (s *UserServiceImpl) ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error {
	if len(newPassword) < 8 {
		return fmt.Errorf("%w: password must be at least 8 characters", types.ErrValidation)
	}

	hash, err := s.repo.GetPasswordHash(ctx, userID)
	if err != nil {
		return err
	}
	if hash == nil {
		// Federated-only account; there is no password to change.
		return types.ErrValidation
	}
	if err := bcrypt.CompareHashAndPassword([]byte(*hash), []byte(oldPassword)); err != nil {
		return types.ErrUnauthenticated
	}

	newHash, err := bcrypt.GenerateFromPassword([]byte(newPassword), s.bcryptCost)
	if err != nil {
		return fmt.Errorf("failed to hash new password: %w", err)
	}
	if err := s.repo.SetPasswordHash(ctx, userID, string(newHash)); err != nil {
		return err
	}

	if err := s.repo.RevokeAllRefreshTokens(ctx, userID); err != nil {
		s.logger.WarnContext(ctx, "Failed to revoke refresh tokens after password change",
			slog.Any("error", err))
	}

	s.auditor.RecordAudit(ctx, types.AuditLogEntry{
		UserID: userID,
		Action: "user.password_changed",
	})
	return nil
}

// DeactivateAccount soft-deactivates and revokes every session. The row is
// kept; lookups stop returning the user.
func (s *UserServiceImpl) DeactivateAccount(ctx context.Context, userID string, origin types.Origin) error {
	if err := s.repo.Deactivate(ctx, userID); err != nil {
		return err
	}
	if err := s.repo.RevokeAllRefreshTokens(ctx, userID); err != nil {
		s.logger.WarnContext(ctx, "Failed to revoke refresh tokens after deactivation",
			slog.Any("error", err))
	}

	entry := types.AuditLogEntry{
		UserID: userID,
		Action: "user.deactivated",
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

func (s *UserServiceImpl) MarkEmailVerified(ctx context.Context, userID string) error {
	return s.repo.MarkEmailVerified(ctx, userID)
}
