package auth

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/viseupoint/sme-atlas/internal/types"
)

func newMockRepo(t *testing.T) (*PostgresAuthRepo, pgxmock.PgxPoolIface) {
	t.Helper()
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mockPool.Close)
	repo := NewPostgresAuthRepo(mockPool, bcrypt.MinCost, 2, slog.Default())
	return repo, mockPool
}

func userRow(id, username, email string, passwordHash *string, role string) *pgxmock.Rows {
	now := time.Now()
	return pgxmock.NewRows([]string{
		"id", "username", "email", "password_hash", "role", "provider", "provider_id",
		"display_name", "avatar_url", "bio", "location",
		"email_verified_at", "last_login_at", "is_active", "created_at", "updated_at",
	}).AddRow(id, username, email, passwordHash, role, nil, nil,
		nil, nil, nil, nil,
		nil, nil, true, now, now)
}

func TestCreateUser(t *testing.T) {
	t.Run("HashesPasswordBeforeInsert", func(t *testing.T) {
		repo, mockPool := newMockRepo(t)
		password := "password123"

		mockPool.ExpectQuery(`INSERT INTO users`).
			WithArgs("maria", "maria@example.com", pgxmock.AnyArg(), types.RoleUser,
				(*string)(nil), (*string)(nil), (*string)(nil), (*string)(nil)).
			WillReturnRows(userRow("u-1", "maria", "maria@example.com", nil, types.RoleUser))

		user, err := repo.CreateUser(context.Background(), CreateUserParams{
			Username: "maria",
			Email:    "maria@example.com",
			Password: &password,
			Role:     types.RoleUser,
		})

		require.NoError(t, err)
		assert.Equal(t, "u-1", user.ID)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("DuplicateEmailMapsToConflict", func(t *testing.T) {
		repo, mockPool := newMockRepo(t)
		password := "password123"

		mockPool.ExpectQuery(`INSERT INTO users`).
			WithArgs("maria", "maria@example.com", pgxmock.AnyArg(), types.RoleUser,
				(*string)(nil), (*string)(nil), (*string)(nil), (*string)(nil)).
			WillReturnError(&pgconn.PgError{Code: "23505"})

		_, err := repo.CreateUser(context.Background(), CreateUserParams{
			Username: "maria",
			Email:    "maria@example.com",
			Password: &password,
			Role:     types.RoleUser,
		})

		assert.ErrorIs(t, err, types.ErrConflict)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("RejectsUserWithNoAuthMethod", func(t *testing.T) {
		repo, _ := newMockRepo(t)

		_, err := repo.CreateUser(context.Background(), CreateUserParams{
			Username: "ghost",
			Email:    "ghost@example.com",
		})

		assert.ErrorIs(t, err, types.ErrValidation)
	})
}

func TestVerifyPassword(t *testing.T) {
	t.Run("CorrectPassword", func(t *testing.T) {
		repo, mockPool := newMockRepo(t)
		hashed, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
		require.NoError(t, err)
		hash := string(hashed)

		mockPool.ExpectQuery(`SELECT (.+) FROM users WHERE email`).
			WithArgs("maria@example.com").
			WillReturnRows(userRow("u-1", "maria", "maria@example.com", &hash, types.RoleUser))

		user, err := repo.VerifyPassword(context.Background(), "maria@example.com", "password123")

		require.NoError(t, err)
		assert.Equal(t, "u-1", user.ID)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("WrongPassword", func(t *testing.T) {
		repo, mockPool := newMockRepo(t)
		hashed, _ := bcrypt.GenerateFromPassword([]byte("correct"), bcrypt.MinCost)
		hash := string(hashed)

		mockPool.ExpectQuery(`SELECT (.+) FROM users WHERE email`).
			WithArgs("maria@example.com").
			WillReturnRows(userRow("u-1", "maria", "maria@example.com", &hash, types.RoleUser))

		_, err := repo.VerifyPassword(context.Background(), "maria@example.com", "wrong")

		assert.ErrorIs(t, err, types.ErrUnauthenticated)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("UnknownEmailSameError", func(t *testing.T) {
		repo, mockPool := newMockRepo(t)

		mockPool.ExpectQuery(`SELECT (.+) FROM users WHERE email`).
			WithArgs("nobody@example.com").
			WillReturnRows(pgxmock.NewRows([]string{"id"}))

		_, err := repo.VerifyPassword(context.Background(), "nobody@example.com", "whatever")

		assert.ErrorIs(t, err, types.ErrUnauthenticated)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("FederatedOnlyAccountRejected", func(t *testing.T) {
		repo, mockPool := newMockRepo(t)

		mockPool.ExpectQuery(`SELECT (.+) FROM users WHERE email`).
			WithArgs("sso@example.com").
			WillReturnRows(userRow("u-2", "sso", "sso@example.com", nil, types.RoleUser))

		_, err := repo.VerifyPassword(context.Background(), "sso@example.com", "anything")

		assert.ErrorIs(t, err, types.ErrUnauthenticated)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestUpdateRole(t *testing.T) {
	t.Run("RejectsUnknownRole", func(t *testing.T) {
		repo, _ := newMockRepo(t)

		err := repo.UpdateRole(context.Background(), "u-1", "superuser")

		assert.ErrorIs(t, err, types.ErrValidation)
	})

	t.Run("MissingUser", func(t *testing.T) {
		repo, mockPool := newMockRepo(t)

		mockPool.ExpectExec(`UPDATE users SET role`).
			WithArgs(types.RoleAdmin, "u-missing").
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		err := repo.UpdateRole(context.Background(), "u-missing", types.RoleAdmin)

		assert.ErrorIs(t, err, types.ErrNotFound)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestCreate2FA(t *testing.T) {
	t.Run("UpsertsAndRegeneratesCodes", func(t *testing.T) {
		repo, mockPool := newMockRepo(t)
		now := time.Now()

		mockPool.ExpectQuery(`INSERT INTO user_2fa`).
			WithArgs("u-1", "SECRET").
			WillReturnRows(pgxmock.NewRows([]string{
				"user_id", "secret", "enabled", "enabled_at", "created_at", "updated_at",
			}).AddRow("u-1", "SECRET", false, nil, now, now))
		mockPool.ExpectExec(`DELETE FROM user_2fa_backup_codes`).
			WithArgs("u-1").
			WillReturnResult(pgxmock.NewResult("DELETE", 2))
		mockPool.ExpectExec(`INSERT INTO user_2fa_backup_codes`).
			WithArgs("u-1", pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mockPool.ExpectExec(`INSERT INTO user_2fa_backup_codes`).
			WithArgs("u-1", pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		cfg, codes, err := repo.Create2FA(context.Background(), "u-1", "SECRET")

		require.NoError(t, err)
		assert.False(t, cfg.Enabled)
		assert.Len(t, codes, 2)
		for _, code := range codes {
			assert.Len(t, code, 10)
		}
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestEnable2FA(t *testing.T) {
	t.Run("MissingConfigIsNoOp", func(t *testing.T) {
		repo, mockPool := newMockRepo(t)

		mockPool.ExpectExec(`UPDATE user_2fa SET enabled`).
			WithArgs("u-1").
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		err := repo.Enable2FA(context.Background(), "u-1")

		assert.NoError(t, err)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestConsumeBackupCode(t *testing.T) {
	t.Run("FirstUseSucceeds", func(t *testing.T) {
		repo, mockPool := newMockRepo(t)

		mockPool.ExpectExec(`UPDATE user_2fa_backup_codes SET used_at`).
			WithArgs("u-1", hashBackupCode("abc123def4")).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		err := repo.ConsumeBackupCode(context.Background(), "u-1", "abc123def4")

		assert.NoError(t, err)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("SecondUseRejected", func(t *testing.T) {
		repo, mockPool := newMockRepo(t)

		mockPool.ExpectExec(`UPDATE user_2fa_backup_codes SET used_at`).
			WithArgs("u-1", hashBackupCode("abc123def4")).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		err := repo.ConsumeBackupCode(context.Background(), "u-1", "abc123def4")

		assert.ErrorIs(t, err, types.ErrUnauthenticated)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestRefreshTokens(t *testing.T) {
	t.Run("UnknownTokenUnauthenticated", func(t *testing.T) {
		repo, mockPool := newMockRepo(t)

		mockPool.ExpectQuery(`SELECT user_id, expires_at, revoked_at FROM refresh_tokens`).
			WithArgs("no-such-token").
			WillReturnRows(pgxmock.NewRows([]string{"user_id", "expires_at", "revoked_at"}))

		_, _, _, err := repo.GetRefreshTokenInfo(context.Background(), "no-such-token")

		assert.ErrorIs(t, err, types.ErrUnauthenticated)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("InvalidateIsIdempotent", func(t *testing.T) {
		repo, mockPool := newMockRepo(t)

		mockPool.ExpectExec(`UPDATE refresh_tokens SET revoked_at`).
			WithArgs("already-revoked").
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		err := repo.InvalidateRefreshToken(context.Background(), "already-revoked")

		assert.NoError(t, err)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}
