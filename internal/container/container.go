package container

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	database "github.com/viseupoint/sme-atlas/app/db"
	"github.com/viseupoint/sme-atlas/config"
	"github.com/viseupoint/sme-atlas/internal/api/auth"
	"github.com/viseupoint/sme-atlas/internal/api/business"
	"github.com/viseupoint/sme-atlas/internal/api/user"
)

// Container holds all application dependencies
type Container struct {
	Config          *config.Config
	Logger          *slog.Logger
	Pool            *pgxpool.Pool
	AuthHandler     *auth.HandlerImpl
	UserHandler     *user.HandlerImpl
	BusinessHandler *business.HandlerImpl
}

// NewContainer initializes and returns a new dependency container
func NewContainer(cfg *config.Config, logger *slog.Logger) (*Container, error) {
	dbConfig, err := database.NewDatabaseConfig(cfg, logger)
	if err != nil {
		logger.Error("Failed to generate database config", slog.Any("error", err))
		return nil, err
	}

	pool, err := database.Init(dbConfig.ConnectionURL, logger)
	if err != nil {
		logger.Error("Failed to initialize database pool", slog.Any("error", err))
		return nil, err
	}

	authRepo := auth.NewPostgresAuthRepo(pool, cfg.Auth.BcryptCost, cfg.Auth.BackupCodeCount, logger)
	authService := auth.NewAuthService(authRepo, cfg, logger)
	authHandler := auth.NewAuthHandlerImpl(authService, logger)

	// The auth service doubles as the audit sink for the other features.
	userRepo := user.NewPostgresUserRepo(pool, logger)
	userService := user.NewUserService(userRepo, authService, cfg.Auth.BcryptCost, logger)
	userHandler := user.NewHandlerImpl(userService, logger)

	businessRepo := business.NewPostgresBusinessRepo(pool, logger)
	businessService := business.NewBusinessService(businessRepo, authService, logger)
	businessHandler := business.NewHandlerImpl(businessService, logger)

	return &Container{
		Config:          cfg,
		Logger:          logger,
		Pool:            pool,
		AuthHandler:     authHandler,
		UserHandler:     userHandler,
		BusinessHandler: businessHandler,
	}, nil
}

// Close releases all resources held by the container
func (c *Container) Close() {
	if c.Pool != nil {
		c.Pool.Close()
	}
}

// WaitForDB waits for the database to be ready
func (c *Container) WaitForDB(ctx context.Context) bool {
	return database.WaitForDB(ctx, c.Pool, c.Logger)
}

// RunMigrations runs database migrations
func (c *Container) RunMigrations(connectionURL string) error {
	return database.RunMigrations(connectionURL, c.Logger)
}
