package router

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	httpSwagger "github.com/swaggo/http-swagger/v2"

	_ "github.com/viseupoint/sme-atlas/docs"
	"github.com/viseupoint/sme-atlas/internal/api/auth"
	"github.com/viseupoint/sme-atlas/internal/api/business"
	"github.com/viseupoint/sme-atlas/internal/api/user"
	"github.com/viseupoint/sme-atlas/internal/types"
)

// Config contains dependencies needed for the router setup
type Config struct {
	Logger                 *slog.Logger
	AuthHandler            *auth.HandlerImpl
	UserHandler            *user.HandlerImpl
	BusinessHandler        *business.HandlerImpl
	AuthenticateMiddleware func(http.Handler) http.Handler
}

// SetupRouter initializes and configures the main application router.
// Server-wide middleware (logger, requestID, recoverer) are expected to be
// applied before mounting this router in main.go.
func SetupRouter(cfg *Config) chi.Router {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:3000", "https://viseupoint.pt"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("pong"))
	})

	r.Get("/swagger/*", httpSwagger.Handler())

	r.Route("/api/v1", func(r chi.Router) {

		// Public routes, no token required
		r.Group(func(r chi.Router) {
			r.Post("/auth/register", cfg.AuthHandler.Register)
			r.Post("/auth/login", cfg.AuthHandler.Login)
			r.Post("/auth/refresh", cfg.AuthHandler.RefreshSession)
			r.Post("/auth/logout", cfg.AuthHandler.Logout)

			r.Get("/auth/{provider}", cfg.AuthHandler.BeginOAuth)
			r.Get("/auth/{provider}/callback", cfg.AuthHandler.OAuthCallback)

			r.Get("/regions", cfg.BusinessHandler.ListRegions)
			r.Get("/categories", cfg.BusinessHandler.ListCategories)
			r.Get("/regions/{slug}/businesses", cfg.BusinessHandler.ListByRegion)
			r.Get("/businesses/{slug}", cfg.BusinessHandler.GetBusiness)
		})

		// Protected routes, valid access token required
		r.Group(func(r chi.Router) {
			r.Use(cfg.AuthenticateMiddleware)

			r.Get("/auth/session", cfg.AuthHandler.Session)
			r.Post("/auth/2fa/setup", cfg.AuthHandler.Setup2FA)
			r.Post("/auth/2fa/enable", cfg.AuthHandler.Enable2FA)
			r.Post("/auth/2fa/backup-codes/redeem", cfg.AuthHandler.RedeemBackupCode)

			r.Get("/users/me", cfg.UserHandler.GetMe)
			r.Put("/users/me", cfg.UserHandler.UpdateMe)
			r.Delete("/users/me", cfg.UserHandler.DeactivateMe)
			r.Put("/users/me/password", cfg.UserHandler.ChangePassword)
			r.Post("/users/me/verify-email", cfg.UserHandler.VerifyEmail)

			r.Post("/businesses", cfg.BusinessHandler.CreateBusiness)
			r.Put("/businesses/{id}", cfg.BusinessHandler.UpdateBusiness)
			r.Delete("/businesses/{id}", cfg.BusinessHandler.DeactivateBusiness)
		})

		// Admin routes
		r.Group(func(r chi.Router) {
			r.Use(cfg.AuthenticateMiddleware)
			r.Use(auth.RequireRole(cfg.Logger, types.RoleAdmin))

			r.Put("/admin/users/role", cfg.AuthHandler.GrantRole)
			r.Post("/admin/businesses/{id}/verify", cfg.BusinessHandler.VerifyBusiness)
		})
	})

	return r
}
