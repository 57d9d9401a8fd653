package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/inkwell-labs/gatekeeper/internal/auth"
	"github.com/inkwell-labs/gatekeeper/internal/handlers"
	"github.com/inkwell-labs/gatekeeper/internal/middleware"
	"github.com/inkwell-labs/gatekeeper/internal/models"
)

// Handlers bundles the route targets so RegisterRoutes stays readable.
type Handlers struct {
	Auth     *handlers.AuthHandler
	Account  *handlers.AccountHandler
	Sessions *handlers.SessionHandler
	Password *handlers.PasswordHandler
	MFA      *handlers.MFAHandler
	Admin    *handlers.AdminHandler
	Audit    *handlers.AuditHandler
}

// RegisterRoutes registers all application routes
func RegisterRoutes(
	router chi.Router,
	h Handlers,
	tokenManager *auth.TokenManager,
	accounts auth.AccountFetcher,
	sessions auth.SessionToucher,
) {
	// Rate limiting config for credential endpoints
	rateLimitConfig := middleware.DefaultAuthRateLimit()
	throttled := middleware.RateLimitByIP(rateLimitConfig)

	// Public routes - no authentication required
	router.With(throttled).Post("/auth/register", h.Auth.Register)
	router.With(throttled).Post("/auth/login", h.Auth.Login)
	router.With(throttled).Post("/auth/login/mfa", h.Auth.CompleteMFALogin)
	router.With(throttled).Post("/auth/oauth/callback", h.Auth.OAuthCallback)
	router.With(throttled).Post("/auth/verify-email", h.Auth.VerifyEmailCode)
	router.Get("/auth/verify-email", h.Auth.VerifyEmailLink)
	router.With(throttled).Post("/auth/resend-verification", h.Auth.ResendVerification)
	router.With(throttled).Post("/password/reset", h.Password.RequestReset)
	router.With(throttled).Post("/password/reset/confirm", h.Password.ConfirmReset)

	// Protected routes - authentication required
	router.Group(func(r chi.Router) {
		r.Use(auth.Authenticate(tokenManager, accounts, sessions))

		r.Post("/auth/logout", h.Auth.Logout)
		r.Get("/me", h.Account.Me)

		r.Get("/sessions", h.Sessions.List)
		r.Delete("/sessions/others", h.Sessions.RevokeOthers)
		r.Delete("/sessions/{id}", h.Sessions.Revoke)

		r.Put("/password", h.Password.Change)

		r.Post("/mfa/setup", h.MFA.StartSetup)
		r.Post("/mfa/setup/confirm", h.MFA.ConfirmSetup)
		r.Post("/mfa/backup-codes", h.MFA.RegenerateBackupCodes)
		r.Delete("/mfa", h.MFA.Disable)

		// Admin-only routes
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireRole(models.RoleAdmin))

			r.Get("/admin/accounts", h.Admin.ListAccounts)
			r.Post("/admin/accounts/{id}/ban", h.Admin.Ban)
			r.Post("/admin/accounts/{id}/unban", h.Admin.Unban)
			r.Post("/admin/accounts/{id}/unlock", h.Admin.Unlock)
			r.Put("/admin/accounts/{id}/role", h.Admin.ChangeRole)

			r.Get("/admin/audit", h.Audit.Query)
			r.Get("/admin/audit/export", h.Audit.ExportCSV)
		})
	})
}
