package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/inkwell-labs/gatekeeper/internal/auth"
	"github.com/inkwell-labs/gatekeeper/internal/background"
	"github.com/inkwell-labs/gatekeeper/internal/config"
	"github.com/inkwell-labs/gatekeeper/internal/database"
	"github.com/inkwell-labs/gatekeeper/internal/guard"
	"github.com/inkwell-labs/gatekeeper/internal/handlers"
	middlewareCustom "github.com/inkwell-labs/gatekeeper/internal/middleware"
	"github.com/inkwell-labs/gatekeeper/internal/models"
	"github.com/inkwell-labs/gatekeeper/internal/repositories"
	"github.com/inkwell-labs/gatekeeper/internal/routes"
	"github.com/inkwell-labs/gatekeeper/internal/services"
	pkghttp "github.com/inkwell-labs/gatekeeper/pkg/http"
	pkglogger "github.com/inkwell-labs/gatekeeper/pkg/logger"
	"github.com/inkwell-labs/gatekeeper/pkg/password"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("configuration loaded", slog.String("env", cfg.Server.Env))

	// Initialize database
	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	// Initialize repositories
	accountRepo := repositories.NewAccountRepository(db)
	auditRepo := repositories.NewAuditLogRepository(db)
	verificationRepo := repositories.NewVerificationRepository(db)

	// Token and MFA crypto
	tokenManager := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.SessionValidity)
	secretCodec, err := auth.NewSecretCodec(cfg.MFA.EncryptionKey)
	if err != nil {
		logger.Error("failed to initialize mfa secret codec", slog.Any("error", err))
		os.Exit(1)
	}
	totpManager := auth.NewTOTPManager(secretCodec, cfg.MFA.Issuer)

	// IP block store: Redis when configured, in-process otherwise
	var blockStore guard.BlockStore
	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer client.Close()
		blockStore = guard.NewRedisBlockStore(client)
		logger.Info("using redis block store", slog.String("addr", cfg.Redis.Addr))
	} else {
		blockStore = guard.NewMemoryBlockStore()
	}

	captcha := guard.NewHTTPCaptchaVerifier(cfg.Captcha.Endpoint, cfg.Captcha.Secret, 5*time.Second, logger)
	backoff := auth.NewBackoffPolicy(auth.BackoffConfig{Base: cfg.Auth.BackoffBase, Cap: cfg.Auth.BackoffCap})

	// Geolocation: MaxMind when a database is present
	var geo services.GeoService
	if cfg.Geo.DatabasePath != "" {
		geo, err = services.NewMaxMindGeoService(cfg.Geo.DatabasePath, logger)
		if err != nil {
			logger.Error("failed to open geolocation database", slog.Any("error", err))
			os.Exit(1)
		}
	} else {
		logger.Info("geolocation disabled, locations will be recorded as Unknown")
		geo = services.NoopGeoService{}
	}
	defer geo.Close()

	// AWS SES email service
	emailService, err := services.NewAWSSESEmailService(cfg.Email.Region, cfg.Email.FromAddress, cfg.Email.BaseURL, logger)
	if err != nil {
		logger.Error("failed to initialize email service", slog.Any("error", err))
		os.Exit(1)
	}

	// Password policy with breach corpus lookup
	breachChecker := password.NewBreachChecker(password.DefaultBreachEndpoint, 3*time.Second)
	policy := password.NewEngine(breachChecker, logger)

	// Initialize services
	auditService := services.NewAuditService(auditRepo, logger, pkglogger.NewAuditLogger(logger))
	verificationService := services.NewVerificationService(verificationRepo, emailService, logger)
	sessionService := services.NewSessionService(accountRepo, tokenManager, geo, emailService, auditService, logger)
	mfaService := services.NewMFAService(accountRepo, totpManager, auditService, logger)
	authService := services.NewAuthService(accountRepo, sessionService, mfaService, verificationService,
		policy, blockStore, captcha, backoff, auditService, logger)
	passwordService := services.NewPasswordService(accountRepo, sessionService, verificationService, policy, auditService, logger)
	adminService := services.NewAdminService(accountRepo, sessionService, auditService, logger)

	// Initialize cleanup manager
	cleanupManager := background.NewCleanupManager(verificationService, accountRepo, logger, cfg.Auth.CleanupInterval)

	// Initialize handlers
	cookieConfig := auth.CookieConfig{
		Domain: cfg.Auth.CookieDomain,
		Secure: cfg.Auth.CookieSecure,
		MaxAge: cfg.Auth.SessionValidity,
	}
	ipConfig := &pkghttp.IPConfig{TrustedProxies: cfg.Server.TrustedProxies}

	handlerSet := routes.Handlers{
		Auth:     handlers.NewAuthHandler(authService, cookieConfig, ipConfig),
		Account:  handlers.NewAccountHandler(),
		Sessions: handlers.NewSessionHandler(sessionService),
		Password: handlers.NewPasswordHandler(passwordService),
		MFA:      handlers.NewMFAHandler(mfaService),
		Admin:    handlers.NewAdminHandler(adminService),
		Audit:    handlers.NewAuditHandler(auditService),
	}

	// Bootstrap first admin account if configured
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := ensureAdminAccount(ctx, accountRepo, logger); err != nil {
		logger.Error("failed to ensure admin account", slog.Any("error", err))
	}
	cancel()

	// Setup CORS middleware
	corsConfig := middlewareCustom.DefaultCORSConfig(cfg.Server.Env)
	corsConfig.AllowedOrigins = cfg.Server.AllowedOrigins

	// Setup router
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.CORS(corsConfig))
	router.Use(middlewareCustom.SecureLogger(logger))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	// Register routes
	routes.RegisterRoutes(router, handlerSet, tokenManager, accountRepo, sessionService)

	// Health check with database
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := db.HealthCheck(ctx); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unhealthy","database":"down"}`))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy","database":"up"}`))
	})

	// Create server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start cleanup task
	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()

	go cleanupManager.Start(cleanupCtx)

	// Start server
	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	cleanupCancel()
	cleanupManager.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("server stopped gracefully")
}

// ensureAdminAccount creates the first admin account if ADMIN_EMAIL and
// ADMIN_PASSWORD are set
func ensureAdminAccount(ctx context.Context, accountRepo *repositories.AccountRepository, logger *slog.Logger) error {
	adminEmail := os.Getenv("ADMIN_EMAIL")
	adminPassword := os.Getenv("ADMIN_PASSWORD")

	if adminEmail == "" || adminPassword == "" {
		logger.Info("no ADMIN_EMAIL or ADMIN_PASSWORD set, skipping admin account creation")
		return nil
	}

	// Check if admin already exists
	_, err := accountRepo.GetByEmail(ctx, adminEmail)
	if err == nil {
		logger.Info("admin account already exists")
		return nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return fmt.Errorf("failed to check if admin exists: %w", err)
	}

	// Hash password
	hashedPassword, err := password.Hash(adminPassword)
	if err != nil {
		return fmt.Errorf("failed to hash admin password: %w", err)
	}

	// Create admin account
	now := time.Now()
	expiresAt := password.NextExpiry(now)
	admin := &models.Account{
		Email:             adminEmail,
		PasswordHash:      hashedPassword,
		Name:              "Admin",
		Role:              models.RoleAdmin,
		EmailVerified:     true,
		PasswordChangedAt: &now,
		PasswordExpiresAt: &expiresAt,
	}

	_, err = accountRepo.Create(ctx, admin)
	if err != nil {
		return fmt.Errorf("failed to create admin account: %w", err)
	}

	logger.Info("admin account created successfully")
	return nil
}
