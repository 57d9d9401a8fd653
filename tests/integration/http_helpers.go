package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/inkwell-labs/gatekeeper/internal/auth"
	"github.com/inkwell-labs/gatekeeper/internal/config"
	"github.com/inkwell-labs/gatekeeper/internal/database"
	"github.com/inkwell-labs/gatekeeper/internal/guard"
	"github.com/inkwell-labs/gatekeeper/internal/handlers"
	middlewareCustom "github.com/inkwell-labs/gatekeeper/internal/middleware"
	"github.com/inkwell-labs/gatekeeper/internal/routes"
	"github.com/inkwell-labs/gatekeeper/internal/services"
	pkghttp "github.com/inkwell-labs/gatekeeper/pkg/http"
	pkglogger "github.com/inkwell-labs/gatekeeper/pkg/logger"
	"github.com/inkwell-labs/gatekeeper/pkg/password"
)

// SentEmail represents a captured email message
type SentEmail struct {
	To      string
	Subject string
	Body    string
}

// MockEmailService captures sent emails for test assertions
type MockEmailService struct {
	SentEmails []SentEmail
	mu         sync.Mutex
}

func (m *MockEmailService) record(to, subject, body string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SentEmails = append(m.SentEmails, SentEmail{To: to, Subject: subject, Body: body})
}

// SendVerificationCode records the email
func (m *MockEmailService) SendVerificationCode(ctx context.Context, email, code string, expiresAt time.Time) error {
	m.record(email, "Verify your email address", "Verification token: "+code)
	return nil
}

// SendVerificationLink records the email
func (m *MockEmailService) SendVerificationLink(ctx context.Context, email, token string, expiresAt time.Time) error {
	m.record(email, "Verify your email address", "Verification token: "+token)
	return nil
}

// SendPasswordResetLink records the email
func (m *MockEmailService) SendPasswordResetLink(ctx context.Context, email, token string, expiresAt time.Time) error {
	m.record(email, "Reset your password", "Verification token: "+token)
	return nil
}

// SendNewLocationAlert records the email
func (m *MockEmailService) SendNewLocationAlert(ctx context.Context, email, location, ipAddress string, at time.Time) error {
	m.record(email, "New sign-in location", fmt.Sprintf("Sign-in from %s (%s)", location, ipAddress))
	return nil
}

// GetLastEmail returns the most recent email sent
func (m *MockEmailService) GetLastEmail() *SentEmail {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.SentEmails) == 0 {
		return nil
	}
	return &m.SentEmails[len(m.SentEmails)-1]
}

// staticCaptcha always returns the configured verdict
type staticCaptcha struct {
	ok bool
}

func (c staticCaptcha) Verify(ctx context.Context, token, remoteIP string) (bool, error) {
	return c.ok, nil
}

// TestServer wraps httptest.Server with database and all dependencies
type TestServer struct {
	Server       *httptest.Server
	DB           *database.DB
	EmailService *MockEmailService
	Config       *config.Config
	TokenManager *auth.TokenManager

	logger *slog.Logger
}

// NewTestServer initializes a complete HTTP server with real database + mocked email
func NewTestServer(db *database.DB) *TestServer {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))

	// Create test config
	cfg := &config.Config{
		Auth: config.AuthConfig{
			JWTSecret:       "test-secret-32-characters-long-for-testing",
			SessionValidity: 30 * 24 * time.Hour,
			CookieSecure:    false,
			CleanupInterval: 1 * time.Hour,
			BackoffBase:     1 * time.Second,
			BackoffCap:      16 * time.Second,
		},
		MFA: config.MFAConfig{
			EncryptionKey: []byte("0123456789abcdef0123456789abcdef"),
			Issuer:        "GatekeeperTest",
		},
		Server: config.ServerConfig{
			Port:           "0",
			Env:            "test",
			AllowedOrigins: []string{},
			TrustedProxies: []string{},
		},
	}

	// Initialize repositories
	accountRepo, auditRepo, verificationRepo := InitializeRepositories(db)

	// Create mock email service
	mockEmail := &MockEmailService{
		SentEmails: []SentEmail{},
	}

	// Token and MFA crypto
	tokenManager := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.SessionValidity)
	secretCodec, err := auth.NewSecretCodec(cfg.MFA.EncryptionKey)
	if err != nil {
		panic(fmt.Sprintf("failed to create secret codec: %v", err))
	}
	totpManager := auth.NewTOTPManager(secretCodec, cfg.MFA.Issuer)

	// Guard dependencies: in-process block store, captcha that always
	// passes, no breach lookup
	blockStore := guard.NewMemoryBlockStore()
	backoff := auth.NewBackoffPolicy(auth.BackoffConfig{Base: cfg.Auth.BackoffBase, Cap: cfg.Auth.BackoffCap})
	policy := password.NewEngine(nil, logger)

	// Initialize services
	auditService := services.NewAuditService(auditRepo, logger, pkglogger.NewAuditLogger(logger))
	verificationService := services.NewVerificationService(verificationRepo, mockEmail, logger)
	sessionService := services.NewSessionService(accountRepo, tokenManager, services.NoopGeoService{}, mockEmail, auditService, logger)
	mfaService := services.NewMFAService(accountRepo, totpManager, auditService, logger)
	authService := services.NewAuthService(accountRepo, sessionService, mfaService, verificationService,
		policy, blockStore, staticCaptcha{ok: true}, backoff, auditService, logger)
	passwordService := services.NewPasswordService(accountRepo, sessionService, verificationService, policy, auditService, logger)
	adminService := services.NewAdminService(accountRepo, sessionService, auditService, logger)

	// Initialize handlers
	cookieConfig := auth.CookieConfig{
		Secure: cfg.Auth.CookieSecure,
		MaxAge: cfg.Auth.SessionValidity,
	}
	ipConfig := &pkghttp.IPConfig{
		TrustedProxies: cfg.Server.TrustedProxies,
	}

	handlerSet := routes.Handlers{
		Auth:     handlers.NewAuthHandler(authService, cookieConfig, ipConfig),
		Account:  handlers.NewAccountHandler(),
		Sessions: handlers.NewSessionHandler(sessionService),
		Password: handlers.NewPasswordHandler(passwordService),
		MFA:      handlers.NewMFAHandler(mfaService),
		Admin:    handlers.NewAdminHandler(adminService),
		Audit:    handlers.NewAuditHandler(auditService),
	}

	// Setup Chi router with middleware
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Timeout(60 * time.Second))

	// Setup routes using production pattern
	routes.RegisterRoutes(r, handlerSet, tokenManager, accountRepo, sessionService)

	// Create httptest.Server
	server := httptest.NewServer(r)

	return &TestServer{
		Server:       server,
		DB:           db,
		EmailService: mockEmail,
		Config:       cfg,
		TokenManager: tokenManager,
		logger:       logger,
	}
}

// Close shuts down the test server
func (ts *TestServer) Close() {
	if ts.Server != nil {
		ts.Server.Close()
	}
}

// Request makes an HTTP request to the test server
func (ts *TestServer) Request(method, path string, body interface{}, headers map[string]string) (*http.Response, error) {
	url := ts.Server.URL + path

	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequest(method, url, bodyReader)
	if err != nil {
		return nil, err
	}

	// Set headers
	req.Header.Set("Content-Type", "application/json")
	if headers != nil {
		for key, value := range headers {
			req.Header.Set(key, value)
		}
	}

	return http.DefaultClient.Do(req)
}

// RequestWithAuth makes an authenticated HTTP request with a session token
func (ts *TestServer) RequestWithAuth(method, path, sessionToken string, body interface{}) (*http.Response, error) {
	headers := map[string]string{
		"Authorization": "Bearer " + sessionToken,
	}
	return ts.Request(method, path, body, headers)
}

// ParseJSONResponse parses JSON response body into target struct
func ParseJSONResponse(resp *http.Response, target interface{}) error {
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(target)
}

// ExtractLoginResponse extracts the session token and MFA gate from a login response
func ExtractLoginResponse(resp *http.Response) (sessionToken string, mfaRequired bool, err error) {
	defer resp.Body.Close()

	var loginResp map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&loginResp); err != nil {
		return "", false, fmt.Errorf("failed to parse response: %w", err)
	}

	if token, ok := loginResp["token"].(string); ok {
		sessionToken = token
	}
	if required, ok := loginResp["mfa_required"].(bool); ok {
		mfaRequired = required
	}

	return
}

// SessionCookie returns the session cookie set by a login response, if any
func SessionCookie(resp *http.Response) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == "session_token" {
			return c
		}
	}
	return nil
}

// GetErrorMessage extracts error message from error response
func GetErrorMessage(resp *http.Response) (string, error) {
	defer resp.Body.Close()
	var errResp map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil {
		return "", err
	}
	if msg, ok := errResp["error"].(string); ok {
		return msg, nil
	}
	if msg, ok := errResp["message"].(string); ok {
		return msg, nil
	}
	return "", nil
}

// ReadBody drains and returns the response body as a string
func ReadBody(resp *http.Response) string {
	defer resp.Body.Close()
	var sb strings.Builder
	io.Copy(&sb, resp.Body)
	return sb.String()
}
