package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/inkwell-labs/gatekeeper/internal/auth"
	"github.com/inkwell-labs/gatekeeper/internal/models"
	"github.com/inkwell-labs/gatekeeper/internal/services"
	pkghttp "github.com/inkwell-labs/gatekeeper/pkg/http"
	"github.com/inkwell-labs/gatekeeper/pkg/password"
)

// AuthFlow defines the interface for the registration and login flows
type AuthFlow interface {
	Login(ctx context.Context, attempt services.LoginAttempt) (*services.LoginResult, error)
	CompleteMFALogin(ctx context.Context, attempt services.LoginAttempt) (*services.LoginResult, error)
	CompleteOAuthLogin(ctx context.Context, email, name, provider, device, ipAddress string) (*services.LoginResult, error)
	Register(ctx context.Context, email, pass, name, role string) (*services.AccountResponse, *password.Result, error)
	VerifyEmailCode(ctx context.Context, email, code string) error
	VerifyEmailLink(ctx context.Context, token string) error
	ResendVerification(ctx context.Context, email string) error
	Logout(ctx context.Context, accountID, sessionID, ipAddress string) error
}

// AuthHandler handles authentication-related HTTP requests
type AuthHandler struct {
	service  AuthFlow
	cookies  auth.CookieConfig
	ipConfig *pkghttp.IPConfig
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(service AuthFlow, cookies auth.CookieConfig, ipConfig *pkghttp.IPConfig) *AuthHandler {
	return &AuthHandler{
		service:  service,
		cookies:  cookies,
		ipConfig: ipConfig,
	}
}

// Request DTOs

// RegisterRequest represents the request body for registration
type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
	Name     string `json:"name" validate:"required,min=1,max=100"`
	Role     string `json:"role" validate:"omitempty,oneof=customer worker writer"`
}

// LoginRequest represents the request body for login
type LoginRequest struct {
	Email        string `json:"email" validate:"required,email"`
	Password     string `json:"password" validate:"required"`
	CaptchaToken string `json:"captcha_token"`
}

// MFALoginRequest represents the second step of a login with MFA
type MFALoginRequest struct {
	Email        string `json:"email" validate:"required,email"`
	Password     string `json:"password" validate:"required"`
	Code         string `json:"code" validate:"required,min=6,max=8"`
	CaptchaToken string `json:"captcha_token"`
}

// OAuthCallbackRequest carries the identity asserted by an external provider
type OAuthCallbackRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Name     string `json:"name" validate:"required,min=1,max=100"`
	Provider string `json:"provider" validate:"required,oneof=google github"`
}

// VerifyEmailCodeRequest represents the request body for code-based email verification
type VerifyEmailCodeRequest struct {
	Email string `json:"email" validate:"required,email"`
	Code  string `json:"code" validate:"required,len=6,numeric"`
}

// ResendVerificationRequest represents the request body for resending verification email
type ResendVerificationRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// Register handles account creation
// @Summary Register an account
// @Accept json
// @Param request body RegisterRequest true "Register request"
// @Produce json
// @Success 201 {object} services.AccountResponse
// @Failure 400 {object} pkghttp.ErrorResponse
// @Failure 409 {object} pkghttp.ErrorResponse
// @Router /auth/register [post]
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	account, policy, err := h.service.Register(r.Context(), req.Email, req.Password, req.Name, req.Role)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrBadRequest) && policy != nil:
			// Surface the policy evaluation so the client can explain
			// what was unacceptable about the password.
			writeJSON(w, http.StatusBadRequest, map[string]interface{}{
				"error":   "weak_password",
				"message": "Password does not meet the policy",
				"policy":  policy,
			})
		case errors.Is(err, models.ErrBadRequest):
			pkghttp.WriteBadRequest(w, "Invalid registration request")
		case errors.Is(err, models.ErrConflict):
			pkghttp.WriteConflict(w, "An account with this email already exists")
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"account": account,
		"message": "Account created. Check your email for the verification code.",
	})
}

// Login handles the first step of authentication. Accounts with MFA
// enabled receive mfa_required and finish through /auth/login/mfa.
// @Summary Log in with email and password
// @Accept json
// @Param request body LoginRequest true "Login request"
// @Produce json
// @Success 200 {object} services.LoginResult
// @Failure 401 {object} pkghttp.ErrorResponse
// @Failure 429 {object} pkghttp.ErrorResponse
// @Router /auth/login [post]
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	result, err := h.service.Login(r.Context(), h.attempt(r, req.Email, req.Password, req.CaptchaToken, ""))
	if err != nil {
		h.writeLoginError(w, result, err)
		return
	}

	h.writeLoginResult(w, result)
}

// CompleteMFALogin settles the second factor for an MFA-enabled account.
// The credential pair is submitted again together with the code.
// @Summary Complete an MFA login
// @Accept json
// @Param request body MFALoginRequest true "MFA login request"
// @Produce json
// @Success 200 {object} services.LoginResult
// @Failure 401 {object} pkghttp.ErrorResponse
// @Router /auth/login/mfa [post]
func (h *AuthHandler) CompleteMFALogin(w http.ResponseWriter, r *http.Request) {
	var req MFALoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	result, err := h.service.CompleteMFALogin(r.Context(), h.attempt(r, req.Email, req.Password, req.CaptchaToken, req.Code))
	if err != nil {
		h.writeLoginError(w, result, err)
		return
	}

	h.writeLoginResult(w, result)
}

// OAuthCallback establishes a session for a provider-asserted identity.
// @Summary Complete an OAuth login
// @Accept json
// @Param request body OAuthCallbackRequest true "OAuth callback request"
// @Produce json
// @Success 200 {object} services.LoginResult
// @Failure 403 {object} pkghttp.ErrorResponse
// @Router /auth/oauth/callback [post]
func (h *AuthHandler) OAuthCallback(w http.ResponseWriter, r *http.Request) {
	var req OAuthCallbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	ipAddress := pkghttp.ExtractClientIP(r, h.ipConfig)
	result, err := h.service.CompleteOAuthLogin(r.Context(), req.Email, req.Name, req.Provider, r.Header.Get("User-Agent"), ipAddress)
	if err != nil {
		h.writeLoginError(w, result, err)
		return
	}

	h.writeLoginResult(w, result)
}

// VerifyEmailCode settles the six digit code sent at registration.
// @Summary Verify email with a code
// @Accept json
// @Param request body VerifyEmailCodeRequest true "Verify email request"
// @Produce json
// @Success 200
// @Failure 401 {object} pkghttp.ErrorResponse
// @Router /auth/verify-email [post]
func (h *AuthHandler) VerifyEmailCode(w http.ResponseWriter, r *http.Request) {
	var req VerifyEmailCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	if err := h.service.VerifyEmailCode(r.Context(), req.Email, req.Code); err != nil {
		if errors.Is(err, models.ErrVerificationFailed) {
			pkghttp.WriteUnauthorized(w, "Invalid or expired verification code")
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Email verified. You can now log in.",
	})
}

// VerifyEmailLink settles an emailed verification link. The token rides
// in the query string so the link is directly clickable.
// @Summary Verify email with a link token
// @Param token query string true "Verification token"
// @Produce json
// @Success 200
// @Failure 401 {object} pkghttp.ErrorResponse
// @Router /auth/verify-email [get]
func (h *AuthHandler) VerifyEmailLink(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimSpace(r.URL.Query().Get("token"))
	if token == "" {
		pkghttp.WriteBadRequest(w, "Missing verification token")
		return
	}

	if err := h.service.VerifyEmailLink(r.Context(), token); err != nil {
		if errors.Is(err, models.ErrVerificationFailed) {
			pkghttp.WriteUnauthorized(w, "Invalid or expired verification link")
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Email verified. You can now log in.",
	})
}

// ResendVerification issues a fresh verification link. The response is
// identical whether or not the email is registered.
// @Summary Resend the verification email
// @Accept json
// @Param request body ResendVerificationRequest true "Resend verification request"
// @Produce json
// @Success 202
// @Router /auth/resend-verification [post]
func (h *AuthHandler) ResendVerification(w http.ResponseWriter, r *http.Request) {
	var req ResendVerificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	_ = h.service.ResendVerification(r.Context(), req.Email)

	writeJSON(w, http.StatusAccepted, map[string]string{
		"message": "If an account exists with this email, a verification email will be sent.",
	})
}

// Logout revokes the calling session and clears the session cookie.
// @Summary Log out
// @Security BearerAuth
// @Success 204
// @Failure 401 {object} pkghttp.ErrorResponse
// @Router /auth/logout [post]
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	account := auth.GetAccountFromContext(r)
	sessionID := auth.GetSessionIDFromContext(r)
	if account == nil || sessionID == "" {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	ipAddress := pkghttp.ExtractClientIP(r, h.ipConfig)
	if err := h.service.Logout(r.Context(), account.ID, sessionID, ipAddress); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			// Already revoked; the client's goal is met either way.
			auth.ClearSessionCookie(w, h.cookies)
			w.WriteHeader(http.StatusNoContent)
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	auth.ClearSessionCookie(w, h.cookies)
	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandler) attempt(r *http.Request, email, pass, captchaToken, mfaCode string) services.LoginAttempt {
	return services.LoginAttempt{
		Email:        email,
		Password:     pass,
		CaptchaToken: captchaToken,
		MFACode:      mfaCode,
		Device:       r.Header.Get("User-Agent"),
		IPAddress:    pkghttp.ExtractClientIP(r, h.ipConfig),
	}
}

func (h *AuthHandler) writeLoginResult(w http.ResponseWriter, result *services.LoginResult) {
	if result.Token != "" {
		auth.SetSessionCookie(w, result.Token, h.cookies)
	}
	writeJSON(w, http.StatusOK, result)
}

// writeLoginError maps the login decision chain's errors onto HTTP
// responses. Credential failures stay deliberately generic; throttling
// failures carry Retry-After so the client can pace itself.
func (h *AuthHandler) writeLoginError(w http.ResponseWriter, result *services.LoginResult, err error) {
	retryAfter := 0
	captchaRequired := false
	if result != nil {
		retryAfter = int(result.RetryAfter.Seconds())
		captchaRequired = result.CaptchaRequired
	}

	switch {
	case errors.Is(err, models.ErrIPBlocked):
		pkghttp.WriteRetryAfter(w, retryAfter, "ip_blocked", "Too many failed attempts from this address. Please try again later.")
	case errors.Is(err, models.ErrAccountLocked):
		pkghttp.WriteRetryAfter(w, retryAfter, "account_locked", "Account temporarily locked after repeated failures. Please try again later.")
	case errors.Is(err, models.ErrCaptchaFailed):
		pkghttp.WriteError(w, http.StatusForbidden, "captcha_failed", "Human verification failed. Complete the challenge and try again.")
	case errors.Is(err, models.ErrAccountBanned):
		message := "This account has been banned"
		if result != nil && result.BanReason != "" {
			message = "This account has been banned: " + result.BanReason
		}
		pkghttp.WriteForbidden(w, message)
	case errors.Is(err, models.ErrEmailNotVerified):
		body := map[string]interface{}{
			"error":   "email_not_verified",
			"message": "Verify your email address with the code we just sent before logging in",
		}
		if result != nil && result.Account != nil {
			body["account"] = result.Account
		}
		writeJSON(w, http.StatusForbidden, body)
	case errors.Is(err, models.ErrMFAInvalidCode), errors.Is(err, models.ErrMFANotEnabled):
		pkghttp.WriteUnauthorized(w, "Invalid verification code")
	case errors.Is(err, models.ErrUnauthorized):
		if retryAfter > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		}
		writeJSON(w, http.StatusUnauthorized, map[string]interface{}{
			"error":            "unauthorized",
			"message":          "Authentication failed",
			"captcha_required": captchaRequired,
		})
	default:
		pkghttp.WriteInternalError(w, "Internal server error")
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
