package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkwell-labs/gatekeeper/internal/auth"
	"github.com/inkwell-labs/gatekeeper/internal/models"
	"github.com/inkwell-labs/gatekeeper/internal/services"
	pkghttp "github.com/inkwell-labs/gatekeeper/pkg/http"
	"github.com/inkwell-labs/gatekeeper/pkg/password"
)

func newAuthHandler(flow *mockAuthFlow) *AuthHandler {
	return NewAuthHandler(flow, auth.CookieConfig{MaxAge: time.Hour}, &pkghttp.IPConfig{})
}

func TestLoginHandler_Success(t *testing.T) {
	flow := &mockAuthFlow{
		LoginFunc: func(ctx context.Context, attempt services.LoginAttempt) (*services.LoginResult, error) {
			assert.Equal(t, "a@example.com", attempt.Email)
			return &services.LoginResult{Token: "jwt-token", Session: &models.Session{ID: "sess-1"}}, nil
		},
	}
	handler := newAuthHandler(flow)

	recorder := httptest.NewRecorder()
	handler.Login(recorder, jsonRequest("POST", "/auth/login", `{"email":"a@example.com","password":"pw"}`))

	require.Equal(t, http.StatusOK, recorder.Code)

	cookies := recorder.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, auth.SessionCookieName, cookies[0].Name)
	assert.Equal(t, "jwt-token", cookies[0].Value)
	assert.True(t, cookies[0].HttpOnly)
}

func TestLoginHandler_MFARequired(t *testing.T) {
	flow := &mockAuthFlow{
		LoginFunc: func(ctx context.Context, attempt services.LoginAttempt) (*services.LoginResult, error) {
			return &services.LoginResult{MFARequired: true}, nil
		},
	}
	handler := newAuthHandler(flow)

	recorder := httptest.NewRecorder()
	handler.Login(recorder, jsonRequest("POST", "/auth/login", `{"email":"a@example.com","password":"pw"}`))

	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Empty(t, recorder.Result().Cookies(), "no cookie before the second factor settles")

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &body))
	assert.Equal(t, true, body["mfa_required"])
}

func TestLoginHandler_WrongPassword_CarriesRetryAfter(t *testing.T) {
	flow := &mockAuthFlow{
		LoginFunc: func(ctx context.Context, attempt services.LoginAttempt) (*services.LoginResult, error) {
			return &services.LoginResult{RetryAfter: 4 * time.Second}, models.ErrUnauthorized
		},
	}
	handler := newAuthHandler(flow)

	recorder := httptest.NewRecorder()
	handler.Login(recorder, jsonRequest("POST", "/auth/login", `{"email":"a@example.com","password":"pw"}`))

	assert.Equal(t, http.StatusUnauthorized, recorder.Code)
	assert.Equal(t, "4", recorder.Header().Get("Retry-After"))
}

func TestLoginHandler_AccountLocked(t *testing.T) {
	flow := &mockAuthFlow{
		LoginFunc: func(ctx context.Context, attempt services.LoginAttempt) (*services.LoginResult, error) {
			return &services.LoginResult{RetryAfter: 3 * time.Minute}, models.ErrAccountLocked
		},
	}
	handler := newAuthHandler(flow)

	recorder := httptest.NewRecorder()
	handler.Login(recorder, jsonRequest("POST", "/auth/login", `{"email":"a@example.com","password":"pw"}`))

	assert.Equal(t, http.StatusTooManyRequests, recorder.Code)
	assert.Equal(t, "180", recorder.Header().Get("Retry-After"))
}

func TestLoginHandler_IPBlocked(t *testing.T) {
	flow := &mockAuthFlow{
		LoginFunc: func(ctx context.Context, attempt services.LoginAttempt) (*services.LoginResult, error) {
			return &services.LoginResult{RetryAfter: 10 * time.Minute}, models.ErrIPBlocked
		},
	}
	handler := newAuthHandler(flow)

	recorder := httptest.NewRecorder()
	handler.Login(recorder, jsonRequest("POST", "/auth/login", `{"email":"a@example.com","password":"pw"}`))

	assert.Equal(t, http.StatusTooManyRequests, recorder.Code)
	assert.Equal(t, "600", recorder.Header().Get("Retry-After"))
}

func TestLoginHandler_CaptchaFailed(t *testing.T) {
	flow := &mockAuthFlow{
		LoginFunc: func(ctx context.Context, attempt services.LoginAttempt) (*services.LoginResult, error) {
			return &services.LoginResult{CaptchaRequired: true}, models.ErrCaptchaFailed
		},
	}
	handler := newAuthHandler(flow)

	recorder := httptest.NewRecorder()
	handler.Login(recorder, jsonRequest("POST", "/auth/login", `{"email":"a@example.com","password":"pw"}`))

	assert.Equal(t, http.StatusForbidden, recorder.Code)
}

func TestLoginHandler_CaptchaRequiredFlagInBody(t *testing.T) {
	flow := &mockAuthFlow{
		LoginFunc: func(ctx context.Context, attempt services.LoginAttempt) (*services.LoginResult, error) {
			return &services.LoginResult{RetryAfter: time.Second, CaptchaRequired: true}, models.ErrUnauthorized
		},
	}
	handler := newAuthHandler(flow)

	recorder := httptest.NewRecorder()
	handler.Login(recorder, jsonRequest("POST", "/auth/login", `{"email":"a@example.com","password":"pw"}`))

	require.Equal(t, http.StatusUnauthorized, recorder.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &body))
	assert.Equal(t, true, body["captcha_required"])
}

func TestLoginHandler_Banned(t *testing.T) {
	flow := &mockAuthFlow{
		LoginFunc: func(ctx context.Context, attempt services.LoginAttempt) (*services.LoginResult, error) {
			return &services.LoginResult{BanReason: "chargeback fraud"}, models.ErrAccountBanned
		},
	}
	handler := newAuthHandler(flow)

	recorder := httptest.NewRecorder()
	handler.Login(recorder, jsonRequest("POST", "/auth/login", `{"email":"a@example.com","password":"pw"}`))

	assert.Equal(t, http.StatusForbidden, recorder.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &body))
	assert.Contains(t, body["message"], "chargeback fraud")
}

func TestLoginHandler_UnverifiedEmail(t *testing.T) {
	flow := &mockAuthFlow{
		LoginFunc: func(ctx context.Context, attempt services.LoginAttempt) (*services.LoginResult, error) {
			return &services.LoginResult{
				Account: &services.AccountResponse{ID: "acct-1", Email: "a@example.com"},
			}, models.ErrEmailNotVerified
		},
	}
	handler := newAuthHandler(flow)

	recorder := httptest.NewRecorder()
	handler.Login(recorder, jsonRequest("POST", "/auth/login", `{"email":"a@example.com","password":"pw"}`))

	assert.Equal(t, http.StatusForbidden, recorder.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &body))
	assert.Equal(t, "email_not_verified", body["error"])
	account, ok := body["account"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "acct-1", account["id"])
}

func TestLoginHandler_InvalidBody(t *testing.T) {
	handler := newAuthHandler(&mockAuthFlow{})

	recorder := httptest.NewRecorder()
	handler.Login(recorder, jsonRequest("POST", "/auth/login", `{"email":"not-an-email"}`))

	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestMFALoginHandler_InvalidCode(t *testing.T) {
	flow := &mockAuthFlow{
		CompleteMFALoginFunc: func(ctx context.Context, attempt services.LoginAttempt) (*services.LoginResult, error) {
			return nil, models.ErrMFAInvalidCode
		},
	}
	handler := newAuthHandler(flow)

	recorder := httptest.NewRecorder()
	handler.CompleteMFALogin(recorder, jsonRequest("POST", "/auth/login/mfa",
		`{"email":"a@example.com","password":"pw","code":"123456"}`))

	assert.Equal(t, http.StatusUnauthorized, recorder.Code)
}

func TestRegisterHandler_WeakPasswordSurfacesPolicy(t *testing.T) {
	flow := &mockAuthFlow{
		RegisterFunc: func(ctx context.Context, email, pass, name, role string) (*services.AccountResponse, *password.Result, error) {
			return nil, &password.Result{Valid: false, StrengthScore: 1}, models.ErrBadRequest
		},
	}
	handler := newAuthHandler(flow)

	recorder := httptest.NewRecorder()
	handler.Register(recorder, jsonRequest("POST", "/auth/register",
		`{"email":"a@example.com","password":"weak","name":"A"}`))

	require.Equal(t, http.StatusBadRequest, recorder.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &body))
	assert.Equal(t, "weak_password", body["error"])
	assert.Contains(t, body, "policy")
}

func TestRegisterHandler_Duplicate(t *testing.T) {
	flow := &mockAuthFlow{
		RegisterFunc: func(ctx context.Context, email, pass, name, role string) (*services.AccountResponse, *password.Result, error) {
			return nil, nil, models.ErrConflict
		},
	}
	handler := newAuthHandler(flow)

	recorder := httptest.NewRecorder()
	handler.Register(recorder, jsonRequest("POST", "/auth/register",
		`{"email":"a@example.com","password":"pw","name":"A"}`))

	assert.Equal(t, http.StatusConflict, recorder.Code)
}

func TestVerifyEmailCodeHandler_Invalid(t *testing.T) {
	flow := &mockAuthFlow{
		VerifyEmailCodeFunc: func(ctx context.Context, email, code string) error {
			return models.ErrVerificationFailed
		},
	}
	handler := newAuthHandler(flow)

	recorder := httptest.NewRecorder()
	handler.VerifyEmailCode(recorder, jsonRequest("POST", "/auth/verify-email",
		`{"email":"a@example.com","code":"123456"}`))

	assert.Equal(t, http.StatusUnauthorized, recorder.Code)
}

func TestVerifyEmailLinkHandler_MissingToken(t *testing.T) {
	handler := newAuthHandler(&mockAuthFlow{})

	recorder := httptest.NewRecorder()
	handler.VerifyEmailLink(recorder, httptest.NewRequest("GET", "/auth/verify-email", nil))

	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestResendVerificationHandler_AlwaysAccepted(t *testing.T) {
	flow := &mockAuthFlow{
		ResendVerificationFunc: func(ctx context.Context, email string) error {
			return models.ErrInternalServer
		},
	}
	handler := newAuthHandler(flow)

	recorder := httptest.NewRecorder()
	handler.ResendVerification(recorder, jsonRequest("POST", "/auth/resend-verification",
		`{"email":"a@example.com"}`))

	// Identical response regardless of outcome
	assert.Equal(t, http.StatusAccepted, recorder.Code)
}

func TestLogoutHandler_ClearsCookie(t *testing.T) {
	handler := newAuthHandler(&mockAuthFlow{})

	req := authenticated(jsonRequest("POST", "/auth/logout", ""), testAccount(t), "sess-1")
	recorder := httptest.NewRecorder()
	handler.Logout(recorder, req)

	require.Equal(t, http.StatusNoContent, recorder.Code)

	cookies := recorder.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, auth.SessionCookieName, cookies[0].Name)
	assert.Equal(t, -1, cookies[0].MaxAge)
}

func TestLogoutHandler_Unauthenticated(t *testing.T) {
	handler := newAuthHandler(&mockAuthFlow{})

	recorder := httptest.NewRecorder()
	handler.Logout(recorder, jsonRequest("POST", "/auth/logout", ""))

	assert.Equal(t, http.StatusUnauthorized, recorder.Code)
}
