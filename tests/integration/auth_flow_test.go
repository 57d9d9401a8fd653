package integration

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"testing"

	"github.com/inkwell-labs/gatekeeper/internal/models"
)

var (
	testDB     *TestDB
	testServer *TestServer
)

func TestMain(m *testing.M) {
	ctx := context.Background()

	db, err := SetupTestDatabase(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "skipping integration tests: %v\n", err)
		os.Exit(0)
	}
	testDB = db
	testServer = NewTestServer(db.DB)

	code := m.Run()

	testServer.Close()
	testDB.Teardown(ctx)
	os.Exit(code)
}

func resetState(t *testing.T) {
	t.Helper()
	if err := testDB.CleanupTables(context.Background()); err != nil {
		t.Fatalf("failed to clean tables: %v", err)
	}
	testServer.EmailService.SentEmails = nil
}

// clientIP pins the request to a distinct client address so the per-IP
// auth throttle does not bleed between tests.
func clientIP(ip string) map[string]string {
	return map[string]string{"X-Real-IP": ip}
}

func TestRegisterVerifyLoginFlow(t *testing.T) {
	resetState(t)

	email, pass := TestCredentials("flow")

	// Register
	resp, err := testServer.Request(http.MethodPost, "/auth/register", map[string]string{
		"email":    email,
		"password": pass,
		"name":     "Flow Tester",
		"role":     "customer",
	}, clientIP("10.9.0.1"))
	if err != nil {
		t.Fatalf("register request failed: %v", err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201 from register, got %d: %s", resp.StatusCode, ReadBody(resp))
	}
	resp.Body.Close()

	// Login before verification is refused
	resp, err = testServer.Request(http.MethodPost, "/auth/login", map[string]string{
		"email": email, "password": pass,
	}, clientIP("10.9.0.1"))
	if err != nil {
		t.Fatalf("login request failed: %v", err)
	}
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 before verification, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	// The registration email carries the verification code
	last := testServer.EmailService.GetLastEmail()
	if last == nil {
		t.Fatal("expected a verification email")
	}
	code := ExtractTokenFromEmail(last.Body)
	if code == "" {
		t.Fatalf("could not extract code from email body %q", last.Body)
	}

	resp, err = testServer.Request(http.MethodPost, "/auth/verify-email", map[string]string{
		"email": email, "code": code,
	}, clientIP("10.9.0.1"))
	if err != nil {
		t.Fatalf("verify request failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 from verify, got %d: %s", resp.StatusCode, ReadBody(resp))
	}
	resp.Body.Close()

	// Login succeeds and sets the session cookie
	resp, err = testServer.Request(http.MethodPost, "/auth/login", map[string]string{
		"email": email, "password": pass,
	}, clientIP("10.9.0.1"))
	if err != nil {
		t.Fatalf("login request failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 from login, got %d: %s", resp.StatusCode, ReadBody(resp))
	}
	if SessionCookie(resp) == nil {
		t.Error("expected session cookie on login response")
	}
	token, mfaRequired, err := ExtractLoginResponse(resp)
	if err != nil {
		t.Fatalf("failed to parse login response: %v", err)
	}
	if mfaRequired {
		t.Error("did not expect MFA gate for this account")
	}
	if token == "" {
		t.Fatal("expected a session token")
	}

	// The token authenticates /me
	resp, err = testServer.RequestWithAuth(http.MethodGet, "/me", token, nil)
	if err != nil {
		t.Fatalf("me request failed: %v", err)
	}
	var me map[string]interface{}
	if err := ParseJSONResponse(resp, &me); err != nil {
		t.Fatalf("failed to parse me response: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 from /me, got %d", resp.StatusCode)
	}
	if got := me["email"]; got != email {
		t.Errorf("expected email %q, got %v", email, got)
	}

	// Logout revokes the session
	resp, err = testServer.RequestWithAuth(http.MethodPost, "/auth/logout", token, nil)
	if err != nil {
		t.Fatalf("logout request failed: %v", err)
	}
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204 from logout, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp, err = testServer.RequestWithAuth(http.MethodGet, "/me", token, nil)
	if err != nil {
		t.Fatalf("me request failed: %v", err)
	}
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 after logout, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestLoginLockoutAndRecovery(t *testing.T) {
	resetState(t)

	ctx := context.Background()
	accountRepo, _, _ := InitializeRepositories(testDB.DB)

	email, pass := TestCredentials("lockout")
	if _, err := SeedAccount(ctx, accountRepo, email, pass, models.RoleCustomer, true); err != nil {
		t.Fatalf("failed to seed account: %v", err)
	}

	// Failures carry a growing Retry-After
	var lastRetry string
	for i := 0; i < 3; i++ {
		resp, err := testServer.Request(http.MethodPost, "/auth/login", map[string]string{
			"email": email, "password": "wrong-password",
		}, clientIP("10.9.0.2"))
		if err != nil {
			t.Fatalf("login request failed: %v", err)
		}
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("expected 401 on bad password, got %d", resp.StatusCode)
		}
		lastRetry = resp.Header.Get("Retry-After")
		resp.Body.Close()
	}
	if lastRetry == "" {
		t.Error("expected Retry-After header after repeated failures")
	}

	// A correct login clears the failure count
	resp, err := testServer.Request(http.MethodPost, "/auth/login", map[string]string{
		"email": email, "password": pass, "captcha_token": "test-token",
	}, clientIP("10.9.0.2"))
	if err != nil {
		t.Fatalf("login request failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 after correct login, got %d: %s", resp.StatusCode, ReadBody(resp))
	}
	resp.Body.Close()

	account, err := accountRepo.GetByEmail(ctx, email)
	if err != nil {
		t.Fatalf("failed to reload account: %v", err)
	}
	if account.FailedLoginCount != 0 {
		t.Errorf("expected failure count reset, got %d", account.FailedLoginCount)
	}
}

func TestPasswordResetFlow(t *testing.T) {
	resetState(t)

	ctx := context.Background()
	accountRepo, _, _ := InitializeRepositories(testDB.DB)

	email, oldPass := TestCredentials("reset")
	if _, err := SeedAccount(ctx, accountRepo, email, oldPass, models.RoleCustomer, true); err != nil {
		t.Fatalf("failed to seed account: %v", err)
	}

	// Request a reset; the response is the same whether or not the
	// account exists
	resp, err := testServer.Request(http.MethodPost, "/password/reset", map[string]string{
		"email": email,
	}, clientIP("10.9.0.3"))
	if err != nil {
		t.Fatalf("reset request failed: %v", err)
	}
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202 from reset request, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	last := testServer.EmailService.GetLastEmail()
	if last == nil {
		t.Fatal("expected a reset email")
	}
	token := ExtractTokenFromEmail(last.Body)
	if token == "" {
		t.Fatalf("could not extract token from email body %q", last.Body)
	}

	newPass := "Xw3$kNp7QembR!fy"
	resp, err = testServer.Request(http.MethodPost, "/password/reset/confirm", map[string]string{
		"token": token, "new_password": newPass,
	}, clientIP("10.9.0.3"))
	if err != nil {
		t.Fatalf("confirm request failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected success from confirm, got %d: %s", resp.StatusCode, ReadBody(resp))
	}
	resp.Body.Close()

	// Old password no longer works, new one does
	resp, err = testServer.Request(http.MethodPost, "/auth/login", map[string]string{
		"email": email, "password": oldPass,
	}, clientIP("10.9.0.3"))
	if err != nil {
		t.Fatalf("login request failed: %v", err)
	}
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 with old password, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp, err = testServer.Request(http.MethodPost, "/auth/login", map[string]string{
		"email": email, "password": newPass,
	}, clientIP("10.9.0.3"))
	if err != nil {
		t.Fatalf("login request failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200 with new password, got %d: %s", resp.StatusCode, ReadBody(resp))
	}
	resp.Body.Close()
}

func TestAdminEndpointsRequireAdminRole(t *testing.T) {
	resetState(t)

	ctx := context.Background()
	accountRepo, _, _ := InitializeRepositories(testDB.DB)

	email, pass := TestCredentials("nonadmin")
	if _, err := SeedAccount(ctx, accountRepo, email, pass, models.RoleCustomer, true); err != nil {
		t.Fatalf("failed to seed account: %v", err)
	}

	resp, err := testServer.Request(http.MethodPost, "/auth/login", map[string]string{
		"email": email, "password": pass,
	}, clientIP("10.9.0.4"))
	if err != nil {
		t.Fatalf("login request failed: %v", err)
	}
	token, _, err := ExtractLoginResponse(resp)
	if err != nil || token == "" {
		t.Fatalf("failed to log in: %v", err)
	}

	resp, err = testServer.RequestWithAuth(http.MethodGet, "/admin/accounts", token, nil)
	if err != nil {
		t.Fatalf("admin request failed: %v", err)
	}
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("expected 403 for non-admin, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}
