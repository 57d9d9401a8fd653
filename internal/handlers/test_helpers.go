package handlers

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/inkwell-labs/gatekeeper/internal/auth"
	"github.com/inkwell-labs/gatekeeper/internal/models"
	"github.com/inkwell-labs/gatekeeper/internal/services"
	"github.com/inkwell-labs/gatekeeper/pkg/password"
)

// mockAuthFlow implements AuthFlow with per-method overrides.
type mockAuthFlow struct {
	LoginFunc              func(ctx context.Context, attempt services.LoginAttempt) (*services.LoginResult, error)
	CompleteMFALoginFunc   func(ctx context.Context, attempt services.LoginAttempt) (*services.LoginResult, error)
	CompleteOAuthLoginFunc func(ctx context.Context, email, name, provider, device, ipAddress string) (*services.LoginResult, error)
	RegisterFunc           func(ctx context.Context, email, pass, name, role string) (*services.AccountResponse, *password.Result, error)
	VerifyEmailCodeFunc    func(ctx context.Context, email, code string) error
	VerifyEmailLinkFunc    func(ctx context.Context, token string) error
	ResendVerificationFunc func(ctx context.Context, email string) error
	LogoutFunc             func(ctx context.Context, accountID, sessionID, ipAddress string) error
}

func (m *mockAuthFlow) Login(ctx context.Context, attempt services.LoginAttempt) (*services.LoginResult, error) {
	if m.LoginFunc != nil {
		return m.LoginFunc(ctx, attempt)
	}
	return &services.LoginResult{Token: "token"}, nil
}

func (m *mockAuthFlow) CompleteMFALogin(ctx context.Context, attempt services.LoginAttempt) (*services.LoginResult, error) {
	if m.CompleteMFALoginFunc != nil {
		return m.CompleteMFALoginFunc(ctx, attempt)
	}
	return &services.LoginResult{Token: "token"}, nil
}

func (m *mockAuthFlow) CompleteOAuthLogin(ctx context.Context, email, name, provider, device, ipAddress string) (*services.LoginResult, error) {
	if m.CompleteOAuthLoginFunc != nil {
		return m.CompleteOAuthLoginFunc(ctx, email, name, provider, device, ipAddress)
	}
	return &services.LoginResult{Token: "token"}, nil
}

func (m *mockAuthFlow) Register(ctx context.Context, email, pass, name, role string) (*services.AccountResponse, *password.Result, error) {
	if m.RegisterFunc != nil {
		return m.RegisterFunc(ctx, email, pass, name, role)
	}
	return &services.AccountResponse{ID: uuid.New().String(), Email: email, Name: name}, &password.Result{Valid: true}, nil
}

func (m *mockAuthFlow) VerifyEmailCode(ctx context.Context, email, code string) error {
	if m.VerifyEmailCodeFunc != nil {
		return m.VerifyEmailCodeFunc(ctx, email, code)
	}
	return nil
}

func (m *mockAuthFlow) VerifyEmailLink(ctx context.Context, token string) error {
	if m.VerifyEmailLinkFunc != nil {
		return m.VerifyEmailLinkFunc(ctx, token)
	}
	return nil
}

func (m *mockAuthFlow) ResendVerification(ctx context.Context, email string) error {
	if m.ResendVerificationFunc != nil {
		return m.ResendVerificationFunc(ctx, email)
	}
	return nil
}

func (m *mockAuthFlow) Logout(ctx context.Context, accountID, sessionID, ipAddress string) error {
	if m.LogoutFunc != nil {
		return m.LogoutFunc(ctx, accountID, sessionID, ipAddress)
	}
	return nil
}

// mockSessionManager implements SessionManager.
type mockSessionManager struct {
	ListFunc            func(ctx context.Context, accountID string) ([]models.Session, error)
	RevokeFunc          func(ctx context.Context, accountID, sessionID string) error
	RevokeAllExceptFunc func(ctx context.Context, accountID, keepSessionID string) (int, error)
}

func (m *mockSessionManager) List(ctx context.Context, accountID string) ([]models.Session, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, accountID)
	}
	return nil, nil
}

func (m *mockSessionManager) Revoke(ctx context.Context, accountID, sessionID string) error {
	if m.RevokeFunc != nil {
		return m.RevokeFunc(ctx, accountID, sessionID)
	}
	return nil
}

func (m *mockSessionManager) RevokeAllExcept(ctx context.Context, accountID, keepSessionID string) (int, error) {
	if m.RevokeAllExceptFunc != nil {
		return m.RevokeAllExceptFunc(ctx, accountID, keepSessionID)
	}
	return 0, nil
}

// mockPasswordManager implements PasswordManager.
type mockPasswordManager struct {
	ChangeFunc       func(ctx context.Context, accountID, sessionID, current, next string) (*password.Result, error)
	RequestResetFunc func(ctx context.Context, email string) error
	ConfirmResetFunc func(ctx context.Context, token, next string) (*password.Result, error)
}

func (m *mockPasswordManager) Change(ctx context.Context, accountID, sessionID, current, next string) (*password.Result, error) {
	if m.ChangeFunc != nil {
		return m.ChangeFunc(ctx, accountID, sessionID, current, next)
	}
	return &password.Result{Valid: true}, nil
}

func (m *mockPasswordManager) RequestReset(ctx context.Context, email string) error {
	if m.RequestResetFunc != nil {
		return m.RequestResetFunc(ctx, email)
	}
	return nil
}

func (m *mockPasswordManager) ConfirmReset(ctx context.Context, token, next string) (*password.Result, error) {
	if m.ConfirmResetFunc != nil {
		return m.ConfirmResetFunc(ctx, token, next)
	}
	return &password.Result{Valid: true}, nil
}

// mockMFAManager implements MFAManager.
type mockMFAManager struct {
	StartSetupFunc            func(ctx context.Context, accountID string) (*services.SetupResponse, error)
	ConfirmSetupFunc          func(ctx context.Context, accountID, code string) (*services.BackupCodesResponse, error)
	RegenerateBackupCodesFunc func(ctx context.Context, accountID, currentPassword string) (*services.BackupCodesResponse, error)
	DisableFunc               func(ctx context.Context, accountID, currentPassword string) error
}

func (m *mockMFAManager) StartSetup(ctx context.Context, accountID string) (*services.SetupResponse, error) {
	if m.StartSetupFunc != nil {
		return m.StartSetupFunc(ctx, accountID)
	}
	return &services.SetupResponse{Secret: "SECRET", QRCode: "data:image/png;base64,"}, nil
}

func (m *mockMFAManager) ConfirmSetup(ctx context.Context, accountID, code string) (*services.BackupCodesResponse, error) {
	if m.ConfirmSetupFunc != nil {
		return m.ConfirmSetupFunc(ctx, accountID, code)
	}
	return &services.BackupCodesResponse{BackupCodes: []string{"aaaa1111"}}, nil
}

func (m *mockMFAManager) RegenerateBackupCodes(ctx context.Context, accountID, currentPassword string) (*services.BackupCodesResponse, error) {
	if m.RegenerateBackupCodesFunc != nil {
		return m.RegenerateBackupCodesFunc(ctx, accountID, currentPassword)
	}
	return &services.BackupCodesResponse{BackupCodes: []string{"aaaa1111"}}, nil
}

func (m *mockMFAManager) Disable(ctx context.Context, accountID, currentPassword string) error {
	if m.DisableFunc != nil {
		return m.DisableFunc(ctx, accountID, currentPassword)
	}
	return nil
}

// mockAdminManager implements AdminManager.
type mockAdminManager struct {
	ListAccountsFunc func(ctx context.Context, limit, offset int) ([]*services.AccountResponse, error)
	BanFunc          func(ctx context.Context, adminID, accountID, reason string) error
	UnbanFunc        func(ctx context.Context, adminID, accountID string) error
	UnlockFunc       func(ctx context.Context, adminID, accountID string) error
	ChangeRoleFunc   func(ctx context.Context, adminID, accountID, role string) error
}

func (m *mockAdminManager) ListAccounts(ctx context.Context, limit, offset int) ([]*services.AccountResponse, error) {
	if m.ListAccountsFunc != nil {
		return m.ListAccountsFunc(ctx, limit, offset)
	}
	return nil, nil
}

func (m *mockAdminManager) Ban(ctx context.Context, adminID, accountID, reason string) error {
	if m.BanFunc != nil {
		return m.BanFunc(ctx, adminID, accountID, reason)
	}
	return nil
}

func (m *mockAdminManager) Unban(ctx context.Context, adminID, accountID string) error {
	if m.UnbanFunc != nil {
		return m.UnbanFunc(ctx, adminID, accountID)
	}
	return nil
}

func (m *mockAdminManager) Unlock(ctx context.Context, adminID, accountID string) error {
	if m.UnlockFunc != nil {
		return m.UnlockFunc(ctx, adminID, accountID)
	}
	return nil
}

func (m *mockAdminManager) ChangeRole(ctx context.Context, adminID, accountID, role string) error {
	if m.ChangeRoleFunc != nil {
		return m.ChangeRoleFunc(ctx, adminID, accountID, role)
	}
	return nil
}

// mockAuditReader implements AuditReader.
type mockAuditReader struct {
	QueryFunc     func(ctx context.Context, q models.AuditQuery) ([]*models.AuditLog, int64, error)
	ExportCSVFunc func(ctx context.Context, q models.AuditQuery, w io.Writer) error
}

func (m *mockAuditReader) Query(ctx context.Context, q models.AuditQuery) ([]*models.AuditLog, int64, error) {
	if m.QueryFunc != nil {
		return m.QueryFunc(ctx, q)
	}
	return nil, 0, nil
}

func (m *mockAuditReader) ExportCSV(ctx context.Context, q models.AuditQuery, w io.Writer) error {
	if m.ExportCSVFunc != nil {
		return m.ExportCSVFunc(ctx, q, w)
	}
	_, err := w.Write([]byte("id,actor_id,action\n"))
	return err
}

// jsonRequest builds a request with a JSON body.
func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// authenticated attaches an account and session to the request context
// the way the Authenticate middleware does.
func authenticated(r *http.Request, account *models.Account, sessionID string) *http.Request {
	ctx := context.WithValue(r.Context(), auth.AccountContextKey, account)
	ctx = context.WithValue(ctx, auth.SessionContextKey, sessionID)
	return r.WithContext(ctx)
}

func testAccount(t *testing.T) *models.Account {
	t.Helper()
	return &models.Account{
		ID:    uuid.New().String(),
		Email: "account@example.com",
		Name:  "Account",
		Role:  models.RoleCustomer,
	}
}
