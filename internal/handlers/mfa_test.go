package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkwell-labs/gatekeeper/internal/models"
	"github.com/inkwell-labs/gatekeeper/internal/services"
)

func TestMFAStartSetup_AlreadyEnabled(t *testing.T) {
	manager := &mockMFAManager{
		StartSetupFunc: func(ctx context.Context, accountID string) (*services.SetupResponse, error) {
			return nil, models.ErrConflict
		},
	}
	handler := NewMFAHandler(manager)

	req := authenticated(httptest.NewRequest("POST", "/mfa/setup", nil), testAccount(t), "sess-1")
	recorder := httptest.NewRecorder()
	handler.StartSetup(recorder, req)

	assert.Equal(t, http.StatusConflict, recorder.Code)
}

func TestMFAConfirmSetup_ReturnsBackupCodes(t *testing.T) {
	handler := NewMFAHandler(&mockMFAManager{})

	req := authenticated(jsonRequest("POST", "/mfa/setup/confirm", `{"code":"123456"}`), testAccount(t), "sess-1")
	recorder := httptest.NewRecorder()
	handler.ConfirmSetup(recorder, req)

	require.Equal(t, http.StatusOK, recorder.Code)

	var body services.BackupCodesResponse
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &body))
	assert.NotEmpty(t, body.BackupCodes)
}

func TestMFAConfirmSetup_InvalidCode(t *testing.T) {
	manager := &mockMFAManager{
		ConfirmSetupFunc: func(ctx context.Context, accountID, code string) (*services.BackupCodesResponse, error) {
			return nil, models.ErrMFAInvalidCode
		},
	}
	handler := NewMFAHandler(manager)

	req := authenticated(jsonRequest("POST", "/mfa/setup/confirm", `{"code":"000000"}`), testAccount(t), "sess-1")
	recorder := httptest.NewRecorder()
	handler.ConfirmSetup(recorder, req)

	assert.Equal(t, http.StatusUnauthorized, recorder.Code)
}

func TestMFAConfirmSetup_RejectsNonNumericCode(t *testing.T) {
	handler := NewMFAHandler(&mockMFAManager{})

	req := authenticated(jsonRequest("POST", "/mfa/setup/confirm", `{"code":"abcdef"}`), testAccount(t), "sess-1")
	recorder := httptest.NewRecorder()
	handler.ConfirmSetup(recorder, req)

	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestMFADisable_WrongPassword(t *testing.T) {
	manager := &mockMFAManager{
		DisableFunc: func(ctx context.Context, accountID, currentPassword string) error {
			return models.ErrUnauthorized
		},
	}
	handler := NewMFAHandler(manager)

	req := authenticated(jsonRequest("DELETE", "/mfa", `{"password":"wrong"}`), testAccount(t), "sess-1")
	recorder := httptest.NewRecorder()
	handler.Disable(recorder, req)

	assert.Equal(t, http.StatusUnauthorized, recorder.Code)
}

func TestMFARegenerateBackupCodes_NotEnabled(t *testing.T) {
	manager := &mockMFAManager{
		RegenerateBackupCodesFunc: func(ctx context.Context, accountID, currentPassword string) (*services.BackupCodesResponse, error) {
			return nil, models.ErrMFANotEnabled
		},
	}
	handler := NewMFAHandler(manager)

	req := authenticated(jsonRequest("POST", "/mfa/backup-codes", `{"password":"pw"}`), testAccount(t), "sess-1")
	recorder := httptest.NewRecorder()
	handler.RegenerateBackupCodes(recorder, req)

	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}
