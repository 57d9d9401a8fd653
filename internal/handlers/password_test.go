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
	"github.com/inkwell-labs/gatekeeper/pkg/password"
)

func TestPasswordChange_Success(t *testing.T) {
	handler := NewPasswordHandler(&mockPasswordManager{})

	req := authenticated(jsonRequest("PUT", "/password",
		`{"current_password":"old","new_password":"new"}`), testAccount(t), "sess-1")
	recorder := httptest.NewRecorder()
	handler.Change(recorder, req)

	assert.Equal(t, http.StatusNoContent, recorder.Code)
}

func TestPasswordChange_WrongCurrent(t *testing.T) {
	manager := &mockPasswordManager{
		ChangeFunc: func(ctx context.Context, accountID, sessionID, current, next string) (*password.Result, error) {
			return nil, models.ErrUnauthorized
		},
	}
	handler := NewPasswordHandler(manager)

	req := authenticated(jsonRequest("PUT", "/password",
		`{"current_password":"wrong","new_password":"new"}`), testAccount(t), "sess-1")
	recorder := httptest.NewRecorder()
	handler.Change(recorder, req)

	assert.Equal(t, http.StatusUnauthorized, recorder.Code)
}

func TestPasswordChange_WeakReplacement(t *testing.T) {
	manager := &mockPasswordManager{
		ChangeFunc: func(ctx context.Context, accountID, sessionID, current, next string) (*password.Result, error) {
			return &password.Result{Valid: false, ComplexityErrors: []string{"too short"}}, models.ErrBadRequest
		},
	}
	handler := NewPasswordHandler(manager)

	req := authenticated(jsonRequest("PUT", "/password",
		`{"current_password":"old","new_password":"x"}`), testAccount(t), "sess-1")
	recorder := httptest.NewRecorder()
	handler.Change(recorder, req)

	require.Equal(t, http.StatusBadRequest, recorder.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &body))
	assert.Equal(t, "weak_password", body["error"])
}

func TestPasswordChange_Unauthenticated(t *testing.T) {
	handler := NewPasswordHandler(&mockPasswordManager{})

	recorder := httptest.NewRecorder()
	handler.Change(recorder, jsonRequest("PUT", "/password",
		`{"current_password":"old","new_password":"new"}`))

	assert.Equal(t, http.StatusUnauthorized, recorder.Code)
}

func TestPasswordRequestReset_AlwaysAccepted(t *testing.T) {
	manager := &mockPasswordManager{
		RequestResetFunc: func(ctx context.Context, email string) error {
			return models.ErrInternalServer
		},
	}
	handler := NewPasswordHandler(manager)

	recorder := httptest.NewRecorder()
	handler.RequestReset(recorder, jsonRequest("POST", "/password/reset",
		`{"email":"a@example.com"}`))

	// Identical response regardless of outcome
	assert.Equal(t, http.StatusAccepted, recorder.Code)
}

func TestPasswordConfirmReset_BadToken(t *testing.T) {
	manager := &mockPasswordManager{
		ConfirmResetFunc: func(ctx context.Context, token, next string) (*password.Result, error) {
			return nil, models.ErrVerificationFailed
		},
	}
	handler := NewPasswordHandler(manager)

	recorder := httptest.NewRecorder()
	handler.ConfirmReset(recorder, jsonRequest("POST", "/password/reset/confirm",
		`{"token":"bogus","new_password":"new"}`))

	assert.Equal(t, http.StatusUnauthorized, recorder.Code)
}
