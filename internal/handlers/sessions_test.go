package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkwell-labs/gatekeeper/internal/models"
)

func TestSessionList_MarksCurrent(t *testing.T) {
	sessions := &mockSessionManager{
		ListFunc: func(ctx context.Context, accountID string) ([]models.Session, error) {
			return []models.Session{{ID: "sess-1"}, {ID: "sess-2"}}, nil
		},
	}
	handler := NewSessionHandler(sessions)

	req := authenticated(httptest.NewRequest("GET", "/sessions", nil), testAccount(t), "sess-2")
	recorder := httptest.NewRecorder()
	handler.List(recorder, req)

	require.Equal(t, http.StatusOK, recorder.Code)

	var body struct {
		Sessions []struct {
			ID      string `json:"id"`
			Current bool   `json:"current"`
		} `json:"sessions"`
	}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &body))
	require.Len(t, body.Sessions, 2)
	assert.False(t, body.Sessions[0].Current)
	assert.True(t, body.Sessions[1].Current)
}

func TestSessionRevoke_NotFound(t *testing.T) {
	sessions := &mockSessionManager{
		RevokeFunc: func(ctx context.Context, accountID, sessionID string) error {
			return models.ErrNotFound
		},
	}
	handler := NewSessionHandler(sessions)

	router := chi.NewRouter()
	router.Delete("/sessions/{id}", handler.Revoke)

	req := authenticated(httptest.NewRequest("DELETE", "/sessions/sess-9", nil), testAccount(t), "sess-1")
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)

	assert.Equal(t, http.StatusNotFound, recorder.Code)
}

func TestSessionRevokeOthers(t *testing.T) {
	var keptSession string
	sessions := &mockSessionManager{
		RevokeAllExceptFunc: func(ctx context.Context, accountID, keepSessionID string) (int, error) {
			keptSession = keepSessionID
			return 3, nil
		},
	}
	handler := NewSessionHandler(sessions)

	req := authenticated(httptest.NewRequest("DELETE", "/sessions/others", nil), testAccount(t), "sess-1")
	recorder := httptest.NewRecorder()
	handler.RevokeOthers(recorder, req)

	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, "sess-1", keptSession)

	var body map[string]int
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &body))
	assert.Equal(t, 3, body["revoked"])
}

func TestSessionList_Unauthenticated(t *testing.T) {
	handler := NewSessionHandler(&mockSessionManager{})

	recorder := httptest.NewRecorder()
	handler.List(recorder, httptest.NewRequest("GET", "/sessions", nil))

	assert.Equal(t, http.StatusUnauthorized, recorder.Code)
}
