package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/inkwell-labs/gatekeeper/internal/auth"
	"github.com/inkwell-labs/gatekeeper/internal/models"
	pkghttp "github.com/inkwell-labs/gatekeeper/pkg/http"
)

// SessionManager defines the interface for session listing and revocation
type SessionManager interface {
	List(ctx context.Context, accountID string) ([]models.Session, error)
	Revoke(ctx context.Context, accountID, sessionID string) error
	RevokeAllExcept(ctx context.Context, accountID, keepSessionID string) (int, error)
}

// SessionHandler exposes the calling account's active sessions.
type SessionHandler struct {
	service SessionManager
}

// NewSessionHandler creates a new SessionHandler
func NewSessionHandler(service SessionManager) *SessionHandler {
	return &SessionHandler{service: service}
}

// List returns the account's active sessions, marking the caller's own.
// @Summary List active sessions
// @Security BearerAuth
// @Produce json
// @Success 200
// @Router /sessions [get]
func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	account := auth.GetAccountFromContext(r)
	if account == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	sessions, err := h.service.List(r.Context(), account.ID)
	if err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	current := auth.GetSessionIDFromContext(r)
	type sessionView struct {
		models.Session
		Current bool `json:"current"`
	}
	out := make([]sessionView, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, sessionView{Session: s, Current: s.ID == current})
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"sessions": out})
}

// Revoke terminates one session by ID. Revoking the calling session is
// allowed and equivalent to logout.
// @Summary Revoke a session
// @Security BearerAuth
// @Param id path string true "Session ID"
// @Success 204
// @Failure 404 {object} pkghttp.ErrorResponse
// @Router /sessions/{id} [delete]
func (h *SessionHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	account := auth.GetAccountFromContext(r)
	if account == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	sessionID := chi.URLParam(r, "id")
	if sessionID == "" {
		pkghttp.WriteBadRequest(w, "Missing session ID")
		return
	}

	if err := h.service.Revoke(r.Context(), account.ID, sessionID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			pkghttp.WriteNotFound(w, "Session not found")
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// RevokeOthers terminates every session except the calling one.
// @Summary Revoke all other sessions
// @Security BearerAuth
// @Produce json
// @Success 200
// @Router /sessions/others [delete]
func (h *SessionHandler) RevokeOthers(w http.ResponseWriter, r *http.Request) {
	account := auth.GetAccountFromContext(r)
	sessionID := auth.GetSessionIDFromContext(r)
	if account == nil || sessionID == "" {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	revoked, err := h.service.RevokeAllExcept(r.Context(), account.ID, sessionID)
	if err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]int{"revoked": revoked})
}
