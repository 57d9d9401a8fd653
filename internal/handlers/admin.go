package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/inkwell-labs/gatekeeper/internal/auth"
	"github.com/inkwell-labs/gatekeeper/internal/models"
	"github.com/inkwell-labs/gatekeeper/internal/services"
	pkghttp "github.com/inkwell-labs/gatekeeper/pkg/http"
)

// AdminManager defines the interface for operational account actions
type AdminManager interface {
	ListAccounts(ctx context.Context, limit, offset int) ([]*services.AccountResponse, error)
	Ban(ctx context.Context, adminID, accountID, reason string) error
	Unban(ctx context.Context, adminID, accountID string) error
	Unlock(ctx context.Context, adminID, accountID string) error
	ChangeRole(ctx context.Context, adminID, accountID, role string) error
}

// AdminHandler handles admin-only account management. Routes mounting
// it must sit behind RequireRole(admin).
type AdminHandler struct {
	service AdminManager
}

// NewAdminHandler creates a new AdminHandler
func NewAdminHandler(service AdminManager) *AdminHandler {
	return &AdminHandler{service: service}
}

// BanRequest represents the request body for banning an account
type BanRequest struct {
	Reason string `json:"reason" validate:"required,min=1,max=500"`
}

// ChangeRoleRequest represents the request body for a role change
type ChangeRoleRequest struct {
	Role string `json:"role" validate:"required,oneof=customer worker writer admin"`
}

// ListAccounts pages through all accounts.
// @Summary List accounts
// @Security BearerAuth
// @Param limit query int false "Page size"
// @Param offset query int false "Page offset"
// @Produce json
// @Success 200
// @Router /admin/accounts [get]
func (h *AdminHandler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	accounts, err := h.service.ListAccounts(r.Context(), limit, offset)
	if err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"accounts": accounts})
}

// Ban bans an account and revokes its sessions.
// @Summary Ban an account
// @Security BearerAuth
// @Accept json
// @Param id path string true "Account ID"
// @Param request body BanRequest true "Ban request"
// @Success 204
// @Failure 409 {object} pkghttp.ErrorResponse
// @Router /admin/accounts/{id}/ban [post]
func (h *AdminHandler) Ban(w http.ResponseWriter, r *http.Request) {
	admin := auth.GetAccountFromContext(r)
	if admin == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	var req BanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	err := h.service.Ban(r.Context(), admin.ID, chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrNotFound):
			pkghttp.WriteNotFound(w, "Account not found")
		case errors.Is(err, models.ErrConflict):
			pkghttp.WriteConflict(w, "Account is already banned")
		case errors.Is(err, models.ErrBadRequest):
			pkghttp.WriteBadRequest(w, "Cannot ban your own account")
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Unban lifts a ban.
// @Summary Unban an account
// @Security BearerAuth
// @Param id path string true "Account ID"
// @Success 204
// @Failure 409 {object} pkghttp.ErrorResponse
// @Router /admin/accounts/{id}/unban [post]
func (h *AdminHandler) Unban(w http.ResponseWriter, r *http.Request) {
	admin := auth.GetAccountFromContext(r)
	if admin == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	err := h.service.Unban(r.Context(), admin.ID, chi.URLParam(r, "id"))
	if err != nil {
		switch {
		case errors.Is(err, models.ErrNotFound):
			pkghttp.WriteNotFound(w, "Account not found")
		case errors.Is(err, models.ErrConflict):
			pkghttp.WriteConflict(w, "Account is not banned")
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Unlock clears a lockout ahead of the timer.
// @Summary Unlock an account
// @Security BearerAuth
// @Param id path string true "Account ID"
// @Success 204
// @Failure 404 {object} pkghttp.ErrorResponse
// @Router /admin/accounts/{id}/unlock [post]
func (h *AdminHandler) Unlock(w http.ResponseWriter, r *http.Request) {
	admin := auth.GetAccountFromContext(r)
	if admin == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	err := h.service.Unlock(r.Context(), admin.ID, chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			pkghttp.WriteNotFound(w, "Account not found")
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ChangeRole reassigns an account's role.
// @Summary Change an account's role
// @Security BearerAuth
// @Accept json
// @Param id path string true "Account ID"
// @Param request body ChangeRoleRequest true "Change role request"
// @Success 204
// @Failure 400 {object} pkghttp.ErrorResponse
// @Router /admin/accounts/{id}/role [put]
func (h *AdminHandler) ChangeRole(w http.ResponseWriter, r *http.Request) {
	admin := auth.GetAccountFromContext(r)
	if admin == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	var req ChangeRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	err := h.service.ChangeRole(r.Context(), admin.ID, chi.URLParam(r, "id"), req.Role)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrNotFound):
			pkghttp.WriteNotFound(w, "Account not found")
		case errors.Is(err, models.ErrBadRequest):
			pkghttp.WriteBadRequest(w, "Invalid role")
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
