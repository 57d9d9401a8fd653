package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/inkwell-labs/gatekeeper/internal/auth"
	"github.com/inkwell-labs/gatekeeper/internal/models"
	pkghttp "github.com/inkwell-labs/gatekeeper/pkg/http"
	"github.com/inkwell-labs/gatekeeper/pkg/password"
)

// PasswordManager defines the interface for password change and reset
type PasswordManager interface {
	Change(ctx context.Context, accountID, sessionID, current, next string) (*password.Result, error)
	RequestReset(ctx context.Context, email string) error
	ConfirmReset(ctx context.Context, token, next string) (*password.Result, error)
}

// PasswordHandler handles password lifecycle endpoints.
type PasswordHandler struct {
	service PasswordManager
}

// NewPasswordHandler creates a new PasswordHandler
func NewPasswordHandler(service PasswordManager) *PasswordHandler {
	return &PasswordHandler{service: service}
}

// ChangePasswordRequest represents the request body for a password change
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required"`
}

// RequestResetRequest represents the request body for starting a reset
type RequestResetRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// ConfirmResetRequest represents the request body for completing a reset
type ConfirmResetRequest struct {
	Token       string `json:"token" validate:"required"`
	NewPassword string `json:"new_password" validate:"required"`
}

// Change rotates the calling account's password. Every other session is
// revoked; the calling one survives.
// @Summary Change password
// @Security BearerAuth
// @Accept json
// @Param request body ChangePasswordRequest true "Change password request"
// @Success 204
// @Failure 400 {object} pkghttp.ErrorResponse
// @Failure 401 {object} pkghttp.ErrorResponse
// @Router /password [put]
func (h *PasswordHandler) Change(w http.ResponseWriter, r *http.Request) {
	account := auth.GetAccountFromContext(r)
	sessionID := auth.GetSessionIDFromContext(r)
	if account == nil || sessionID == "" {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	var req ChangePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	policy, err := h.service.Change(r.Context(), account.ID, sessionID, req.CurrentPassword, req.NewPassword)
	if err != nil {
		writePasswordError(w, policy, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// RequestReset starts the emailed reset flow. The response is identical
// whether or not the email is registered.
// @Summary Request a password reset
// @Accept json
// @Param request body RequestResetRequest true "Request reset request"
// @Produce json
// @Success 202
// @Router /password/reset [post]
func (h *PasswordHandler) RequestReset(w http.ResponseWriter, r *http.Request) {
	var req RequestResetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	_ = h.service.RequestReset(r.Context(), req.Email)

	writeJSON(w, http.StatusAccepted, map[string]string{
		"message": "If an account exists with this email, a reset link will be sent.",
	})
}

// ConfirmReset settles an emailed reset token and sets the new
// password. All sessions are revoked.
// @Summary Complete a password reset
// @Accept json
// @Param request body ConfirmResetRequest true "Confirm reset request"
// @Success 204
// @Failure 401 {object} pkghttp.ErrorResponse
// @Router /password/reset/confirm [post]
func (h *PasswordHandler) ConfirmReset(w http.ResponseWriter, r *http.Request) {
	var req ConfirmResetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	policy, err := h.service.ConfirmReset(r.Context(), req.Token, req.NewPassword)
	if err != nil {
		if errors.Is(err, models.ErrVerificationFailed) {
			pkghttp.WriteUnauthorized(w, "Invalid or expired reset token")
			return
		}
		writePasswordError(w, policy, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func writePasswordError(w http.ResponseWriter, policy *password.Result, err error) {
	switch {
	case errors.Is(err, models.ErrUnauthorized):
		pkghttp.WriteUnauthorized(w, "Current password is incorrect")
	case errors.Is(err, models.ErrBadRequest) && policy != nil:
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"error":   "weak_password",
			"message": "Password does not meet the policy",
			"policy":  policy,
		})
	case errors.Is(err, models.ErrBadRequest):
		pkghttp.WriteBadRequest(w, "Invalid password change request")
	default:
		pkghttp.WriteInternalError(w, "Internal server error")
	}
}
