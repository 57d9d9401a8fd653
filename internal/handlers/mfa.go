package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/inkwell-labs/gatekeeper/internal/auth"
	"github.com/inkwell-labs/gatekeeper/internal/models"
	"github.com/inkwell-labs/gatekeeper/internal/services"
	pkghttp "github.com/inkwell-labs/gatekeeper/pkg/http"
)

// MFAManager defines the interface for MFA enrollment and management
type MFAManager interface {
	StartSetup(ctx context.Context, accountID string) (*services.SetupResponse, error)
	ConfirmSetup(ctx context.Context, accountID, code string) (*services.BackupCodesResponse, error)
	RegenerateBackupCodes(ctx context.Context, accountID, currentPassword string) (*services.BackupCodesResponse, error)
	Disable(ctx context.Context, accountID, currentPassword string) error
}

// MFAHandler handles multi-factor enrollment endpoints. Challenge
// verification during login lives on the auth flow, not here.
type MFAHandler struct {
	service MFAManager
}

// NewMFAHandler creates a new MFAHandler
func NewMFAHandler(service MFAManager) *MFAHandler {
	return &MFAHandler{service: service}
}

// ConfirmSetupRequest represents the request body for confirming MFA setup
type ConfirmSetupRequest struct {
	Code string `json:"code" validate:"required,len=6,numeric"`
}

// PasswordConfirmRequest re-asserts the account password for sensitive
// MFA changes
type PasswordConfirmRequest struct {
	Password string `json:"password" validate:"required"`
}

// StartSetup begins TOTP enrollment for the calling account.
// @Summary Start MFA setup
// @Security BearerAuth
// @Produce json
// @Success 200 {object} services.SetupResponse
// @Failure 409 {object} pkghttp.ErrorResponse
// @Router /mfa/setup [post]
func (h *MFAHandler) StartSetup(w http.ResponseWriter, r *http.Request) {
	account := auth.GetAccountFromContext(r)
	if account == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	resp, err := h.service.StartSetup(r.Context(), account.ID)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrConflict):
			pkghttp.WriteConflict(w, "MFA is already enabled")
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// ConfirmSetup proves possession of the authenticator and enables MFA.
// The backup codes in the response are shown exactly once.
// @Summary Confirm MFA setup
// @Security BearerAuth
// @Accept json
// @Param request body ConfirmSetupRequest true "Confirm setup request"
// @Produce json
// @Success 200 {object} services.BackupCodesResponse
// @Failure 401 {object} pkghttp.ErrorResponse
// @Router /mfa/setup/confirm [post]
func (h *MFAHandler) ConfirmSetup(w http.ResponseWriter, r *http.Request) {
	account := auth.GetAccountFromContext(r)
	if account == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	var req ConfirmSetupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	resp, err := h.service.ConfirmSetup(r.Context(), account.ID, req.Code)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrMFAInvalidCode):
			pkghttp.WriteUnauthorized(w, "Invalid verification code")
		case errors.Is(err, models.ErrConflict):
			pkghttp.WriteConflict(w, "MFA is already enabled")
		case errors.Is(err, models.ErrMFANotEnabled):
			pkghttp.WriteBadRequest(w, "No MFA setup in progress")
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// RegenerateBackupCodes replaces the full backup code set.
// @Summary Regenerate backup codes
// @Security BearerAuth
// @Accept json
// @Param request body PasswordConfirmRequest true "Password confirmation"
// @Produce json
// @Success 200 {object} services.BackupCodesResponse
// @Failure 401 {object} pkghttp.ErrorResponse
// @Router /mfa/backup-codes [post]
func (h *MFAHandler) RegenerateBackupCodes(w http.ResponseWriter, r *http.Request) {
	account := auth.GetAccountFromContext(r)
	if account == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	var req PasswordConfirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	resp, err := h.service.RegenerateBackupCodes(r.Context(), account.ID, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrUnauthorized):
			pkghttp.WriteUnauthorized(w, "Password confirmation failed")
		case errors.Is(err, models.ErrMFANotEnabled):
			pkghttp.WriteBadRequest(w, "MFA is not enabled")
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// Disable turns MFA off for the calling account.
// @Summary Disable MFA
// @Security BearerAuth
// @Accept json
// @Param request body PasswordConfirmRequest true "Password confirmation"
// @Success 204
// @Failure 401 {object} pkghttp.ErrorResponse
// @Router /mfa [delete]
func (h *MFAHandler) Disable(w http.ResponseWriter, r *http.Request) {
	account := auth.GetAccountFromContext(r)
	if account == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	var req PasswordConfirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	if err := h.service.Disable(r.Context(), account.ID, req.Password); err != nil {
		switch {
		case errors.Is(err, models.ErrUnauthorized):
			pkghttp.WriteUnauthorized(w, "Password confirmation failed")
		case errors.Is(err, models.ErrMFANotEnabled):
			pkghttp.WriteBadRequest(w, "MFA is not enabled")
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
