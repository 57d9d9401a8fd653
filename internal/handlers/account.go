package handlers

import (
	"net/http"

	"github.com/inkwell-labs/gatekeeper/internal/auth"
	"github.com/inkwell-labs/gatekeeper/internal/services"
	pkghttp "github.com/inkwell-labs/gatekeeper/pkg/http"
)

// AccountHandler serves the calling account's own profile.
type AccountHandler struct{}

// NewAccountHandler creates a new AccountHandler
func NewAccountHandler() *AccountHandler {
	return &AccountHandler{}
}

// Me returns the authenticated account, including password expiry state
// so clients can prompt for rotation.
// @Summary Get the current account
// @Security BearerAuth
// @Produce json
// @Success 200 {object} services.AccountResponse
// @Failure 401 {object} pkghttp.ErrorResponse
// @Router /me [get]
func (h *AccountHandler) Me(w http.ResponseWriter, r *http.Request) {
	account := auth.GetAccountFromContext(r)
	if account == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	writeJSON(w, http.StatusOK, services.NewAccountResponse(account))
}
