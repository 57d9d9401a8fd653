package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/inkwell-labs/gatekeeper/internal/models"
)

// contextKey is a custom type for context keys
type contextKey string

const (
	// AccountContextKey is the key for storing the resolved account in context
	AccountContextKey contextKey = "account"
	// SessionContextKey is the key for storing the current session ID in context
	SessionContextKey contextKey = "session_id"
)

// AccountFetcher resolves account records during token validation.
type AccountFetcher interface {
	GetByID(ctx context.Context, id string) (*models.Account, error)
}

// SessionToucher records session activity after a successful validation.
type SessionToucher interface {
	Touch(ctx context.Context, accountID, sessionID string) error
}

// Authenticate validates the bearer token (Authorization header first,
// session cookie as fallback), resolves the account, and verifies that
// the token's session still exists in the account's active list. A
// missing session produces a "session revoked" rejection distinct from
// "token invalid": the signature was fine, the session was not.
func Authenticate(tm *TokenManager, accounts AccountFetcher, toucher SessionToucher) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString := extractToken(r)
			if tokenString == "" {
				http.Error(w, "missing credentials", http.StatusUnauthorized)
				return
			}

			claims, err := tm.Validate(tokenString)
			if err != nil {
				http.Error(w, "invalid or expired token", http.StatusUnauthorized)
				return
			}

			account, err := accounts.GetByID(r.Context(), claims.AccountID)
			if err != nil {
				if errors.Is(err, models.ErrNotFound) {
					http.Error(w, "invalid or expired token", http.StatusUnauthorized)
					return
				}
				http.Error(w, "internal server error", http.StatusInternalServerError)
				return
			}

			if account.Banned {
				http.Error(w, "account is banned", http.StatusForbidden)
				return
			}

			if account.FindSession(claims.SessionID) < 0 {
				http.Error(w, "session has been revoked", http.StatusUnauthorized)
				return
			}

			// Activity stamping is best effort; a write failure must not
			// reject an otherwise valid request.
			if toucher != nil {
				_ = toucher.Touch(r.Context(), account.ID, claims.SessionID)
			}

			ctx := context.WithValue(r.Context(), AccountContextKey, account)
			ctx = context.WithValue(ctx, SessionContextKey, claims.SessionID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole enforces role-based access after Authenticate. The
// deprecated "writer" alias is normalized before comparison.
func RequireRole(roles ...string) func(next http.Handler) http.Handler {
	allowed := make(map[string]bool, len(roles))
	for _, role := range roles {
		allowed[models.NormalizeRole(role)] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			account := GetAccountFromContext(r)
			if account == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			if !allowed[models.NormalizeRole(account.Role)] {
				http.Error(w, "forbidden: insufficient permissions", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// GetAccountFromContext extracts the resolved account from request context
func GetAccountFromContext(r *http.Request) *models.Account {
	account, ok := r.Context().Value(AccountContextKey).(*models.Account)
	if !ok {
		return nil
	}
	return account
}

// GetSessionIDFromContext extracts the current session ID from request context
func GetSessionIDFromContext(r *http.Request) string {
	sessionID, ok := r.Context().Value(SessionContextKey).(string)
	if !ok {
		return ""
	}
	return sessionID
}

func extractToken(r *http.Request) string {
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && parts[0] == "Bearer" {
			return parts[1]
		}
		return ""
	}

	if cookieToken, err := GetSessionCookie(r); err == nil {
		return cookieToken
	}

	return ""
}
