package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/inkwell-labs/gatekeeper/internal/models"
)

// SessionClaims binds a token to both an account and a session entry.
// A signature-valid token whose session no longer exists in the
// account's active list is rejected at lookup time; that is what makes
// revocation effective without a separate denylist.
type SessionClaims struct {
	AccountID string `json:"account_id"`
	SessionID string `json:"session_id"`
	jwt.RegisteredClaims
}

// TokenManager signs and validates session bearer tokens.
type TokenManager struct {
	secret   string
	validity time.Duration
}

// NewTokenManager creates a TokenManager. validity is the fixed token
// window (30 days in production config); revocation is enforced at
// session lookup, not by shortening this.
func NewTokenManager(secret string, validity time.Duration) *TokenManager {
	return &TokenManager{
		secret:   secret,
		validity: validity,
	}
}

// Generate creates a signed session token.
func (tm *TokenManager) Generate(accountID, sessionID string) (string, error) {
	now := time.Now()
	claims := &SessionClaims{
		AccountID: accountID,
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(tm.validity)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(tm.secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}

	return signed, nil
}

// Validate verifies a token's signature and expiry and returns its
// claims. Session membership is checked separately by the middleware.
func (tm *TokenManager) Validate(tokenString string) (*SessionClaims, error) {
	claims := &SessionClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(tm.secret), nil
	})
	if err != nil {
		return nil, models.ErrTokenInvalid
	}

	if !token.Valid {
		return nil, models.ErrTokenInvalid
	}

	if claims.AccountID == "" || claims.SessionID == "" {
		return nil, models.ErrTokenInvalid
	}

	return claims, nil
}
