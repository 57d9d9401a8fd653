package models

import (
	"time"
)

// Verification variants. The code variant is a short numeric OTP used on
// the registration and login paths; the link variant is an opaque token
// carried in a URL, used for resend-verification and password reset.
const (
	VerificationKindCode = "code"
	VerificationKindLink = "link"
)

// Verification purposes
const (
	VerificationPurposeEmail         = "email"
	VerificationPurposePasswordReset = "password_reset"
)

// VerificationToken is a pending one-time verification for an account.
// Only the hash of the code or token is stored. Issuing a new
// verification for the same account and purpose replaces the prior one.
type VerificationToken struct {
	ID        string
	AccountID string
	Kind      string
	Purpose   string
	TokenHash string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// IsExpired checks if the verification has expired
func (v *VerificationToken) IsExpired() bool {
	return time.Now().After(v.ExpiresAt)
}
