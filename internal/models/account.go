package models

import (
	"time"
)

// Account roles. "writer" is a deprecated alias for worker kept for
// records created before the rename; NormalizeRole folds it away.
const (
	RoleCustomer = "customer"
	RoleWorker   = "worker"
	RoleAdmin    = "admin"

	// Deprecated: use RoleWorker.
	RoleWriter = "writer"
)

// NormalizeRole maps legacy role values onto the current closed set.
func NormalizeRole(role string) string {
	if role == RoleWriter {
		return RoleWorker
	}
	return role
}

// ValidRole reports whether role belongs to the accepted set, including
// the deprecated alias.
func ValidRole(role string) bool {
	switch role {
	case RoleCustomer, RoleWorker, RoleAdmin, RoleWriter:
		return true
	}
	return false
}

// MFA method tags. Only time-based codes are implemented today.
const MFAMethodTOTP = "totp"

// MaxActiveSessions bounds the concurrent session list per account.
// Inserting beyond the bound evicts the oldest entry.
const MaxActiveSessions = 5

// Account is the credential store record for one identity.
type Account struct {
	ID    string
	Email string // unique, stored lowercase
	Name  string
	Role  string

	// Credential. PasswordHash is empty for OAuth-only accounts.
	PasswordHash       string
	PasswordChangedAt  *time.Time
	PasswordExpiresAt  *time.Time
	MustChangePassword bool

	EmailVerified bool

	// MFA. The shared secret is only ever persisted encrypted; see
	// auth.SecretCodec for the persistence-boundary codec.
	MFAEnabled         bool
	MFAMethod          string
	MFASecretEncrypted []byte
	MFASecretNonce     []byte
	BackupCodes        []BackupCodeEntry

	// Lockout state
	FailedLoginCount  int
	LastFailedLoginAt *time.Time
	LockedUntil       *time.Time

	ActiveSessions []Session

	Banned    bool
	BanReason *string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsLocked reports whether the account lock is still in effect.
func (a *Account) IsLocked() bool {
	return a.LockedUntil != nil && time.Now().Before(*a.LockedUntil)
}

// LockRemaining returns the time left on an active lock, or zero.
func (a *Account) LockRemaining() time.Duration {
	if a.LockedUntil == nil {
		return 0
	}
	remaining := time.Until(*a.LockedUntil)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// HasPassword reports whether the account carries a manually
// authenticated credential. OAuth-only accounts have none.
func (a *Account) HasPassword() bool {
	return a.PasswordHash != ""
}

// Session is one entry in the bounded active-session list.
type Session struct {
	ID           string    `json:"id"`
	Device       string    `json:"device"`
	IPAddress    string    `json:"ip_address"`
	Location     string    `json:"location"`
	CreatedAt    time.Time `json:"created_at"`
	LastActiveAt time.Time `json:"last_active_at"`
}

// FindSession returns the index of the session with the given ID, or -1.
func (a *Account) FindSession(sessionID string) int {
	for i, s := range a.ActiveSessions {
		if s.ID == sessionID {
			return i
		}
	}
	return -1
}

// AppendSession adds a session, evicting the oldest entry when the
// bound is exceeded. Entries are kept in insertion order.
func (a *Account) AppendSession(s Session) {
	a.ActiveSessions = append(a.ActiveSessions, s)
	if len(a.ActiveSessions) > MaxActiveSessions {
		a.ActiveSessions = a.ActiveSessions[len(a.ActiveSessions)-MaxActiveSessions:]
	}
}

// BackupCodeEntry is a single hashed one-time recovery code. A matched
// entry is removed from the stored list.
type BackupCodeEntry struct {
	CodeHash  string    `json:"code_hash"`
	CreatedAt time.Time `json:"created_at"`
}

// LoginLocation is one entry in the append-only login-location history.
type LoginLocation struct {
	ID        string
	AccountID string
	IPAddress string
	City      string
	Country   string
	Latitude  float64
	Longitude float64
	IsNew     bool
	CreatedAt time.Time
}
