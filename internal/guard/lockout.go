package guard

import (
	"time"

	"github.com/inkwell-labs/gatekeeper/internal/models"
)

const (
	// MaxAccountFailures is the cumulative failure count that locks an
	// account.
	MaxAccountFailures = 5

	// AccountLockDuration is the enforced lock length. Some product
	// documentation still says 30 minutes; 5 minutes is the behavior
	// customers have relied on. TODO: reconcile the docs with support
	// before changing this value.
	AccountLockDuration = 5 * time.Minute
)

// ClearExpiredLock resets the failure counter when a previously set
// lock has run out. Returns true if the account was mutated and needs
// to be persisted.
func ClearExpiredLock(account *models.Account) bool {
	if account.LockedUntil == nil {
		return false
	}
	if time.Now().Before(*account.LockedUntil) {
		return false
	}
	account.LockedUntil = nil
	account.FailedLoginCount = 0
	account.LastFailedLoginAt = nil
	return true
}

// RegisterFailure increments the account's failure counter and applies
// the lock at the threshold. Returns true if this failure locked the
// account. The caller persists the account and audits the transition.
func RegisterFailure(account *models.Account) bool {
	now := time.Now()
	account.FailedLoginCount++
	account.LastFailedLoginAt = &now

	if account.FailedLoginCount >= MaxAccountFailures {
		lockedUntil := now.Add(AccountLockDuration)
		account.LockedUntil = &lockedUntil
		return true
	}
	return false
}

// ResetFailures clears lockout state after a successful login.
func ResetFailures(account *models.Account) {
	account.FailedLoginCount = 0
	account.LastFailedLoginAt = nil
	account.LockedUntil = nil
}

// RequiresCaptcha reports whether the account has accumulated enough
// failures that attempts must carry a verified challenge token.
func RequiresCaptcha(account *models.Account) bool {
	return account.FailedLoginCount >= CaptchaThreshold
}

// FailureSeverity maps a failure count onto an audit severity,
// escalating as the count approaches the lock threshold.
func FailureSeverity(failures int) string {
	if failures >= MaxAccountFailures-1 {
		return models.AuditSeverityHigh
	}
	return models.AuditSeverityMedium
}
