package password

import (
	"time"
)

const (
	// MaxAge is how long a password stays valid after a change.
	MaxAge = 90 * 24 * time.Hour

	// ExpiryWarnWindow is how close to expiry the warning flag trips.
	ExpiryWarnWindow = 14 * 24 * time.Hour
)

// ExpiryStatus reports where a password sits in its 90-day lifetime.
type ExpiryStatus struct {
	Expired         bool `json:"expired"`
	DaysUntilExpiry int  `json:"days_until_expiry"`
	ShouldWarn      bool `json:"should_warn"`
}

// CheckExpiry evaluates an expiry timestamp. A nil timestamp (OAuth-only
// accounts, legacy records) never expires.
func CheckExpiry(expiresAt *time.Time) ExpiryStatus {
	if expiresAt == nil {
		return ExpiryStatus{}
	}

	remaining := time.Until(*expiresAt)
	if remaining <= 0 {
		return ExpiryStatus{Expired: true}
	}

	days := int(remaining / (24 * time.Hour))
	return ExpiryStatus{
		DaysUntilExpiry: days,
		ShouldWarn:      remaining <= ExpiryWarnWindow,
	}
}

// NextExpiry returns the expiry timestamp for a password changed now.
func NextExpiry(changedAt time.Time) time.Time {
	return changedAt.Add(MaxAge)
}
