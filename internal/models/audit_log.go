package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Audit actions form a closed enum. New kinds are appended, never renamed,
// so historical entries stay interpretable.
const (
	AuditActionLogin              = "login"
	AuditActionLoginFailed        = "login_failed"
	AuditActionLoginBlocked       = "login_blocked"
	AuditActionRegister           = "register"
	AuditActionLogout             = "logout"
	AuditActionAccountLocked      = "account_locked"
	AuditActionAccountUnlocked    = "account_unlocked"
	AuditActionIPBlocked          = "ip_blocked"
	AuditActionCaptchaRequired    = "captcha_required"
	AuditActionCaptchaFailed      = "captcha_failed"
	AuditActionBannedAccess       = "banned_access_attempt"
	AuditActionEmailCodeSent      = "email_verification_sent"
	AuditActionEmailVerified      = "email_verified"
	AuditActionMFASetupStarted    = "mfa_setup_started"
	AuditActionMFAEnabled         = "mfa_enabled"
	AuditActionMFADisabled        = "mfa_disabled"
	AuditActionMFAChallengeFailed = "mfa_challenge_failed"
	AuditActionBackupCodeUsed     = "backup_code_used"
	AuditActionSessionCreated     = "session_created"
	AuditActionSessionRevoked     = "session_revoked"
	AuditActionSessionsRevokedAll = "sessions_revoked_all"
	AuditActionPasswordChanged    = "password_change"
	AuditActionPasswordResetReq   = "password_reset_requested"
	AuditActionPasswordResetDone  = "password_reset_completed"
	AuditActionNewLocation        = "new_location_detected"
	AuditActionAccountBanned      = "account_banned"
	AuditActionAccountUnbanned    = "account_unbanned"
	AuditActionRoleChanged        = "role_changed"
)

// Outcomes
const (
	AuditOutcomeSuccess = "success"
	AuditOutcomeFailure = "failure"
	AuditOutcomeWarning = "warning"
)

// Severities
const (
	AuditSeverityLow      = "low"
	AuditSeverityMedium   = "medium"
	AuditSeverityHigh     = "high"
	AuditSeverityCritical = "critical"
)

// AuditLog is an immutable append-only record of one security event.
// Application code never updates or deletes entries; retention is an
// operational concern.
type AuditLog struct {
	ID        uuid.UUID     `db:"id"`
	ActorID   uuid.UUID     `db:"actor_id"`
	Action    string        `db:"action"`
	Outcome   string        `db:"outcome"`
	Severity  string        `db:"severity"`
	IPAddress *string       `db:"ip_address"`
	UserAgent *string       `db:"user_agent"`
	Location  *string       `db:"location"`
	Details   AuditMetadata `db:"details"`
	CreatedAt time.Time     `db:"created_at"`
}

// AuditQuery filters audit-trail reads for the admin dashboards.
type AuditQuery struct {
	ActorID  *uuid.UUID
	Action   string
	Severity string
	Outcome  string
	From     *time.Time
	To       *time.Time
	Search   string // matched against IP and location
	Limit    int
	Offset   int
}

// AuditMetadata holds additional structured context for audit events
type AuditMetadata map[string]interface{}

// Scan implements sql.Scanner for JSONB
func (am *AuditMetadata) Scan(value interface{}) error {
	if value == nil {
		*am = make(AuditMetadata)
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return ErrBadRequest
	}

	var m map[string]interface{}
	if err := json.Unmarshal(bytes, &m); err != nil {
		return err
	}
	*am = AuditMetadata(m)
	return nil
}

// Value implements driver.Valuer for JSONB
func (am AuditMetadata) Value() (driver.Value, error) {
	if am == nil {
		return nil, nil
	}
	return json.Marshal(am)
}

// MarshalJSON implements json.Marshaler
func (am AuditMetadata) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]interface{}(am))
}

// UnmarshalJSON implements json.Unmarshaler
func (am *AuditMetadata) UnmarshalJSON(data []byte) error {
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	*am = AuditMetadata(m)
	return nil
}
