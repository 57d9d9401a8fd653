package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/inkwell-labs/gatekeeper/internal/database"
	"github.com/inkwell-labs/gatekeeper/internal/models"
)

const accountColumns = `
	id, email, name, role, password_hash,
	password_changed_at, password_expires_at, must_change_password,
	email_verified, mfa_enabled, mfa_method, mfa_secret_encrypted, mfa_secret_nonce,
	backup_codes, failed_login_count, last_failed_login_at, locked_until,
	active_sessions, banned, ban_reason, created_at, updated_at`

// AccountRepository handles credential-store data access.
type AccountRepository struct {
	db *database.DB
}

// NewAccountRepository creates a new AccountRepository
func NewAccountRepository(db *database.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

// rowScanner interface for scanning rows (single row and multiple rows)
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanAccountRow handles nullable fields and the JSONB columns.
func scanAccountRow(scanner rowScanner) (*models.Account, error) {
	var account models.Account
	var passwordHash *string
	var mfaMethod *string
	var banReason *string
	var backupCodesJSON, sessionsJSON []byte

	err := scanner.Scan(
		&account.ID, &account.Email, &account.Name, &account.Role, &passwordHash,
		&account.PasswordChangedAt, &account.PasswordExpiresAt, &account.MustChangePassword,
		&account.EmailVerified, &account.MFAEnabled, &mfaMethod,
		&account.MFASecretEncrypted, &account.MFASecretNonce,
		&backupCodesJSON, &account.FailedLoginCount, &account.LastFailedLoginAt, &account.LockedUntil,
		&sessionsJSON, &account.Banned, &banReason,
		&account.CreatedAt, &account.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	if passwordHash != nil {
		account.PasswordHash = *passwordHash
	}
	if mfaMethod != nil {
		account.MFAMethod = *mfaMethod
	}
	account.BanReason = banReason

	if len(backupCodesJSON) > 0 {
		if err := json.Unmarshal(backupCodesJSON, &account.BackupCodes); err != nil {
			return nil, fmt.Errorf("failed to decode backup codes: %w", err)
		}
	}
	if len(sessionsJSON) > 0 {
		if err := json.Unmarshal(sessionsJSON, &account.ActiveSessions); err != nil {
			return nil, fmt.Errorf("failed to decode sessions: %w", err)
		}
	}

	return &account, nil
}

func encodeAccountJSON(account *models.Account) (backupCodes, sessions []byte, err error) {
	backupCodes, err = json.Marshal(account.BackupCodes)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode backup codes: %w", err)
	}
	sessions, err = json.Marshal(account.ActiveSessions)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode sessions: %w", err)
	}
	return backupCodes, sessions, nil
}

func (r *AccountRepository) GetByID(ctx context.Context, id string) (*models.Account, error) {
	query := `SELECT` + accountColumns + ` FROM accounts WHERE id = $1`
	return scanAccountRow(r.db.Pool.QueryRow(ctx, query, id))
}

func (r *AccountRepository) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	query := `SELECT` + accountColumns + ` FROM accounts WHERE email = lower($1)`
	return scanAccountRow(r.db.Pool.QueryRow(ctx, query, email))
}

func (r *AccountRepository) Create(ctx context.Context, account *models.Account) (*models.Account, error) {
	account.ID = uuid.New().String()
	now := time.Now()
	account.CreatedAt = now
	account.UpdatedAt = now

	if account.Role == "" {
		account.Role = models.RoleCustomer
	}
	account.Role = models.NormalizeRole(account.Role)

	backupCodes, sessions, err := encodeAccountJSON(account)
	if err != nil {
		return nil, err
	}

	var passwordHash *string
	if account.PasswordHash != "" {
		passwordHash = &account.PasswordHash
	}

	query := `
		INSERT INTO accounts (
			id, email, name, role, password_hash,
			password_changed_at, password_expires_at, must_change_password,
			email_verified, mfa_enabled, mfa_method, mfa_secret_encrypted, mfa_secret_nonce,
			backup_codes, failed_login_count, last_failed_login_at, locked_until,
			active_sessions, banned, ban_reason, created_at, updated_at
		)
		VALUES ($1, lower($2), $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)
		RETURNING` + accountColumns

	return scanAccountRow(r.db.Pool.QueryRow(ctx, query,
		account.ID, account.Email, account.Name, account.Role, passwordHash,
		account.PasswordChangedAt, account.PasswordExpiresAt, account.MustChangePassword,
		account.EmailVerified, account.MFAEnabled, nullableString(account.MFAMethod),
		account.MFASecretEncrypted, account.MFASecretNonce,
		backupCodes, account.FailedLoginCount, account.LastFailedLoginAt, account.LockedUntil,
		sessions, account.Banned, account.BanReason, account.CreatedAt, account.UpdatedAt,
	))
}

// Update persists every mutable field. Concurrent logins for the same
// account can race on the lockout counter and session list; last write
// wins, which is acceptable at human-scale login rates.
func (r *AccountRepository) Update(ctx context.Context, account *models.Account) (*models.Account, error) {
	account.UpdatedAt = time.Now()

	backupCodes, sessions, err := encodeAccountJSON(account)
	if err != nil {
		return nil, err
	}

	var passwordHash *string
	if account.PasswordHash != "" {
		passwordHash = &account.PasswordHash
	}

	query := `
		UPDATE accounts SET
			name = $1, role = $2, password_hash = $3,
			password_changed_at = $4, password_expires_at = $5, must_change_password = $6,
			email_verified = $7, mfa_enabled = $8, mfa_method = $9,
			mfa_secret_encrypted = $10, mfa_secret_nonce = $11, backup_codes = $12,
			failed_login_count = $13, last_failed_login_at = $14, locked_until = $15,
			active_sessions = $16, banned = $17, ban_reason = $18, updated_at = $19
		WHERE id = $20
		RETURNING` + accountColumns

	return scanAccountRow(r.db.Pool.QueryRow(ctx, query,
		account.Name, models.NormalizeRole(account.Role), passwordHash,
		account.PasswordChangedAt, account.PasswordExpiresAt, account.MustChangePassword,
		account.EmailVerified, account.MFAEnabled, nullableString(account.MFAMethod),
		account.MFASecretEncrypted, account.MFASecretNonce, backupCodes,
		account.FailedLoginCount, account.LastFailedLoginAt, account.LockedUntil,
		sessions, account.Banned, account.BanReason, account.UpdatedAt, account.ID,
	))
}

func (r *AccountRepository) List(ctx context.Context, limit, offset int) ([]*models.Account, error) {
	query := `SELECT` + accountColumns + ` FROM accounts ORDER BY created_at DESC LIMIT $1 OFFSET $2`

	rows, err := r.db.Pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w", err)
	}
	return scanAccountRows(rows)
}

func scanAccountRows(rows pgx.Rows) ([]*models.Account, error) {
	defer rows.Close()

	accounts := make([]*models.Account, 0)
	for rows.Next() {
		account, err := scanAccountRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, account)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return accounts, nil
}

// AppendLoginLocation records one entry in the append-only location log.
func (r *AccountRepository) AppendLoginLocation(ctx context.Context, loc *models.LoginLocation) error {
	loc.ID = uuid.New().String()
	loc.CreatedAt = time.Now()

	query := `
		INSERT INTO login_locations (id, account_id, ip_address, city, country, latitude, longitude, is_new, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.db.Pool.Exec(ctx, query,
		loc.ID, loc.AccountID, loc.IPAddress, loc.City, loc.Country,
		loc.Latitude, loc.Longitude, loc.IsNew, loc.CreatedAt,
	)
	if err != nil {
		return database.MapPostgresError(err)
	}
	return nil
}

// DeleteLoginLocationsBefore trims location history older than the
// cutoff. New-location detection only cares about recent habits, and
// the table is append-only otherwise.
func (r *AccountRepository) DeleteLoginLocationsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.Pool.Exec(ctx, `DELETE FROM login_locations WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return result.RowsAffected(), nil
}

// KnownCities returns the distinct cities this account has logged in
// from, used for new-location detection.
func (r *AccountRepository) KnownCities(ctx context.Context, accountID string) ([]string, error) {
	query := `SELECT DISTINCT city FROM login_locations WHERE account_id = $1`

	rows, err := r.db.Pool.Query(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to query login locations: %w", err)
	}
	defer rows.Close()

	cities := make([]string, 0)
	for rows.Next() {
		var city string
		if err := rows.Scan(&city); err != nil {
			return nil, fmt.Errorf("failed to scan city: %w", err)
		}
		cities = append(cities, city)
	}
	return cities, rows.Err()
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
