package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/inkwell-labs/gatekeeper/internal/auth"
	"github.com/inkwell-labs/gatekeeper/internal/models"
	"github.com/inkwell-labs/gatekeeper/pkg/password"
)

// BackupCodeCount is how many recovery codes an enrollment produces.
const BackupCodeCount = 10

// MFAService manages TOTP enrollment and login challenges.
type MFAService struct {
	repo   AccountRepository
	totp   *auth.TOTPManager
	audit  *AuditService
	logger *slog.Logger
}

// NewMFAService creates a new MFAService
func NewMFAService(repo AccountRepository, totp *auth.TOTPManager, audit *AuditService, logger *slog.Logger) *MFAService {
	return &MFAService{
		repo:   repo,
		totp:   totp,
		audit:  audit,
		logger: logger,
	}
}

// SetupResponse carries the enrollment material shown exactly once.
type SetupResponse struct {
	Secret string `json:"secret"`
	QRCode string `json:"qr_code"`
}

// BackupCodesResponse carries freshly generated recovery codes. They
// are never retrievable again; only their hashes are stored.
type BackupCodesResponse struct {
	BackupCodes []string `json:"backup_codes"`
}

// StartSetup generates a TOTP secret for the account and stores it
// encrypted, pending confirmation. MFA stays disabled until the account
// proves possession of the secret via ConfirmSetup.
func (s *MFAService) StartSetup(ctx context.Context, accountID string) (*SetupResponse, error) {
	account, err := s.repo.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		return nil, models.ErrInternalServer
	}

	if account.MFAEnabled {
		return nil, models.ErrConflict
	}

	secret, encrypted, nonce, qrDataURL, err := s.totp.GenerateSecret(account.Email)
	if err != nil {
		s.logger.Error("failed to generate totp secret", slog.String("account_id", accountID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	account.MFASecretEncrypted = encrypted
	account.MFASecretNonce = nonce
	account.MFAMethod = models.MFAMethodTOTP

	if _, err := s.repo.Update(ctx, account); err != nil {
		s.logger.Error("failed to store pending mfa secret", slog.String("account_id", accountID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.audit.Record(ctx, AuditEntry{
		ActorID:  accountID,
		Action:   models.AuditActionMFASetupStarted,
		Outcome:  models.AuditOutcomeSuccess,
		Severity: models.AuditSeverityMedium,
	})

	return &SetupResponse{Secret: secret, QRCode: qrDataURL}, nil
}

// ConfirmSetup enables MFA once the account submits a valid code from
// its authenticator, and returns the one-time batch of backup codes.
func (s *MFAService) ConfirmSetup(ctx context.Context, accountID, code string) (*BackupCodesResponse, error) {
	account, err := s.repo.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		return nil, models.ErrInternalServer
	}

	if account.MFAEnabled {
		return nil, models.ErrConflict
	}
	if len(account.MFASecretEncrypted) == 0 {
		return nil, models.ErrMFANotEnabled
	}

	ok, err := s.validateTOTP(account, code)
	if err != nil {
		return nil, models.ErrInternalServer
	}
	if !ok {
		s.audit.Record(ctx, AuditEntry{
			ActorID:  accountID,
			Action:   models.AuditActionMFAChallengeFailed,
			Outcome:  models.AuditOutcomeFailure,
			Severity: models.AuditSeverityMedium,
			Details:  models.AuditMetadata{"stage": "setup"},
		})
		return nil, models.ErrMFAInvalidCode
	}

	codes, entries, err := s.mintBackupCodes()
	if err != nil {
		return nil, models.ErrInternalServer
	}

	account.MFAEnabled = true
	account.BackupCodes = entries

	if _, err := s.repo.Update(ctx, account); err != nil {
		s.logger.Error("failed to enable mfa", slog.String("account_id", accountID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.audit.Record(ctx, AuditEntry{
		ActorID:  accountID,
		Action:   models.AuditActionMFAEnabled,
		Outcome:  models.AuditOutcomeSuccess,
		Severity: models.AuditSeverityMedium,
	})

	return &BackupCodesResponse{BackupCodes: codes}, nil
}

// VerifyChallenge settles an MFA challenge during login. Six-digit
// submissions are checked as TOTP codes; anything else is tried against
// the backup codes, which are consumed on success.
func (s *MFAService) VerifyChallenge(ctx context.Context, account *models.Account, code string) error {
	if !account.MFAEnabled {
		return models.ErrMFANotEnabled
	}

	code = strings.ToUpper(strings.TrimSpace(code))

	if len(code) == 6 {
		ok, err := s.validateTOTP(account, code)
		if err != nil {
			return models.ErrInternalServer
		}
		if ok {
			return nil
		}
		return s.challengeFailed(ctx, account.ID, "totp")
	}

	for i, entry := range account.BackupCodes {
		if err := password.Compare(entry.CodeHash, code); err == nil {
			account.BackupCodes = append(account.BackupCodes[:i], account.BackupCodes[i+1:]...)
			if _, err := s.repo.Update(ctx, account); err != nil {
				s.logger.Error("failed to consume backup code", slog.String("account_id", account.ID), slog.Any("error", err))
				return models.ErrInternalServer
			}
			s.audit.Record(ctx, AuditEntry{
				ActorID:  account.ID,
				Action:   models.AuditActionBackupCodeUsed,
				Outcome:  models.AuditOutcomeWarning,
				Severity: models.AuditSeverityMedium,
				Details:  models.AuditMetadata{"remaining": len(account.BackupCodes)},
			})
			return nil
		}
	}

	return s.challengeFailed(ctx, account.ID, "backup_code")
}

// RegenerateBackupCodes replaces any remaining codes with a fresh batch.
// Requires the current password.
func (s *MFAService) RegenerateBackupCodes(ctx context.Context, accountID, currentPassword string) (*BackupCodesResponse, error) {
	account, err := s.repo.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		return nil, models.ErrInternalServer
	}

	if !account.MFAEnabled {
		return nil, models.ErrMFANotEnabled
	}
	if err := password.Compare(account.PasswordHash, currentPassword); err != nil {
		return nil, models.ErrUnauthorized
	}

	codes, entries, err := s.mintBackupCodes()
	if err != nil {
		return nil, models.ErrInternalServer
	}

	account.BackupCodes = entries
	if _, err := s.repo.Update(ctx, account); err != nil {
		s.logger.Error("failed to replace backup codes", slog.String("account_id", accountID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	return &BackupCodesResponse{BackupCodes: codes}, nil
}

// Disable turns MFA off. Requires the current password so a hijacked
// session cannot silently strip the second factor.
func (s *MFAService) Disable(ctx context.Context, accountID, currentPassword string) error {
	account, err := s.repo.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrNotFound
		}
		return models.ErrInternalServer
	}

	if !account.MFAEnabled {
		return models.ErrMFANotEnabled
	}
	if err := password.Compare(account.PasswordHash, currentPassword); err != nil {
		return models.ErrUnauthorized
	}

	account.MFAEnabled = false
	account.MFAMethod = ""
	account.MFASecretEncrypted = nil
	account.MFASecretNonce = nil
	account.BackupCodes = nil

	if _, err := s.repo.Update(ctx, account); err != nil {
		s.logger.Error("failed to disable mfa", slog.String("account_id", accountID), slog.Any("error", err))
		return models.ErrInternalServer
	}

	s.audit.Record(ctx, AuditEntry{
		ActorID:  accountID,
		Action:   models.AuditActionMFADisabled,
		Outcome:  models.AuditOutcomeSuccess,
		Severity: models.AuditSeverityHigh,
	})
	return nil
}

func (s *MFAService) validateTOTP(account *models.Account, code string) (bool, error) {
	secret, err := s.totp.Codec().Decode(account.MFASecretEncrypted, account.MFASecretNonce)
	if err != nil {
		s.logger.Error("failed to decrypt totp secret", slog.String("account_id", account.ID), slog.Any("error", err))
		return false, err
	}
	return s.totp.ValidateCode(string(secret), code)
}

func (s *MFAService) challengeFailed(ctx context.Context, accountID, method string) error {
	s.audit.Record(ctx, AuditEntry{
		ActorID:  accountID,
		Action:   models.AuditActionMFAChallengeFailed,
		Outcome:  models.AuditOutcomeFailure,
		Severity: models.AuditSeverityMedium,
		Details:  models.AuditMetadata{"method": method},
	})
	return models.ErrMFAInvalidCode
}

func (s *MFAService) mintBackupCodes() ([]string, []models.BackupCodeEntry, error) {
	codes, err := auth.GenerateBackupCodes(BackupCodeCount)
	if err != nil {
		s.logger.Error("failed to generate backup codes", slog.Any("error", err))
		return nil, nil, err
	}

	entries := make([]models.BackupCodeEntry, 0, len(codes))
	now := time.Now()
	for _, code := range codes {
		hash, err := password.Hash(code)
		if err != nil {
			return nil, nil, err
		}
		entries = append(entries, models.BackupCodeEntry{CodeHash: hash, CreatedAt: now})
	}
	return codes, entries, nil
}
