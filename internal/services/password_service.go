package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/inkwell-labs/gatekeeper/internal/guard"
	"github.com/inkwell-labs/gatekeeper/internal/models"
	"github.com/inkwell-labs/gatekeeper/pkg/password"
)

// PasswordService handles password changes and the reset flow.
type PasswordService struct {
	repo         AccountRepository
	sessions     *SessionService
	verification *VerificationService
	policy       *password.Engine
	audit        *AuditService
	logger       *slog.Logger
}

// NewPasswordService creates a new PasswordService
func NewPasswordService(repo AccountRepository, sessions *SessionService, verification *VerificationService, policy *password.Engine, audit *AuditService, logger *slog.Logger) *PasswordService {
	return &PasswordService{
		repo:         repo,
		sessions:     sessions,
		verification: verification,
		policy:       policy,
		audit:        audit,
		logger:       logger,
	}
}

// Change rotates the password for an authenticated account. All other
// sessions are revoked; the calling one stays alive.
func (s *PasswordService) Change(ctx context.Context, accountID, sessionID, current, next string) (*password.Result, error) {
	account, err := s.repo.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		return nil, models.ErrInternalServer
	}

	if !account.HasPassword() {
		return nil, models.ErrBadRequest
	}
	if err := password.Compare(account.PasswordHash, current); err != nil {
		s.audit.Record(ctx, AuditEntry{
			ActorID:  accountID,
			Action:   models.AuditActionPasswordChanged,
			Outcome:  models.AuditOutcomeFailure,
			Severity: models.AuditSeverityMedium,
			Details:  models.AuditMetadata{"reason": "bad_current_password"},
		})
		return nil, models.ErrUnauthorized
	}

	policyResult := s.policy.Validate(ctx, next, identityInputs(account.Email, account.Name))
	if !policyResult.Valid {
		return &policyResult, models.ErrBadRequest
	}

	if err := s.apply(ctx, account, next); err != nil {
		return nil, err
	}

	if _, err := s.sessions.RevokeAllExcept(ctx, accountID, sessionID); err != nil {
		s.logger.Error("failed to revoke other sessions after password change",
			slog.String("account_id", accountID), slog.Any("error", err))
	}

	s.audit.Record(ctx, AuditEntry{
		ActorID:  accountID,
		Action:   models.AuditActionPasswordChanged,
		Outcome:  models.AuditOutcomeSuccess,
		Severity: models.AuditSeverityMedium,
		Details:  auditFromPolicy(policyResult, models.AuditMetadata{}),
	})
	return &policyResult, nil
}

// RequestReset issues a reset link. Unknown emails succeed silently so
// the endpoint cannot be used to probe which addresses have accounts.
func (s *PasswordService) RequestReset(ctx context.Context, email string) error {
	email = strings.ToLower(strings.TrimSpace(email))

	account, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil
		}
		return models.ErrInternalServer
	}

	if err := s.verification.IssueLink(ctx, account, models.VerificationPurposePasswordReset); err != nil {
		return err
	}

	s.audit.Record(ctx, AuditEntry{
		ActorID:  account.ID,
		Action:   models.AuditActionPasswordResetReq,
		Outcome:  models.AuditOutcomeSuccess,
		Severity: models.AuditSeverityMedium,
	})
	return nil
}

// ConfirmReset settles a reset link and installs the new password.
// Every session is revoked and any lockout state is cleared, so the
// owner regains a clean account.
func (s *PasswordService) ConfirmReset(ctx context.Context, token, next string) (*password.Result, error) {
	settled, err := s.verification.SettleLink(ctx, models.VerificationPurposePasswordReset, token)
	if err != nil {
		return nil, err
	}

	account, err := s.repo.GetByID(ctx, settled.AccountID)
	if err != nil {
		return nil, models.ErrInternalServer
	}

	policyResult := s.policy.Validate(ctx, next, identityInputs(account.Email, account.Name))
	if !policyResult.Valid {
		return &policyResult, models.ErrBadRequest
	}

	guard.ResetFailures(account)
	if err := s.apply(ctx, account, next); err != nil {
		return nil, err
	}

	if _, err := s.sessions.RevokeAllExcept(ctx, account.ID, ""); err != nil {
		s.logger.Error("failed to revoke sessions after password reset",
			slog.String("account_id", account.ID), slog.Any("error", err))
	}

	s.audit.Record(ctx, AuditEntry{
		ActorID:  account.ID,
		Action:   models.AuditActionPasswordResetDone,
		Outcome:  models.AuditOutcomeSuccess,
		Severity: models.AuditSeverityHigh,
		Details:  auditFromPolicy(policyResult, models.AuditMetadata{}),
	})
	return &policyResult, nil
}

func (s *PasswordService) apply(ctx context.Context, account *models.Account, next string) error {
	hash, err := password.Hash(next)
	if err != nil {
		s.logger.Error("failed to hash password", slog.Any("error", err))
		return models.ErrInternalServer
	}

	now := time.Now()
	expiresAt := password.NextExpiry(now)
	account.PasswordHash = hash
	account.PasswordChangedAt = &now
	account.PasswordExpiresAt = &expiresAt
	account.MustChangePassword = false

	if _, err := s.repo.Update(ctx, account); err != nil {
		s.logger.Error("failed to persist password change", slog.String("account_id", account.ID), slog.Any("error", err))
		return models.ErrInternalServer
	}
	return nil
}
