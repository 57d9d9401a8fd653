package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/inkwell-labs/gatekeeper/internal/models"
)

// AdminService covers the operational account actions: bans, manual
// unlocks and role assignment.
type AdminService struct {
	repo     AccountRepository
	sessions *SessionService
	audit    *AuditService
	logger   *slog.Logger
}

// NewAdminService creates a new AdminService
func NewAdminService(repo AccountRepository, sessions *SessionService, audit *AuditService, logger *slog.Logger) *AdminService {
	return &AdminService{
		repo:     repo,
		sessions: sessions,
		audit:    audit,
		logger:   logger,
	}
}

// ListAccounts pages through all accounts.
func (s *AdminService) ListAccounts(ctx context.Context, limit, offset int) ([]*AccountResponse, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	accounts, err := s.repo.List(ctx, limit, offset)
	if err != nil {
		s.logger.Error("failed to list accounts", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	out := make([]*AccountResponse, 0, len(accounts))
	for _, account := range accounts {
		out = append(out, accountToResponse(account))
	}
	return out, nil
}

// Ban bans an account and revokes every session it holds.
func (s *AdminService) Ban(ctx context.Context, adminID, accountID, reason string) error {
	account, err := s.repo.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrNotFound
		}
		return models.ErrInternalServer
	}

	if account.Banned {
		return models.ErrConflict
	}
	if adminID == accountID {
		return models.ErrBadRequest
	}

	account.Banned = true
	account.BanReason = nullable(strings.TrimSpace(reason))
	account.ActiveSessions = nil

	if _, err := s.repo.Update(ctx, account); err != nil {
		s.logger.Error("failed to ban account", slog.String("account_id", accountID), slog.Any("error", err))
		return models.ErrInternalServer
	}

	s.audit.Record(ctx, AuditEntry{
		ActorID:  accountID,
		Action:   models.AuditActionAccountBanned,
		Outcome:  models.AuditOutcomeSuccess,
		Severity: models.AuditSeverityCritical,
		Details:  models.AuditMetadata{"admin_id": adminID, "reason": reason},
	})
	return nil
}

// Unban lifts a ban. Sessions are not restored; the owner signs in
// again.
func (s *AdminService) Unban(ctx context.Context, adminID, accountID string) error {
	account, err := s.repo.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrNotFound
		}
		return models.ErrInternalServer
	}

	if !account.Banned {
		return models.ErrConflict
	}

	account.Banned = false
	account.BanReason = nil

	if _, err := s.repo.Update(ctx, account); err != nil {
		s.logger.Error("failed to unban account", slog.String("account_id", accountID), slog.Any("error", err))
		return models.ErrInternalServer
	}

	s.audit.Record(ctx, AuditEntry{
		ActorID:  accountID,
		Action:   models.AuditActionAccountUnbanned,
		Outcome:  models.AuditOutcomeSuccess,
		Severity: models.AuditSeverityHigh,
		Details:  models.AuditMetadata{"admin_id": adminID},
	})
	return nil
}

// Unlock clears lockout state ahead of the timer.
func (s *AdminService) Unlock(ctx context.Context, adminID, accountID string) error {
	account, err := s.repo.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrNotFound
		}
		return models.ErrInternalServer
	}

	account.LockedUntil = nil
	account.FailedLoginCount = 0
	account.LastFailedLoginAt = nil

	if _, err := s.repo.Update(ctx, account); err != nil {
		s.logger.Error("failed to unlock account", slog.String("account_id", accountID), slog.Any("error", err))
		return models.ErrInternalServer
	}

	s.audit.Record(ctx, AuditEntry{
		ActorID:  accountID,
		Action:   models.AuditActionAccountUnlocked,
		Outcome:  models.AuditOutcomeSuccess,
		Severity: models.AuditSeverityMedium,
		Details:  models.AuditMetadata{"admin_id": adminID, "reason": "manual"},
	})
	return nil
}

// ChangeRole reassigns an account's role. The deprecated "writer" value
// is accepted and stored as worker.
func (s *AdminService) ChangeRole(ctx context.Context, adminID, accountID, role string) error {
	role = models.NormalizeRole(strings.TrimSpace(role))
	if !models.ValidRole(role) {
		return models.ErrBadRequest
	}

	account, err := s.repo.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrNotFound
		}
		return models.ErrInternalServer
	}

	previous := models.NormalizeRole(account.Role)
	if previous == role {
		return nil
	}
	account.Role = role

	if _, err := s.repo.Update(ctx, account); err != nil {
		s.logger.Error("failed to change role", slog.String("account_id", accountID), slog.Any("error", err))
		return models.ErrInternalServer
	}

	s.audit.Record(ctx, AuditEntry{
		ActorID:  accountID,
		Action:   models.AuditActionRoleChanged,
		Outcome:  models.AuditOutcomeSuccess,
		Severity: models.AuditSeverityHigh,
		Details:  models.AuditMetadata{"admin_id": adminID, "from": previous, "to": role},
	})
	return nil
}
