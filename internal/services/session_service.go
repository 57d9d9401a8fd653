package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/inkwell-labs/gatekeeper/internal/auth"
	"github.com/inkwell-labs/gatekeeper/internal/models"
)

// AccountRepository defines the interface for account persistence
type AccountRepository interface {
	GetByID(ctx context.Context, id string) (*models.Account, error)
	GetByEmail(ctx context.Context, email string) (*models.Account, error)
	Create(ctx context.Context, account *models.Account) (*models.Account, error)
	Update(ctx context.Context, account *models.Account) (*models.Account, error)
	List(ctx context.Context, limit, offset int) ([]*models.Account, error)
	AppendLoginLocation(ctx context.Context, loc *models.LoginLocation) error
	KnownCities(ctx context.Context, accountID string) ([]string, error)
}

// SessionService manages the bounded per-account session list and the
// tokens bound to it.
type SessionService struct {
	repo   AccountRepository
	tm     *auth.TokenManager
	geo    GeoService
	email  EmailService
	audit  *AuditService
	logger *slog.Logger
}

// NewSessionService creates a new SessionService
func NewSessionService(repo AccountRepository, tm *auth.TokenManager, geo GeoService, email EmailService, audit *AuditService, logger *slog.Logger) *SessionService {
	return &SessionService{
		repo:   repo,
		tm:     tm,
		geo:    geo,
		email:  email,
		audit:  audit,
		logger: logger,
	}
}

// Establish creates a session for an already-authenticated account and
// returns the signed token bound to it. The oldest session is evicted
// when the account is at its session limit. Location history runs in
// the background; login never waits on it.
func (s *SessionService) Establish(ctx context.Context, account *models.Account, device, ipAddress string) (string, *models.Session, error) {
	point := s.geo.Locate(ipAddress)

	session := models.Session{
		ID:           uuid.New().String(),
		Device:       device,
		IPAddress:    ipAddress,
		Location:     point.Label(),
		CreatedAt:    time.Now(),
		LastActiveAt: time.Now(),
	}

	var evicted *models.Session
	if len(account.ActiveSessions) >= models.MaxActiveSessions {
		oldest := account.ActiveSessions[0]
		evicted = &oldest
	}
	account.AppendSession(session)

	updated, err := s.repo.Update(ctx, account)
	if err != nil {
		s.logger.Error("failed to persist session", slog.String("account_id", account.ID), slog.Any("error", err))
		return "", nil, models.ErrInternalServer
	}
	*account = *updated

	token, err := s.tm.Generate(account.ID, session.ID)
	if err != nil {
		s.logger.Error("failed to sign session token", slog.String("account_id", account.ID), slog.Any("error", err))
		return "", nil, models.ErrInternalServer
	}

	s.audit.Record(ctx, AuditEntry{
		ActorID:   account.ID,
		Action:    models.AuditActionSessionCreated,
		Outcome:   models.AuditOutcomeSuccess,
		Severity:  models.AuditSeverityLow,
		IPAddress: ipAddress,
		UserAgent: device,
		Location:  session.Location,
		Details:   models.AuditMetadata{"session_id": session.ID},
	})
	if evicted != nil {
		s.audit.Record(ctx, AuditEntry{
			ActorID:  account.ID,
			Action:   models.AuditActionSessionRevoked,
			Outcome:  models.AuditOutcomeSuccess,
			Severity: models.AuditSeverityLow,
			Details:  models.AuditMetadata{"session_id": evicted.ID, "reason": "session_limit"},
		})
	}

	go s.recordLocation(account.ID, account.Email, ipAddress, point)

	return token, &session, nil
}

// recordLocation appends to the login-location history and alerts the
// owner when the city has not been seen on this account before.
// Runs detached from the request.
func (s *SessionService) recordLocation(accountID, email, ipAddress string, point GeoPoint) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	isNew := false
	if point.City != "" {
		known, err := s.repo.KnownCities(ctx, accountID)
		if err != nil {
			s.logger.Error("failed to load known login cities", slog.String("account_id", accountID), slog.Any("error", err))
			return
		}
		isNew = true
		for _, city := range known {
			if city == point.City {
				isNew = false
				break
			}
		}
	}

	err := s.repo.AppendLoginLocation(ctx, &models.LoginLocation{
		AccountID: accountID,
		IPAddress: ipAddress,
		City:      point.City,
		Country:   point.Country,
		Latitude:  point.Latitude,
		Longitude: point.Longitude,
		IsNew:     isNew,
	})
	if err != nil {
		s.logger.Error("failed to append login location", slog.String("account_id", accountID), slog.Any("error", err))
		return
	}

	if !isNew {
		return
	}

	s.audit.Record(ctx, AuditEntry{
		ActorID:   accountID,
		Action:    models.AuditActionNewLocation,
		Outcome:   models.AuditOutcomeWarning,
		Severity:  models.AuditSeverityMedium,
		IPAddress: ipAddress,
		Location:  point.Label(),
	})

	if err := s.email.SendNewLocationAlert(ctx, email, point.Label(), ipAddress, time.Now()); err != nil {
		s.logger.Error("failed to send new-location alert", slog.String("account_id", accountID), slog.Any("error", err))
	}
}

// List returns the account's active sessions, oldest first.
func (s *SessionService) List(ctx context.Context, accountID string) ([]models.Session, error) {
	account, err := s.repo.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		return nil, models.ErrInternalServer
	}
	return account.ActiveSessions, nil
}

// Revoke removes one session. Tokens bound to it fail authentication on
// their next use.
func (s *SessionService) Revoke(ctx context.Context, accountID, sessionID string) error {
	account, err := s.repo.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrNotFound
		}
		return models.ErrInternalServer
	}

	idx := account.FindSession(sessionID)
	if idx < 0 {
		return models.ErrNotFound
	}
	account.ActiveSessions = append(account.ActiveSessions[:idx], account.ActiveSessions[idx+1:]...)

	if _, err := s.repo.Update(ctx, account); err != nil {
		s.logger.Error("failed to revoke session", slog.String("account_id", accountID), slog.Any("error", err))
		return models.ErrInternalServer
	}

	s.audit.Record(ctx, AuditEntry{
		ActorID:  accountID,
		Action:   models.AuditActionSessionRevoked,
		Outcome:  models.AuditOutcomeSuccess,
		Severity: models.AuditSeverityLow,
		Details:  models.AuditMetadata{"session_id": sessionID},
	})
	return nil
}

// RevokeAllExcept clears every session but the given one. Pass an empty
// keep ID to clear all of them ("log out everywhere").
func (s *SessionService) RevokeAllExcept(ctx context.Context, accountID, keepSessionID string) (int, error) {
	account, err := s.repo.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return 0, models.ErrNotFound
		}
		return 0, models.ErrInternalServer
	}

	kept := account.ActiveSessions[:0]
	revoked := 0
	for _, sess := range account.ActiveSessions {
		if sess.ID == keepSessionID {
			kept = append(kept, sess)
			continue
		}
		revoked++
	}
	account.ActiveSessions = kept

	if revoked == 0 {
		return 0, nil
	}

	if _, err := s.repo.Update(ctx, account); err != nil {
		s.logger.Error("failed to revoke sessions", slog.String("account_id", accountID), slog.Any("error", err))
		return 0, models.ErrInternalServer
	}

	s.audit.Record(ctx, AuditEntry{
		ActorID:  accountID,
		Action:   models.AuditActionSessionsRevokedAll,
		Outcome:  models.AuditOutcomeSuccess,
		Severity: models.AuditSeverityMedium,
		Details:  models.AuditMetadata{"revoked": revoked},
	})
	return revoked, nil
}

// Touch refreshes a session's last-active timestamp. Best effort: the
// middleware never blocks a request on it.
func (s *SessionService) Touch(ctx context.Context, accountID, sessionID string) error {
	account, err := s.repo.GetByID(ctx, accountID)
	if err != nil {
		return err
	}

	idx := account.FindSession(sessionID)
	if idx < 0 {
		return models.ErrNotFound
	}
	account.ActiveSessions[idx].LastActiveAt = time.Now()

	_, err = s.repo.Update(ctx, account)
	return err
}
