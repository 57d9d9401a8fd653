package services

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"

	"github.com/inkwell-labs/gatekeeper/internal/models"
	pkglogger "github.com/inkwell-labs/gatekeeper/pkg/logger"
)

// AuditLogRepository defines the interface for audit trail persistence
type AuditLogRepository interface {
	Create(ctx context.Context, log *models.AuditLog) (*models.AuditLog, error)
	Query(ctx context.Context, q models.AuditQuery) ([]*models.AuditLog, error)
	Count(ctx context.Context, q models.AuditQuery) (int64, error)
}

// AuditEntry is the service-level input for one trail entry. The actor
// ID is the account the event concerns, which is not always the
// authenticated caller (failed logins have no caller).
type AuditEntry struct {
	ActorID   string
	Action    string
	Outcome   string
	Severity  string
	IPAddress string
	UserAgent string
	Location  string
	Details   models.AuditMetadata
}

// AuditService handles audit logging with dual-write pattern (slog + database)
type AuditService struct {
	repo        AuditLogRepository
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
}

// NewAuditService creates a new AuditService
func NewAuditService(repo AuditLogRepository, logger *slog.Logger, auditLogger *pkglogger.AuditLogger) *AuditService {
	return &AuditService{
		repo:        repo,
		logger:      logger,
		auditLogger: auditLogger,
	}
}

// Record writes one entry to the trail. Recording is best-effort: a
// failed write is logged but never fails the operation being audited.
func (s *AuditService) Record(ctx context.Context, entry AuditEntry) {
	// Immediate slog output regardless of database outcome
	s.auditLogger.Log(pkglogger.AuditEvent{
		ActorID:   entry.ActorID,
		Action:    entry.Action,
		Outcome:   entry.Outcome,
		Severity:  entry.Severity,
		IPAddress: entry.IPAddress,
		UserAgent: entry.UserAgent,
		Location:  entry.Location,
		Details:   entry.Details,
	})

	// Events with no resolvable account (blocked IPs, unknown emails)
	// land in the log stream only.
	if entry.ActorID == "" {
		return
	}

	actorID, err := uuid.Parse(entry.ActorID)
	if err != nil {
		s.logger.ErrorContext(ctx, "audit entry with unparseable actor id",
			slog.String("actor_id", entry.ActorID),
			slog.String("action", entry.Action))
		return
	}

	log := &models.AuditLog{
		ActorID:   actorID,
		Action:    entry.Action,
		Outcome:   entry.Outcome,
		Severity:  entry.Severity,
		IPAddress: nullable(entry.IPAddress),
		UserAgent: nullable(entry.UserAgent),
		Location:  nullable(entry.Location),
		Details:   entry.Details,
	}

	if _, err := s.repo.Create(ctx, log); err != nil {
		s.logger.ErrorContext(ctx, "failed to persist audit log",
			slog.String("action", entry.Action),
			slog.Any("error", err))
	}
}

// Query retrieves filtered trail entries for the admin dashboards.
func (s *AuditService) Query(ctx context.Context, q models.AuditQuery) ([]*models.AuditLog, int64, error) {
	logs, err := s.repo.Query(ctx, q)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query audit trail: %w", err)
	}

	total, err := s.repo.Count(ctx, q)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count audit trail: %w", err)
	}

	return logs, total, nil
}

// ExportCSV streams matching entries as CSV. The filter's limit is
// ignored; export pages through the full result set.
func (s *AuditService) ExportCSV(ctx context.Context, q models.AuditQuery, w io.Writer) error {
	cw := csv.NewWriter(w)

	header := []string{"id", "actor_id", "action", "outcome", "severity", "ip_address", "user_agent", "location", "details", "created_at"}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}

	const pageSize = 500
	q.Limit = pageSize
	q.Offset = 0

	for {
		logs, err := s.repo.Query(ctx, q)
		if err != nil {
			return fmt.Errorf("failed to query audit trail: %w", err)
		}

		for _, log := range logs {
			details := ""
			if log.Details != nil {
				raw, err := json.Marshal(log.Details)
				if err == nil {
					details = string(raw)
				}
			}

			record := []string{
				log.ID.String(),
				log.ActorID.String(),
				log.Action,
				log.Outcome,
				log.Severity,
				deref(log.IPAddress),
				deref(log.UserAgent),
				deref(log.Location),
				details,
				log.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
			}
			if err := cw.Write(record); err != nil {
				return fmt.Errorf("failed to write csv record: %w", err)
			}
		}

		if len(logs) < pageSize {
			break
		}
		q.Offset += pageSize
	}

	cw.Flush()
	return cw.Error()
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
