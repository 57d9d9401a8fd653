package repositories

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/inkwell-labs/gatekeeper/internal/database"
	"github.com/inkwell-labs/gatekeeper/internal/models"
)

// AuditLogRepository handles audit trail data access. The trail is
// write-once, read-many: no update or delete statements exist here.
type AuditLogRepository struct {
	db *database.DB
}

// NewAuditLogRepository creates a new AuditLogRepository
func NewAuditLogRepository(db *database.DB) *AuditLogRepository {
	return &AuditLogRepository{db: db}
}

func scanAuditLogRow(row rowScanner) (*models.AuditLog, error) {
	var log models.AuditLog

	err := row.Scan(
		&log.ID, &log.ActorID, &log.Action, &log.Outcome, &log.Severity,
		&log.IPAddress, &log.UserAgent, &log.Location, &log.Details, &log.CreatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &log, nil
}

func scanAuditLogRows(rows pgx.Rows) ([]*models.AuditLog, error) {
	defer rows.Close()

	logs := make([]*models.AuditLog, 0)
	for rows.Next() {
		log, err := scanAuditLogRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit log: %w", err)
		}
		logs = append(logs, log)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit log rows: %w", err)
	}
	return logs, nil
}

// Create appends one entry to the trail.
func (r *AuditLogRepository) Create(ctx context.Context, log *models.AuditLog) (*models.AuditLog, error) {
	query := `
		INSERT INTO audit_logs (actor_id, action, outcome, severity, ip_address, user_agent, location, details)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, actor_id, action, outcome, severity, ip_address, user_agent, location, details, created_at
	`

	result, err := scanAuditLogRow(r.db.Pool.QueryRow(ctx, query,
		log.ActorID, log.Action, log.Outcome, log.Severity,
		log.IPAddress, log.UserAgent, log.Location, log.Details,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create audit log: %w", err)
	}
	return result, nil
}

// Query filters the trail for the operational dashboards.
func (r *AuditLogRepository) Query(ctx context.Context, q models.AuditQuery) ([]*models.AuditLog, error) {
	where, args := buildAuditWhere(q)

	limit := q.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	args = append(args, limit, offset)
	query := fmt.Sprintf(`
		SELECT id, actor_id, action, outcome, severity, ip_address, user_agent, location, details, created_at
		FROM audit_logs
		%s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d
	`, where, len(args)-1, len(args))

	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit logs: %w", err)
	}
	return scanAuditLogRows(rows)
}

// Count returns how many entries match the filter, for pagination.
func (r *AuditLogRepository) Count(ctx context.Context, q models.AuditQuery) (int64, error) {
	where, args := buildAuditWhere(q)

	var count int64
	query := fmt.Sprintf(`SELECT count(*) FROM audit_logs %s`, where)
	if err := r.db.Pool.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count audit logs: %w", err)
	}
	return count, nil
}

func buildAuditWhere(q models.AuditQuery) (string, []interface{}) {
	conditions := make([]string, 0, 6)
	args := make([]interface{}, 0, 6)

	add := func(condition string, arg interface{}) {
		args = append(args, arg)
		conditions = append(conditions, fmt.Sprintf(condition, len(args)))
	}

	if q.ActorID != nil {
		add("actor_id = $%d", *q.ActorID)
	}
	if q.Action != "" {
		add("action = $%d", q.Action)
	}
	if q.Severity != "" {
		add("severity = $%d", q.Severity)
	}
	if q.Outcome != "" {
		add("outcome = $%d", q.Outcome)
	}
	if q.From != nil {
		add("created_at >= $%d", *q.From)
	}
	if q.To != nil {
		add("created_at <= $%d", *q.To)
	}
	if q.Search != "" {
		args = append(args, "%"+q.Search+"%")
		conditions = append(conditions, fmt.Sprintf(
			"(ip_address ILIKE $%d OR location ILIKE $%d)", len(args), len(args)))
	}

	if len(conditions) == 0 {
		return "", args
	}
	return "WHERE " + strings.Join(conditions, " AND "), args
}
