package logger

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// AuditEvent mirrors one audit-trail entry for the log stream. The
// database is the durable trail; this stream exists so operators can
// tail security events without querying it.
type AuditEvent struct {
	ActorID   string
	Action    string
	Outcome   string
	Severity  string
	IPAddress string
	UserAgent string
	Location  string
	Details   map[string]interface{}
}

// AuditLogger emits structured audit events over slog.
type AuditLogger struct {
	logger *slog.Logger
}

// NewAuditLogger creates a new audit logger
func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	return &AuditLogger{
		logger: logger,
	}
}

// Log writes one audit event. Severity maps onto the slog level so
// log-based alerting can key off level alone.
func (al *AuditLogger) Log(event AuditEvent) {
	attrs := []slog.Attr{
		slog.String("audit", "true"),
		slog.String("action", event.Action),
		slog.String("outcome", event.Outcome),
		slog.String("severity", event.Severity),
		slog.String("actor_id", event.ActorID),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}

	if event.IPAddress != "" {
		attrs = append(attrs, slog.String("ip_address", event.IPAddress))
	}
	if event.UserAgent != "" {
		attrs = append(attrs, slog.String("user_agent", SanitizeUserAgent(event.UserAgent)))
	}
	if event.Location != "" {
		attrs = append(attrs, slog.String("location", event.Location))
	}
	for key, val := range event.Details {
		attrs = append(attrs, slog.String("detail_"+key, fmt.Sprint(val)))
	}

	al.logger.LogAttrs(context.Background(), levelFor(event.Severity), "audit", attrs...)
}

func levelFor(severity string) slog.Level {
	switch severity {
	case "high", "critical":
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}
