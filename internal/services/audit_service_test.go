package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkwell-labs/gatekeeper/internal/models"
)

func TestAuditRecord_PersistsEntry(t *testing.T) {
	repo := &MockAuditLogRepository{}
	svc := newTestAuditService(repo)
	account := NewTestAccount("a@example.com", "A", testPassword)

	svc.Record(context.Background(), AuditEntry{
		ActorID:   account.ID,
		Action:    models.AuditActionLogin,
		Outcome:   models.AuditOutcomeSuccess,
		Severity:  models.AuditSeverityLow,
		IPAddress: "203.0.113.9",
		UserAgent: "cli/1.0",
		Location:  "Lisbon, Portugal",
		Details:   models.AuditMetadata{"method": "password"},
	})

	require.Len(t, repo.CreatedLogs, 1)
	log := repo.CreatedLogs[0]
	assert.Equal(t, account.ID, log.ActorID.String())
	assert.Equal(t, models.AuditActionLogin, log.Action)
	require.NotNil(t, log.IPAddress)
	assert.Equal(t, "203.0.113.9", *log.IPAddress)
	assert.Equal(t, "password", log.Details["method"])
}

func TestAuditRecord_EmptyActorSkipsDatabase(t *testing.T) {
	repo := &MockAuditLogRepository{}
	svc := newTestAuditService(repo)

	svc.Record(context.Background(), AuditEntry{
		Action:    models.AuditActionIPBlocked,
		Outcome:   models.AuditOutcomeFailure,
		Severity:  models.AuditSeverityHigh,
		IPAddress: "203.0.113.9",
	})

	assert.Empty(t, repo.CreatedLogs)
}

func TestAuditRecord_UnparseableActorSkipsDatabase(t *testing.T) {
	repo := &MockAuditLogRepository{}
	svc := newTestAuditService(repo)

	svc.Record(context.Background(), AuditEntry{
		ActorID: "not-a-uuid",
		Action:  models.AuditActionLogin,
		Outcome: models.AuditOutcomeSuccess,
	})

	assert.Empty(t, repo.CreatedLogs)
}

func TestAuditRecord_DatabaseFailureDoesNotPropagate(t *testing.T) {
	repo := &MockAuditLogRepository{
		CreateFunc: func(ctx context.Context, log *models.AuditLog) (*models.AuditLog, error) {
			return nil, models.ErrInternalServer
		},
	}
	svc := newTestAuditService(repo)
	account := NewTestAccount("a@example.com", "A", testPassword)

	// Must not panic or surface the error
	svc.Record(context.Background(), AuditEntry{
		ActorID: account.ID,
		Action:  models.AuditActionLogin,
		Outcome: models.AuditOutcomeSuccess,
	})
}

func TestAuditQuery_ReturnsTotal(t *testing.T) {
	repo := &MockAuditLogRepository{}
	svc := newTestAuditService(repo)
	account := NewTestAccount("a@example.com", "A", testPassword)

	for i := 0; i < 3; i++ {
		svc.Record(context.Background(), AuditEntry{
			ActorID: account.ID,
			Action:  models.AuditActionLoginFailed,
			Outcome: models.AuditOutcomeFailure,
		})
	}

	logs, total, err := svc.Query(context.Background(), models.AuditQuery{})
	require.NoError(t, err)
	assert.Len(t, logs, 3)
	assert.Equal(t, int64(3), total)
}

func TestAuditExportCSV(t *testing.T) {
	repo := &MockAuditLogRepository{}
	svc := newTestAuditService(repo)
	account := NewTestAccount("a@example.com", "A", testPassword)

	svc.Record(context.Background(), AuditEntry{
		ActorID:   account.ID,
		Action:    models.AuditActionLogin,
		Outcome:   models.AuditOutcomeSuccess,
		Severity:  models.AuditSeverityLow,
		IPAddress: "203.0.113.9",
		Details:   models.AuditMetadata{"method": "password"},
	})

	var buf bytes.Buffer
	require.NoError(t, svc.ExportCSV(context.Background(), models.AuditQuery{}, &buf))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "id", records[0][0])
	assert.Equal(t, account.ID, records[1][1])
	assert.Equal(t, models.AuditActionLogin, records[1][2])
	assert.Contains(t, records[1][8], `"method":"password"`)
}
