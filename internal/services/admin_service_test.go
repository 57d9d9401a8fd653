package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkwell-labs/gatekeeper/internal/auth"
	"github.com/inkwell-labs/gatekeeper/internal/models"
)

func newAdminFixture(t *testing.T, accounts ...*models.Account) (*MockAccountRepository, *MockAuditLogRepository, *AdminService) {
	t.Helper()
	repo := NewMockAccountRepository(accounts...)
	auditRepo := &MockAuditLogRepository{}
	audit := newTestAuditService(auditRepo)
	logger := discardLogger()
	tm := auth.NewTokenManager(testSecret, 30*24*time.Hour)
	sessions := NewSessionService(repo, tm, NoopGeoService{}, &MockEmailService{}, audit, logger)
	return repo, auditRepo, NewAdminService(repo, sessions, audit, logger)
}

func TestAdminBan_RevokesSessions(t *testing.T) {
	account := NewTestAccount("a@example.com", "A", testPassword)
	account.ActiveSessions = []models.Session{
		{ID: uuid.New().String(), Device: "laptop", CreatedAt: time.Now()},
		{ID: uuid.New().String(), Device: "phone", CreatedAt: time.Now()},
	}
	admin := NewTestAccount("admin@example.com", "Admin", testPassword)
	admin.Role = models.RoleAdmin
	repo, auditRepo, svc := newAdminFixture(t, account, admin)

	require.NoError(t, svc.Ban(context.Background(), admin.ID, account.ID, "chargeback fraud"))

	stored := repo.Accounts[account.ID]
	assert.True(t, stored.Banned)
	require.NotNil(t, stored.BanReason)
	assert.Equal(t, "chargeback fraud", *stored.BanReason)
	assert.Empty(t, stored.ActiveSessions)
	assert.True(t, auditRepo.HasAction(models.AuditActionAccountBanned))
}

func TestAdminBan_AlreadyBanned(t *testing.T) {
	account := NewTestAccount("a@example.com", "A", testPassword)
	account.Banned = true
	admin := NewTestAccount("admin@example.com", "Admin", testPassword)
	_, _, svc := newAdminFixture(t, account, admin)

	err := svc.Ban(context.Background(), admin.ID, account.ID, "again")
	assert.ErrorIs(t, err, models.ErrConflict)
}

func TestAdminBan_SelfRefused(t *testing.T) {
	admin := NewTestAccount("admin@example.com", "Admin", testPassword)
	repo, _, svc := newAdminFixture(t, admin)

	err := svc.Ban(context.Background(), admin.ID, admin.ID, "oops")
	assert.ErrorIs(t, err, models.ErrBadRequest)
	assert.False(t, repo.Accounts[admin.ID].Banned)
}

func TestAdminUnban(t *testing.T) {
	account := NewTestAccount("a@example.com", "A", testPassword)
	account.Banned = true
	reason := "spam"
	account.BanReason = &reason
	admin := NewTestAccount("admin@example.com", "Admin", testPassword)
	repo, auditRepo, svc := newAdminFixture(t, account, admin)

	require.NoError(t, svc.Unban(context.Background(), admin.ID, account.ID))

	stored := repo.Accounts[account.ID]
	assert.False(t, stored.Banned)
	assert.Nil(t, stored.BanReason)
	assert.True(t, auditRepo.HasAction(models.AuditActionAccountUnbanned))

	// Unbanning an account in good standing is a conflict
	assert.ErrorIs(t, svc.Unban(context.Background(), admin.ID, account.ID), models.ErrConflict)
}

func TestAdminUnlock_ClearsLockoutState(t *testing.T) {
	account := NewTestAccount("a@example.com", "A", testPassword)
	lockedUntil := time.Now().Add(3 * time.Minute)
	lastFailed := time.Now()
	account.LockedUntil = &lockedUntil
	account.FailedLoginCount = 5
	account.LastFailedLoginAt = &lastFailed
	admin := NewTestAccount("admin@example.com", "Admin", testPassword)
	repo, auditRepo, svc := newAdminFixture(t, account, admin)

	require.NoError(t, svc.Unlock(context.Background(), admin.ID, account.ID))

	stored := repo.Accounts[account.ID]
	assert.Nil(t, stored.LockedUntil)
	assert.Zero(t, stored.FailedLoginCount)
	assert.Nil(t, stored.LastFailedLoginAt)
	assert.True(t, auditRepo.HasAction(models.AuditActionAccountUnlocked))
}

func TestAdminChangeRole(t *testing.T) {
	account := NewTestAccount("a@example.com", "A", testPassword)
	admin := NewTestAccount("admin@example.com", "Admin", testPassword)
	repo, auditRepo, svc := newAdminFixture(t, account, admin)

	require.NoError(t, svc.ChangeRole(context.Background(), admin.ID, account.ID, "worker"))
	assert.Equal(t, models.RoleWorker, repo.Accounts[account.ID].Role)
	assert.True(t, auditRepo.HasAction(models.AuditActionRoleChanged))
}

func TestAdminChangeRole_WriterStoredAsWorker(t *testing.T) {
	account := NewTestAccount("a@example.com", "A", testPassword)
	admin := NewTestAccount("admin@example.com", "Admin", testPassword)
	repo, _, svc := newAdminFixture(t, account, admin)

	require.NoError(t, svc.ChangeRole(context.Background(), admin.ID, account.ID, "writer"))
	assert.Equal(t, models.RoleWorker, repo.Accounts[account.ID].Role)
}

func TestAdminChangeRole_Invalid(t *testing.T) {
	account := NewTestAccount("a@example.com", "A", testPassword)
	admin := NewTestAccount("admin@example.com", "Admin", testPassword)
	_, _, svc := newAdminFixture(t, account, admin)

	assert.ErrorIs(t, svc.ChangeRole(context.Background(), admin.ID, account.ID, "superuser"), models.ErrBadRequest)
}

func TestAdminListAccounts_ClampsLimit(t *testing.T) {
	accounts := make([]*models.Account, 0, 3)
	for _, email := range []string{"a@example.com", "b@example.com", "c@example.com"} {
		accounts = append(accounts, NewTestAccount(email, "X", testPassword))
	}
	_, _, svc := newAdminFixture(t, accounts...)

	out, err := svc.ListAccounts(context.Background(), -1, -1)
	require.NoError(t, err)
	assert.Len(t, out, 3)
}
