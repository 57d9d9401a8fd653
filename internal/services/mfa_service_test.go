package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkwell-labs/gatekeeper/internal/models"
)

func TestMFAStartSetup(t *testing.T) {
	account := NewTestAccount("mfa@example.com", "MFA", testPassword)
	f := newAuthFixture(t, account)

	setup, err := f.mfa.StartSetup(context.Background(), account.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, setup.Secret)
	assert.True(t, strings.HasPrefix(setup.QRCode, "data:image/png;base64,"))

	// Secret is stored encrypted, MFA not yet active
	stored := f.repo.Accounts[account.ID]
	assert.False(t, stored.MFAEnabled)
	assert.NotEmpty(t, stored.MFASecretEncrypted)
	assert.NotContains(t, string(stored.MFASecretEncrypted), setup.Secret)
	assert.True(t, f.auditRepo.HasAction(models.AuditActionMFASetupStarted))
}

func TestMFAStartSetup_AlreadyEnabled(t *testing.T) {
	account := NewTestAccount("mfa@example.com", "MFA", testPassword)
	f := newAuthFixture(t, account)
	enableMFA(t, f, account.ID)

	_, err := f.mfa.StartSetup(context.Background(), account.ID)
	assert.ErrorIs(t, err, models.ErrConflict)
}

func TestMFAConfirmSetup_BadCode(t *testing.T) {
	account := NewTestAccount("mfa@example.com", "MFA", testPassword)
	f := newAuthFixture(t, account)

	_, err := f.mfa.StartSetup(context.Background(), account.ID)
	require.NoError(t, err)

	_, err = f.mfa.ConfirmSetup(context.Background(), account.ID, "000000")
	assert.ErrorIs(t, err, models.ErrMFAInvalidCode)
	assert.False(t, f.repo.Accounts[account.ID].MFAEnabled)
}

func TestMFAConfirmSetup_ProducesTenBackupCodes(t *testing.T) {
	account := NewTestAccount("mfa@example.com", "MFA", testPassword)
	f := newAuthFixture(t, account)

	codes := enableMFAWithCodes(t, f, account.ID)
	assert.Len(t, codes, 10)
	for _, code := range codes {
		assert.Len(t, code, 8)
	}

	// Only hashes are stored
	stored := f.repo.Accounts[account.ID]
	require.Len(t, stored.BackupCodes, 10)
	for i, entry := range stored.BackupCodes {
		assert.NotEqual(t, codes[i], entry.CodeHash)
	}
	assert.True(t, stored.MFAEnabled)
	assert.Equal(t, models.MFAMethodTOTP, stored.MFAMethod)
}

func TestMFAVerifyChallenge_ClockSkew(t *testing.T) {
	account := NewTestAccount("mfa@example.com", "MFA", testPassword)
	f := newAuthFixture(t, account)
	secret := enableMFA(t, f, account.ID)

	// One step behind still validates
	code, err := totp.GenerateCode(secret, time.Now().Add(-30*time.Second))
	require.NoError(t, err)

	stored := f.repo.Accounts[account.ID]
	assert.NoError(t, f.mfa.VerifyChallenge(context.Background(), stored, code))
}

func TestMFARegenerateBackupCodes(t *testing.T) {
	account := NewTestAccount("mfa@example.com", "MFA", testPassword)
	f := newAuthFixture(t, account)
	old := enableMFAWithCodes(t, f, account.ID)

	resp, err := f.mfa.RegenerateBackupCodes(context.Background(), account.ID, testPassword)
	require.NoError(t, err)
	assert.Len(t, resp.BackupCodes, BackupCodeCount)
	assert.NotEqual(t, old, resp.BackupCodes)

	// Old codes no longer settle a challenge
	stored := f.repo.Accounts[account.ID]
	err = f.mfa.VerifyChallenge(context.Background(), stored, old[0])
	assert.ErrorIs(t, err, models.ErrMFAInvalidCode)
}

func TestMFARegenerateBackupCodes_WrongPassword(t *testing.T) {
	account := NewTestAccount("mfa@example.com", "MFA", testPassword)
	f := newAuthFixture(t, account)
	enableMFA(t, f, account.ID)

	_, err := f.mfa.RegenerateBackupCodes(context.Background(), account.ID, "wrong")
	assert.ErrorIs(t, err, models.ErrUnauthorized)
}

func TestMFADisable(t *testing.T) {
	account := NewTestAccount("mfa@example.com", "MFA", testPassword)
	f := newAuthFixture(t, account)
	enableMFA(t, f, account.ID)

	require.NoError(t, f.mfa.Disable(context.Background(), account.ID, testPassword))

	stored := f.repo.Accounts[account.ID]
	assert.False(t, stored.MFAEnabled)
	assert.Empty(t, stored.MFASecretEncrypted)
	assert.Empty(t, stored.BackupCodes)
	assert.True(t, f.auditRepo.HasAction(models.AuditActionMFADisabled))
}

func TestMFADisable_WrongPassword(t *testing.T) {
	account := NewTestAccount("mfa@example.com", "MFA", testPassword)
	f := newAuthFixture(t, account)
	enableMFA(t, f, account.ID)

	err := f.mfa.Disable(context.Background(), account.ID, "wrong")
	assert.ErrorIs(t, err, models.ErrUnauthorized)
	assert.True(t, f.repo.Accounts[account.ID].MFAEnabled)
}

func TestMFADisable_NotEnabled(t *testing.T) {
	account := NewTestAccount("plain@example.com", "Plain", testPassword)
	f := newAuthFixture(t, account)

	err := f.mfa.Disable(context.Background(), account.ID, testPassword)
	assert.ErrorIs(t, err, models.ErrMFANotEnabled)
}
