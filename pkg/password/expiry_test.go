package password

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCheckExpiry_NoTimestamp(t *testing.T) {
	status := CheckExpiry(nil)

	assert.False(t, status.Expired)
	assert.False(t, status.ShouldWarn)
}

func TestCheckExpiry_Expired(t *testing.T) {
	past := time.Now().Add(-time.Hour)

	status := CheckExpiry(&past)

	assert.True(t, status.Expired)
	assert.Equal(t, 0, status.DaysUntilExpiry)
}

func TestCheckExpiry_WarnWindow(t *testing.T) {
	tests := []struct {
		name       string
		remaining  time.Duration
		shouldWarn bool
	}{
		{"far from expiry", 60 * 24 * time.Hour, false},
		{"fifteen days out", 15 * 24 * time.Hour, false},
		{"fourteen days out", 14 * 24 * time.Hour, true},
		{"one day out", 24 * time.Hour, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expiresAt := time.Now().Add(tt.remaining)
			status := CheckExpiry(&expiresAt)

			assert.False(t, status.Expired)
			assert.Equal(t, tt.shouldWarn, status.ShouldWarn)
		})
	}
}

func TestNextExpiry(t *testing.T) {
	changedAt := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	expiry := NextExpiry(changedAt)

	assert.Equal(t, changedAt.Add(90*24*time.Hour), expiry)
}
