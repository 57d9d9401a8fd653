package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffPolicy_RetryAfter(t *testing.T) {
	policy := NewBackoffPolicy(DefaultBackoffConfig())

	tests := []struct {
		failures int
		expected time.Duration
	}{
		{0, 0},
		{1, 1 * time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{5, 16 * time.Second},
		{6, 16 * time.Second}, // capped
		{50, 16 * time.Second},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, policy.RetryAfter(tt.failures),
			"failures=%d", tt.failures)
	}
}

func TestBackoffPolicy_ZeroConfigDefaults(t *testing.T) {
	policy := NewBackoffPolicy(BackoffConfig{})

	assert.Equal(t, time.Second, policy.RetryAfter(1))
	assert.Equal(t, 16*time.Second, policy.RetryAfter(10))
}
