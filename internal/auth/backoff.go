package auth

import (
	"time"
)

// BackoffConfig tunes the progressive-delay policy applied to failed
// logins. Rather than sleeping inside the request, the computed delay is
// returned to the caller as a retry-after duration, so a slow attacker
// cannot pin a worker.
type BackoffConfig struct {
	Base time.Duration // delay after the first failure
	Cap  time.Duration // upper bound on the computed delay
}

// DefaultBackoffConfig doubles from one second and caps at sixteen.
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		Base: 1 * time.Second,
		Cap:  16 * time.Second,
	}
}

// BackoffPolicy computes the anti-automation delay for failed logins.
type BackoffPolicy struct {
	config BackoffConfig
}

// NewBackoffPolicy creates a BackoffPolicy.
func NewBackoffPolicy(config BackoffConfig) *BackoffPolicy {
	if config.Base <= 0 {
		config.Base = time.Second
	}
	if config.Cap <= 0 {
		config.Cap = 16 * time.Second
	}
	return &BackoffPolicy{config: config}
}

// RetryAfter returns how long the client should wait after the given
// cumulative failure count. Zero failures mean no delay. The delay
// doubles per failure and is capped, independent of whether the lockout
// threshold has been reached.
func (p *BackoffPolicy) RetryAfter(failureCount int) time.Duration {
	if failureCount <= 0 {
		return 0
	}

	delay := p.config.Base
	for i := 1; i < failureCount; i++ {
		delay *= 2
		if delay >= p.config.Cap {
			return p.config.Cap
		}
	}
	if delay > p.config.Cap {
		return p.config.Cap
	}
	return delay
}
