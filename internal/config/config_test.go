package config

import (
	"os"
	"testing"
	"time"
)

const testMFAKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func setRequiredEnv(t *testing.T) {
	t.Helper()
	os.Setenv("JWT_SECRET", "test-secret-32-characters-long!")
	os.Setenv("DB_PASSWORD", "test")
	os.Setenv("MFA_ENCRYPTION_KEY", testMFAKey)
}

func TestServerConfig_Timeouts_Defaults(t *testing.T) {
	setRequiredEnv(t)
	defer os.Clearenv()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() = %v, want nil", err)
	}

	tests := []struct {
		name     string
		actual   time.Duration
		expected time.Duration
	}{
		{"ReadTimeout", cfg.Server.ReadTimeout, 15 * time.Second},
		{"WriteTimeout", cfg.Server.WriteTimeout, 15 * time.Second},
		{"IdleTimeout", cfg.Server.IdleTimeout, 60 * time.Second},
	}

	for _, tt := range tests {
		if tt.actual != tt.expected {
			t.Errorf("%s: got %v, want %v", tt.name, tt.actual, tt.expected)
		}
	}
}

func TestServerConfig_Timeouts_CustomValues(t *testing.T) {
	setRequiredEnv(t)
	os.Setenv("SERVER_READ_TIMEOUT", "30s")
	os.Setenv("SERVER_WRITE_TIMEOUT", "45s")
	os.Setenv("SERVER_IDLE_TIMEOUT", "120s")
	defer os.Clearenv()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() = %v, want nil", err)
	}

	tests := []struct {
		name     string
		actual   time.Duration
		expected time.Duration
	}{
		{"ReadTimeout", cfg.Server.ReadTimeout, 30 * time.Second},
		{"WriteTimeout", cfg.Server.WriteTimeout, 45 * time.Second},
		{"IdleTimeout", cfg.Server.IdleTimeout, 120 * time.Second},
	}

	for _, tt := range tests {
		if tt.actual != tt.expected {
			t.Errorf("%s: got %v, want %v", tt.name, tt.actual, tt.expected)
		}
	}
}

func TestServerConfig_Timeouts_InvalidDuration(t *testing.T) {
	setRequiredEnv(t)
	os.Setenv("SERVER_READ_TIMEOUT", "not-a-duration")
	defer os.Clearenv()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() = %v, want nil", err)
	}

	// Invalid duration should fall back to default
	if cfg.Server.ReadTimeout != 15*time.Second {
		t.Errorf("ReadTimeout with invalid value: got %v, want %v", cfg.Server.ReadTimeout, 15*time.Second)
	}
}

func TestAuthConfig_SessionValidity_Default(t *testing.T) {
	setRequiredEnv(t)
	defer os.Clearenv()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() = %v, want nil", err)
	}

	if cfg.Auth.SessionValidity != 30*24*time.Hour {
		t.Errorf("SessionValidity: got %v, want %v", cfg.Auth.SessionValidity, 30*24*time.Hour)
	}
	if cfg.Auth.BackoffBase != 1*time.Second {
		t.Errorf("BackoffBase: got %v, want 1s", cfg.Auth.BackoffBase)
	}
	if cfg.Auth.BackoffCap != 16*time.Second {
		t.Errorf("BackoffCap: got %v, want 16s", cfg.Auth.BackoffCap)
	}
}

func TestMFAKey_Required(t *testing.T) {
	os.Setenv("JWT_SECRET", "test-secret-32-characters-long!")
	os.Setenv("DB_PASSWORD", "test")
	defer os.Clearenv()

	if _, err := Load(); err == nil {
		t.Fatal("Load() without MFA_ENCRYPTION_KEY should fail")
	}
}

func TestMFAKey_WrongLength(t *testing.T) {
	os.Setenv("JWT_SECRET", "test-secret-32-characters-long!")
	os.Setenv("DB_PASSWORD", "test")
	os.Setenv("MFA_ENCRYPTION_KEY", "0001020304")
	defer os.Clearenv()

	if _, err := Load(); err == nil {
		t.Fatal("Load() with short MFA_ENCRYPTION_KEY should fail")
	}
}

func TestMFAKey_Decoded(t *testing.T) {
	setRequiredEnv(t)
	defer os.Clearenv()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() = %v, want nil", err)
	}

	if len(cfg.MFA.EncryptionKey) != 32 {
		t.Errorf("EncryptionKey length: got %d, want 32", len(cfg.MFA.EncryptionKey))
	}
}

func TestCaptchaSecret_RequiredInProduction(t *testing.T) {
	setRequiredEnv(t)
	os.Setenv("JWT_SECRET", "production-grade-secret-with-enough-entropy!")
	os.Setenv("ENV", "production")
	defer os.Clearenv()

	if _, err := Load(); err == nil {
		t.Fatal("Load() in production without CAPTCHA_SECRET should fail")
	}
}
