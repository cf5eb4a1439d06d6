package config

import (
	"os"
	"testing"
	"time"
)

func TestLoad_SecurityDefaults(t *testing.T) {
	os.Setenv("JWT_SECRET", "test-secret-32-characters-long!")
	os.Setenv("DB_PASSWORD", "test")
	defer os.Clearenv()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() = %v, want nil", err)
	}

	if cfg.Security.MinLength != 8 {
		t.Errorf("MinLength: got %d, want 8", cfg.Security.MinLength)
	}
	if !cfg.Security.RequireUppercase || !cfg.Security.RequireLowercase ||
		!cfg.Security.RequireNumbers || !cfg.Security.RequireSpecialChars {
		t.Error("all character-class requirements should default to true")
	}
	if cfg.Security.MaxLoginAttempts != 5 {
		t.Errorf("MaxLoginAttempts: got %d, want 5", cfg.Security.MaxLoginAttempts)
	}
	if cfg.Security.LockoutDuration != 15*time.Minute {
		t.Errorf("LockoutDuration: got %v, want 15m", cfg.Security.LockoutDuration)
	}
	if cfg.Security.PasswordHistoryCount != 5 {
		t.Errorf("PasswordHistoryCount: got %d, want 5", cfg.Security.PasswordHistoryCount)
	}
	if cfg.Security.ResetCodeExpiry != 15*time.Minute {
		t.Errorf("ResetCodeExpiry: got %v, want 15m", cfg.Security.ResetCodeExpiry)
	}
	if cfg.Security.ResetTokenExpiry != 5*time.Minute {
		t.Errorf("ResetTokenExpiry: got %v, want 5m", cfg.Security.ResetTokenExpiry)
	}
	if cfg.Security.ResetFailuresOnSuccess {
		t.Error("ResetFailuresOnSuccess should default to false")
	}
}

func TestLoad_SecurityCustomValues(t *testing.T) {
	os.Setenv("JWT_SECRET", "test-secret-32-characters-long!")
	os.Setenv("DB_PASSWORD", "test")
	os.Setenv("MAX_LOGIN_ATTEMPTS", "3")
	os.Setenv("LOCKOUT_DURATION", "30m")
	os.Setenv("PASSWORD_HISTORY_COUNT", "10")
	os.Setenv("RESET_FAILURES_ON_SUCCESS", "true")
	defer os.Clearenv()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() = %v, want nil", err)
	}

	if cfg.Security.MaxLoginAttempts != 3 {
		t.Errorf("MaxLoginAttempts: got %d, want 3", cfg.Security.MaxLoginAttempts)
	}
	if cfg.Security.LockoutDuration != 30*time.Minute {
		t.Errorf("LockoutDuration: got %v, want 30m", cfg.Security.LockoutDuration)
	}
	if cfg.Security.PasswordHistoryCount != 10 {
		t.Errorf("PasswordHistoryCount: got %d, want 10", cfg.Security.PasswordHistoryCount)
	}
	if !cfg.Security.ResetFailuresOnSuccess {
		t.Error("ResetFailuresOnSuccess: got false, want true")
	}
}

func TestLoad_RequiresDBPassword(t *testing.T) {
	os.Setenv("JWT_SECRET", "test-secret-32-characters-long!")
	os.Unsetenv("DB_PASSWORD")
	defer os.Clearenv()

	if _, err := Load(); err == nil {
		t.Error("Load() should fail without DB_PASSWORD")
	}
}

func TestValidateJWTSecret(t *testing.T) {
	tests := []struct {
		name      string
		secret    string
		env       string
		shouldErr bool
	}{
		{"strong secret in development", "a-reasonably-long-secret", "development", false},
		{"short secret in development", "short", "development", true},
		{"weak value", "changeme", "development", true},
		{"production requires 32 chars", "only-24-characters-here!", "production", true},
		{"production with 32 chars", "this-secret-is-32-characters-ok!", "production", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateJWTSecret(tt.secret, tt.env)
			if tt.shouldErr && err == nil {
				t.Error("expected error, got nil")
			}
			if !tt.shouldErr && err != nil {
				t.Errorf("expected no error, got: %v", err)
			}
		})
	}
}

func TestLoad_TrustedProxies(t *testing.T) {
	os.Setenv("JWT_SECRET", "test-secret-32-characters-long!")
	os.Setenv("DB_PASSWORD", "test")
	os.Setenv("TRUSTED_PROXIES", "10.0.0.0/8, 172.16.0.0/12")
	defer os.Clearenv()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() = %v, want nil", err)
	}

	want := []string{"10.0.0.0/8", "172.16.0.0/12"}
	if len(cfg.Server.TrustedProxies) != len(want) {
		t.Fatalf("TrustedProxies: got %v, want %v", cfg.Server.TrustedProxies, want)
	}
	for i := range want {
		if cfg.Server.TrustedProxies[i] != want[i] {
			t.Errorf("TrustedProxies[%d]: got %q, want %q", i, cfg.Server.TrustedProxies[i], want[i])
		}
	}
}
