package auth

import (
	"errors"
	"strings"
	"testing"

	"github.com/kestrelsec/kestrel/internal/models"
)

func TestValidatePassword(t *testing.T) {
	cfg := DefaultPolicyConfig()

	tests := []struct {
		name           string
		password       string
		shouldFail     bool
		reasonContains string
	}{
		{
			name:       "valid strong password",
			password:   "SecureP@ss123",
			shouldFail: false,
		},
		{
			name:           "too short",
			password:       "short1",
			shouldFail:     true,
			reasonContains: "at least 8 characters",
		},
		{
			name:           "missing uppercase",
			password:       "alllowercase1",
			shouldFail:     true,
			reasonContains: "uppercase",
		},
		{
			name:           "missing lowercase",
			password:       "ALLUPPERCASE1!",
			shouldFail:     true,
			reasonContains: "lowercase",
		},
		{
			name:           "missing digit",
			password:       "NoDigitsHere!",
			shouldFail:     true,
			reasonContains: "number",
		},
		{
			name:           "missing special character",
			password:       "NoSpecials123",
			shouldFail:     true,
			reasonContains: "special character",
		},
		{
			name:       "valid with symbols",
			password:   "MyP@ssw0rd!",
			shouldFail: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePassword(tt.password, cfg)

			if tt.shouldFail {
				if err == nil {
					t.Fatalf("expected error, got nil")
				}
				var violation *models.PolicyViolationError
				if !errors.As(err, &violation) {
					t.Fatalf("expected PolicyViolationError, got %T", err)
				}
				if !strings.Contains(violation.Reason, tt.reasonContains) {
					t.Errorf("reason should contain %q, got: %q", tt.reasonContains, violation.Reason)
				}
			} else if err != nil {
				t.Errorf("expected no error, got: %v", err)
			}
		})
	}
}

func TestValidatePasswordFirstViolationWins(t *testing.T) {
	// "short1" violates length, uppercase and special-character rules;
	// only the length reason is reported.
	err := ValidatePassword("short1", DefaultPolicyConfig())
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	var violation *models.PolicyViolationError
	if !errors.As(err, &violation) {
		t.Fatalf("expected PolicyViolationError, got %T", err)
	}
	if !strings.Contains(violation.Reason, "characters") {
		t.Errorf("length violation should win, got: %q", violation.Reason)
	}
}

func TestValidatePasswordDisabledRules(t *testing.T) {
	cfg := PolicyConfig{MinLength: 4}

	if err := ValidatePassword("abcd", cfg); err != nil {
		t.Errorf("all character-class rules disabled, expected no error, got: %v", err)
	}
}

func TestValidatePasswordForUser(t *testing.T) {
	cfg := DefaultPolicyConfig()

	tests := []struct {
		name       string
		password   string
		username   string
		shouldFail bool
	}{
		{
			name:       "password without username",
			password:   "SecureP@ss123",
			username:   "jdoe",
			shouldFail: false,
		},
		{
			name:       "password containing username",
			password:   "XxJdoe12345!xX",
			username:   "jdoe",
			shouldFail: true,
		},
		{
			name:       "case insensitive containment",
			password:   "JDOEsecure1!",
			username:   "jdoe",
			shouldFail: true,
		},
		{
			name:       "empty username skips rule",
			password:   "SecureP@ss123",
			username:   "",
			shouldFail: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePasswordForUser(tt.password, tt.username, cfg)
			if tt.shouldFail && err == nil {
				t.Error("expected error, got nil")
			}
			if !tt.shouldFail && err != nil {
				t.Errorf("expected no error, got: %v", err)
			}
		})
	}
}
