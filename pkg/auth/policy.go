package auth

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/kestrelsec/kestrel/internal/models"
)

// PolicyConfig holds the password strength rules. Each character-class
// requirement can be toggled independently.
type PolicyConfig struct {
	MinLength           int
	RequireUppercase    bool
	RequireLowercase    bool
	RequireNumbers      bool
	RequireSpecialChars bool
}

// DefaultPolicyConfig returns the baseline policy applied when no
// configuration is supplied.
func DefaultPolicyConfig() PolicyConfig {
	return PolicyConfig{
		MinLength:           8,
		RequireUppercase:    true,
		RequireLowercase:    true,
		RequireNumbers:      true,
		RequireSpecialChars: true,
	}
}

// ValidatePassword checks a candidate password against the policy and
// returns the first violated rule as a PolicyViolationError. Rules are
// checked in order: length, uppercase, lowercase, digit, special character.
func ValidatePassword(password string, cfg PolicyConfig) error {
	if len(password) < cfg.MinLength {
		return &models.PolicyViolationError{
			Reason: fmt.Sprintf("password must be at least %d characters long", cfg.MinLength),
		}
	}

	hasUpper := false
	hasLower := false
	hasDigit := false
	hasSpecial := false

	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			hasSpecial = true
		}
	}

	if cfg.RequireUppercase && !hasUpper {
		return &models.PolicyViolationError{Reason: "password must contain at least one uppercase letter"}
	}
	if cfg.RequireLowercase && !hasLower {
		return &models.PolicyViolationError{Reason: "password must contain at least one lowercase letter"}
	}
	if cfg.RequireNumbers && !hasDigit {
		return &models.PolicyViolationError{Reason: "password must contain at least one number"}
	}
	if cfg.RequireSpecialChars && !hasSpecial {
		return &models.PolicyViolationError{Reason: "password must contain at least one special character"}
	}

	return nil
}

// ValidatePasswordForUser applies the stateless policy rules plus the
// account-specific rule that the password must not contain the username.
func ValidatePasswordForUser(password, username string, cfg PolicyConfig) error {
	if err := ValidatePassword(password, cfg); err != nil {
		return err
	}

	if username != "" && strings.Contains(strings.ToLower(password), strings.ToLower(username)) {
		return &models.PolicyViolationError{Reason: "password must not contain your username"}
	}

	return nil
}
