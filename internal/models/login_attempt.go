package models

import "time"

// LoginAttempt represents a single login attempt in the system.
// UserID is nil when the submitted identity did not match any account;
// such attempts are still recorded for their forensic value even though
// lockout decisions are always per-account.
type LoginAttempt struct {
	ID          string
	UserID      *string
	IPAddress   string
	UserAgent   string
	Success     bool
	AttemptTime time.Time
}
