package models

import "time"

// PasswordHistory is one entry in an account's credential history ledger.
// Entries are append-only: never updated or deleted except cascading with
// account deletion. The salt and hash version are stored per entry so a
// candidate password can be rehashed under the exact parameters the entry
// was created with.
type PasswordHistory struct {
	ID           string
	UserID       string
	PasswordHash string
	Salt         string
	HashVersion  int
	CreatedAt    time.Time
}
