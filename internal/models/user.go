package models

import (
	"time"
)

type User struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string
	PasswordSalt string
	HashVersion  int // Hashing parameter version used for PasswordHash
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
