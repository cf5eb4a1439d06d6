package models

import "time"

// Transient secret namespaces. Each (namespace, email) pair holds at most
// one live secret; a new write supersedes the prior one.
const (
	ResetCodeNamespace  = "reset-code"
	ResetTokenNamespace = "reset-token"
)

// TransientSecret is a short-lived, single-purpose secret keyed by
// (namespace, email). Expiry is enforced at read time; rows are also
// deleted explicitly on successful consumption.
type TransientSecret struct {
	Namespace string
	Email     string
	Secret    string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// IsExpired checks if the secret has passed its expiry.
func (s *TransientSecret) IsExpired() bool {
	return time.Now().After(s.ExpiresAt)
}
