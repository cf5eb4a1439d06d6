package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

const (
	SaltLength = 32 // 256 bits of entropy, hex-encoded for storage
	keyLength  = 32

	// CurrentHashVersion is the parameter version applied to new hashes.
	// Records store the version they were created with, so raising the
	// iteration count only requires adding a new map entry and bumping
	// this constant; verification of older records keeps working.
	CurrentHashVersion = 1
)

// iterationsByVersion maps a hash version to its PBKDF2 iteration count.
// Counts are chosen to cost at least ~50ms per derivation on commodity
// hardware at the time the version was introduced.
var iterationsByVersion = map[int]int{
	1: 210000,
}

// HashPassword derives a PBKDF2-HMAC-SHA256 hash for the password under a
// freshly generated random salt. It returns the hex-encoded hash and salt.
func HashPassword(password string) (hash, salt string, err error) {
	if password == "" {
		return "", "", fmt.Errorf("password cannot be empty")
	}

	saltBytes := make([]byte, SaltLength)
	if _, err := rand.Read(saltBytes); err != nil {
		return "", "", fmt.Errorf("failed to generate salt: %w", err)
	}
	salt = hex.EncodeToString(saltBytes)

	return HashPasswordWithSalt(password, salt, CurrentHashVersion), salt, nil
}

// HashPasswordWithSalt derives the hash for a password under a known salt
// and parameter version. It is pure and deterministic, which is what lets
// the history ledger recompute candidate hashes against stored entries.
func HashPasswordWithSalt(password, salt string, version int) string {
	iterations, ok := iterationsByVersion[version]
	if !ok {
		iterations = iterationsByVersion[CurrentHashVersion]
	}
	key := pbkdf2.Key([]byte(password), []byte(salt), iterations, keyLength, sha256.New)
	return hex.EncodeToString(key)
}

// VerifyPassword recomputes the hash for the candidate password and compares
// it against the stored hash in constant time.
func VerifyPassword(password, salt, hash string, version int) bool {
	computed := HashPasswordWithSalt(password, salt, version)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(hash)) == 1
}
