package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/text/unicode/norm"
)

// unusablePrefix marks a hash no password can match.
const unusablePrefix = "!"

// HashPassword hashes a password using bcrypt. An empty password yields an
// unusable hash so the account cannot log in with a password.
func HashPassword(password string) (string, error) {
	if password == "" {
		return UnusablePassword(), nil
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// UnusablePassword returns a random hash that never verifies.
func UnusablePassword() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return unusablePrefix + hex.EncodeToString(b)
}

// VerifyPassword checks if a password matches the hash
func VerifyPassword(hash, password string) bool {
	if hash == "" || strings.HasPrefix(hash, unusablePrefix) {
		return false
	}
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// NormalizeEmail applies NFKC, trims surrounding space and lower-cases the
// domain. The local part keeps its case.
func NormalizeEmail(email string) string {
	email = strings.TrimSpace(norm.NFKC.String(email))
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return email
	}
	return email[:at] + "@" + strings.ToLower(email[at+1:])
}
