// Package crypto derives purpose-bound keys from configured secrets.
package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const (
	infoPrefix = "taskhub/v1/"

	// KeySize is the length of every derived key (AES-256 / HMAC-SHA256).
	KeySize = 32
)

// DeriveKey derives a KeySize key from secret using HKDF-SHA256. purpose
// separates keys derived from the same secret.
func DeriveKey(secret, purpose string) ([]byte, error) {
	if secret == "" {
		return nil, fmt.Errorf("crypto: secret must not be empty")
	}

	hkdfReader := hkdf.New(sha256.New, []byte(secret), nil, []byte(infoPrefix+purpose))
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(hkdfReader, key); err != nil {
		return nil, fmt.Errorf("crypto: hkdf key derivation failed: %w", err)
	}
	return key, nil
}

// SessionKeys returns the authentication and encryption keys for session cookies.
func SessionKeys(secret string) (authKey, encKey []byte, err error) {
	if authKey, err = DeriveKey(secret, "session-auth"); err != nil {
		return nil, nil, err
	}
	if encKey, err = DeriveKey(secret, "session-enc"); err != nil {
		return nil, nil, err
	}
	return authKey, encKey, nil
}

// RandomKey returns a KeySize key from the system CSPRNG.
func RandomKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("crypto: random key: %w", err)
	}
	return key, nil
}
