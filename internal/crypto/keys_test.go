package crypto

import (
	"bytes"
	"testing"
)

const testSecret = "test-secret-key-for-unit-tests"

func TestDeriveKey(t *testing.T) {
	key, err := DeriveKey(testSecret, "session-auth")
	if err != nil {
		t.Fatalf("DeriveKey: %v", err)
	}
	if len(key) != KeySize {
		t.Fatalf("expected %d-byte key, got %d", KeySize, len(key))
	}

	// Deterministic: same secret and purpose → same key.
	key2, _ := DeriveKey(testSecret, "session-auth")
	if !bytes.Equal(key, key2) {
		t.Fatal("DeriveKey not deterministic")
	}
}

func TestDeriveKeyEmptySecret(t *testing.T) {
	if _, err := DeriveKey("", "session-auth"); err == nil {
		t.Fatal("expected error for empty secret")
	}
	if _, _, err := SessionKeys(""); err == nil {
		t.Fatal("expected error for empty secret")
	}
}

func TestSessionKeysAreDistinct(t *testing.T) {
	authKey, encKey, err := SessionKeys(testSecret)
	if err != nil {
		t.Fatalf("SessionKeys: %v", err)
	}
	if bytes.Equal(authKey, encKey) {
		t.Fatal("auth and encryption keys must differ")
	}

	other, _, _ := SessionKeys("another-secret")
	if bytes.Equal(authKey, other) {
		t.Fatal("different secrets produced the same key")
	}
}

func TestRandomKey(t *testing.T) {
	a, err := RandomKey()
	if err != nil {
		t.Fatalf("RandomKey: %v", err)
	}
	b, _ := RandomKey()
	if len(a) != KeySize || bytes.Equal(a, b) {
		t.Fatal("expected distinct random keys")
	}
}
