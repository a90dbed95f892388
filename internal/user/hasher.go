package user

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	pbkdf2Iterations = 100000
	pbkdf2KeyLen     = 32
	saltBytes        = 16
)

// PasswordHasher defines minimal hashing interface (abstract so the
// algorithm can be swapped; password_algo records which one was used).
type PasswordHasher interface {
	Hash(pw string) (hash string, algo string, err error)
	Verify(hash, pw string) bool
}

// PBKDF2Hasher stores passwords as hex(key) + ":" + salt, where salt is 32
// hex characters and its text (not the decoded bytes) is fed to PBKDF2.
type PBKDF2Hasher struct {
	Iterations int
}

func (p PBKDF2Hasher) iterations() int {
	if p.Iterations <= 0 {
		return pbkdf2Iterations
	}
	return p.Iterations
}

func (p PBKDF2Hasher) Hash(pw string) (string, string, error) {
	raw := make([]byte, saltBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", "", fmt.Errorf("generate salt: %w", err)
	}
	salt := hex.EncodeToString(raw)
	key := p.derive(pw, salt)
	return hex.EncodeToString(key) + ":" + salt, fmt.Sprintf("pbkdf2-sha256:%d", p.iterations()), nil
}

// Verify reports whether pw matches the stored record. Malformed records
// never match.
func (p PBKDF2Hasher) Verify(hash, pw string) bool {
	stored, salt, ok := strings.Cut(hash, ":")
	if !ok || stored == "" || salt == "" || strings.Contains(salt, ":") {
		return false
	}
	want, err := hex.DecodeString(stored)
	if err != nil || len(want) == 0 {
		return false
	}
	got := p.derive(pw, salt)
	return subtle.ConstantTimeCompare(got, want) == 1
}

func (p PBKDF2Hasher) derive(pw, salt string) []byte {
	return pbkdf2.Key([]byte(pw), []byte(salt), p.iterations(), pbkdf2KeyLen, sha256.New)
}
