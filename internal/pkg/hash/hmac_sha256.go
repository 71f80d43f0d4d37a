package hash

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// Hash hashes and verifies secrets.
type Hash interface {
	Hash(str string) string
	Verify(hashed, str string) bool
}

// HMACSHA256 is a keyed SHA-256 hasher with hex output.
type HMACSHA256 struct {
	secret []byte
}

func NewHMACSHA256(secret string) *HMACSHA256 {
	return &HMACSHA256{secret: []byte(secret)}
}

func (s *HMACSHA256) Hash(str string) string {
	return hex.EncodeToString(s.sum(str))
}

// Verify compares in constant time regardless of where the inputs differ.
func (s *HMACSHA256) Verify(hashed, str string) bool {
	expected := []byte(s.Hash(str))
	return subtle.ConstantTimeCompare([]byte(hashed), expected) == 1
}

// Fingerprint returns a short stable tag for str, safe to put in logs.
func (s *HMACSHA256) Fingerprint(str string) string {
	return hex.EncodeToString(s.sum(str)[:8])
}

func (s *HMACSHA256) sum(str string) []byte {
	h := hmac.New(sha256.New, s.secret)
	h.Write([]byte(str))
	return h.Sum(nil)
}
