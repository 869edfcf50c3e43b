// Package idgen generates the identifiers used across the service: entity
// IDs, request IDs, and bootstrap credentials.
package idgen

import (
	"crypto/rand"
	"encoding/base64"
	"math/big"

	"github.com/rs/xid"
)

// NewID returns a 20-character xid: globally unique, lexicographically
// sortable by creation time, and URL-safe.
func NewID() string {
	return xid.New().String()
}

// NewReviewID returns an identifier for review entities.
func NewReviewID() string { return NewID() }

// NewSubmissionID returns an identifier for submission entities.
func NewSubmissionID() string { return NewID() }

// NewRequestID returns an identifier for tracing a single request.
func NewRequestID() string { return NewID() }

// NewSecureSecret returns a random URL-safe string of exactly length
// characters, suitable for JWT secrets. It panics if the secure random
// source is unavailable; minting a predictable secret would be worse than
// refusing to start.
func NewSecureSecret(length int) string {
	// ceil(3/4 * length) raw bytes base64-encode to at least length chars,
	// and the first length chars are always data, never padding.
	raw := make([]byte, (length*3+3)/4)
	if _, err := rand.Read(raw); err != nil {
		panic("idgen: secure random source unavailable: " + err.Error())
	}
	return base64.URLEncoding.EncodeToString(raw)[:length]
}

// Character pools for generated admin passwords. The special set is a
// subset of the characters the password policy accepts.
const (
	passwordUpper   = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	passwordLower   = "abcdefghijklmnopqrstuvwxyz"
	passwordDigits  = "0123456789"
	passwordSpecial = "!@$%^&*()_+-=[]{}|;:,.<>?"
	passwordLength  = 12
)

// NewSecurePassword returns a 12-character password that always contains an
// uppercase letter, a lowercase letter, a digit, and a special character, so
// it satisfies the admin password policy without retries.
func NewSecurePassword() string {
	pools := []string{passwordUpper, passwordLower, passwordDigits, passwordSpecial}
	all := passwordUpper + passwordLower + passwordDigits + passwordSpecial

	// One character from every pool first, the rest from the combined pool.
	password := make([]byte, 0, passwordLength)
	for _, pool := range pools {
		password = append(password, pool[randomIndex(len(pool))])
	}
	for len(password) < passwordLength {
		password = append(password, all[randomIndex(len(all))])
	}

	// Shuffle so the pool-ordered prefix is not predictable.
	for i := len(password) - 1; i > 0; i-- {
		j := randomIndex(i + 1)
		password[i], password[j] = password[j], password[i]
	}
	return string(password)
}

// randomIndex returns a uniform random int in [0, n) from crypto/rand.
func randomIndex(n int) int {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		panic("idgen: secure random source unavailable: " + err.Error())
	}
	return int(v.Int64())
}
