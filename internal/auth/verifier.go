// Package auth guards the admin surface with a single shared password.
package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// HeaderName carries the admin password on every admin request.
const HeaderName = "X-Admin-Password"

var ErrNoPassword = errors.New("no admin password configured")

// Verifier checks candidate admin passwords against either a bcrypt hash or
// a plaintext password.
type Verifier struct {
	hash     []byte
	password []byte
}

// NewVerifier builds a Verifier. A non-empty hash wins over password and must
// be a valid bcrypt hash.
func NewVerifier(password, hash string) (*Verifier, error) {
	if hash != "" {
		if _, err := bcrypt.Cost([]byte(hash)); err != nil {
			return nil, fmt.Errorf("invalid admin password hash: %w", err)
		}
		return &Verifier{hash: []byte(hash)}, nil
	}
	if password == "" {
		return nil, ErrNoPassword
	}
	return &Verifier{password: []byte(password)}, nil
}

// Verify reports whether candidate is the admin password.
func (v *Verifier) Verify(candidate string) bool {
	if candidate == "" {
		return false
	}
	if v.hash != nil {
		return bcrypt.CompareHashAndPassword(v.hash, []byte(candidate)) == nil
	}
	return subtle.ConstantTimeCompare(v.password, []byte(candidate)) == 1
}

// HashPassword returns a bcrypt hash suitable for auth.admin_password_hash.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", ErrNoPassword
	}
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}
	return string(h), nil
}
