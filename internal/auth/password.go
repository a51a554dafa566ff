package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// defaultCost is the bcrypt work factor for real use.
const defaultCost = 12

// MinPasswordLength mirrors the identity backend's default password policy.
const MinPasswordLength = 6

// ErrWeakPassword is returned by CheckStrength for passwords below the policy.
var ErrWeakPassword = fmt.Errorf("auth: password should be at least %d characters", MinPasswordLength)

// PasswordService hashes and verifies passwords with bcrypt.
//
// The server itself never sees a stored password (the hosted identity
// backend does); this is used by the in-process backend in
// identity/identitytest.
type PasswordService struct {
	cost int
}

// NewPasswordService creates a PasswordService with the default cost.
func NewPasswordService() *PasswordService {
	return &PasswordService{cost: defaultCost}
}

// NewPasswordServiceWithCost creates a PasswordService with a custom cost.
// Tests pass bcrypt.MinCost (4).
func NewPasswordServiceWithCost(cost int) *PasswordService {
	return &PasswordService{cost: cost}
}

// CheckStrength applies the minimum-length policy.
func (p *PasswordService) CheckStrength(plaintext string) error {
	if len(plaintext) < MinPasswordLength {
		return ErrWeakPassword
	}
	return nil
}

// Hash returns the bcrypt hash of plaintext.
// bcrypt ignores bytes past 72, so longer inputs are rejected.
func (p *PasswordService) Hash(plaintext string) (string, error) {
	if len(plaintext) > 72 {
		return "", fmt.Errorf("auth: password must be 72 bytes or fewer")
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), p.cost)
	if err != nil {
		return "", fmt.Errorf("auth: hashing password: %w", err)
	}
	return string(hashed), nil
}

// Verify returns nil if plaintext matches hash.
func (p *PasswordService) Verify(hash, plaintext string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return fmt.Errorf("auth: invalid password")
		}
		return fmt.Errorf("auth: comparing password hash: %w", err)
	}
	return nil
}
