// Package auth issues and checks the signed tokens this server mints itself.
//
// Two token families go through TokenService:
//   - the visitor cookie, whose subject is the visitor ID that keys a shell
//   - access tokens minted by the in-process identity backend used in tests
//
// Identity backend access tokens are never validated here; they are opaque
// to this server and only forwarded as bearer tokens.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenService signs and validates HS256 JWTs for a single issuer.
type TokenService struct {
	secret []byte
	issuer string
	ttl    time.Duration
}

// NewTokenService creates a TokenService. The secret must be at least 16
// characters; ttl is the lifetime used by Generate.
func NewTokenService(secret, issuer string, ttl time.Duration) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: token secret must be at least 16 characters")
	}
	if issuer == "" {
		return nil, errors.New("auth: token issuer must not be empty")
	}
	if ttl <= 0 {
		return nil, errors.New("auth: token lifetime must be positive")
	}
	return &TokenService{secret: []byte(secret), issuer: issuer, ttl: ttl}, nil
}

// Claims is the JWT payload. Email is only set by the test identity backend.
type Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
}

// TTL returns the default token lifetime.
func (s *TokenService) TTL() time.Duration {
	return s.ttl
}

// Generate signs a token for subject with the default lifetime.
func (s *TokenService) Generate(subject string) (string, error) {
	return s.GenerateWithDuration(subject, s.ttl)
}

// GenerateWithDuration signs a token for subject that expires after d.
func (s *TokenService) GenerateWithDuration(subject string, d time.Duration) (string, error) {
	return s.sign(subject, "", d)
}

// GenerateForEmail signs a token that also carries an email claim.
func (s *TokenService) GenerateForEmail(subject, email string, d time.Duration) (string, error) {
	return s.sign(subject, email, d)
}

func (s *TokenService) sign(subject, email string, d time.Duration) (string, error) {
	now := time.Now()

	c := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(d)),
			Issuer:    s.issuer,
		},
		Email: email,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}
	return signed, nil
}

// Validate verifies signature, issuer and expiry and returns the subject.
func (s *TokenService) Validate(tokenStr string) (string, error) {
	c, err := s.Parse(tokenStr)
	if err != nil {
		return "", err
	}
	return c.Subject, nil
}

// Parse verifies tokenStr and returns its claims.
func (s *TokenService) Parse(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&Claims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("auth: unexpected signing method: %v", token.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("auth: token expired")
		}
		return nil, fmt.Errorf("auth: invalid token: %w", err)
	}

	c, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("auth: invalid token claims")
	}
	if c.Subject == "" {
		return nil, fmt.Errorf("auth: token has no subject")
	}
	return c, nil
}
