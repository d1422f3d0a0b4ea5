// Package auth issues and verifies the admin JWT used by every protected
// endpoint (spec.md §5/§6.6 — the side-car owns this surface even though
// end-user login belongs to the gateway).
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrInvalidCredentials is returned when the admin password does not match.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrTokenInvalid is returned for malformed or badly-signed tokens.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrTokenExpired is returned for tokens past their exp claim.
	ErrTokenExpired = errors.New("token expired")
)

// Service issues and verifies admin session tokens against a single
// password hash configured at startup (ADMIN_PASSWORD).
type Service struct {
	secret       []byte
	expiry       time.Duration
	passwordHash []byte
}

// New builds the admin auth service, hashing the configured plaintext
// password once at startup.
func New(adminPassword, jwtSecret string, expiryHours int) (*Service, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(adminPassword), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash admin password: %w", err)
	}
	return &Service{
		secret:       []byte(jwtSecret),
		expiry:       time.Duration(expiryHours) * time.Hour,
		passwordHash: hash,
	}, nil
}

// Login checks the supplied password and issues a signed JWT on success.
func (s *Service) Login(password string) (string, error) {
	if bcrypt.CompareHashAndPassword(s.passwordHash, []byte(password)) != nil {
		return "", ErrInvalidCredentials
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"sub":  "admin",
		"role": "admin",
		"iat":  now.Unix(),
		"exp":  now.Add(s.expiry).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Verify parses and validates a bearer token, returning nil on success.
func (s *Service) Verify(tokenString string) error {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ErrTokenExpired
		}
		return ErrTokenInvalid
	}
	if !token.Valid {
		return ErrTokenInvalid
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || claims["role"] != "admin" {
		return ErrTokenInvalid
	}
	return nil
}
