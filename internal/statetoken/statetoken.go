// Package statetoken signs and verifies the OAuth state parameter. The state
// round-trips through the provider and the user's browser, so it is untrusted
// input: the embedded clinic and user ids are usable only after the signature
// and expiry check, and even then the callback handler re-validates the
// user's role against the store.
package statetoken

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// MaxTokenLength bounds the state parameter before any parsing happens.
const MaxTokenLength = 1024

type Claims struct {
	ClinicID string `json:"clinicId"`
	UserID   string `json:"userId"`
	Provider string `json:"provider"`
	jwt.RegisteredClaims
}

type Signer struct {
	secret []byte
	ttl    time.Duration
}

func NewSigner(secret string, ttl time.Duration) *Signer {
	return &Signer{secret: []byte(secret), ttl: ttl}
}

func (s *Signer) Sign(clinicID, userID, provider string) (string, error) {
	now := time.Now()
	claims := Claims{
		ClinicID: clinicID,
		UserID:   userID,
		Provider: provider,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign state token: %w", err)
	}
	return signed, nil
}

func (s *Signer) Verify(token string) (*Claims, error) {
	if len(token) > MaxTokenLength {
		return nil, fmt.Errorf("state token exceeds %d bytes", MaxTokenLength)
	}

	var claims Claims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("parse state token: %w", err)
	}
	if !parsed.Valid {
		return nil, fmt.Errorf("invalid state token")
	}

	if claims.ClinicID == "" || claims.UserID == "" {
		return nil, fmt.Errorf("state token missing identity claims")
	}

	return &claims, nil
}
