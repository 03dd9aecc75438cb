package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const DefaultTokenTTL = 24 * time.Hour

// TokenIssuer signs and verifies stateless HS256 bearer tokens. There is no
// server-side revocation: a token stays valid until its expiry and logout is
// a client-side discard.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenIssuer{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

// Issue signs a token for a verified identity and returns it with its
// lifetime in seconds.
func (t *TokenIssuer) Issue(userID, email string) (string, int64, error) {
	now := t.now().UTC()
	claims := jwt.MapClaims{
		"sub":   userID,
		"email": email,
		"iat":   now.Unix(),
		"exp":   now.Add(t.ttl).Unix(),
		"typ":   "access",
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	encoded, err := token.SignedString(t.secret)
	if err != nil {
		return "", 0, fmt.Errorf("sign token: %w", err)
	}

	return encoded, int64(t.ttl.Seconds()), nil
}

// Verify validates the signature and expiry and extracts the identity claims.
// Every failure wraps ErrInvalidToken: callers must not be able to tell a
// forged token from an expired one. The wrapped cause is for logs only.
func (t *TokenIssuer) Verify(tokenStr string) (Claims, error) {
	if tokenStr == "" {
		return Claims{}, fmt.Errorf("%w: empty token", ErrInvalidToken)
	}

	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (any, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(t.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return Claims{}, ErrInvalidToken
	}

	if typ, _ := claims["typ"].(string); typ != "access" {
		return Claims{}, fmt.Errorf("%w: unexpected token type", ErrInvalidToken)
	}

	sub, _ := claims["sub"].(string)
	email, _ := claims["email"].(string)
	if sub == "" || email == "" {
		return Claims{}, fmt.Errorf("%w: missing identity claims", ErrInvalidToken)
	}

	issuedAt, _ := claims["iat"].(float64)
	expiresAt, _ := claims["exp"].(float64)

	return Claims{
		UserID:    sub,
		Email:     email,
		IssuedAt:  time.Unix(int64(issuedAt), 0).UTC(),
		ExpiresAt: time.Unix(int64(expiresAt), 0).UTC(),
	}, nil
}
