// Package auth verifies and mints the bearer tokens a client presents in a
// phx_join payload. Claims are deliberately small: {id, channel, exp} — no
// roles, no trust score, just enough to say which external identity is
// joining which channel, the way spec.md §4.2/§6 describes it.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrBadToken covers every way a bearer token can fail verification:
// missing, malformed, wrong signature, expired, or missing required claims.
var ErrBadToken = errors.New("auth: bad token")

// Claims is what a verified bearer token carries.
type Claims struct {
	ID      string
	Channel string
	Exp     int64
}

// Verifier checks and signs HS256 bearer tokens against a single shared
// secret, mirroring the teacher's middleware.Auth but trimmed to this
// system's three claims.
type Verifier struct {
	secret []byte
}

// NewVerifier builds a Verifier around secret. secret must not be empty.
func NewVerifier(secret []byte) *Verifier {
	return &Verifier{secret: secret}
}

// Verify parses and validates tokenString, returning its claims.
func (v *Verifier) Verify(tokenString string) (Claims, error) {
	if tokenString == "" {
		return Claims{}, ErrBadToken
	}
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return v.secret, nil
	})
	if err != nil || !token.Valid {
		return Claims{}, ErrBadToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Claims{}, ErrBadToken
	}

	id, _ := claims["id"].(string)
	channel, _ := claims["channel"].(string)
	if id == "" || channel == "" {
		return Claims{}, ErrBadToken
	}

	exp, _ := claims["exp"].(float64)
	return Claims{ID: id, Channel: channel, Exp: int64(exp)}, nil
}

// Mint signs a fresh token for channel, valid for ttl, identifying the
// bearer with a freshly generated id. Used by the /token endpoint.
func (v *Verifier) Mint(channel string, ttl time.Duration) (string, Claims, error) {
	id := uuid.New().String()
	exp := time.Now().Add(ttl)
	claims := jwt.MapClaims{
		"id":      id,
		"channel": channel,
		"exp":     exp.Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(v.secret)
	if err != nil {
		return "", Claims{}, err
	}
	return signed, Claims{ID: id, Channel: channel, Exp: exp.Unix()}, nil
}
