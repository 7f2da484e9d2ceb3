// Package auth resolves bearer credentials to identities. The rest of the
// system consumes it as a capability: token in, identity out.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/TaeDongUm/devCampHub/internal/domain"
)

var ErrInvalidToken = errors.New("invalid token")

// Verifier resolves a bearer token to the principal it was issued for.
type Verifier interface {
	Verify(token string) (domain.Identity, error)
}

// JWTVerifier checks HMAC-signed tokens whose subject is the user's email.
type JWTVerifier struct {
	secret []byte
}

func NewJWTVerifier(secret string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret)}
}

func (v *JWTVerifier) Verify(tokenStr string) (domain.Identity, error) {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil || !token.Valid {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	sub, err := token.Claims.GetSubject()
	if err != nil || sub == "" {
		return "", ErrInvalidToken
	}
	return domain.NewIdentity(sub)
}

// Issue signs a token for an identity. Token issuance belongs to the external
// auth service; this exists for tests and local development.
func (v *JWTVerifier) Issue(identity domain.Identity, ttl time.Duration) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:   string(identity),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}
