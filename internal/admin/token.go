package admin

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	domainerrors "inkdrop/pkg/domain-errors"
)

// TokenVerifier validates operator bearer tokens.
type TokenVerifier struct {
	signingKey []byte
}

func NewTokenVerifier(signingKey string) *TokenVerifier {
	return &TokenVerifier{signingKey: []byte(signingKey)}
}

// Verify parses and validates a bearer token, returning the operator subject.
func (v *TokenVerifier) Verify(raw string) (string, error) {
	token, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.signingKey, nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithExpirationRequired())
	if err != nil {
		return "", domainerrors.Wrap(domainerrors.CodeUnauthorized, "invalid token", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", domainerrors.New(domainerrors.CodeUnauthorized, "invalid token claims")
	}
	subject, _ := claims.GetSubject()
	if subject == "" {
		return "", domainerrors.New(domainerrors.CodeUnauthorized, "token has no subject")
	}
	return subject, nil
}

// Issue mints a short-lived operator token. Used by tooling and tests.
func (v *TokenVerifier) Issue(subject string, ttl time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": subject,
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	})
	signed, err := token.SignedString(v.signingKey)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}
