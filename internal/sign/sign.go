package sign

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/myapphub/apphub/internal/apperrors"
)

// installTokenTTL matches the one-day window the install links are
// expected to stay valid for.
const installTokenTTL = 24 * time.Hour

// Signer issues and verifies time-limited tokens binding an install
// manifest to one {namespace, app path, package sequence} triple, so
// install links can be shared without exposing the whole catalog.
type Signer struct {
	secret []byte
}

func New(secret string) *Signer {
	return &Signer{secret: []byte(secret)}
}

func installSubject(namespace, path string, packageSeq int) string {
	return fmt.Sprintf("%s/%s/%d", namespace, path, packageSeq)
}

func (s *Signer) SignInstall(namespace, path string, packageSeq int) (string, error) {
	now := time.Now()
	claims := &jwt.RegisteredClaims{
		Subject:   installSubject(namespace, path, packageSeq),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(installTokenTTL)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// VerifyInstall returns ErrForbidden for any bad token: expired, wrong
// signature, or signed for a different resource.
func (s *Signer) VerifyInstall(token, namespace, path string, packageSeq int) error {
	parsed, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !parsed.Valid {
		return apperrors.ErrForbidden
	}
	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject != installSubject(namespace, path, packageSeq) {
		return apperrors.ErrForbidden
	}
	return nil
}
