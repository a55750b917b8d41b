// Package auth verifies the bearer tokens that carry caller identity.
// Tokens are issued elsewhere; Issue exists for local development and tests.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/geocheck/attendance-server-go/internal/errors"
	"github.com/geocheck/attendance-server-go/internal/model"
)

const signingMethod = "HS256"

type identityClaims struct {
	jwt.RegisteredClaims
	Name string     `json:"name"`
	Role model.Role `json:"role"`
}

type Verifier struct {
	key    []byte
	issuer string
	now    func() time.Time
}

func NewVerifier(signingKey, issuer string) *Verifier {
	return &Verifier{key: []byte(signingKey), issuer: issuer, now: time.Now}
}

// Verify checks the token signature, issuer and expiry and returns the
// identity it carries.
func (v *Verifier) Verify(token string) (*model.Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, apperrors.Unauthorized("Missing authentication token")
	}

	var claims identityClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return v.key, nil
	},
		jwt.WithValidMethods([]string{signingMethod}),
		jwt.WithIssuer(v.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, apperrors.TokenExpired()
		}
		return nil, apperrors.InvalidToken("Invalid token").WithCause(err)
	}

	id := model.Identity{ID: claims.Subject, Name: strings.TrimSpace(claims.Name), Role: claims.Role}
	if id.ID == "" || id.Name == "" {
		return nil, apperrors.InvalidToken("Token is missing subject or name")
	}
	if !id.Role.Valid() {
		return nil, apperrors.InvalidToken(fmt.Sprintf("Unknown role %q", claims.Role))
	}
	return &id, nil
}

// Issue signs a token for id valid for ttl.
func Issue(signingKey, issuer string, id model.Identity, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := identityClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   id.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Name: id.Name,
		Role: id.Role,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(signingKey))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}
