// Package auth verifies the identity token minted by the external auth
// service and attaches the caller facts to the request context. Token
// issuance, account management, and OAuth linking live in that service;
// this package is the hand-off point.
package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/louisbranch/inviteboard/internal/platform/errors"
	"github.com/louisbranch/inviteboard/internal/platform/requestctx"
)

// Config defines how identity tokens are verified.
type Config struct {
	Secret []byte
	Now    func() time.Time
}

// claims is the internal claims type used for JWT parsing. The auth
// service signs (sub, role, trust_level) with HS256.
type claims struct {
	jwt.RegisteredClaims
	Role       string `json:"role"`
	TrustLevel int    `json:"trust_level"`
}

// Verifier validates bearer tokens into request identities.
type Verifier struct {
	secret []byte
	now    func() time.Time
}

// NewVerifier builds a verifier. The shared secret is required.
func NewVerifier(cfg Config) (*Verifier, error) {
	if len(cfg.Secret) == 0 {
		return nil, errors.New("identity token secret is required")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Verifier{secret: cfg.Secret, now: cfg.Now}, nil
}

// Verify parses and validates one token into a caller identity.
func (v *Verifier) Verify(token string) (requestctx.Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return requestctx.Identity{}, apperrors.New(apperrors.CodeIdentityMissing, "identity token is required")
	}

	var parsed claims
	_, err := jwt.ParseWithClaims(token, &parsed, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		return requestctx.Identity{}, mapJWTError(err)
	}
	subject := strings.TrimSpace(parsed.Subject)
	if subject == "" {
		return requestctx.Identity{}, apperrors.New(apperrors.CodeIdentityMissing, "identity token sub is required")
	}
	if parsed.TrustLevel < 0 {
		return requestctx.Identity{}, apperrors.New(apperrors.CodeIdentityMissing, "identity token trust_level is invalid")
	}
	return requestctx.Identity{
		UserID:     subject,
		Role:       parsed.Role,
		TrustLevel: parsed.TrustLevel,
	}, nil
}

// mapJWTError translates jwt library errors to application errors.
func mapJWTError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return apperrors.New(apperrors.CodeIdentityMissing, "identity token is expired")
	case errors.Is(err, jwt.ErrTokenMalformed):
		return apperrors.New(apperrors.CodeIdentityMissing, "identity token is malformed")
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return apperrors.New(apperrors.CodeIdentityMissing, "identity token signature is invalid")
	default:
		return apperrors.New(apperrors.CodeIdentityMissing, "identity token is invalid")
	}
}
