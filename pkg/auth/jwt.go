package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/platinummonkey/tenantgate/pkg/authz"
)

// Verifier validates a bearer credential and extracts its subject
type Verifier interface {
	Verify(ctx context.Context, token string) (*Verification, error)
}

// JWTConfig configures HMAC-signed token verification
type JWTConfig struct {
	Secret   []byte
	Issuer   string        // Optional; checked when set
	Audience string        // Optional; checked when set
	Leeway   time.Duration // Allowed clock skew
}

// JWTVerifier verifies HMAC-signed JWTs against a shared secret
type JWTVerifier struct {
	secret []byte
	opts   []jwt.ParserOption
}

// NewJWTVerifier creates a verifier for HS256/HS384/HS512 tokens
func NewJWTVerifier(cfg JWTConfig) (*JWTVerifier, error) {
	if len(cfg.Secret) == 0 {
		return nil, fmt.Errorf("jwt secret is required")
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{
			jwt.SigningMethodHS256.Alg(),
			jwt.SigningMethodHS384.Alg(),
			jwt.SigningMethodHS512.Alg(),
		}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(cfg.Leeway),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}

	return &JWTVerifier{
		secret: cfg.Secret,
		opts:   opts,
	}, nil
}

// Verify checks signature and expiry and returns the token subject
func (v *JWTVerifier) Verify(ctx context.Context, token string) (*Verification, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	}, v.opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, authz.ExpiredCredential(err)
		}
		return nil, authz.InvalidCredential(err)
	}

	if claims.Subject == "" {
		return nil, authz.InvalidCredential(errors.New("token has no subject"))
	}

	verification := &Verification{SubjectID: claims.Subject}
	if claims.ExpiresAt != nil {
		verification.ExpiresAt = claims.ExpiresAt.Time
	}
	return verification, nil
}
