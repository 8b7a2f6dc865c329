package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"

	"github.com/platinummonkey/tenantgate/pkg/authz"
)

// OIDCConfig configures ID token verification against an OpenID provider
type OIDCConfig struct {
	IssuerURL string
	ClientID  string
}

// OIDCVerifier verifies ID tokens issued by an external OpenID provider
type OIDCVerifier struct {
	verifier *oidc.IDTokenVerifier
}

// NewOIDCVerifier discovers the provider and builds a verifier for its keys
func NewOIDCVerifier(ctx context.Context, cfg OIDCConfig) (*OIDCVerifier, error) {
	if cfg.IssuerURL == "" {
		return nil, fmt.Errorf("OIDC issuer URL is required")
	}
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("OIDC client ID is required")
	}

	provider, err := oidc.NewProvider(ctx, cfg.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to discover OIDC provider: %w", err)
	}

	return &OIDCVerifier{
		verifier: provider.Verifier(&oidc.Config{ClientID: cfg.ClientID}),
	}, nil
}

// NewOIDCVerifierWithKeySet builds a verifier from an explicit key set,
// skipping discovery
func NewOIDCVerifierWithKeySet(cfg OIDCConfig, keySet oidc.KeySet) *OIDCVerifier {
	return &OIDCVerifier{
		verifier: oidc.NewVerifier(cfg.IssuerURL, keySet, &oidc.Config{ClientID: cfg.ClientID}),
	}
}

// Verify checks the ID token and returns its subject
func (v *OIDCVerifier) Verify(ctx context.Context, token string) (*Verification, error) {
	idToken, err := v.verifier.Verify(ctx, token)
	if err != nil {
		var expired *oidc.TokenExpiredError
		if errors.As(err, &expired) {
			return nil, authz.ExpiredCredential(err)
		}
		return nil, authz.InvalidCredential(err)
	}

	if idToken.Subject == "" {
		return nil, authz.InvalidCredential(errors.New("ID token has no subject"))
	}

	return &Verification{
		SubjectID: idToken.Subject,
		ExpiresAt: idToken.Expiry,
	}, nil
}
