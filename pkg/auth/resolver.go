package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/platinummonkey/tenantgate/pkg/authz"
	"github.com/platinummonkey/tenantgate/pkg/observability"
)

// Resolver turns a bearer credential into a Principal
type Resolver struct {
	verifier Verifier
	users    UserLookup
	logger   *observability.Logger
}

// NewResolver creates a new identity resolver
func NewResolver(verifier Verifier, users UserLookup, logger *observability.Logger) *Resolver {
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	return &Resolver{
		verifier: verifier,
		users:    users,
		logger:   logger,
	}
}

// Resolve verifies token and loads the active principal behind it.
// All returned errors are *authz.Error and terminal for the request.
func (r *Resolver) Resolve(ctx context.Context, token string) (*Principal, error) {
	if token == "" {
		return nil, authz.Unauthenticated()
	}

	verification, err := r.verifier.Verify(ctx, token)
	if err != nil {
		if _, ok := authz.As(err); ok {
			return nil, err
		}
		return nil, authz.InvalidCredential(err)
	}

	principal, err := r.users.FindActiveUserWithRole(ctx, verification.SubjectID)
	if errors.Is(err, ErrNotFound) {
		r.logger.WithField("subject_id", verification.SubjectID).
			Warn("Verified subject is inactive or unknown")
		return nil, authz.InactiveOrUnknownPrincipal()
	}
	if err != nil {
		r.logger.WithError(err).WithField("subject_id", verification.SubjectID).
			Error("Failed to load principal")
		return nil, authz.Internal("failed to load principal", err)
	}

	return principal, nil
}

// ExtractBearerToken parses an Authorization header of the form "Bearer <token>"
func ExtractBearerToken(header string) (string, error) {
	if header == "" {
		return "", authz.Unauthenticated()
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", authz.InvalidCredential(errors.New("invalid authorization header format"))
	}

	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", authz.InvalidCredential(errors.New("empty bearer token"))
	}

	return token, nil
}
