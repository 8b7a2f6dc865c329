// Package auth resolves the acting Principal of a request from its bearer credential.
//
// # Overview
//
// Identity resolution is the first stage of every protected request. A Verifier
// checks the credential's signature and validity window and yields a subject
// identifier; a UserLookup then loads the active user joined with its role.
//
//	verifier, _ := auth.NewJWTVerifier(auth.JWTConfig{Secret: secret})
//	resolver := auth.NewResolver(verifier, auth.NewStore(db), logger)
//
//	principal, err := resolver.Resolve(ctx, token)
//
// # Verifiers
//
// JWTVerifier accepts HMAC-signed tokens (HS256, HS384, HS512) and requires an
// exp claim. OIDCVerifier accepts ID tokens from an external OpenID provider.
//
// # Errors
//
// Resolve only returns *authz.Error values:
//
//	authz.ErrUnauthenticated            - no credential presented
//	authz.ErrInvalidCredential          - malformed, bad signature, wrong alg
//	authz.ErrExpiredCredential          - validity window elapsed
//	authz.ErrInactiveOrUnknownPrincipal - subject missing or disabled
//
// Missing and disabled users produce the same error, and its public rendering
// is identical to an invalid credential.
package auth
