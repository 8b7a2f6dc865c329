// Package httputil provides HTTP helpers for JSON responses, authorization
// rejections, request parsing and common middleware.
//
// WriteAuthzError is the single place where a rejection becomes a response:
// it renders only the caller-safe view of an authz error, so inactive and
// unknown principals look exactly like a bad credential.
//
//	if err := gate.Check(ctx, p, tenantID, "reports"); err != nil {
//		httputil.WriteAuthzError(w, err)
//		return
//	}
//
// ClientIP resolves the caller address for audit provenance.
package httputil
