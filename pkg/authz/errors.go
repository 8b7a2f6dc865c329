// Package authz defines the rejection taxonomy shared by every stage of the
// authorization pipeline.
//
// Each rejection carries a stable Code, an HTTP status, and a message that is
// safe to show to the caller. The one exception is the identity step: an
// inactive or unknown user is rendered exactly like an invalid credential so
// that callers cannot enumerate accounts.
package authz

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies the kind of rejection
type Code string

const (
	CodeUnauthenticated            Code = "UNAUTHENTICATED"
	CodeInvalidCredential          Code = "INVALID_CREDENTIAL"
	CodeExpiredCredential          Code = "EXPIRED_CREDENTIAL"
	CodeInactiveOrUnknownPrincipal Code = "INACTIVE_OR_UNKNOWN_PRINCIPAL"
	CodeNoTenantAssociation        Code = "NO_TENANT_ASSOCIATION"
	CodeScopeMismatch              Code = "SCOPE_MISMATCH"
	CodeInsufficientPermission     Code = "INSUFFICIENT_PERMISSION"
	CodeModuleNotEnabled           Code = "MODULE_NOT_ENABLED"
	CodeAuditQueryFailed           Code = "AUDIT_QUERY_FAILED"
	CodeInternal                   Code = "INTERNAL"
)

var httpStatusMap = map[Code]int{
	CodeUnauthenticated:            http.StatusUnauthorized,
	CodeInvalidCredential:          http.StatusUnauthorized,
	CodeExpiredCredential:          http.StatusUnauthorized,
	CodeInactiveOrUnknownPrincipal: http.StatusUnauthorized,
	CodeNoTenantAssociation:        http.StatusForbidden,
	CodeScopeMismatch:              http.StatusForbidden,
	CodeInsufficientPermission:     http.StatusForbidden,
	CodeModuleNotEnabled:           http.StatusForbidden,
	CodeAuditQueryFailed:           http.StatusInternalServerError,
	CodeInternal:                   http.StatusInternalServerError,
}

// Sentinels for errors.Is. Comparison is by Code only.
var (
	ErrUnauthenticated            = &Error{Code: CodeUnauthenticated}
	ErrInvalidCredential          = &Error{Code: CodeInvalidCredential}
	ErrExpiredCredential          = &Error{Code: CodeExpiredCredential}
	ErrInactiveOrUnknownPrincipal = &Error{Code: CodeInactiveOrUnknownPrincipal}
	ErrNoTenantAssociation        = &Error{Code: CodeNoTenantAssociation}
	ErrScopeMismatch              = &Error{Code: CodeScopeMismatch}
	ErrInsufficientPermission     = &Error{Code: CodeInsufficientPermission}
	ErrModuleNotEnabled           = &Error{Code: CodeModuleNotEnabled}
	ErrAuditQueryFailed           = &Error{Code: CodeAuditQueryFailed}
	ErrInternal                   = &Error{Code: CodeInternal}
)

// Error is a terminal rejection of a request
type Error struct {
	Code    Code
	Message string
	Status  int

	// Detail fields, populated depending on Code
	Permission    string
	Module        string
	RequiredScope string
	ActualScope   string

	// Err is the underlying cause. It is logged, never rendered.
	Err error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error with the same Code
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// HTTPStatus returns the status code for the rejection
func (e *Error) HTTPStatus() int {
	if e.Status != 0 {
		return e.Status
	}
	if status, ok := httpStatusMap[e.Code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// Public returns the status, code and message that may be shown to the caller.
// Unknown and inactive principals are indistinguishable from a bad credential.
func (e *Error) Public() (int, Code, string) {
	switch e.Code {
	case CodeInactiveOrUnknownPrincipal, CodeInvalidCredential:
		return http.StatusUnauthorized, CodeInvalidCredential, "invalid credentials"
	case CodeInternal:
		return http.StatusInternalServerError, CodeInternal, "internal error"
	case CodeAuditQueryFailed:
		return http.StatusInternalServerError, CodeAuditQueryFailed, "audit query failed"
	}
	return e.HTTPStatus(), e.Code, e.Message
}

func newError(code Code, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Status:  httpStatusMap[code],
		Err:     cause,
	}
}

// Unauthenticated is returned when no credential was presented
func Unauthenticated() *Error {
	return newError(CodeUnauthenticated, "authentication required", nil)
}

// InvalidCredential is returned for malformed tokens or bad signatures
func InvalidCredential(cause error) *Error {
	return newError(CodeInvalidCredential, "invalid credentials", cause)
}

// ExpiredCredential is returned when the token's validity window has elapsed
func ExpiredCredential(cause error) *Error {
	return newError(CodeExpiredCredential, "credential expired", cause)
}

// InactiveOrUnknownPrincipal is returned when the subject is missing or disabled
func InactiveOrUnknownPrincipal() *Error {
	return newError(CodeInactiveOrUnknownPrincipal, "principal is inactive or unknown", nil)
}

// NoTenantAssociation is returned when a tenant-scoped principal has no tenant
func NoTenantAssociation() *Error {
	return newError(CodeNoTenantAssociation, "no tenant association", nil)
}

// ScopeMismatch names both the required and the actual scope
func ScopeMismatch(required, actual string) *Error {
	e := newError(CodeScopeMismatch,
		fmt.Sprintf("requires scope %q, principal has %q", required, actual), nil)
	e.RequiredScope = required
	e.ActualScope = actual
	return e
}

// InsufficientPermission names the permission that was required
func InsufficientPermission(permission string) *Error {
	e := newError(CodeInsufficientPermission,
		fmt.Sprintf("missing permission %q", permission), nil)
	e.Permission = permission
	return e
}

// ModuleNotEnabled names the module that is not enabled for the tenant
func ModuleNotEnabled(module string) *Error {
	e := newError(CodeModuleNotEnabled,
		fmt.Sprintf("module %q is not enabled for this tenant", module), nil)
	e.Module = module
	return e
}

// AuditQueryFailed wraps a failure on the audit read path
func AuditQueryFailed(cause error) *Error {
	return newError(CodeAuditQueryFailed, "audit query failed", cause)
}

// Internal wraps an infrastructure failure. Authorization fails closed.
func Internal(message string, cause error) *Error {
	return newError(CodeInternal, message, cause)
}

// As extracts an *Error from err
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// CodeOf returns the Code of err, or CodeInternal for foreign errors
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	if e, ok := As(err); ok {
		return e.Code
	}
	return CodeInternal
}
