package httputil

import (
	"encoding/json"
	"net/http"

	"github.com/platinummonkey/tenantgate/pkg/authz"
)

// ErrorResponse represents a standardized error response
type ErrorResponse struct {
	Error   string            `json:"error"`
	Code    string            `json:"code,omitempty"`
	Details map[string]string `json:"details,omitempty"`
}

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// WriteSuccess writes a successful response (200 OK) with JSON data
func WriteSuccess(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusOK, data)
}

// WriteErrorMessage writes a JSON error response with a custom message
func WriteErrorMessage(w http.ResponseWriter, status int, message string) {
	_ = WriteJSON(w, status, ErrorResponse{Error: message})
}

// WriteBadRequest writes a bad request error (400)
func WriteBadRequest(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusBadRequest, message)
}

// WriteAuthzError renders err as the caller-safe rejection envelope. Errors
// outside the authz taxonomy are reported as a generic internal error.
func WriteAuthzError(w http.ResponseWriter, err error) {
	e, ok := authz.As(err)
	if !ok {
		e = authz.Internal("internal error", err)
	}

	status, code, message := e.Public()
	resp := ErrorResponse{Error: message, Code: string(code)}

	details := map[string]string{}
	if e.Permission != "" {
		details["permission"] = e.Permission
	}
	if e.Module != "" {
		details["module"] = e.Module
	}
	if e.RequiredScope != "" {
		details["required_scope"] = e.RequiredScope
		details["actual_scope"] = e.ActualScope
	}
	if len(details) > 0 {
		resp.Details = details
	}

	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Bearer realm="tenantgate"`)
	}
	_ = WriteJSON(w, status, resp)
}
