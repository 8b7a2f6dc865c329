package api

import (
	"net/http"
	"regexp"

	"github.com/platinummonkey/tenantgate/pkg/authz"
	"github.com/platinummonkey/tenantgate/pkg/httputil"
	"github.com/platinummonkey/tenantgate/pkg/pipeline"
	"github.com/platinummonkey/tenantgate/pkg/tenancy"
)

var validModule = regexp.MustCompile(`^[a-z][a-z0-9_-]{0,63}$`)

// FeatureResponse is the state of one module for one tenant
type FeatureResponse struct {
	TenantID string `json:"tenant_id"`
	Module   string `json:"module"`
	Enabled  bool   `json:"enabled"`
}

// UpdateFeatureRequest is the body of PUT /tenants/{tenantID}/features/{module}
type UpdateFeatureRequest struct {
	Enabled *bool `json:"enabled"`
}

// getFeature handles GET /api/v1/features/{module}. Tenant users see their
// own tenant; platform users pick one with ?tenant_id=.
func (s *Server) getFeature(w http.ResponseWriter, r *http.Request) {
	rc, ok := pipeline.FromContext(r.Context())
	if !ok {
		httputil.WriteAuthzError(w, authz.Internal("request context missing", nil))
		return
	}

	module, ok := httputil.ParsePathStringOrError(w, r, "module")
	if !ok {
		return
	}
	if !validModule.MatchString(module) {
		httputil.WriteBadRequest(w, "invalid module name")
		return
	}

	tenantID := tenancy.EffectiveTenant(rc.TenantID, r.URL.Query().Get("tenant_id"))
	if tenantID == "" {
		httputil.WriteBadRequest(w, "tenant_id is required")
		return
	}

	enabled, err := s.features.IsEnabled(r.Context(), tenantID, module)
	if err != nil {
		s.logger.WithError(err).WithFields(map[string]interface{}{
			"tenant_id": tenantID,
			"module":    module,
		}).Error("Failed to read feature flag")
		httputil.WriteAuthzError(w, authz.Internal("failed to read feature flag", err))
		return
	}

	_ = httputil.WriteSuccess(w, FeatureResponse{TenantID: tenantID, Module: module, Enabled: enabled})
}

// updateFeature handles PUT /api/v1/tenants/{tenantID}/features/{module}
func (s *Server) updateFeature(w http.ResponseWriter, r *http.Request) {
	rc, ok := pipeline.FromContext(r.Context())
	if !ok {
		httputil.WriteAuthzError(w, authz.Internal("request context missing", nil))
		return
	}

	tenantID, ok := httputil.ParsePathStringOrError(w, r, "tenantID")
	if !ok {
		return
	}
	module, ok := httputil.ParsePathStringOrError(w, r, "module")
	if !ok {
		return
	}
	if !validModule.MatchString(module) {
		httputil.WriteBadRequest(w, "invalid module name")
		return
	}

	var req UpdateFeatureRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Enabled == nil {
		httputil.WriteBadRequest(w, "enabled is required")
		return
	}

	log := s.logger.WithFields(map[string]interface{}{
		"tenant_id": tenantID,
		"module":    module,
		"enabled":   *req.Enabled,
		"user_id":   rc.Principal.ID,
	})

	if err := s.features.SetEnabled(r.Context(), tenantID, module, *req.Enabled); err != nil {
		log.WithError(err).Error("Failed to update feature flag")
		httputil.WriteAuthzError(w, authz.Internal("failed to update feature flag", err))
		return
	}

	rc.Audit(r.Context(), pipeline.Event{
		Action:         "update",
		Resource:       "tenant_feature",
		ResourceID:     module,
		TenantOverride: tenantID,
		Details:        map[string]interface{}{"enabled": *req.Enabled},
	})
	log.Info("Feature flag updated")

	_ = httputil.WriteSuccess(w, FeatureResponse{TenantID: tenantID, Module: module, Enabled: *req.Enabled})
}
