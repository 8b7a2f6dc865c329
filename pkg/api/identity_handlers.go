package api

import (
	"net/http"

	"github.com/platinummonkey/tenantgate/pkg/auth"
	"github.com/platinummonkey/tenantgate/pkg/authz"
	"github.com/platinummonkey/tenantgate/pkg/httputil"
	"github.com/platinummonkey/tenantgate/pkg/pipeline"
)

// MeResponse describes the caller as the pipeline resolved them
type MeResponse struct {
	Principal   *auth.Principal `json:"principal"`
	TenantID    string          `json:"tenant_id,omitempty"`
	Platform    bool            `json:"platform"`
	Permissions []string        `json:"permissions"`
}

// getMe handles GET /api/v1/me
func (s *Server) getMe(w http.ResponseWriter, r *http.Request) {
	rc, ok := pipeline.FromContext(r.Context())
	if !ok {
		httputil.WriteAuthzError(w, authz.Internal("request context missing", nil))
		return
	}

	permissions, err := s.permissions.ListPermissions(r.Context(), rc.Principal.RoleID)
	if err != nil {
		s.logger.WithError(err).WithField("user_id", rc.Principal.ID).Error("Failed to list permissions")
		httputil.WriteAuthzError(w, authz.Internal("failed to list permissions", err))
		return
	}
	if permissions == nil {
		permissions = []string{}
	}

	_ = httputil.WriteSuccess(w, MeResponse{
		Principal:   rc.Principal,
		TenantID:    rc.TenantID,
		Platform:    rc.Principal.IsPlatform(),
		Permissions: permissions,
	})
}
