package pipeline

import (
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/tenantgate/pkg/auth"
	"github.com/platinummonkey/tenantgate/pkg/authz"
	"github.com/platinummonkey/tenantgate/pkg/contextkeys"
	"github.com/platinummonkey/tenantgate/pkg/httputil"
)

// Protect guards a handler with the named policy from the registry. The
// policy is looked up on every request so reloads apply immediately; an
// unknown name fails closed.
func (p *Pipeline) Protect(policyName string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			policy, ok := p.policies.Get(policyName)
			if !ok {
				p.logger.WithField("policy", policyName).Error("Unknown policy")
				httputil.WriteAuthzError(w, authz.Internal("unknown policy", fmt.Errorf("policy %s", policyName)))
				return
			}
			p.serve(w, r, next, policy)
		})
	}
}

// ProtectWith guards a handler with an inline policy
func (p *Pipeline) ProtectWith(policy Policy) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p.serve(w, r, next, policy)
		})
	}
}

func (p *Pipeline) serve(w http.ResponseWriter, r *http.Request, next http.Handler, policy Policy) {
	ctx := r.Context()
	prov := Provenance{
		IPAddress: httputil.ClientIP(r),
		UserAgent: r.UserAgent(),
		RequestID: contextkeys.GetRequestID(ctx),
	}
	credential := func() (string, error) {
		return auth.ExtractBearerToken(r.Header.Get("Authorization"))
	}

	rc := p.evaluate(ctx, policy.Name, credential, prov, policy.Requires)
	if !rc.Allowed() {
		httputil.WriteAuthzError(w, rc.Rejection)
		return
	}

	ctx = NewContext(ctx, rc)
	r = r.WithContext(ctx)
	rw := httputil.NewStatusRecorder(w)

	defer func() {
		recovered := recover()
		status := rw.Status
		if recovered != nil && !rw.WroteHeader() {
			status = http.StatusInternalServerError
		}

		if err := rc.Complete(); err != nil {
			p.logger.WithError(err).Error("Failed to complete request context")
		}
		if policy.Audit != nil {
			p.emitPolicyAudit(r, rc, policy, status, recovered != nil)
		}

		if recovered != nil {
			panic(recovered)
		}
	}()

	next.ServeHTTP(rw, r)
}

// emitPolicyAudit records the entry declared by the policy. It is attempted
// whatever the handler outcome and never touches the response.
func (p *Pipeline) emitPolicyAudit(r *http.Request, rc *RequestContext, policy Policy, status int, panicked bool) {
	spec := policy.Audit
	vars := mux.Vars(r)

	outcome := "success"
	switch {
	case panicked:
		outcome = "panic"
	case status >= http.StatusBadRequest:
		outcome = "failure"
	}

	ev := Event{
		Action:   spec.Action,
		Resource: spec.Resource,
		Details: map[string]interface{}{
			"policy":  policy.Name,
			"method":  r.Method,
			"path":    r.URL.Path,
			"status":  status,
			"outcome": outcome,
		},
	}
	if spec.ResourceIDVar != "" {
		ev.ResourceID = vars[spec.ResourceIDVar]
	}
	if spec.TenantVar != "" && rc.Principal.IsPlatform() {
		ev.TenantOverride = vars[spec.TenantVar]
	}

	rc.Audit(r.Context(), ev)
}
