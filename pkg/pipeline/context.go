package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/platinummonkey/tenantgate/pkg/audit"
	"github.com/platinummonkey/tenantgate/pkg/auth"
	"github.com/platinummonkey/tenantgate/pkg/authz"
	"github.com/platinummonkey/tenantgate/pkg/contextkeys"
	"github.com/platinummonkey/tenantgate/pkg/observability"
)

// Provenance describes where a request came from
type Provenance struct {
	IPAddress string `json:"ip_address,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// Event is what business code supplies when it audits an action. Identity
// and provenance are filled in from the RequestContext.
type Event struct {
	Action     string
	Resource   string
	ResourceID string
	Details    map[string]interface{}

	// TenantOverride attributes the record to the tenant a platform caller
	// acted on
	TenantOverride string
}

// RequestContext is the explicit per-request result of the pipeline. It is
// created by Evaluate and owned by the goroutine serving the request.
type RequestContext struct {
	State      State
	Principal  *auth.Principal
	TenantID   string // Bound tenant, "" for platform callers
	Rejection  *authz.Error
	Provenance Provenance

	recorder AuditEmitter
	metrics  *observability.OTelMetrics
}

func newRequestContext(prov Provenance, recorder AuditEmitter, metrics *observability.OTelMetrics) *RequestContext {
	return &RequestContext{
		State:      StateUnauthenticated,
		Provenance: prov,
		recorder:   recorder,
		metrics:    metrics,
	}
}

// Allowed reports whether the request passed every check
func (rc *RequestContext) Allowed() bool {
	return rc != nil && (rc.State == StateAuthorized || rc.State == StateCompleted)
}

// transition moves to the next state. An illegal move is a programming error
// and is reported as Internal.
func (rc *RequestContext) transition(to State) error {
	if !rc.State.CanTransition(to) {
		return authz.Internal("illegal pipeline transition",
			fmt.Errorf("%s -> %s", rc.State, to))
	}
	rc.State = to
	return nil
}

// reject moves to Rejected. The first rejection is final.
func (rc *RequestContext) reject(err error) {
	if rc.State.Terminal() {
		return
	}
	e, ok := authz.As(err)
	if !ok {
		e = authz.Internal("authorization failed", err)
	}
	rc.Rejection = e
	rc.State = StateRejected
}

// Complete marks an authorized request as handled
func (rc *RequestContext) Complete() error {
	return rc.transition(StateCompleted)
}

// Audit hands an entry to the recorder without waiting for it. Requests that
// never resolved a principal have nobody to attribute the entry to and are
// ignored.
func (rc *RequestContext) Audit(ctx context.Context, ev Event) {
	if rc == nil || rc.recorder == nil || rc.Principal == nil {
		return
	}

	rc.recorder.Record(ctx, audit.Entry{
		Action:         ev.Action,
		Resource:       ev.Resource,
		ResourceID:     ev.ResourceID,
		Details:        ev.Details,
		Actor:          rc.Principal,
		IPAddress:      rc.Provenance.IPAddress,
		UserAgent:      rc.Provenance.UserAgent,
		RequestID:      rc.Provenance.RequestID,
		TenantOverride: ev.TenantOverride,
	})
	rc.metrics.RecordAuditEmitted(ctx, strings.ToUpper(strings.TrimSpace(ev.Action)))
}

// NewContext returns ctx annotated for downstream handlers: the principal,
// the bound tenant, the user id and the RequestContext itself.
func NewContext(ctx context.Context, rc *RequestContext) context.Context {
	ctx = contextkeys.WithRequestContext(ctx, rc)
	if rc.Principal != nil {
		ctx = auth.NewContext(ctx, rc.Principal)
		ctx = contextkeys.WithUserID(ctx, rc.Principal.ID)
	}
	if rc.State != StateRejected {
		ctx = contextkeys.WithTenantID(ctx, rc.TenantID)
	}
	return ctx
}

// FromContext returns the RequestContext stored by Protect
func FromContext(ctx context.Context) (*RequestContext, bool) {
	rc, ok := ctx.Value(contextkeys.RequestContextKey).(*RequestContext)
	return rc, ok && rc != nil
}
