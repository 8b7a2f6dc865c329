package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/tenantgate/pkg/audit"
	"github.com/platinummonkey/tenantgate/pkg/auth"
	"github.com/platinummonkey/tenantgate/pkg/authz"
	"github.com/platinummonkey/tenantgate/pkg/contextkeys"
	"github.com/platinummonkey/tenantgate/pkg/observability"
	"github.com/platinummonkey/tenantgate/pkg/rbac"
	"github.com/platinummonkey/tenantgate/pkg/tenancy"
)

// Stage names used on spans and decision metrics
const (
	StageIdentify   = "identify"
	StageBindTenant = "bind_tenant"
	StageAuthorize  = "authorize"
)

// IdentityResolver turns a bearer credential into a Principal
type IdentityResolver interface {
	Resolve(ctx context.Context, token string) (*auth.Principal, error)
}

// PermissionEvaluator checks role grants
type PermissionEvaluator interface {
	Check(ctx context.Context, p *auth.Principal, permission string) error
	CheckAny(ctx context.Context, p *auth.Principal, permissions ...string) error
	CheckAll(ctx context.Context, p *auth.Principal, permissions ...string) error
}

// FeatureChecker gates optional modules per tenant
type FeatureChecker interface {
	Check(ctx context.Context, p *auth.Principal, boundTenant, module string) error
}

// AuditEmitter accepts audit entries without blocking
type AuditEmitter interface {
	Record(ctx context.Context, entry audit.Entry)
}

// Dependencies are the collaborators of a Pipeline. Features and Recorder
// are optional: without Features every module requirement fails closed, and
// without Recorder audit emission is a no-op.
type Dependencies struct {
	Resolver    IdentityResolver
	Permissions PermissionEvaluator
	Features    FeatureChecker
	Recorder    AuditEmitter
	Policies    *Registry
	Logger      *observability.Logger
	Metrics     *observability.OTelMetrics
	Tracer      trace.Tracer
}

// Pipeline runs identity resolution, tenant binding and the declared
// requirements for one request at a time. It holds no per-request state.
type Pipeline struct {
	resolver    IdentityResolver
	permissions PermissionEvaluator
	features    FeatureChecker
	recorder    AuditEmitter
	policies    *Registry
	logger      *observability.Logger
	metrics     *observability.OTelMetrics
	tracer      trace.Tracer
	now         func() time.Time
}

// New creates a pipeline
func New(deps Dependencies) (*Pipeline, error) {
	if deps.Resolver == nil {
		return nil, errors.New("pipeline: resolver is required")
	}
	if deps.Permissions == nil {
		return nil, errors.New("pipeline: permission evaluator is required")
	}
	if deps.Policies == nil {
		deps.Policies, _ = NewRegistry()
	}
	if deps.Logger == nil {
		deps.Logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	if deps.Tracer == nil {
		deps.Tracer = observability.Tracer()
	}

	return &Pipeline{
		resolver:    deps.Resolver,
		permissions: deps.Permissions,
		features:    deps.Features,
		recorder:    deps.Recorder,
		policies:    deps.Policies,
		logger:      deps.Logger.WithField("component", "pipeline"),
		metrics:     deps.Metrics,
		tracer:      deps.Tracer,
		now:         time.Now,
	}, nil
}

// Policies returns the policy registry
func (p *Pipeline) Policies() *Registry {
	return p.policies
}

// Evaluate runs the pipeline for token against reqs. The returned context
// is either Authorized or Rejected; it is never nil.
func (p *Pipeline) Evaluate(ctx context.Context, token string, reqs []Requirement) *RequestContext {
	prov := Provenance{RequestID: contextkeys.GetRequestID(ctx)}
	return p.evaluate(ctx, "", func() (string, error) { return token, nil }, prov, reqs)
}

// evaluate is shared by Evaluate and the HTTP middleware. credential is
// called inside the identify stage so a malformed header is traced and
// counted like any other identity failure.
func (p *Pipeline) evaluate(ctx context.Context, policy string, credential func() (string, error), prov Provenance, reqs []Requirement) *RequestContext {
	ctx, span := p.tracer.Start(ctx, "pipeline.Evaluate",
		trace.WithAttributes(
			attribute.String("policy", policy),
			attribute.Int("requirements", len(reqs)),
		),
	)
	defer span.End()

	start := p.now()
	rc := newRequestContext(prov, p.recorder, p.metrics)

	defer func() {
		outcome := observability.OutcomeAllowed
		if rc.State == StateRejected {
			outcome = observability.OutcomeRejected
			span.SetStatus(codes.Error, string(rc.Rejection.Code))
		}
		span.SetAttributes(attribute.String("state", rc.State.String()))
		p.metrics.RecordEvaluation(ctx, policy, outcome, p.now().Sub(start))
	}()

	ok := p.stage(ctx, rc, StageIdentify, func(ctx context.Context) error {
		token, err := credential()
		if err != nil {
			return err
		}
		principal, err := p.resolver.Resolve(ctx, token)
		if err != nil {
			return err
		}
		if principal == nil {
			return authz.Internal("resolver returned no principal", nil)
		}
		rc.Principal = principal
		return rc.transition(StateIdentified)
	})
	if !ok {
		return rc
	}

	ok = p.stage(ctx, rc, StageBindTenant, func(ctx context.Context) error {
		tenantID, err := tenancy.Bind(rc.Principal)
		if err != nil {
			return err
		}
		rc.TenantID = tenantID
		return rc.transition(StateTenantBound)
	})
	if !ok {
		return rc
	}

	p.stage(ctx, rc, StageAuthorize, func(ctx context.Context) error {
		for _, req := range reqs {
			if err := p.check(ctx, rc, req); err != nil {
				return err
			}
		}
		return rc.transition(StateAuthorized)
	})
	return rc
}

// stage runs fn in its own span and moves rc to Rejected when it fails
func (p *Pipeline) stage(ctx context.Context, rc *RequestContext, name string, fn func(context.Context) error) bool {
	ctx, span := p.tracer.Start(ctx, "pipeline."+name)
	defer span.End()

	if err := fn(ctx); err != nil {
		rc.reject(err)
		code := string(rc.Rejection.Code)
		span.RecordError(err)
		span.SetStatus(codes.Error, code)
		span.SetAttributes(attribute.String("authz.code", code))
		p.metrics.RecordDecision(ctx, name, observability.OutcomeRejected, code)
		p.logRejection(ctx, rc, name)
		return false
	}

	p.metrics.RecordDecision(ctx, name, observability.OutcomeAllowed, "")
	return true
}

// check applies one requirement
func (p *Pipeline) check(ctx context.Context, rc *RequestContext, req Requirement) error {
	if err := req.Validate(); err != nil {
		return authz.Internal("invalid requirement", err)
	}

	switch req.Kind {
	case KindPermission:
		return p.permissions.Check(ctx, rc.Principal, req.Permissions[0])
	case KindAnyPermission:
		return p.permissions.CheckAny(ctx, rc.Principal, req.Permissions...)
	case KindAllPermissions:
		return p.permissions.CheckAll(ctx, rc.Principal, req.Permissions...)
	case KindScope:
		return rbac.CheckScope(rc.Principal, req.Scope)
	case KindModule:
		if p.features == nil {
			return authz.Internal("feature gate not configured", fmt.Errorf("module %s", req.Module))
		}
		return p.features.Check(ctx, rc.Principal, rc.TenantID, req.Module)
	}
	return authz.Internal("invalid requirement", fmt.Errorf("kind %q", req.Kind))
}

func (p *Pipeline) logRejection(ctx context.Context, rc *RequestContext, stage string) {
	fields := map[string]interface{}{
		"stage": stage,
		"code":  string(rc.Rejection.Code),
	}
	if rc.Provenance.RequestID != "" {
		fields["request_id"] = rc.Provenance.RequestID
	}
	if rc.Principal != nil {
		fields["user_id"] = rc.Principal.ID
	}
	logger := observability.UpdateLoggerWithTraceContext(ctx, p.logger.WithFields(fields))

	if rc.Rejection.Code == authz.CodeInternal {
		logger.WithError(rc.Rejection.Unwrap()).Error("Authorization failed on infrastructure error")
		return
	}
	logger.WithField("reason", rc.Rejection.Message).Info("Request rejected")
}
