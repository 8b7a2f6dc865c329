package api

import (
	"context"
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/tenantgate/pkg/audit"
	"github.com/platinummonkey/tenantgate/pkg/observability"
	"github.com/platinummonkey/tenantgate/pkg/pipeline"
	"github.com/platinummonkey/tenantgate/pkg/tenancy"
)

// PermissionLister lists the grants of a role
type PermissionLister interface {
	ListPermissions(ctx context.Context, roleID string) ([]string, error)
}

// Dependencies are the collaborators of a Server. Audit is optional; without
// it the audit routes are not mounted.
type Dependencies struct {
	Pipeline    *pipeline.Pipeline
	Permissions PermissionLister
	Features    tenancy.FlagStore
	Audit       *audit.Handlers
	Logger      *observability.Logger
}

// Server is the tenantgate HTTP API
type Server struct {
	router      *mux.Router
	pipeline    *pipeline.Pipeline
	permissions PermissionLister
	features    tenancy.FlagStore
	audit       *audit.Handlers
	logger      *observability.Logger
}

// NewServer creates the API server and registers its routes under /api/v1
func NewServer(deps Dependencies) *Server {
	if deps.Logger == nil {
		deps.Logger = observability.NewLogger(observability.ErrorLevel, io.Discard)
	}

	s := &Server{
		router:      mux.NewRouter(),
		pipeline:    deps.Pipeline,
		permissions: deps.Permissions,
		features:    deps.Features,
		audit:       deps.Audit,
		logger:      deps.Logger.WithField("component", "api"),
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all the API routes
func (s *Server) setupRoutes() {
	v1 := s.router.PathPrefix("/api/v1").Subrouter()
	protect := s.pipeline.Protect

	v1.Handle("/me", protect(MePolicy)(http.HandlerFunc(s.getMe))).Methods(http.MethodGet)

	v1.Handle("/features/{module}", protect(FeaturesReadPolicy)(http.HandlerFunc(s.getFeature))).Methods(http.MethodGet)
	v1.Handle("/tenants/{tenantID}/features/{module}", protect(FeaturesUpdatePolicy)(http.HandlerFunc(s.updateFeature))).Methods(http.MethodPut)

	if s.audit != nil {
		s.audit.RegisterRoutes(v1, protect)
	}
}

// Router exposes the router so callers can add middleware
func (s *Server) Router() *mux.Router {
	return s.router
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
