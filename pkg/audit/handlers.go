package audit

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/tenantgate/pkg/auth"
	"github.com/platinummonkey/tenantgate/pkg/authz"
	"github.com/platinummonkey/tenantgate/pkg/contextkeys"
	"github.com/platinummonkey/tenantgate/pkg/httputil"
	"github.com/platinummonkey/tenantgate/pkg/observability"
)

// ReadPolicy is the policy name the read routes are protected with
const ReadPolicy = "audit.read"

// Handlers provides the operator read path over HTTP
type Handlers struct {
	querier Querier
	cfg     Config
	logger  *observability.Logger
	now     func() time.Time
}

// NewHandlers creates audit handlers
func NewHandlers(querier Querier, cfg Config, logger *observability.Logger) *Handlers {
	if logger == nil {
		logger = observability.NewLogger(observability.ErrorLevel, io.Discard)
	}
	return &Handlers{querier: querier, cfg: cfg, logger: logger, now: time.Now}
}

// RegisterRoutes registers the audit routes. protect wraps each route with
// the authorization pipeline; nil leaves them unwrapped.
func (h *Handlers) RegisterRoutes(router *mux.Router, protect func(policy string) mux.MiddlewareFunc) {
	wrap := func(fn http.HandlerFunc) http.Handler {
		if protect == nil {
			return fn
		}
		return protect(ReadPolicy)(fn)
	}

	router.Handle("/audit/events", wrap(h.listEvents)).Methods(http.MethodGet)
	router.Handle("/audit/export", wrap(h.exportEvents)).Methods(http.MethodGet)
	router.Handle("/audit/stats", wrap(h.getStats)).Methods(http.MethodGet)
}

// listEvents handles GET /audit/events
func (h *Handlers) listEvents(w http.ResponseWriter, r *http.Request) {
	filter, ok := h.parseFilter(w, r)
	if !ok {
		return
	}

	records, err := h.querier.Query(r.Context(), filter)
	if err != nil {
		h.logger.WithError(err).Error("Audit query failed")
		httputil.WriteAuthzError(w, err)
		return
	}

	resolved, _, _ := h.cfg.resolve(filter, h.now())
	_ = httputil.WriteSuccess(w, map[string]interface{}{
		"records":    records,
		"count":      len(records),
		"since_days": resolved.SinceDays,
		"limit":      resolved.Limit,
		"offset":     resolved.Offset,
	})
}

// exportEvents handles GET /audit/export?format=csv|ndjson
func (h *Handlers) exportEvents(w http.ResponseWriter, r *http.Request) {
	format := httputil.ParseQueryString(r, "format", FormatNDJSON)
	if format != FormatCSV && format != FormatNDJSON {
		httputil.WriteBadRequest(w, fmt.Sprintf("unsupported export format %q", format))
		return
	}

	filter, ok := h.parseFilter(w, r)
	if !ok {
		return
	}

	records, err := h.querier.Query(r.Context(), filter)
	if err != nil {
		h.logger.WithError(err).Error("Audit export query failed")
		httputil.WriteAuthzError(w, err)
		return
	}

	filename := "audit-" + h.now().UTC().Format("20060102T150405Z") + "." + format
	w.Header().Set("Content-Disposition", "attachment; filename="+filename)

	switch format {
	case FormatCSV:
		w.Header().Set("Content-Type", "text/csv")
		err = WriteCSV(w, records)
	default:
		w.Header().Set("Content-Type", "application/x-ndjson")
		err = WriteNDJSON(w, records)
	}
	// Headers are already sent, nothing left but to log
	if err != nil {
		h.logger.WithError(err).Error("Audit export write failed")
	}
}

// getStats handles GET /audit/stats
func (h *Handlers) getStats(w http.ResponseWriter, r *http.Request) {
	filter, ok := h.parseFilter(w, r)
	if !ok {
		return
	}

	counts, err := h.querier.Summary(r.Context(), filter)
	if err != nil {
		h.logger.WithError(err).Error("Audit summary failed")
		httputil.WriteAuthzError(w, err)
		return
	}

	resolved, _, _ := h.cfg.resolve(filter, h.now())
	_ = httputil.WriteSuccess(w, map[string]interface{}{
		"since_days": resolved.SinceDays,
		"actions":    counts,
	})
}

// parseFilter reads query parameters and applies tenant scoping. Tenant-bound
// callers only ever see their own tenant.
func (h *Handlers) parseFilter(w http.ResponseWriter, r *http.Request) (Filter, bool) {
	ctx := r.Context()
	principal, ok := auth.FromContext(ctx)
	tenantID, bound := contextkeys.GetTenantID(ctx)
	if !ok || !bound {
		httputil.WriteAuthzError(w, authz.Unauthenticated())
		return Filter{}, false
	}

	var (
		f   Filter
		err error
	)
	if f.SinceDays, err = httputil.ParseQueryInt(r, "since_days", 0); err != nil {
		httputil.WriteBadRequest(w, "since_days must be an integer")
		return Filter{}, false
	}
	if f.Limit, err = httputil.ParseQueryInt(r, "limit", 0); err != nil {
		httputil.WriteBadRequest(w, "limit must be an integer")
		return Filter{}, false
	}
	if f.Offset, err = httputil.ParseQueryInt(r, "offset", 0); err != nil {
		httputil.WriteBadRequest(w, "offset must be an integer")
		return Filter{}, false
	}
	if until := httputil.ParseQueryString(r, "until", ""); until != "" {
		if f.Until, err = time.Parse(time.RFC3339, until); err != nil {
			httputil.WriteBadRequest(w, "until must be an RFC3339 timestamp")
			return Filter{}, false
		}
	}

	f.Action = httputil.ParseQueryString(r, "action", "")
	f.Resource = httputil.ParseQueryString(r, "resource", "")
	f.UserID = httputil.ParseQueryString(r, "user_id", "")
	f.UserEmail = httputil.ParseQueryString(r, "user_email", "")

	switch {
	case principal.IsPlatform():
		f.TenantID = httputil.ParseQueryString(r, "tenant_id", "")
	case tenantID == "":
		// An empty filter would span every tenant
		httputil.WriteAuthzError(w, authz.NoTenantAssociation())
		return Filter{}, false
	default:
		f.TenantID = tenantID
	}
	return f, true
}
