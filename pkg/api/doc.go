// Package api assembles the tenantgate HTTP API.
//
// Every route is wrapped by the authorization pipeline under a named policy
// (see DefaultPolicies), so handlers only run for Authorized requests and
// read the caller from pipeline.FromContext:
//
//	GET  /api/v1/me                                   me
//	GET  /api/v1/features/{module}                    features.read
//	PUT  /api/v1/tenants/{tenantID}/features/{module} features.update (platform scope)
//	GET  /api/v1/audit/events|export|stats            audit.read (view_audit_log)
//
// Usage:
//
//	server := api.NewServer(api.Dependencies{
//		Pipeline:    pipe,
//		Permissions: rbacStore,
//		Features:    flagCache,
//		Audit:       audit.NewHandlers(auditStore, auditCfg, logger),
//		Logger:      logger,
//	})
//	http.ListenAndServe(":8080", server)
package api
