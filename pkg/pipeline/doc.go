// Package pipeline orchestrates the authorization of one request.
//
// # Order
//
// Every request goes through the same fixed sequence:
//
//	identify      bearer token -> Principal             (auth.Resolver)
//	bind_tenant   Principal -> bound tenant             (tenancy.Bind)
//	authorize     declared Requirements, in order       (rbac, tenancy.FeatureGate)
//	handler       business logic
//	audit         policy audit entry, fire-and-forget   (audit.Recorder)
//
// The RequestContext records progress through the states
// Unauthenticated, Identified, TenantBound, Authorized and Completed. Any
// failure moves it to Rejected, which is final: there is no retry.
//
// # HTTP
//
// Protect wraps a gorilla/mux handler with a named policy:
//
//	router.Handle("/customers/{id}", p.Protect("customers.delete")(h)).Methods("DELETE")
//
// A rejected request gets the authz JSON envelope and the handler is never
// called. An allowed request carries the principal, the bound tenant and
// the RequestContext in its context:
//
//	rc, _ := pipeline.FromContext(r.Context())
//	rc.Audit(r.Context(), pipeline.Event{Action: "export", Resource: "customer"})
//
// # Policies
//
// Policies are compiled in as defaults and may be overridden by a YAML file
// that PolicyWatcher reloads on change:
//
//	policies:
//	  - name: customers.update
//	    requires:
//	      - any_permission: [update_customer, manage_customer]
//	      - module: crm
//	    audit:
//	      action: update
//	      resource: customer
//	      resource_id_var: id
package pipeline
