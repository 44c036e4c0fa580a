// Package server provides the HTTP API of the Aegis governance service.
//
// # Routes
//
//	POST   /api/v1/genai/process             run a prompt through the pipeline
//	GET    /api/v1/audit/logs/{session_id}   audit records of one session
//	POST   /api/v1/audit/export              export a window of records to the sink
//	GET    /api/v1/analytics                 aggregate counts over a window
//	POST   /api/v1/sessions                  open a session (and issue a token)
//	DELETE /api/v1/sessions/{id}             revoke a session
//	GET    /api/v1/review/flags              pending review flags
//	POST   /api/v1/review/flags/{id}         resolve a review flag
//	GET    /health, /ready, /version         probes
//	GET    /metrics                          Prometheus
//
// The process body is validated against an embedded JSON Schema before it
// is decoded. With identity enabled every API route needs a bearer token;
// the token's principal supplies the user id and role, and a user_id in
// the body must match it. Audit, export, analytics and review routes are
// gated on the role's audit access.
//
// # Lifecycle
//
//	srv, err := server.New(cfg, server.Deps{Pipeline: p, Storage: store, ...})
//	if err != nil {
//	    return err
//	}
//	return srv.Start(ctx) // returns after ctx is cancelled and shutdown completes
//
// Signal handling belongs to the caller; cancel ctx on SIGINT or SIGTERM.
package server
