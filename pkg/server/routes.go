package server

import (
	"net/http"
	"strings"

	"mercator-hq/aegis/pkg/server/middleware"
	"mercator-hq/aegis/pkg/telemetry/health"
)

// API routes. Patterns use the method and wildcard syntax of net/http.
const (
	RouteProcess     = "POST /api/v1/genai/process"
	RouteAuditLogs   = "GET /api/v1/audit/logs/{session_id}"
	RouteAuditExport = "POST /api/v1/audit/export"
	RouteAnalytics   = "GET /api/v1/analytics"
	RouteSessions    = "POST /api/v1/sessions"
	RouteSession     = "DELETE /api/v1/sessions/{id}"
	RouteReviewFlags = "GET /api/v1/review/flags"
	RouteResolveFlag = "POST /api/v1/review/flags/{id}"
)

// setupRoutes registers the API and probe routes and wraps them in the
// middleware chain.
func (s *Server) setupRoutes() http.Handler {
	mux := http.NewServeMux()

	s.handle(mux, RouteProcess, s.handleProcess)
	s.handle(mux, RouteAuditLogs, s.handleAuditLogs)
	s.handle(mux, RouteAuditExport, s.handleExport)
	s.handle(mux, RouteAnalytics, s.handleAnalytics)
	s.handle(mux, RouteSessions, s.handleCreateSession)
	s.handle(mux, RouteSession, s.handleRevokeSession)
	s.handle(mux, RouteReviewFlags, s.handleReviewFlags)
	s.handle(mux, RouteResolveFlag, s.handleResolveFlag)

	tel := s.config.Telemetry
	public := []string{}
	if tel.Health.Enabled && s.deps.Health != nil {
		mux.Handle("GET "+tel.Health.LivenessPath, s.deps.Health.LivenessHandler())
		mux.Handle("GET "+tel.Health.ReadinessPath, s.deps.Health.ReadinessHandler())
		public = append(public, tel.Health.LivenessPath, tel.Health.ReadinessPath)
	}
	if tel.Health.VersionPath != "" {
		b := s.deps.Build
		mux.Handle("GET "+tel.Health.VersionPath, health.VersionHandler(b.Version, b.Commit, b.BuildTime))
		public = append(public, tel.Health.VersionPath)
	}
	if tel.Metrics.Enabled && s.deps.Metrics != nil {
		mux.Handle("GET "+tel.Metrics.Path, s.deps.Metrics.Handler())
		public = append(public, tel.Metrics.Path)
	}

	var handler http.Handler = mux
	if rl := s.config.Server.RateLimit; rl.Enabled {
		handler = middleware.NewRateLimiter(rl.RequestsPerSecond, rl.Burst).Middleware(public...)(handler)
	}
	handler = middleware.Authenticate(s.verifier(), public...)(handler)
	handler = middleware.Timeout(s.config.Server.RequestTimeout)(handler)
	handler = middleware.CORS(s.config.Server.CORS)(handler)
	handler = middleware.Logging(handler)
	handler = middleware.RequestID(handler)
	handler = middleware.Recovery(handler)
	return handler
}

// handle registers one API route with metrics and tracing under a fixed
// route label.
func (s *Server) handle(mux *http.ServeMux, pattern string, fn http.HandlerFunc) {
	_, route, _ := strings.Cut(pattern, " ")
	var h http.Handler = fn
	if s.deps.Tracer != nil {
		h = s.deps.Tracer.Middleware(route)(h)
	}
	if s.deps.Metrics != nil {
		h = s.deps.Metrics.HTTP().Instrument(route, h)
	}
	mux.Handle(pattern, h)
}

func (s *Server) verifier() middleware.TokenVerifier {
	if s.deps.Tokens == nil {
		return nil
	}
	return s.deps.Tokens
}
