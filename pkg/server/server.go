// Package server provides the HTTP API of the Aegis governance service.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"mercator-hq/aegis/pkg/config"
	"mercator-hq/aegis/pkg/evidence"
	"mercator-hq/aegis/pkg/evidence/export"
	"mercator-hq/aegis/pkg/governance"
	"mercator-hq/aegis/pkg/identity"
	"mercator-hq/aegis/pkg/pipeline"
	"mercator-hq/aegis/pkg/security/tls"
	"mercator-hq/aegis/pkg/session"
	"mercator-hq/aegis/pkg/telemetry/health"
	"mercator-hq/aegis/pkg/telemetry/metrics"
	"mercator-hq/aegis/pkg/telemetry/tracing"
)

// Processor runs one governance request.
type Processor interface {
	Process(ctx context.Context, req governance.Request) (*pipeline.Response, error)
}

// Exporter runs an audit export.
type Exporter interface {
	Export(ctx context.Context, req export.Request) (*export.Result, error)
}

// TokenIssuer verifies and issues bearer tokens.
type TokenIssuer interface {
	Verify(ctx context.Context, token string) (*identity.Principal, error)
	Issue(ctx context.Context, userID, role string) (string, *session.Session, error)
}

// ReviewQueue serves and resolves review flags.
type ReviewQueue interface {
	Pending(limit int) []governance.ReviewFlag
	Resolve(id, status string) (governance.ReviewFlag, error)
}

// BuildInfo is reported by the version endpoint.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// Deps are the collaborators behind the API. Pipeline and Storage are
// required. A nil Tokens disables authentication; nil Metrics, Tracer or
// Health skip the corresponding routes and instrumentation.
type Deps struct {
	Pipeline Processor
	Storage  evidence.Storage
	Exports  Exporter
	Sessions session.Store
	Tokens   TokenIssuer
	Review   ReviewQueue
	Metrics  *metrics.Collector
	Tracer   *tracing.Tracer
	Health   *health.Checker
	Build    BuildInfo
}

// Server is the HTTP API server.
type Server struct {
	config       *config.Config
	deps         Deps
	schema       *jsonschema.Schema
	handler      http.Handler
	httpServer   *http.Server
	logger       *slog.Logger
	now          func() time.Time
	mu           sync.RWMutex
	isRunning    bool
	shutdownOnce sync.Once
}

// New creates a server and builds its routes.
func New(cfg *config.Config, deps Deps) (*Server, error) {
	if deps.Pipeline == nil {
		return nil, errors.New("server: pipeline is required")
	}
	if deps.Storage == nil {
		return nil, errors.New("server: audit storage is required")
	}
	schema, err := compileProcessSchema()
	if err != nil {
		return nil, err
	}

	s := &Server{
		config: cfg,
		deps:   deps,
		schema: schema,
		logger: slog.Default().With("component", "server"),
		now:    time.Now,
	}
	s.handler = s.setupRoutes()
	return s, nil
}

// Handler returns the configured HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start listens on the configured address and blocks until ctx is done or
// the listener fails. Cancelling ctx triggers a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Server.ListenAddress)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Server.ListenAddress, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		_ = ln.Close()
		return errors.New("server is already running")
	}
	srv := s.config.Server
	s.httpServer = &http.Server{
		Handler:        s.handler,
		ReadTimeout:    srv.ReadTimeout,
		WriteTimeout:   srv.WriteTimeout,
		IdleTimeout:    srv.IdleTimeout,
		MaxHeaderBytes: srv.MaxHeaderBytes,
		ErrorLog:       slog.NewLogLogger(s.logger.Handler(), slog.LevelWarn),
	}
	if srv.TLS.Enabled {
		tlsCfg, reloader, err := tls.ServerConfig(srv.TLS)
		if err != nil {
			s.mu.Unlock()
			_ = ln.Close()
			return fmt.Errorf("failed to configure TLS: %w", err)
		}
		s.httpServer.TLSConfig = tlsCfg
		go reloader.Run(ctx)
	}
	s.isRunning = true
	s.mu.Unlock()

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("starting API server",
			"address", ln.Addr().String(),
			"tls_enabled", srv.TLS.Enabled,
			"auth_enabled", s.deps.Tokens != nil,
		)
		var err error
		if srv.TLS.Enabled {
			err = s.httpServer.ServeTLS(ln, "", "")
		} else {
			err = s.httpServer.Serve(ln)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("server error: %w", err)
		}
		close(errChan)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("context cancelled, initiating shutdown")
		return s.Shutdown(context.Background())
	case err, ok := <-errChan:
		if ok {
			s.markStopped()
			return err
		}
		return nil
	}
}

// Shutdown gracefully shuts down the server within the configured timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.mu.RLock()
		httpServer := s.httpServer
		s.mu.RUnlock()
		if httpServer == nil {
			return
		}

		timeout := s.config.Server.ShutdownTimeout
		s.logger.Info("initiating graceful shutdown", "timeout", timeout.String())
		shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("error during server shutdown", "error", err)
			shutdownErr = fmt.Errorf("server shutdown error: %w", err)
		}
		s.markStopped()
		s.logger.Info("API server stopped")
	})
	return shutdownErr
}

func (s *Server) markStopped() {
	s.mu.Lock()
	s.isRunning = false
	s.mu.Unlock()
}

// IsRunning returns true if the server is running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}
