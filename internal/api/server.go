package api

import (
	"context"
	"crypto/tls"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/org/accessgate/internal/admin"
	"github.com/org/accessgate/internal/allowlist"
	"github.com/org/accessgate/internal/audit"
	"github.com/org/accessgate/internal/engine"
	"github.com/org/accessgate/internal/identity"
	"github.com/org/accessgate/internal/storage"
	"github.com/rs/zerolog/log"
)

// Config holds server configuration.
type Config struct {
	ListenAddr      string
	TLSCertFile     string
	TLSKeyFile      string
	ProviderURL     string
	VerifyTimeout   time.Duration
	AuditBufferSize int
	RateLimitRPS    int
	RateLimitBurst  int
}

// Server is the API server.
type Server struct {
	store     storage.Backend
	allowlist *allowlist.Store
	engine    *engine.Engine
	admin     *admin.Service
	auditor   *audit.Logger
	cfg       Config
	httpSrv   *http.Server
}

// NewServer creates a fully wired Server.
func NewServer(store storage.Backend, cfg Config) *Server {
	allowStore := allowlist.NewStore(store)
	verifier := identity.NewVerifier(cfg.ProviderURL, cfg.VerifyTimeout)
	auditor := audit.NewLogger(store, cfg.AuditBufferSize)
	eng := engine.New(allowStore, verifier, auditor, engine.WithVerifyTimeout(cfg.VerifyTimeout))
	adminSvc := admin.NewService(eng, allowStore)

	return &Server{
		store:     store,
		allowlist: allowStore,
		engine:    eng,
		admin:     adminSvc,
		auditor:   auditor,
		cfg:       cfg,
	}
}

// Admin exposes the admin service (for the bootstrap path in cmd/server).
func (s *Server) Admin() *admin.Service {
	return s.admin
}

// BuildRouter wires up all routes and returns a chi router.
func (s *Server) BuildRouter() http.Handler {
	r := chi.NewRouter()

	rps, burst := s.cfg.RateLimitRPS, s.cfg.RateLimitBurst
	if rps <= 0 {
		rps = 50
	}
	if burst <= 0 {
		burst = 100
	}

	r.Use(chimiddleware.Recoverer)
	r.Use(requestIDMiddleware)
	r.Use(metricsMiddleware)
	r.Use(newRateLimiter(rps, burst).middleware)

	r.Handle("/metrics", MetricsHandler())
	r.Get("/v1/sys/health", s.HealthHandler)

	// The evaluation endpoint is itself the authentication: no separate
	// auth middleware, the decision IS the outcome.
	r.Post("/v1/access/evaluate", s.EvaluateHandler)

	// Admin surface, gated through the decision engine per call.
	r.Get("/v1/admin/allowlist", s.AllowlistGetHandler)
	r.Put("/v1/admin/allowlist", s.AllowlistPutHandler)
	r.Get("/v1/admin/audit-log", s.AuditLogHandler)

	return r
}

// Start begins listening on the configured address.
func (s *Server) Start() error {
	handler := s.BuildRouter()

	s.httpSrv = &http.Server{
		Addr:         s.cfg.ListenAddr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	if s.cfg.TLSCertFile != "" && s.cfg.TLSKeyFile != "" {
		s.httpSrv.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
			CurvePreferences: []tls.CurveID{
				tls.CurveP256,
				tls.X25519,
			},
		}
		log.Info().Str("addr", s.cfg.ListenAddr).Msg("starting HTTPS server")
		return s.httpSrv.ListenAndServeTLS(s.cfg.TLSCertFile, s.cfg.TLSKeyFile)
	}

	log.Info().Str("addr", s.cfg.ListenAddr).Msg("starting HTTP server")
	return s.httpSrv.ListenAndServe()
}

// Shutdown gracefully stops the server and drains the audit buffer.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	if s.httpSrv != nil {
		err = s.httpSrv.Shutdown(ctx)
	}
	s.auditor.Close()
	return err
}
