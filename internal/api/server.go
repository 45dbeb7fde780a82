// Package api serves the marketplace over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/KafClaw/KafMarket/internal/bus"
	"github.com/KafClaw/KafMarket/internal/catalog"
	"github.com/KafClaw/KafMarket/internal/config"
	"github.com/KafClaw/KafMarket/internal/exchange"
	"github.com/KafClaw/KafMarket/internal/identity"
	"github.com/KafClaw/KafMarket/internal/negotiation"
	"github.com/KafClaw/KafMarket/internal/rpc"
	"github.com/KafClaw/KafMarket/internal/store"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// Server wires the marketplace services to HTTP routes.
type Server struct {
	cfg         *config.Config
	logger      *slog.Logger
	gate        *identity.Gate
	catalog     *catalog.Catalog
	negotiation *negotiation.Engine
	exchange    *exchange.Exchange
	rpc         *rpc.Adapter
	version     string
	startedAt   time.Time
}

// New builds the services over st. events receives domain events after
// each committed write; logger may be nil.
func New(cfg *config.Config, st *store.Store, events bus.Publisher, logger *slog.Logger, version string) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	cat := catalog.New(st, events)
	x := exchange.New(st, events)
	return &Server{
		cfg:         cfg,
		logger:      logger,
		gate:        identity.NewGate(st, cfg.Auth.APIKeyHeader, cfg.Auth.DIDPrefix, events),
		catalog:     cat,
		negotiation: negotiation.NewEngine(st, events),
		exchange:    x,
		rpc:         rpc.NewAdapter(cat, x),
		version:     version,
		startedAt:   time.Now(),
	}
}

// Handler returns the routed, logged handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /.well-known/a2a.json", s.handleWellKnown)

	// Agents
	mux.HandleFunc("POST /v1/agents/register", s.handleRegister)
	mux.HandleFunc("GET /v1/agents/me", s.authed(s.handleMe))
	mux.HandleFunc("GET /v1/agents/{agent_id}/public", s.handlePublicAgent)

	// Capabilities
	mux.HandleFunc("POST /v1/agents/{agent_id}/capabilities", s.authed(s.handleCreateCapability))
	mux.HandleFunc("GET /v1/agents/{agent_id}/capabilities", s.authed(s.handleListOwnCapabilities))
	mux.HandleFunc("PATCH /v1/agents/{agent_id}/capabilities/{cap_id}", s.authed(s.handleUpdateCapability))
	mux.HandleFunc("DELETE /v1/agents/{agent_id}/capabilities/{cap_id}", s.authed(s.handleDeleteCapability))
	mux.HandleFunc("GET /v1/capabilities", s.handlePublicCatalog)
	mux.HandleFunc("GET /v1/match", s.handleMatch)

	// Sessions
	mux.HandleFunc("POST /v1/sessions", s.authed(s.handleCreateSession))
	mux.HandleFunc("GET /v1/sessions", s.authed(s.handleListSessions))
	mux.HandleFunc("GET /v1/sessions/{session_id}", s.authed(s.handleGetSession))
	mux.HandleFunc("POST /v1/sessions/{session_id}/messages", s.authed(s.handleSendMessage))
	mux.HandleFunc("GET /v1/sessions/{session_id}/messages", s.authed(s.handleListMessages))

	// RFPs and proposals
	mux.HandleFunc("POST /v1/rfps", s.authed(s.handleCreateRfp))
	mux.HandleFunc("GET /v1/rfps", s.authed(s.handleListRfps))
	mux.HandleFunc("GET /v1/rfps/{rfp_id}", s.authed(s.handleGetRfp))
	mux.HandleFunc("PATCH /v1/rfps/{rfp_id}", s.authed(s.handleUpdateRfp))
	mux.HandleFunc("POST /v1/rfps/{rfp_id}/proposals", s.authed(s.handleCreateProposal))
	mux.HandleFunc("GET /v1/rfps/{rfp_id}/proposals", s.authed(s.handleListProposals))
	mux.HandleFunc("GET /v1/rfps/{rfp_id}/summary", s.authed(s.handleRfpSummary))
	mux.HandleFunc("GET /v1/proposals/{proposal_id}", s.authed(s.handleGetProposal))
	mux.HandleFunc("PATCH /v1/proposals/{proposal_id}", s.authed(s.handleUpdateProposal))

	mux.HandleFunc("POST /a2a/v1", s.authed(s.handleRPC))

	return s.withCORS(s.withRequestLog(mux))
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	gw := s.cfg.Gateway
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", gw.Host, gw.Port),
		Handler:      s.Handler(),
		ReadTimeout:  time.Duration(gw.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(gw.WriteTimeoutSec) * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.logger.Info("http server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) withRequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds())
	})
}

func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+s.cfg.Auth.APIKeyHeader)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
