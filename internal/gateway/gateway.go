// ABOUTME: Gateway orchestrator that wires the store, conversation core and HTTP server
// ABOUTME: Manages the live session directory, assistant client and graceful shutdown

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/nexial/nexial-gateway/internal/assistant"
	"github.com/nexial/nexial-gateway/internal/auth"
	"github.com/nexial/nexial-gateway/internal/config"
	"github.com/nexial/nexial-gateway/internal/conversation"
	"github.com/nexial/nexial-gateway/internal/dedupe"
	"github.com/nexial/nexial-gateway/internal/delivery"
	"github.com/nexial/nexial-gateway/internal/session"
	"github.com/nexial/nexial-gateway/internal/store"
)

// Gateway owns every server component and their lifecycle.
type Gateway struct {
	config       *config.Config
	store        store.Store
	conversation *conversation.Service
	sessions     *session.Directory
	assistant    *assistant.Client
	verifier     *auth.JWTVerifier
	router       chi.Router
	httpServer   *http.Server
	upgrader     websocket.Upgrader
	logger       *slog.Logger

	// sent remembers the ack for each (sender, client message id) so a
	// retried frame is acknowledged without a second append.
	sent *dedupe.Cache[[]byte]
}

// initStore opens the store named by config.
func initStore(cfg *config.Config) (store.Store, error) {
	s, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}
	return s, nil
}

// New creates a new Gateway instance with the given configuration.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}

	verifier, err := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
	if err != nil {
		return nil, fmt.Errorf("creating JWT verifier: %w", err)
	}

	s, err := initStore(cfg)
	if err != nil {
		return nil, err
	}

	sessions := session.NewDirectory(logger)
	registry := conversation.NewRegistry(s, logger)
	ledger := conversation.NewLedger(s, s, cfg.Chat.MaxContentLength, logger)
	router := delivery.NewRouter(sessions, logger)

	gw := &Gateway{
		config:       cfg,
		store:        s,
		conversation: conversation.New(s, registry, ledger, router, logger),
		sessions:     sessions,
		assistant: assistant.New(assistant.Config{
			Endpoint:     cfg.Assistant.Endpoint,
			APIToken:     cfg.Assistant.APIToken,
			Timeout:      cfg.Assistant.Timeout,
			MaxNewTokens: cfg.Assistant.MaxNewTokens,
			Temperature:  cfg.Assistant.Temperature,
			TopP:         cfg.Assistant.TopP,
		}, logger),
		verifier: verifier,
		sent:     dedupe.New[[]byte](cfg.Chat.DedupeTTL, cfg.Chat.DedupeMaxEntries),
		logger:   logger.With("component", "gateway"),
	}
	gw.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     originChecker(cfg.Server.AllowedOrigins),
	}

	if !gw.assistant.Enabled() {
		gw.logger.Warn("assistant disabled - no assistant.api_token configured")
	}

	gw.router = gw.routes(logger)
	gw.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           gw.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return gw, nil
}

// Handler returns the root HTTP handler.
func (g *Gateway) Handler() http.Handler {
	return g.router
}

// Store exposes the gateway's store.
func (g *Gateway) Store() store.Store {
	return g.store
}

// Sessions exposes the live session directory.
func (g *Gateway) Sessions() *session.Directory {
	return g.sessions
}

// Run starts the HTTP server and blocks until the context is canceled.
// Returns nil on graceful shutdown, or an error if the server fails.
func (g *Gateway) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listening on HTTP address: %w", err)
	}
	return g.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (g *Gateway) Serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		g.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := g.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	var serverErr error
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
	case serverErr = <-errCh:
		g.logger.Error("server error", "error", serverErr)
	}

	shutdownErr := g.gracefulShutdown()
	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown uses a fresh context since the caller's is already canceled.
func (g *Gateway) gracefulShutdown() error {
	timeout := g.config.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = config.DefaultShutdownTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return g.Shutdown(ctx)
}

// Shutdown stops accepting requests, closes live sessions and releases the
// store. It is safe to call on a gateway that never ran.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway")

	var firstErr error
	if err := g.httpServer.Shutdown(ctx); err != nil {
		g.logger.Error("HTTP server shutdown", "error", err)
		firstErr = err
	}

	// Hijacked sockets are not tracked by http.Server.
	g.sessions.Close()
	g.sent.Close()

	if err := g.store.Close(); err != nil {
		g.logger.Error("closing store", "error", err)
		if firstErr == nil {
			firstErr = err
		}
	}

	g.logger.Info("gateway stopped")
	return firstErr
}

func (g *Gateway) handleRoot(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"message": "Nexial B2B Chat Platform API"})
}

// handleHealth is a liveness probe.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// handleReady returns 200 when the store answers a ping.
func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := g.store.Ping(ctx); err != nil {
		g.logger.Warn("readiness check failed", "error", err)
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status":      "ready",
		"connections": g.sessions.Count(),
	})
}
