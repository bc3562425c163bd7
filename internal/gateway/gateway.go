// ABOUTME: Gateway orchestrator wiring the store, platform client, and HTTP server
// ABOUTME: Manages startup, route registration, and graceful shutdown

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/raonhq/interview-gateway/internal/auth"
	"github.com/raonhq/interview-gateway/internal/bots"
	"github.com/raonhq/interview-gateway/internal/chat"
	"github.com/raonhq/interview-gateway/internal/config"
	"github.com/raonhq/interview-gateway/internal/perso"
	"github.com/raonhq/interview-gateway/internal/session"
	"github.com/raonhq/interview-gateway/internal/store"
)

// Gateway wires the interview-gateway server components: the SQLite store,
// the remote platform client, the session orchestrator, the chat pipeline,
// and the HTTP API that fronts them.
type Gateway struct {
	config     *config.Config
	store      *store.SQLiteStore
	perso      *perso.Client
	catalog    *perso.Catalog
	sessions   *session.Orchestrator
	chat       *chat.Pipeline
	verifier   *auth.JWTVerifier
	httpServer *http.Server
	logger     *slog.Logger
}

// New creates a Gateway from configuration. The store schema is created if
// missing and built-in bot personas are seeded.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	s, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}

	if err := bots.Seed(context.Background(), s, logger); err != nil {
		_ = s.Close()
		return nil, err
	}

	persoClient := perso.NewClient(cfg.Remote.APIServer, cfg.Remote.APIKey, perso.Options{
		Timeout:    cfg.Remote.Timeout,
		MaxRetries: cfg.Remote.MaxRetries,
		RetryDelay: cfg.Remote.RetryDelay,
	}, logger)

	verifier := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret), func() time.Time {
		return cfg.Auth.TokenEpoch
	})

	gw := &Gateway{
		config:   cfg,
		store:    s,
		perso:    persoClient,
		catalog:  perso.NewCatalog(persoClient),
		sessions: session.New(s, persoClient, logger),
		chat:     chat.New(s, persoClient, logger),
		verifier: verifier,
		logger:   logger.With("component", "gateway"),
	}

	mux := http.NewServeMux()
	gw.registerRoutes(mux)

	gw.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return gw, nil
}

// registerRoutes wires the HTTP surface. Everything under /api/ requires a
// valid bearer token; health endpoints do not.
func (g *Gateway) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", g.handleHealth)
	mux.HandleFunc("/health/ready", g.handleReady)

	authed := auth.Middleware(g.store, g.verifier)
	mux.Handle("/api/sessions/create", authed(http.HandlerFunc(g.handleCreateSession)))
	mux.Handle("/api/chat/message", authed(http.HandlerFunc(g.handleChatMessage)))
	mux.Handle("/api/chat/message/simple", authed(http.HandlerFunc(g.handleChatMessageSimple)))
	mux.Handle("/api/chat/session/", authed(http.HandlerFunc(g.handleSessionRoutes)))
	mux.Handle("/api/chat/history/", authed(http.HandlerFunc(g.handleHistory)))
	mux.Handle("/api/chat/rooms", authed(http.HandlerFunc(g.handleRooms)))
	mux.Handle("/api/bots", authed(http.HandlerFunc(g.handleListBots)))
	mux.Handle("/api/catalog/", authed(http.HandlerFunc(g.handleCatalog)))
}

// Handler exposes the HTTP handler for tests.
func (g *Gateway) Handler() http.Handler {
	return g.httpServer.Handler
}

// Run starts the HTTP server and blocks until the context is canceled or the
// server fails. Returns nil on graceful shutdown.
func (g *Gateway) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", g.config.Server.HTTPAddr, err)
	}

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		g.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := g.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server: %w", err)
		}
		return nil
	})

	group.Go(func() error {
		<-ctx.Done()
		g.logger.Info("shutting down gateway")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return g.httpServer.Shutdown(shutdownCtx)
	})

	err = group.Wait()
	if closeErr := g.Close(); closeErr != nil {
		g.logger.Error("close error", "error", closeErr)
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Close releases the gateway's resources.
func (g *Gateway) Close() error {
	g.catalog.Close()
	return g.store.Close()
}

// handleHealth returns 200 OK if the server is alive.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady returns 200 OK if the database answers.
func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := g.store.Ping(r.Context()); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = fmt.Fprintf(w, "database unavailable: %v", err)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
