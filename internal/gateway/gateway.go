// ABOUTME: Gateway orchestrates the webhook relay server components
// ABOUTME: Owns the HTTP server, hub, pending registry, token codec, and upstream client

package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/2389/aq-gateway/internal/assets"
	"github.com/2389/aq-gateway/internal/auth"
	"github.com/2389/aq-gateway/internal/config"
	"github.com/2389/aq-gateway/internal/hub"
	"github.com/2389/aq-gateway/internal/pending"
	"github.com/2389/aq-gateway/internal/store"
	"github.com/2389/aq-gateway/internal/token"
	"github.com/2389/aq-gateway/internal/upstream"
)

// Gateway wires together the relay's components and serves its HTTP API.
type Gateway struct {
	config        *config.Config
	store         store.Store
	hub           *hub.Hub
	registry      *pending.Registry
	codec         *token.Codec
	upstream      *upstream.Client
	adminVerifier auth.TokenVerifier
	httpServer    *http.Server
	upgrader      websocket.Upgrader
	logger        *slog.Logger
}

// New creates a Gateway from the given configuration and agent store.
func New(cfg *config.Config, s store.Store, logger *slog.Logger) (*Gateway, error) {
	g := &Gateway{
		config:   cfg,
		store:    s,
		hub:      hub.NewHub(logger),
		registry: pending.NewRegistry(cfg.Relay.PendingTTL, logger),
		upstream: upstream.NewClient(cfg.Upstream.BaseURL, logger),
		upgrader: websocket.Upgrader{
			// The relay does not authenticate its listeners; browsers on
			// any origin may subscribe.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: logger.With("component", "gateway"),
	}

	if cfg.Insecure() {
		g.codec = token.Disabled()
		g.logger.Warn("webhook authentication DISABLED - no auth.webhook_secret configured; inbound callbacks are not verified")
	} else {
		g.codec = token.New(cfg.Auth.WebhookSecret)
	}

	if cfg.Auth.AdminSecret != "" {
		g.adminVerifier = auth.NewJWTVerifier([]byte(cfg.Auth.AdminSecret))
	} else {
		g.logger.Warn("admin auth disabled - no auth.admin_secret configured")
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", g.handleHealth)
	mux.HandleFunc("/webhook/", g.handleWebhook)
	mux.HandleFunc("/ws", g.handleWebSocket)
	mux.HandleFunc("/api/webhooks/register", g.handleRegisterWebhook)
	mux.HandleFunc("/api/submit", g.handleSubmit)
	mux.HandleFunc("/api/agents", g.handleAgents)
	mux.HandleFunc("/api/agents/", g.handleAgentByName)
	mux.HandleFunc("/", assets.AdminPage)

	g.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return g, nil
}

// Handler returns the gateway's HTTP handler.
func (g *Gateway) Handler() http.Handler {
	return g.httpServer.Handler
}

// Start serves HTTP until the context is cancelled, then shuts down
// gracefully.
func (g *Gateway) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		g.logger.Info("gateway listening", "addr", g.httpServer.Addr)
		if err := g.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	g.registry.Close()
	if err := g.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down http server: %w", err)
	}

	g.logger.Info("gateway stopped")
	return nil
}

// handleHealth handles GET /health requests.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	g.sendJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"connections": g.hub.Count(),
		"pending":     g.registry.Len(),
	})
}

// handleWebSocket upgrades the connection and keeps it in the hub for
// the connection's lifetime.
func (g *Gateway) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	client := hub.NewClient(conn)
	g.hub.Add(client)
	client.Run(g.hub)
}

// sendJSON writes a JSON response with the given status.
func (g *Gateway) sendJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// sendJSONError writes a JSON failure response. Failure is always
// explicit in the payload, not just the status code.
func (g *Gateway) sendJSONError(w http.ResponseWriter, status int, message string) {
	g.sendJSON(w, status, map[string]any{"ok": false, "error": message})
}
