package api

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/mcoot/dicefunnel/internal/api/handler"
	apimiddleware "github.com/mcoot/dicefunnel/internal/api/middleware"
	"github.com/mcoot/dicefunnel/internal/dependencies/clock"
	"github.com/mcoot/dicefunnel/internal/middleware"
	"github.com/mcoot/dicefunnel/internal/services/campaign"
	"github.com/mcoot/dicefunnel/internal/services/funnel"
	"github.com/mcoot/dicefunnel/internal/sse"
)

// RouterConfig holds configuration for the API router
type RouterConfig struct {
	Logger     *slog.Logger
	Clock      clock.Clock
	Controller *campaign.Controller
	Events     *funnel.Log
	Hub        *sse.Hub
	// AdminAPIKey protects /api/v1/admin. Empty disables the admin routes.
	AdminAPIKey string
}

// NewRouter creates a new API router with all routes configured
func NewRouter(cfg RouterConfig) http.Handler {
	r := mux.NewRouter()

	// Create handlers
	funnelHandler := handler.NewFunnelHandler(cfg.Controller)
	webhookHandler := handler.NewWebhookHandler(cfg.Controller)
	adminHandler := handler.NewAdminHandler(cfg.Controller, cfg.Events, cfg.Hub)
	healthHandler := handler.NewHealthHandler(cfg.Controller, cfg.Clock)

	// Create middleware
	sessionMiddleware := apimiddleware.SessionToken()
	adminMiddleware := apimiddleware.AdminKey(cfg.AdminAPIKey)

	// API subrouter with common middleware
	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(middleware.RequestID())
	api.Use(apimiddleware.Recovery(cfg.Logger))
	api.Use(middleware.Logging(cfg.Logger))

	// Funnel routes (no session yet)
	api.HandleFunc("/funnel/entry", funnelHandler.Entry).Methods(http.MethodPost)
	api.HandleFunc("/funnel/mark-redeemed", funnelHandler.MarkRedeemed).Methods(http.MethodPost)
	api.HandleFunc("/discounts/{code}/status", funnelHandler.DiscountStatus).Methods(http.MethodGet)

	// Funnel routes bound to a session
	session := api.PathPrefix("/funnel").Subrouter()
	session.Use(sessionMiddleware)
	session.HandleFunc("/verify", funnelHandler.Verify).Methods(http.MethodPost)
	session.HandleFunc("/draw", funnelHandler.Draw).Methods(http.MethodPost)
	session.HandleFunc("/status", funnelHandler.Status).Methods(http.MethodGet)

	// Loyalty platform webhooks
	api.HandleFunc("/webhooks/discount-used", webhookHandler.DiscountUsed).Methods(http.MethodPost)
	api.HandleFunc("/webhooks/customer-tag-added", webhookHandler.CustomerTagAdded).Methods(http.MethodPost)

	// Dashboard routes (admin key)
	admin := api.PathPrefix("/admin").Subrouter()
	admin.Use(adminMiddleware)
	admin.HandleFunc("/funnel/events", adminHandler.Events).Methods(http.MethodGet)
	admin.HandleFunc("/funnel/stats", adminHandler.Stats).Methods(http.MethodGet)
	admin.HandleFunc("/funnel/stream", adminHandler.Stream).Methods(http.MethodGet)
	admin.HandleFunc("/players/{identity}/credit-stamp", adminHandler.CreditStamp).Methods(http.MethodPost)

	// Health check endpoint (no auth)
	api.HandleFunc("/health", healthHandler.Health).Methods(http.MethodGet)

	return r
}
