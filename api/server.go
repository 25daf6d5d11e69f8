/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:     Unique ID per request for tracing
  2. RealIP:        Client address behind a proxy
  3. RequestLogger: One slog line per request
  4. Recoverer:     Panic recovery (500 instead of crash)
  5. CORS:          Cross-origin requests for the point-of-sale UI
  6. RequireAuth:   Bearer token, /api only

ROUTE GROUPS:
  /healthz                      Store and cache ping (public)
  /api/categorias/*             Categories
  /api/productos/*              Products, stock ledger
  /api/productos/ajuste-masivo  Bulk price adjustments

SEE ALSO:
  - handlers.go: Handler implementations
  - middleware.go: Auth and logging
  - cmd/server/main.go: Server startup
*/
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/warp/inventory-engine/config"
)

// RouterConfig carries what the router needs besides the handlers.
type RouterConfig struct {
	CORS   config.CORSConfig
	Tokens TokenValidator
	Logger *slog.Logger

	// Ping, when set, is checked by /healthz; failure is 503.
	Ping func(ctx context.Context) error

	// CachePing, when set, is checked by /healthz; failure reports "degraded"
	// with 200, since requests are still served from the store.
	CachePing func(ctx context.Context) error
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, cfg RouterConfig) *chi.Mux {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORS.Origins(),
		AllowedMethods:   cfg.CORS.Methods(),
		AllowedHeaders:   cfg.CORS.Headers(),
		AllowCredentials: cfg.CORS.AllowCredentials,
		MaxAge:           cfg.CORS.MaxAge,
	}))

	r.Get("/healthz", health(cfg.Ping, cfg.CachePing))

	r.Route("/api", func(r chi.Router) {
		r.Use(RequireAuth(cfg.Tokens))

		r.Route("/categorias", func(r chi.Router) {
			r.Get("/", h.ListCategories)
			r.Post("/", h.CreateCategory)
		})

		r.Route("/productos", func(r chi.Router) {
			r.Get("/", h.ListProducts)
			r.Post("/", h.CreateProduct)

			// Registered before /{id} so the literal segment wins.
			r.Route("/ajuste-masivo", func(r chi.Router) {
				r.Post("/", h.ApplyBulkAdjustment)
				r.Get("/historial", h.AdjustmentHistory)
				r.Get("/{id}", h.GetAdjustment)
				r.Post("/{id}/revertir", h.RevertAdjustment)
			})

			r.Get("/{id}", h.GetProduct)
			r.Put("/{id}/precio", h.SetPrice)
			r.Post("/{id}/ajuste", h.AdjustStock)
			r.Get("/{id}/movimientos", h.StockHistory)
		})
	})

	return r
}

func health(ping, cachePing func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if ping != nil {
			if err := ping(ctx); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		if cachePing != nil {
			if err := cachePing(ctx); err != nil {
				writeJSON(w, http.StatusOK, map[string]string{"status": "degraded", "cache": "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
