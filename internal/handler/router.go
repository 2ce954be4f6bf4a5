package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zhouzirui/trailchat/backend/internal/handler/chat"
	"github.com/zhouzirui/trailchat/backend/internal/handler/persona"
	"github.com/zhouzirui/trailchat/backend/internal/handler/search"
	"github.com/zhouzirui/trailchat/backend/internal/handler/ws"
	middlewarePkg "github.com/zhouzirui/trailchat/backend/internal/middleware"
	personaModel "github.com/zhouzirui/trailchat/backend/internal/model/persona"
	"github.com/zhouzirui/trailchat/backend/pkg/utils"
)

// Deps are the services the router exposes.
type Deps struct {
	Chat      chat.Service
	Search    search.Service
	Personas  personaModel.Store
	PersonaID string
	// Responder is optional; without it user messages get an apology reply.
	Responder ws.Responder
	// Health reports backend reachability for /health.
	Health   func(ctx context.Context) error
	Gatherer prometheus.Gatherer
	Logger   *slog.Logger
	Origins  []string
}

// NewRouter wires HTTP routes to core services.
func NewRouter(deps Deps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middlewarePkg.RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS(deps.Origins))

	chat.New(deps.Chat, logger).RegisterRoutes(r)
	search.New(deps.Search, logger).RegisterRoutes(r)
	ws.New(deps.Chat, deps.Responder, logger).RegisterRoutes(r)
	if deps.Personas != nil {
		persona.New(deps.Personas, deps.PersonaID).RegisterRoutes(r)
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if deps.Health != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := deps.Health(ctx); err != nil {
				utils.RespondJSON(w, http.StatusServiceUnavailable, map[string]string{
					"status": "degraded",
					"redis":  err.Error(),
				})
				return
			}
		}
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	if deps.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	return r
}
