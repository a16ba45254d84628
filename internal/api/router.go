package api

import (
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// RouterConfig carries the env-driven parts of the router.
type RouterConfig struct {
	// Empty disables auth (development mode).
	BackendAPIKey string

	// Comma-separated. Empty allows any origin.
	CorsAllowedOrigins string
}

func NewRouter(h *Handler, cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg.CorsAllowedOrigins),
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", headerAPIKey},
		ExposedHeaders:   []string{"X-Duration-Seconds", "X-Render-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", h.Health)

	r.Route("/v1/renders", func(r chi.Router) {
		if cfg.BackendAPIKey != "" {
			r.Use(APIKeyAuth(cfg.BackendAPIKey))
		}

		r.Get("/", h.ListRenders)
		r.Post("/", h.CreateRender)
		r.Post("/sync", h.RenderSync)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.GetRender)
			r.Get("/download", h.GetRenderDownload)
			r.Get("/events", h.GetRenderEvents)
		})
	})

	return r
}

// allowedOrigins splits the configured origin list, falling back to "*".
func allowedOrigins(list string) []string {
	var origins []string
	for _, o := range strings.Split(list, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}
