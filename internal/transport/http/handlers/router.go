package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/vedran77/huddle/internal/transport/http/middleware"
)

type RouterDeps struct {
	Identities     middleware.IdentityProvider
	Channel        *MessageHandler
	Direct         *MessageHandler
	Conversations  *ConversationHandler
	Socket         http.Handler
	Health         func(r *http.Request) error
	AllowedOrigins []string
	Logger         zerolog.Logger
}

func NewRouter(d RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(d.Logger))
	r.Use(chimw.Recoverer)
	r.Use(middleware.Metrics)

	origins := d.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Public
	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		if d.Health != nil {
			if err := d.Health(req); err != nil {
				d.Logger.Warn().Err(err).Msg("health check failed")
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())
	if d.Socket != nil {
		r.Handle("/ws", d.Socket)
	}

	// Protected
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(d.Identities))

		r.Route("/channels/{id}/messages", func(r chi.Router) {
			r.Post("/", d.Channel.Send)
			r.Get("/", d.Channel.List)
		})
		r.Route("/messages/{id}", func(r chi.Router) {
			r.Patch("/", d.Channel.Edit)
			r.Delete("/", d.Channel.Delete)
			r.Post("/reaction", d.Channel.React)
		})

		r.Route("/conversations/{id}/messages", func(r chi.Router) {
			r.Post("/", d.Direct.Send)
			r.Get("/", d.Direct.List)
		})
		r.Route("/direct-messages/{id}", func(r chi.Router) {
			r.Patch("/", d.Direct.Edit)
			r.Delete("/", d.Direct.Delete)
			r.Post("/reaction", d.Direct.React)
		})

		r.Get("/servers/{serverID}/conversations", d.Conversations.List)
		r.Post("/servers/{serverID}/conversations/{memberID}", d.Conversations.Open)
	})

	return r
}
