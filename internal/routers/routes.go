package routers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"matrixhub/internal/handlers"
	"matrixhub/internal/metrics"
)

// New wires all routes. Paths mirror the device-facing API: displays
// hang on /ws, controllers POST /state and /image.
func New(h *handlers.Handlers, corsOrigins []string) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
	)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: corsOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	}))
	r.Use(metrics.Middleware)

	// The push channel stays open indefinitely, so it lives outside
	// the request timeout.
	r.Get("/ws", h.WS)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))

		r.Get("/health", h.Health)
		r.Handle("/metrics", metrics.Handler())

		r.Get("/state", h.GetState)
		r.Post("/state", h.SetState)

		r.Post("/auth/token", h.Token)

		r.Get("/image", h.GetImage)
		r.Post("/image", h.UploadImage)
	})

	return r
}
