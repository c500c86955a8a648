package http

import (
	"net/http"
	"time"

	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"

	"eventhub/internal/avatars"
	"eventhub/internal/config"
	"eventhub/internal/events"
	"eventhub/internal/exporter"
	"eventhub/internal/importer"
	"eventhub/internal/jokes"
	"eventhub/internal/metrics"
	"eventhub/internal/session"
)

// Metrics is the subset of the metrics collector used by the HTTP layer.
type Metrics interface {
	RequestRecorder
	RecordRegistration(action string)
}

// Dependencies holds the services exposed by the router.
type Dependencies struct {
	Sessions *session.Registry
	Events   *events.Service
	Importer *importer.CSVImporter
	Exporter *exporter.CSVExporter
	Avatars  *avatars.Service
	Jokes    *jokes.Service
	Metrics  Metrics
	Gatherer prometheus.Gatherer
}

// NewRouter wires application routes and middleware using chi.
func NewRouter(cfg config.Config, deps Dependencies, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(newSecurityHeadersMiddleware(cfg.Environment))
	r.Use(newSlogMiddleware(logger, deps.Metrics))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":      "ok",
			"environment": cfg.Environment,
		})
	})
	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.Gatherer))
	}

	sessionHandler := NewSessionHandler(logger)
	profileHandler := NewProfileHandler(deps.Avatars, logger)
	eventHandler := NewEventHandler(deps.Events, deps.Importer, deps.Exporter, deps.Metrics, logger)
	jokeHandler := NewJokeHandler(deps.Jokes, logger)
	limiter := newIPRateLimiter(cfg.AuthRatePerMinute)
	requireAuth := newRequireAuthMiddleware(cfg.SessionInitTimeout)
	secureCookie := !cfg.IsDevelopment()

	r.Route("/api", func(r chi.Router) {
		r.Get("/jokes/random", jokeHandler.Random)

		r.Group(func(r chi.Router) {
			r.Use(newBrowserSessionMiddleware(deps.Sessions, secureCookie, logger))

			// The stream outlives the request timeout applied below.
			r.Get("/session/stream", sessionHandler.Stream)

			r.Group(func(r chi.Router) {
				r.Use(middleware.Timeout(60 * time.Second))

				r.Get("/session", sessionHandler.Status)
				r.Get("/notifications", sessionHandler.Notifications)

				r.Route("/auth", func(r chi.Router) {
					r.Group(func(r chi.Router) {
						r.Use(limiter.middleware(logger))
						r.Post("/signup", sessionHandler.SignUp)
						r.Post("/signin", sessionHandler.SignIn)
						r.Post("/password/reset", sessionHandler.ResetPassword)
					})
					r.Post("/signout", sessionHandler.SignOut)
					r.With(requireAuth).Put("/password", sessionHandler.UpdatePassword)
				})

				r.Route("/events", func(r chi.Router) {
					r.Get("/", eventHandler.List)
					r.With(requireAuth).Post("/", eventHandler.Create)
					r.With(requireAuth).Post("/import", eventHandler.Import)
					r.Route("/{id}", func(r chi.Router) {
						r.Get("/", eventHandler.Get)
						r.With(requireAuth).Delete("/", eventHandler.Delete)
						r.With(requireAuth).Post("/registration", eventHandler.Register)
						r.With(requireAuth).Delete("/registration", eventHandler.Unregister)
						r.With(requireAuth).Get("/attendees.csv", eventHandler.ExportAttendees)
					})
				})

				r.Group(func(r chi.Router) {
					r.Use(requireAuth)
					r.Get("/profile", profileHandler.Get)
					r.Put("/profile", profileHandler.Update)
					r.Post("/profile/refresh", profileHandler.Refresh)
					r.Post("/profile/avatar", profileHandler.UploadAvatar)
					r.Get("/dashboard", eventHandler.Dashboard)
				})
			})
		})
	})

	r.NotFound(http.NotFoundHandler().ServeHTTP)

	return r
}
