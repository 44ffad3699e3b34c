package server

import (
	"chatline/auth"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewHTTPRouter assembles the whole HTTP surface: public auth routes, the
// authenticated group API, the websocket endpoint, and metrics.
func NewHTTPRouter(
	handlers *Handlers,
	gateway *Gateway,
	tokens *auth.TokenManager,
	apiLimiter *RateLimiter,
	createLimiter *RateLimiter,
	metricsHandler http.Handler,
) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Post("/auth/register", handlers.Register)
	r.Post("/auth/login", handlers.Login)

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(tokens))
		r.Use(apiLimiter.Middleware)

		r.Route("/groups", func(r chi.Router) {
			r.Get("/", handlers.ListGroups)
			// Group creation gets a stricter bucket than the rest of the API.
			r.With(createLimiter.Middleware).Post("/", handlers.CreateGroup)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", handlers.GetGroup)
				r.Delete("/", handlers.DeleteGroup)
				r.Post("/join", handlers.JoinGroup)
				r.Post("/leave", handlers.LeaveGroup)
				r.Post("/add-member", handlers.AddMember)
				r.Post("/remove-member", handlers.RemoveMember)
				r.Get("/messages", handlers.GroupMessages)
				r.Post("/messages", handlers.SendGroupMessage)
			})
		})

		r.Get("/messages/{userId}", handlers.DirectMessages)
	})

	// The gateway authenticates the token itself so browser clients can pass
	// it as a query parameter during the upgrade.
	r.Get("/ws", gateway.ServeHTTP)

	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}
	r.Handle("/metrics", metricsHandler)

	return r
}
