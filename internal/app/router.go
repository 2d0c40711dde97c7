package app

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vdstech/sacom/internal/auth"
	"github.com/vdstech/sacom/internal/observability"
	"github.com/vdstech/sacom/internal/permissions"
	"github.com/vdstech/sacom/internal/platform/httpx"
	"github.com/vdstech/sacom/internal/roles"
	"github.com/vdstech/sacom/internal/sessions"
	"github.com/vdstech/sacom/internal/users"
)

// RouterDeps groups everything the HTTP router needs.
type RouterDeps struct {
	Middleware  MiddlewareConfig
	Auth        *auth.Handler
	AuthMW      auth.Middleware
	Sessions    *sessions.Handler
	Roles       *roles.Handler
	Permissions *permissions.Handler
	Users       *users.Handler
	Metrics     *observability.Metrics
}

// NewRouter builds the service router: public auth endpoints, the
// authenticated self-service surface, and the permission-guarded admin API.
func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(deps.Middleware) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())
	}

	deps.Auth.MountRoutes(r, LoginRateLimit())

	r.Group(func(r chi.Router) {
		r.Use(deps.AuthMW.RequireAuth)

		deps.Auth.MountMe(r)
		r.Route("/session", deps.Sessions.MountRoutes)

		r.Route("/admin", func(r chi.Router) {
			r.Route("/roles", func(r chi.Router) {
				deps.Roles.MountRoutes(r, deps.AuthMW.Require)
			})
			r.Route("/permissions", func(r chi.Router) {
				deps.Permissions.MountRoutes(r, deps.AuthMW.Require)
			})
			r.Route("/users", func(r chi.Router) {
				deps.Users.MountRoutes(r, deps.AuthMW.Require)
			})
		})
	})

	return r
}
