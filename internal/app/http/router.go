package httpapp

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"ssoengine/internal/app/middleware"
	"ssoengine/internal/metrics"
	"ssoengine/internal/services/oauth"
)

// RouterConfig carries what the HTTP adapter needs besides the engine
type RouterConfig struct {
	Env        string
	UserHeader string
	Metrics    *metrics.Metrics
}

// NewRouter mounts the OAuth endpoints of srv
func NewRouter(log *slog.Logger, srv *oauth.Server, conf RouterConfig) http.Handler {
	h := &handlers{log: log, srv: srv}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Env(conf.Env))
	r.Use(middleware.RequestLogger(log))
	r.Use(chimw.Recoverer)
	if conf.Metrics != nil {
		r.Use(conf.Metrics.Middleware)
		r.Method(http.MethodGet, "/metrics", conf.Metrics.Handler())
	}

	r.Get("/healthz", h.health)
	r.Get("/.well-known/jwks.json", h.jwks)

	r.Post("/token", h.token)
	r.Post("/introspect", h.introspect)
	r.Post("/revoke", h.revoke)
	r.Post("/device_authorization", h.deviceAuthorization)
	r.Get("/tokeninfo", h.tokenInfo)

	// endpoints that act for a user rely on the authenticating proxy header
	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthenticatedUser(conf.UserHeader))
		r.Get("/authorize", h.authorize)
		r.Post("/authorize", h.authorize)
		r.Post("/device", h.verifyDevice)
	})
	return r
}
