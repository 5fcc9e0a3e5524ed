package app

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/aegis-authz/aegis/internal/authz"
	authzhttp "github.com/aegis-authz/aegis/internal/authz/http"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Config       *Config
	AuthzHandler *authzhttp.Handler
	Gate         authz.Middleware
}

// NewRouter constructs the chi.Router with Aegis defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(params.Config) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/authz", func(gr chi.Router) {
		params.AuthzHandler.MountRoutes(gr, params.Gate)
	})

	return r
}
