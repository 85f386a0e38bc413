package app

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/centsible/centsible/internal/config"
	"github.com/centsible/centsible/pkg/session"
)

// SetupMiddleware wires all HTTP middlewares for the application.
func SetupMiddleware(r *mux.Router, deps *Dependencies, cfg config.Application) {

	// Propagate the signed-in identity into the request context for
	// downstream services.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := req.Context()
			if identity := deps.SessionHolder.Current(); identity != nil {
				ctx = session.WithIdentity(ctx, *identity)
			}
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})
}
