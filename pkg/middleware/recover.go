// pkg/middleware/recover.go
package middleware

import (
	"net/http"
	"runtime/debug"

	"go.uber.org/zap"

	"tenantplane/pkg/problems"
)

// Recover turns a handler panic into a problem response so one bad
// dispatch never takes the admin surface down with it.
func Recover(log *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					log.Errorw("handler panic",
						"method", r.Method,
						"path", r.URL.Path,
						"err", rec,
						"stack", string(debug.Stack()),
					)
					problems.Write(w, http.StatusInternalServerError, "internal", "Internal error", "The request could not be completed")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
