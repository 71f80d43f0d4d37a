package router

import (
	"net/http"

	"github.com/shandysiswandi/otpgate/internal/pkg/config"
)

const defaultMaxBodyBytes = 16 * 1024

func middlewareBodyLimit(cfg config.Config) Middleware {
	limit := int64(defaultMaxBodyBytes)
	if cfg != nil && cfg.GetInt64("app.server.http.max_body_bytes") > 0 {
		limit = cfg.GetInt64("app.server.http.max_body_bytes")
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, limit)
			}
			next.ServeHTTP(w, r)
		})
	}
}
