package server

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/agentrail/core/internal/errs"
	"github.com/agentrail/core/internal/ratelimit"
)

// rateLimitMiddleware enforces a per-tenant request budget using the
// {tenantID} chi URL param as the bucket key. Requests made before the
// tenant is known to chi (or when the limiter is disabled) pass through
// unconditionally.
func rateLimitMiddleware(limiter *ratelimit.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limiter == nil {
				next.ServeHTTP(w, r)
				return
			}

			tenantID := chi.URLParam(r, "tenantID")
			if tenantID == "" {
				next.ServeHTTP(w, r)
				return
			}

			if limiter.Allow(tenantID) {
				next.ServeHTTP(w, r)
				return
			}

			status := limiter.GetStatus(tenantID)
			w.Header().Set("Retry-After", strconv.Itoa(int(status.WaitTime.Seconds()+1)))
			writeError(w, errs.New(errs.KindRateLimit, "tenant request rate exceeded"))
		})
	}
}
