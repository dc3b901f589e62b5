package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/agentrail/core/internal/auth"
)

// withURLParams attaches chi URL params to req the way the router would
// after matching a route pattern, so handlers can be exercised directly
// without going through Routes().
func withURLParams(req *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for k, v := range params {
		rctx.URLParams.Add(k, v)
	}
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func disabledAuth() *auth.Service {
	return auth.NewService("", time.Hour)
}
