// Package server exposes the orchestrator's HTTP surface: start/inspect/
// approve/cancel/deliver-event endpoints for workflow executions, and an
// SSE stream of live tenant events. It is served over
// github.com/go-chi/chi/v5, the router the rest of the pack reaches for
// over stdlib mux patterns (see erauner12-toolbridge-api's httpapi.Server).
package server

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/agentrail/core/internal/auth"
	"github.com/agentrail/core/internal/chatrouter"
	"github.com/agentrail/core/internal/eventbus"
	"github.com/agentrail/core/internal/ratelimit"
	"github.com/agentrail/core/internal/store"
	"github.com/agentrail/core/internal/telemetry"
	"github.com/agentrail/core/internal/tools/notifier"
	"github.com/agentrail/core/internal/workflow"
)

// Server wires the HTTP handlers to the orchestrator's shared dependencies.
type Server struct {
	Interpreter   *workflow.Interpreter
	Bus           eventbus.Bus
	Conversations store.ConversationStore
	Agents        store.AgentStore
	ChatRouter    *chatrouter.Router
	Notifier      *notifier.Notifier
	Auth          *auth.Service
	Metrics       *telemetry.Metrics
	Logger        *slog.Logger
	ApprovalRoute string // Slack channel/user ID human_approval notifications post to
	RateLimiter   *ratelimit.Limiter
}

// Routes builds the full chi.Router for the orchestrator process.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(s.logRequests)
	r.Use(s.metricsMiddleware)

	r.Get("/healthz", s.handleHealthz)

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(s.Auth, s.Logger))

		r.Route("/v1/tenants/{tenantID}", func(r chi.Router) {
			r.Use(rateLimitMiddleware(s.RateLimiter))

			r.Get("/stream", s.handleStream)

			r.Route("/workflows/{workflowID}/executions", func(r chi.Router) {
				r.Post("/", s.handleStartExecution)
			})

			r.Route("/executions/{executionID}", func(r chi.Router) {
				r.Get("/", s.handleGetExecution)
				r.Post("/approve", s.handleApprove)
				r.Post("/cancel", s.handleCancel)
				r.Post("/events/{eventName}", s.handleDeliverEvent)
			})

			r.Route("/conversations/{conversationID}", func(r chi.Router) {
				r.Post("/messages", s.handlePostMessage)
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireService("worker"))
			r.Route("/v1/internal/tenants/{tenantID}/executions/{executionID}", func(r chi.Router) {
				r.Post("/resume", s.handleWorkerResume)
			})
		})
	})

	return r
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.Logger != nil {
			s.Logger.Debug("http request", "method", r.Method, "path", r.URL.Path)
		}
		next.ServeHTTP(w, r)
	})
}
