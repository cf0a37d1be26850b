package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/tcplink/internal/auth"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	metricsPath := s.cfg.MetricsPath
	if metricsPath == "" {
		metricsPath = "/metrics"
	}
	r.Handle(metricsPath, s.metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.With(s.require(auth.PermLinkRead)).Get("/status", s.instrumented("status", s.handleStatus))

			r.Route("/link", func(r chi.Router) {
				r.With(s.require(auth.PermLinkRead)).Get("/", s.instrumented("link", s.handleGetLink))

				r.Group(func(r chi.Router) {
					r.Use(s.require(auth.PermLinkControl))
					r.Post("/connect", s.instrumented("link_connect", s.handleConnect))
					r.Post("/close", s.instrumented("link_close", s.handleClose))
					r.Post("/send", s.instrumented("link_send", s.handleSend))
					r.Post("/subscribe", s.instrumented("link_subscribe", s.handleSubscribe))
					r.Post("/publish", s.instrumented("link_publish", s.handlePublish))
				})
			})

			r.Route("/peers", func(r chi.Router) {
				r.Use(s.require(auth.PermPeerRead))
				r.Get("/", s.instrumented("peers", s.handleListPeers))
				r.Get("/{id}", s.instrumented("peer", s.handleGetPeer))
			})

			r.With(s.require(auth.PermEventStream)).Post("/auth/ws-ticket", s.handleWSTicket)
		})

		// Authenticated by ticket in the handler.
		r.Get("/ws", s.handleWebSocket)
	})

	return r
}

// instrumented wraps a handler with request metrics under op.
func (s *Server) instrumented(op string, h http.HandlerFunc) http.HandlerFunc {
	return s.metrics.Instrument(op, h).ServeHTTP
}

// healthTimeout bounds each component check.
const healthTimeout = 2 * time.Second

// HealthStatus is the response body of GET /health.
type HealthStatus struct {
	Status     string            `json:"status"` // ok or degraded
	Version    string            `json:"version"`
	Components map[string]string `json:"components,omitempty"`
}

// handleHealth reports ok, or degraded with 503 when any component check
// fails. Checks run concurrently.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	body := HealthStatus{Status: "ok", Version: s.version}

	if len(s.checks) > 0 {
		body.Components = make(map[string]string, len(s.checks))
		var (
			mu sync.Mutex
			wg sync.WaitGroup
		)
		for name, c := range s.checks {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
				defer cancel()

				result := "ok"
				if err := c.HealthCheck(ctx); err != nil {
					result = err.Error()
				}
				mu.Lock()
				body.Components[name] = result
				if result != "ok" {
					body.Status = "degraded"
				}
				mu.Unlock()
			}()
		}
		wg.Wait()
	}

	status := http.StatusOK
	if body.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, body)
}
