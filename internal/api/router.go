package api

import (
	"context"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
)

const apiPrefix = "/api/v1"

// healthCheckTimeout bounds each component check on /health.
const healthCheckTimeout = 3 * time.Second

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeNotFound(w, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, ErrCodeMethodNotAllow, "method not allowed")
	})

	r.Route(apiPrefix, func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Route("/devices", func(r chi.Router) {
				r.Get("/", s.handleListDevices)
				r.Post("/", s.handleCreateDevice)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetDevice)
					r.Delete("/", s.handleDeleteDevice)
					r.Get("/state", s.handleGetDeviceState)
					r.Get("/energy", s.handleGetEnergy)
					r.Post("/power", s.handleSetPower)
					r.Post("/dimmer", s.handleSetDimmer)
					r.Post("/color_temp", s.handleSetColorTemp)
					r.Post("/hsb_color", s.handleSetHSBColor)
					r.Post("/scheme", s.handleSetScheme)
					r.Post("/fade", s.handleSetFade)
					r.Post("/energy/reset", s.handleResetEnergy)
					r.Post("/routine", s.handleRunRoutine)
					r.Get("/routines", s.handleListExecutions)
					r.Get("/commands", s.handleListCommands)
				})
			})

			r.Get("/routines/{executionID}", s.handleGetExecution)
			r.Get("/commands", s.handleListCommands)
			r.Post("/discovery", s.handleDiscovery)

			if sub, ok := strings.CutPrefix(s.wsPath(), apiPrefix); ok && strings.HasPrefix(sub, "/") {
				r.Get(sub, s.handleWebSocket)
			}
		})
	})

	if !strings.HasPrefix(s.wsPath(), apiPrefix+"/") {
		r.With(s.authMiddleware).Get(s.wsPath(), s.handleWebSocket)
	}

	return r
}

func (s *Server) wsPath() string {
	if s.wsCfg.Path == "" {
		return apiPrefix + "/ws"
	}
	return s.wsCfg.Path
}

// handleHealth reports the version and the result of each registered
// component check. Any failing check turns the response into a 503.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	names := make([]string, 0, len(s.health))
	for name := range s.health {
		names = append(names, name)
	}
	sort.Strings(names)

	status, code := "ok", http.StatusOK
	checks := make(map[string]string, len(names))
	for _, name := range names {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		err := s.health[name].HealthCheck(ctx)
		cancel()
		if err != nil {
			checks[name] = err.Error()
			status, code = "degraded", http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	writeJSON(w, code, map[string]any{
		"status":  status,
		"version": s.version,
		"devices": len(s.devices.Summaries()),
		"clients": s.hub.ClientCount(),
		"checks":  checks,
	})
}
