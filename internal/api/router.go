package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nerrad567/lightswitch/internal/panel"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.metricsMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api", s.mountAPI)
	if s.cfg.FunctionPrefix != "" && s.cfg.FunctionPrefix != "/api" {
		r.Route(s.cfg.FunctionPrefix, s.mountAPI)
	}

	if s.metricsCfg.Enabled {
		r.Method(http.MethodGet, s.metricsCfg.Path, promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	if s.panelCfg.Enabled {
		r.Handle("/*", panel.Handler(s.panelCfg.Dir))
	}

	return r
}

// mountAPI registers the device routes on r.
func (s *Server) mountAPI(r chi.Router) {
	r.Get("/states", s.handleGetStates)
	r.Post("/toggle/{device}", s.handleToggle)
	r.Post("/set/{device}", s.handleSet)

	r.Get("/devices", s.handleListDevices)
	r.Get("/health", s.handleHealth)
}
