package proxy

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// NewAdminRouter builds the operator-facing admin surface: metrics, health
// probes, and read-only views of the current routing state.
func NewAdminRouter(logger zerolog.Logger, h *Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Handle("/metrics", promhttp.Handler())

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		// Ready once any upstream member is in rotation.
		for _, m := range h.Pool().Members() {
			if m.Healthy() {
				w.WriteHeader(http.StatusOK)
				w.Write([]byte("ok"))
				return
			}
		}
		http.Error(w, "no healthy upstreams", http.StatusServiceUnavailable)
	})

	r.Get("/routes", func(w http.ResponseWriter, _ *http.Request) {
		type routeView struct {
			Pattern  string `json:"pattern"`
			Match    string `json:"match"`
			Upstream string `json:"upstream,omitempty"`
			Zone     string `json:"zone,omitempty"`
			Static   bool   `json:"static,omitempty"`
		}
		var out []routeView
		for _, cr := range h.Table().Routes() {
			out = append(out, routeView{
				Pattern:  cr.Pattern,
				Match:    cr.Match,
				Upstream: cr.Upstream,
				Zone:     cr.Zone,
				Static:   cr.Static,
			})
		}
		writeJSON(logger, w, out)
	})

	r.Get("/upstreams", func(w http.ResponseWriter, _ *http.Request) {
		type memberView struct {
			Group    string `json:"group"`
			Addr     string `json:"addr"`
			Healthy  bool   `json:"healthy"`
			Inflight int    `json:"inflight"`
		}
		var out []memberView
		for _, m := range h.Pool().Members() {
			out = append(out, memberView{
				Group:    m.Group,
				Addr:     m.Addr,
				Healthy:  m.Healthy(),
				Inflight: m.Inflight(),
			})
		}
		writeJSON(logger, w, out)
	})

	return r
}

func writeJSON(logger zerolog.Logger, w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn().Err(err).Msg("failed to encode admin response")
	}
}
