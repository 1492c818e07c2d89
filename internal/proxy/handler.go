package proxy

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/edvin/stackd/internal/model"
)

// generation is one immutable serving state built from a ProxyConfig.
// Reload builds a new generation and swaps the pointer; in-flight requests
// keep the generation they started with.
type generation struct {
	table   *Table
	limiter *Limiter
	pool    *Pool
	timeout time.Duration
}

// Handler is the request-dispatch path: static short-circuit, zone
// admission, route match, pool acquire, reverse proxy.
type Handler struct {
	logger zerolog.Logger
	state  atomic.Pointer[generation]
}

// NewHandler builds the handler for the initial configuration.
func NewHandler(logger zerolog.Logger, cfg *model.ProxyConfig) (*Handler, error) {
	h := &Handler{logger: logger.With().Str("component", "proxy").Logger()}
	if err := h.Update(cfg); err != nil {
		return nil, err
	}
	return h, nil
}

// Update builds a new serving state from cfg and swaps it in atomically.
// The previous generation's keepalive pools are drained.
func (h *Handler) Update(cfg *model.ProxyConfig) error {
	table, err := NewTable(cfg.Routes)
	if err != nil {
		return err
	}

	gen := &generation{
		table:   table,
		limiter: NewLimiter(cfg.Zones),
		pool:    NewPool(h.logger, cfg.Upstreams, cfg.RejoinAfter),
		timeout: cfg.RequestTimeout,
	}

	old := h.state.Swap(gen)
	if old != nil {
		old.pool.CloseIdleConnections()
	}
	return nil
}

// Table returns the current routing table.
func (h *Handler) Table() *Table {
	return h.state.Load().table
}

// Pool returns the current upstream pool.
func (h *Handler) Pool() *Pool {
	return h.state.Load().pool
}

// Limiter returns the current rate limiter.
func (h *Handler) Limiter() *Limiter {
	return h.state.Load().limiter
}

// RunJanitor periodically evicts idle rate-limit buckets from whichever
// limiter generation is current, so a config reload does not orphan the
// eviction loop. Blocks until the context is cancelled.
func (h *Handler) RunJanitor(ctx context.Context, interval, idleAfter time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.Limiter().evictIdle(time.Now().Add(-idleAfter))
		}
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	gen := h.state.Load()

	route := gen.table.Match(r.URL.Path)
	if route == nil {
		// Only reachable for paths outside "/"; the catch-all covers the rest.
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}

	// Static routes (the proxy's own liveness) answer before admission and
	// never consume rate-limit tokens.
	if route.Static {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
		requestsTotal.WithLabelValues(route.Pattern, "200").Inc()
		return
	}

	key := clientIP(r)
	if route.Zone != "" && !gen.limiter.Admit(route.Zone, key) {
		http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
		requestsTotal.WithLabelValues(route.Pattern, "429").Inc()
		h.logger.Debug().Str("path", r.URL.Path).Str("zone", route.Zone).Str("key", key).Msg("request rejected by rate limit")
		return
	}

	member, err := gen.pool.Acquire(route.Upstream)
	if err != nil {
		if errors.Is(err, ErrNoHealthyUpstream) {
			http.Error(w, "Service Unavailable", http.StatusServiceUnavailable)
			requestsTotal.WithLabelValues(route.Pattern, "503").Inc()
			h.logger.Warn().Str("path", r.URL.Path).Str("group", route.Upstream).Msg("no healthy upstream")
			return
		}
		http.Error(w, "Bad Gateway", http.StatusBadGateway)
		requestsTotal.WithLabelValues(route.Pattern, "502").Inc()
		h.logger.Error().Err(err).Str("path", r.URL.Path).Msg("acquire failed")
		return
	}
	defer gen.pool.Release(member)

	// Bound the proxied request so a stalled upstream frees its pooled
	// connection instead of pinning it forever.
	ctx := r.Context()
	if gen.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, gen.timeout)
		defer cancel()
	}
	r = r.WithContext(ctx)

	r.Header.Set("X-Real-IP", key)
	r.Header.Set("X-Forwarded-Host", r.Host)

	wrapped := &statusWriter{ResponseWriter: w}
	member.proxy.ServeHTTP(wrapped, r)

	requestsTotal.WithLabelValues(route.Pattern, strconv.Itoa(wrapped.status)).Inc()
	h.logger.Debug().
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Str("member", member.Addr).
		Int("status", wrapped.status).
		Dur("duration", time.Since(start)).
		Msg("request proxied")
}

// clientIP extracts the rate-limit key for a request.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if ip, _, ok := strings.Cut(xff, ","); ok {
			return strings.TrimSpace(ip)
		}
		return strings.TrimSpace(xff)
	}
	if xrip := r.Header.Get("X-Real-IP"); xrip != "" {
		return xrip
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// statusWriter captures the final status code for metrics and logging.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.ResponseWriter.Write(b)
}
