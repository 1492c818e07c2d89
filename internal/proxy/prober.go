package proxy

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Prober runs the periodic health checks that drive pool membership. It
// only ever flips member health flags; request-serving paths are never
// blocked by it.
type Prober struct {
	logger   zerolog.Logger
	source   PoolSource
	interval time.Duration
	timeout  time.Duration
	client   *http.Client
}

// PoolSource yields the current pool, so probing follows configuration
// reloads instead of pinning the generation it started with.
type PoolSource interface {
	Pool() *Pool
}

// NewProber creates a prober over the given pool source.
func NewProber(logger zerolog.Logger, source PoolSource, interval, timeout time.Duration) *Prober {
	return &Prober{
		logger:   logger.With().Str("component", "prober").Logger(),
		source:   source,
		interval: interval,
		timeout:  timeout,
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 1,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// Run probes all members once per interval until the context is cancelled.
func (p *Prober) Run(ctx context.Context) error {
	p.logger.Info().Dur("interval", p.interval).Msg("starting health prober")

	p.probeAll(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info().Msg("health prober stopped")
			return nil
		case <-ticker.C:
			p.probeAll(ctx)
		}
	}
}

func (p *Prober) probeAll(ctx context.Context) {
	pool := p.source.Pool()
	g, ctx := errgroup.WithContext(ctx)
	for _, m := range pool.Members() {
		g.Go(func() error {
			pool.observeProbe(m.Group, m.Addr, p.probe(ctx, m))
			return nil
		})
	}
	_ = g.Wait()
}

// probe checks one member. Exceeding the timeout counts as a failed check,
// not a crash.
func (p *Prober) probe(ctx context.Context, m *Member) bool {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	url := fmt.Sprintf("http://%s%s", m.Addr, m.HealthPath)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}

	resp, err := p.client.Do(req)
	if err != nil {
		p.logger.Debug().Err(err).Str("member", m.Addr).Msg("probe failed")
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode >= 200 && resp.StatusCode < 300
}
