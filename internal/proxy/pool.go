package proxy

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/edvin/stackd/internal/model"
)

// ErrNoHealthyUpstream is returned by Acquire when every member of a group
// is out of rotation. The handler surfaces it as 503, never picking a
// known-bad member instead.
var ErrNoHealthyUpstream = errors.New("no healthy upstream member")

// Member is one backend endpoint with its keepalive transport. The
// transport holds the reusable connection pool; Acquire/Release track
// in-flight use on top of it.
type Member struct {
	Addr       string
	Group      string
	HealthPath string

	transport *http.Transport
	proxy     *httputil.ReverseProxy

	mu        sync.Mutex
	healthy   bool
	successes int // consecutive probe successes while out of rotation
	inflight  int
}

// Healthy reports whether the member is in rotation.
func (m *Member) Healthy() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.healthy
}

// Inflight returns the number of acquired-but-not-released requests.
func (m *Member) Inflight() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inflight
}

type group struct {
	name    string
	members []*Member

	mu   sync.Mutex
	next int
}

// Pool maintains the upstream groups: keepalive transports per member,
// round-robin selection over healthy members, and health-driven membership.
type Pool struct {
	logger      zerolog.Logger
	groups      map[string]*group
	rejoinAfter int
}

// NewPool builds the pool from the group declarations. Every member starts
// healthy; the prober adjusts membership from there.
func NewPool(logger zerolog.Logger, groups []model.UpstreamGroup, rejoinAfter int) *Pool {
	p := &Pool{
		logger:      logger.With().Str("component", "pool").Logger(),
		groups:      make(map[string]*group, len(groups)),
		rejoinAfter: rejoinAfter,
	}
	for _, g := range groups {
		pg := &group{name: g.Name}
		for _, addr := range g.Members {
			m := &Member{
				Addr:       addr,
				Group:      g.Name,
				HealthPath: g.HealthPath,
				healthy:    true,
				transport:  newTransport(g.PoolSize),
			}
			m.proxy = p.newReverseProxy(m)
			pg.members = append(pg.members, m)
			upstreamHealthy.WithLabelValues(g.Name, addr).Set(1)
		}
		p.groups[g.Name] = pg
	}
	return p
}

// newTransport builds the keepalive pool for one member. PoolSize bounds
// the idle connections kept open to avoid per-request setup cost.
func newTransport(poolSize int) *http.Transport {
	return &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        poolSize * 2,
		MaxIdleConnsPerHost: poolSize,
		IdleConnTimeout:     90 * time.Second,
	}
}

func (p *Pool) newReverseProxy(m *Member) *httputil.ReverseProxy {
	target := &url.URL{Scheme: "http", Host: m.Addr}
	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.Transport = m.transport
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		upstreamErrors.WithLabelValues(m.Group).Inc()
		p.logger.Warn().Err(err).Str("group", m.Group).Str("member", m.Addr).Msg("upstream error")
		http.Error(w, "Bad Gateway", http.StatusBadGateway)
	}
	return proxy
}

// Acquire selects a healthy member of the group, round-robin. It fails
// with ErrNoHealthyUpstream when the whole group is out of rotation.
func (p *Pool) Acquire(groupName string) (*Member, error) {
	g, ok := p.groups[groupName]
	if !ok {
		return nil, fmt.Errorf("unknown upstream group %q", groupName)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	for i := 0; i < len(g.members); i++ {
		m := g.members[g.next%len(g.members)]
		g.next++
		if m.Healthy() {
			m.mu.Lock()
			m.inflight++
			m.mu.Unlock()
			return m, nil
		}
	}
	return nil, fmt.Errorf("group %s: %w", groupName, ErrNoHealthyUpstream)
}

// Release returns an acquired member. The underlying connection goes back
// to the member's keepalive pool.
func (p *Pool) Release(m *Member) {
	m.mu.Lock()
	if m.inflight > 0 {
		m.inflight--
	}
	m.mu.Unlock()
}

// MarkHealth sets a member's rotation state directly.
func (p *Pool) MarkHealth(groupName, addr string, healthy bool) {
	m := p.member(groupName, addr)
	if m == nil {
		return
	}
	m.mu.Lock()
	changed := m.healthy != healthy
	m.healthy = healthy
	m.successes = 0
	m.mu.Unlock()

	p.setHealthGauge(groupName, addr, healthy)
	if changed {
		p.logger.Info().Str("group", groupName).Str("member", addr).Bool("healthy", healthy).Msg("member health changed")
	}
}

// observeProbe applies one probe result. A failure ejects the member
// immediately; an ejected member rejoins rotation only after rejoinAfter
// consecutive successes.
func (p *Pool) observeProbe(groupName, addr string, ok bool) {
	m := p.member(groupName, addr)
	if m == nil {
		return
	}

	m.mu.Lock()
	switch {
	case !ok:
		if m.healthy {
			p.logger.Warn().Str("group", groupName).Str("member", addr).Msg("probe failed, ejecting member")
		}
		m.healthy = false
		m.successes = 0
	case m.healthy:
		// Already in rotation.
	default:
		m.successes++
		if m.successes >= p.rejoinAfter {
			m.healthy = true
			m.successes = 0
			p.logger.Info().Str("group", groupName).Str("member", addr).Msg("member rejoined rotation")
		}
	}
	healthy := m.healthy
	m.mu.Unlock()

	p.setHealthGauge(groupName, addr, healthy)
}

func (p *Pool) member(groupName, addr string) *Member {
	g, ok := p.groups[groupName]
	if !ok {
		return nil
	}
	for _, m := range g.members {
		if m.Addr == addr {
			return m
		}
	}
	return nil
}

func (p *Pool) setHealthGauge(groupName, addr string, healthy bool) {
	v := 0.0
	if healthy {
		v = 1.0
	}
	upstreamHealthy.WithLabelValues(groupName, addr).Set(v)
}

// Members returns every member across all groups, for probing and the
// admin surface.
func (p *Pool) Members() []*Member {
	var out []*Member
	for _, g := range p.groups {
		out = append(out, g.members...)
	}
	return out
}

// CloseIdleConnections drains every member's keepalive pool. Called on the
// outgoing pool after a configuration reload.
func (p *Pool) CloseIdleConnections() {
	for _, g := range p.groups {
		for _, m := range g.members {
			m.transport.CloseIdleConnections()
		}
	}
}
