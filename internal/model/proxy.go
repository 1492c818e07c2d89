package model

import "time"

// Route match kinds, in precedence order: exact wins over prefix, prefix
// wins over regex.
const (
	MatchExact  = "exact"
	MatchPrefix = "prefix"
	MatchRegex  = "regex"
)

// Route is one ordered match rule mapping a request pattern to an upstream
// group. Static routes answer directly (the proxy's own liveness probe) and
// never consume rate-limit tokens.
type Route struct {
	Pattern  string `json:"pattern"`
	Match    string `json:"match"`
	Upstream string `json:"upstream,omitempty"`
	Zone     string `json:"zone,omitempty"`
	Static   bool   `json:"static,omitempty"`
}

// UpstreamGroup is a named set of interchangeable backend endpoints.
type UpstreamGroup struct {
	Name       string   `json:"name"`
	Members    []string `json:"members"` // host:port
	PoolSize   int      `json:"pool_size"`
	HealthPath string   `json:"health_path"`
}

// RateLimitZone is a named admission budget applied per client key.
type RateLimitZone struct {
	Name  string  `json:"name"`
	Rate  float64 `json:"rate"`  // sustained requests per second
	Burst int     `json:"burst"` // absolute token capacity
	KeyBy string  `json:"key_by"`
}

// Zone key extraction rules.
const (
	KeyByClientIP = "client_ip"
)

// ProxyConfig is one configuration generation for the edge proxy. The
// serving state built from it is swapped atomically on reload.
type ProxyConfig struct {
	Listen         string          `json:"listen"`
	AdminListen    string          `json:"admin_listen"`
	RequestTimeout time.Duration   `json:"request_timeout"`
	ProbeInterval  time.Duration   `json:"probe_interval"`
	ProbeTimeout   time.Duration   `json:"probe_timeout"`
	RejoinAfter    int             `json:"rejoin_after"`
	Routes         []Route         `json:"routes"`
	Zones          []RateLimitZone `json:"zones"`
	Upstreams      []UpstreamGroup `json:"upstreams"`
}
