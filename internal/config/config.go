package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/edvin/stackd/internal/model"
)

// Defaults applied when the stack file omits optional proxy settings.
const (
	defaultListen         = ":8080"
	defaultAdminListen    = ":9090"
	defaultRequestTimeout = 30 * time.Second
	defaultProbeInterval  = 10 * time.Second
	defaultProbeTimeout   = 2 * time.Second
	defaultRejoinAfter    = 2
	defaultPoolSize       = 10
	defaultHealthPath     = "/healthz"
)

// Stack is the immutable configuration for one deployment unit, constructed
// once at startup and passed into each component.
type Stack struct {
	Topology model.Topology
	Proxy    *model.ProxyConfig
	LogLevel string
}

// Load reads, validates and converts a stack file.
func Load(path string) (*Stack, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read stack file: %w", err)
	}

	var sf StackFile
	if err := yaml.Unmarshal(data, &sf); err != nil {
		return nil, fmt.Errorf("parse stack file: %w", err)
	}

	if err := Validate(&sf); err != nil {
		return nil, err
	}

	stack := &Stack{
		Topology: model.Topology{
			Name:    sf.Name,
			Network: sf.Network,
		},
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	for _, s := range sf.Services {
		svc := model.Service{
			Name:          s.Name,
			Image:         s.Image,
			Port:          s.Port,
			ContainerPort: s.ContainerPort,
			DependsOn:     s.DependsOn,
			Env:           s.Env,
		}
		if s.HealthCheck != nil {
			hc, err := convertHealthCheck(s.Name, s.HealthCheck)
			if err != nil {
				return nil, err
			}
			svc.Health = hc
		}
		stack.Topology.Services = append(stack.Topology.Services, svc)
	}

	if sf.Proxy != nil {
		proxy, err := convertProxy(sf.Proxy)
		if err != nil {
			return nil, err
		}
		stack.Proxy = proxy
	}

	return stack, nil
}

func convertHealthCheck(service string, def *HealthCheckDef) (*model.HealthCheck, error) {
	hc := &model.HealthCheck{
		Test:    def.Test,
		Retries: def.Retries,
	}

	var err error
	if hc.Interval, err = parseDuration(def.Interval, 10*time.Second); err != nil {
		return nil, fmt.Errorf("service %s: healthcheck interval: %w", service, err)
	}
	if hc.Timeout, err = parseDuration(def.Timeout, 3*time.Second); err != nil {
		return nil, fmt.Errorf("service %s: healthcheck timeout: %w", service, err)
	}
	if hc.StartPeriod, err = parseDuration(def.StartPeriod, 0); err != nil {
		return nil, fmt.Errorf("service %s: healthcheck start_period: %w", service, err)
	}
	if hc.Retries == 0 {
		hc.Retries = 3
	}

	return hc, nil
}

func convertProxy(def *ProxyDef) (*model.ProxyConfig, error) {
	cfg := &model.ProxyConfig{
		Listen:      def.Listen,
		AdminListen: def.AdminListen,
		RejoinAfter: def.RejoinAfter,
	}
	if cfg.Listen == "" {
		cfg.Listen = defaultListen
	}
	if cfg.AdminListen == "" {
		cfg.AdminListen = defaultAdminListen
	}
	if cfg.RejoinAfter == 0 {
		cfg.RejoinAfter = defaultRejoinAfter
	}

	var err error
	if cfg.RequestTimeout, err = parseDuration(def.RequestTimeout, defaultRequestTimeout); err != nil {
		return nil, fmt.Errorf("proxy request_timeout: %w", err)
	}
	if cfg.ProbeInterval, err = parseDuration(def.ProbeInterval, defaultProbeInterval); err != nil {
		return nil, fmt.Errorf("proxy probe_interval: %w", err)
	}
	if cfg.ProbeTimeout, err = parseDuration(def.ProbeTimeout, defaultProbeTimeout); err != nil {
		return nil, fmt.Errorf("proxy probe_timeout: %w", err)
	}

	for _, r := range def.Routes {
		cfg.Routes = append(cfg.Routes, model.Route{
			Pattern:  r.Pattern,
			Match:    r.Match,
			Upstream: r.Upstream,
			Zone:     r.Zone,
			Static:   r.Static,
		})
	}
	for _, z := range def.Zones {
		keyBy := z.KeyBy
		if keyBy == "" {
			keyBy = model.KeyByClientIP
		}
		cfg.Zones = append(cfg.Zones, model.RateLimitZone{
			Name:  z.Name,
			Rate:  z.Rate,
			Burst: z.Burst,
			KeyBy: keyBy,
		})
	}
	for _, u := range def.Upstreams {
		poolSize := u.PoolSize
		if poolSize == 0 {
			poolSize = defaultPoolSize
		}
		healthPath := u.HealthPath
		if healthPath == "" {
			healthPath = defaultHealthPath
		}
		cfg.Upstreams = append(cfg.Upstreams, model.UpstreamGroup{
			Name:       u.Name,
			Members:    u.Members,
			PoolSize:   poolSize,
			HealthPath: healthPath,
		})
	}

	return cfg, nil
}

func parseDuration(s string, fallback time.Duration) (time.Duration, error) {
	if s == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	return d, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
