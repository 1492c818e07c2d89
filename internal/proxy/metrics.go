package proxy

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stackd_proxy_requests_total",
		Help: "Requests handled by the edge proxy",
	}, []string{"route", "status"})
	rateLimitAdmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stackd_proxy_ratelimit_admitted_total",
		Help: "Requests admitted per rate limit zone",
	}, []string{"zone"})
	rateLimitRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stackd_proxy_ratelimit_rejected_total",
		Help: "Requests rejected per rate limit zone",
	}, []string{"zone"})
	upstreamHealthy = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "stackd_proxy_upstream_healthy",
		Help: "1 if the upstream member is in rotation",
	}, []string{"group", "member"})
	upstreamErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stackd_proxy_upstream_errors_total",
		Help: "Proxy errors per upstream group",
	}, []string{"group"})
)
