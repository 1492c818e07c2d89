package orchestrator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	reconcileDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "stackd_reconcile_duration_seconds",
		Help:    "Duration of each reconciliation pass",
		Buckets: prometheus.DefBuckets,
	})
	actionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stackd_reconcile_actions_total",
		Help: "Total planned actions applied",
	}, []string{"op"})
	serviceFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stackd_reconcile_service_failures_total",
		Help: "Total service-level failures during reconciliation",
	}, []string{"service"})
)
