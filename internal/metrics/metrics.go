// Package metrics provides Prometheus metrics for the production service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"production-status-backend/internal/apperr"
)

var (
	// TransitionsTotal tracks committed status changes by entity kind.
	TransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "production",
			Name:      "transitions_total",
			Help:      "Total number of committed status transitions",
		},
		[]string{"entity", "from", "to"},
	)

	// RejectionsTotal tracks operations refused by a domain guard.
	RejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "production",
			Name:      "rejections_total",
			Help:      "Total number of operations rejected by a guard",
		},
		[]string{"operation", "kind"},
	)

	// HTTPRequestsTotal tracks inbound HTTP requests.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "production",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	// HTTPRequestDuration tracks inbound HTTP request duration.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "production",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// NotificationsTotal tracks web push deliveries by outcome.
	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "production",
			Subsystem: "push",
			Name:      "notifications_total",
			Help:      "Total number of web push deliveries",
		},
		[]string{"outcome"},
	)
)

// ObserveTransition records one committed status change.
func ObserveTransition(entity, from, to string) {
	TransitionsTotal.WithLabelValues(entity, from, to).Inc()
}

// ObserveRejection records one guard rejection.
func ObserveRejection(operation string, kind apperr.Kind) {
	RejectionsTotal.WithLabelValues(operation, string(kind)).Inc()
}
