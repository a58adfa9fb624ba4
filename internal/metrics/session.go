package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SessionsTotal tracks completed sessions by outcome.
	SessionsTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sessions",
			Name:      "total",
			Help:      "Total sessions by outcome",
		},
		[]string{"outcome"}, // sent, received, unauthenticated, unknown_contact, unreachable, transport_error
	)

	// SessionDuration tracks how long a full six-step exchange takes.
	SessionDuration = promauto.With(Registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sessions",
			Name:      "duration_seconds",
			Help:      "Session exchange duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		},
		[]string{"role"}, // initiator, responder
	)

	// AuthFailures tracks signature or fingerprint rejections.
	AuthFailures = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "failures_total",
			Help:      "Total sessions rejected for signature or fingerprint mismatch",
		},
	)

	// MessagesAppended tracks messages persisted to a contact's history.
	MessagesAppended = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "messages",
			Name:      "appended_total",
			Help:      "Total messages appended to contact history",
		},
		[]string{"direction"}, // inbound, outbound
	)

	// ListenerActive reports whether the background listener goroutine is
	// currently accepting connections.
	ListenerActive = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "listener",
			Name:      "active",
			Help:      "1 if the background listener is accepting connections, 0 otherwise",
		},
	)
)
