// Package metrics exposes Prometheus counters, gauges, and histograms for
// session lifecycle, authentication outcomes, and message traffic.
package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "murmur"

// Registry is the Prometheus registry all collectors in this package are
// registered against, kept separate from prometheus.DefaultRegisterer so
// tests can spin up an isolated instance.
var Registry = prometheus.NewRegistry()
