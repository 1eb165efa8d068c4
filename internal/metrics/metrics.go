// Package metrics exposes Prometheus counters for poll loops, merges and outbound operations.
package metrics

import (
	"net/http"

	"matchchat/internal/types"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Poll results.
const (
	ResultOK        = "ok"
	ResultTransient = "transient"
	ResultRejected  = "rejected"
	ResultStale     = "stale"
)

var (
	PollTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "matchchat",
		Name:      "poll_total",
		Help:      "Poll loop iterations by loop and result.",
	}, []string{"loop", "result"})

	MessagesMerged = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "matchchat",
		Name:      "messages_merged_total",
		Help:      "Messages newly added to the local store by poll merges.",
	})

	OutboundTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "matchchat",
		Name:      "outbound_total",
		Help:      "Outbound operations by kind and result.",
	}, []string{"op", "result"})

	PollGeneration = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "matchchat",
		Name:      "poll_generation",
		Help:      "Current channel-selection generation.",
	})

	registry = prometheus.NewRegistry()
)

func init() {
	registry.MustRegister(PollTotal, MessagesMerged, OutboundTotal, PollGeneration)
}

// Registry returns the registry holding matchchat's collectors.
func Registry() *prometheus.Registry {
	return registry
}

// Handler serves the registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// ObserveOutbound records one outbound operation under its error class.
func ObserveOutbound(op string, err error) {
	OutboundTotal.WithLabelValues(op, ResultFor(err)).Inc()
}

// ResultFor maps an error onto a result label.
func ResultFor(err error) string {
	switch types.Classify(err) {
	case types.ClassNone:
		return ResultOK
	case types.ClassRejected:
		return ResultRejected
	default:
		return ResultTransient
	}
}
