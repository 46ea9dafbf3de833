package observability

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registerOnce sync.Once

	messagesInbound = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sdap",
			Subsystem: "client",
			Name:      "messages_inbound_total",
			Help:      "Inbound protocol messages by type.",
		},
		[]string{"type"},
	)
	messagesOutbound = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sdap",
			Subsystem: "client",
			Name:      "messages_outbound_total",
			Help:      "Outbound protocol messages by type.",
		},
		[]string{"type"},
	)
	changesRecorded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sdap",
			Subsystem: "history",
			Name:      "changes_recorded_total",
			Help:      "Changes recorded in the history ring by origin.",
		},
		[]string{"origin"},
	)
	opsFailed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sdap",
			Subsystem: "document",
			Name:      "ops_failed_total",
			Help:      "Remote ops that could not be applied to the mirror.",
		},
		[]string{"reason"},
	)
	validationFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sdap",
			Subsystem: "room",
			Name:      "validation_failures_total",
			Help:      "Create and update requests rejected by the server schema.",
		},
		[]string{"type"},
	)
	staleIgnored = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sdap",
			Subsystem: "room",
			Name:      "stale_messages_ignored_total",
			Help:      "Messages addressed to a room other than the joined one.",
		},
		[]string{"type"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(messagesInbound, messagesOutbound, changesRecorded, opsFailed, validationFailures, staleIgnored)
	})
}

func RecordInbound(kind string) {
	RegisterMetrics()
	messagesInbound.WithLabelValues(kind).Inc()
}

func RecordOutbound(kind string) {
	RegisterMetrics()
	messagesOutbound.WithLabelValues(kind).Inc()
}

func RecordChange(origin string) {
	RegisterMetrics()
	changesRecorded.WithLabelValues(origin).Inc()
}

func RecordOpFailure(reason string) {
	RegisterMetrics()
	opsFailed.WithLabelValues(reason).Inc()
}

func RecordValidationFailure(kind string) {
	RegisterMetrics()
	validationFailures.WithLabelValues(kind).Inc()
}

func RecordStale(kind string) {
	RegisterMetrics()
	staleIgnored.WithLabelValues(kind).Inc()
}

// Handler serves the default registry for a /metrics endpoint.
func Handler() http.Handler {
	RegisterMetrics()
	return promhttp.Handler()
}
