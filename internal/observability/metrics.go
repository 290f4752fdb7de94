package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	MessagesHandled   *prometheus.CounterVec
	ActionsProposed   *prometheus.CounterVec
	ActionsResolved   *prometheus.CounterVec
	QuotaDenials      *prometheus.CounterVec
	ExtractionLatency prometheus.Histogram
	EventSubscribers  prometheus.Gauge
	EventsDropped     prometheus.Counter
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		MessagesHandled: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_messages_total",
			Help:      "Chat messages handled by extraction outcome.",
		}, []string{"outcome"}),
		ActionsProposed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actions_proposed_total",
			Help:      "Pending actions proposed by kind.",
		}, []string{"kind"}),
		ActionsResolved: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actions_resolved_total",
			Help:      "Actions resolved by kind and outcome (executed, failed, rejected).",
		}, []string{"kind", "outcome"}),
		QuotaDenials: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quota_denials_total",
			Help:      "Requests denied by the quota ledger, by window.",
		}, []string{"window"}),
		ExtractionLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "extraction_latency_ms",
			Help:      "Intent extraction round-trip latency in milliseconds.",
			Buckets:   []float64{100, 250, 500, 1000, 2000, 5000, 10000},
		}),
		EventSubscribers: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "event_subscribers",
			Help:      "Open realtime event subscriptions.",
		}),
		EventsDropped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dropped_total",
			Help:      "Events shed from full subscriber queues.",
		}),
	}
}

func (m *Metrics) ObserveExtractionLatency(d time.Duration) {
	m.ExtractionLatency.Observe(float64(d.Milliseconds()))
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
