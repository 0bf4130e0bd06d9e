package rabbitmq

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the bus counters exposed on /metrics.
type Metrics struct {
	Published    *prometheus.CounterVec
	Consumed     *prometheus.CounterVec
	Retried      prometheus.Counter
	DeadLettered prometheus.Counter
	Salvaged     prometheus.Counter
	Reconnects   prometheus.Counter
}

// NewMetrics builds and registers the bus metrics. A nil registerer leaves
// them unregistered, which the tests use.
func NewMetrics(reg prometheus.Registerer, serviceName string) *Metrics {
	labels := prometheus.Labels{"service": serviceName}
	m := &Metrics{
		Published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "eventbus_published_total",
			Help:        "Events published to the main exchange.",
			ConstLabels: labels,
		}, []string{"event_type"}),
		Consumed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "eventbus_consumed_total",
			Help:        "Messages consumed, by outcome.",
			ConstLabels: labels,
		}, []string{"outcome"}),
		Retried: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "eventbus_retried_total",
			Help:        "Messages re-published into a delayed retry queue.",
			ConstLabels: labels,
		}),
		DeadLettered: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "eventbus_deadlettered_total",
			Help:        "Messages rejected to the dead-letter exchange.",
			ConstLabels: labels,
		}),
		Salvaged: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "eventbus_salvaged_total",
			Help:        "Unroutable messages re-published by the salvager.",
			ConstLabels: labels,
		}),
		Reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "eventbus_reconnects_total",
			Help:        "Broker reconnection attempts.",
			ConstLabels: labels,
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Published, m.Consumed, m.Retried, m.DeadLettered, m.Salvaged, m.Reconnects)
	}
	return m
}
