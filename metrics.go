package wspipe

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the operational counters/gauges a running Server updates.
// A nil *Metrics (the Config default) disables instrumentation entirely, at
// no cost beyond a single nil check per call site.
type Metrics struct {
	connectedClients prometheus.Gauge
	invokesByStatus  *prometheus.CounterVec
	publishes        prometheus.Counter
	parserErrors     prometheus.Counter
}

// NewMetrics registers wspipe's collectors with reg and returns a *Metrics
// ready to pass into Config.Metrics. Use prometheus.NewRegistry() for an
// isolated registry, or prometheus.DefaultRegisterer to join the process's
// default one.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		connectedClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "wspipe",
			Name:      "connected_clients",
			Help:      "Number of currently connected clients.",
		}),
		invokesByStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wspipe",
			Name:      "invokes_total",
			Help:      "Invocations dispatched, labeled by result status class.",
		}, []string{"status"}),
		publishes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "wspipe",
			Name:      "publishes_total",
			Help:      "Publish fan-outs performed.",
		}),
		parserErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "wspipe",
			Name:      "parser_errors_total",
			Help:      "Inbound frames rejected by the codec.",
		}),
	}
	reg.MustRegister(m.connectedClients, m.invokesByStatus, m.publishes, m.parserErrors)
	return m
}

func (m *Metrics) clientConnected() {
	if m == nil {
		return
	}
	m.connectedClients.Inc()
}

func (m *Metrics) clientDisconnected() {
	if m == nil {
		return
	}
	m.connectedClients.Dec()
}

func (m *Metrics) invokeCompleted(status int) {
	if m == nil {
		return
	}
	m.invokesByStatus.WithLabelValues(statusClass(status)).Inc()
}

func (m *Metrics) publishFannedOut() {
	if m == nil {
		return
	}
	m.publishes.Inc()
}

func (m *Metrics) parserErrorObserved() {
	if m == nil {
		return
	}
	m.parserErrors.Inc()
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 200:
		return "2xx"
	default:
		return "other"
	}
}
