package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service. Every
// method is safe on a nil receiver so components can run without metrics.
type Metrics struct {
	registry *prometheus.Registry
	latency  *latencyWindow

	ActiveSessions   prometheus.Gauge
	SessionEvents    *prometheus.CounterVec
	ChatRequests     *prometheus.CounterVec
	ValidationErrors *prometheus.CounterVec
	BrainFallbacks   *prometheus.CounterVec
	HistoryEvictions *prometheus.CounterVec
	MemoryOps        *prometheus.CounterVec
	WSMessages       *prometheus.CounterVec
	ChatLatency      *prometheus.HistogramVec
}

func NewMetrics(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		latency:  newLatencyWindow(256),
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Number of active chat sessions.",
		}),
		SessionEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_events_total",
			Help:      "Session events by type.",
		}, []string{"event"}),
		ChatRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_requests_total",
			Help:      "Answered chat requests by agent and intent.",
		}, []string{"agent", "intent"}),
		ValidationErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_validation_errors_total",
			Help:      "Rejected chat requests by agent.",
		}, []string{"agent"}),
		BrainFallbacks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "brain_fallbacks_total",
			Help:      "Replies served by the local generator after a brain failure.",
		}, []string{"agent", "reason"}),
		HistoryEvictions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "history_evictions_total",
			Help:      "Interaction records evicted from bounded session history.",
		}, []string{"agent"}),
		MemoryOps: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "memory_entries_total",
			Help:      "Knowledge store operations by type.",
		}, []string{"op"}),
		WSMessages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_total",
			Help:      "WebSocket messages by direction and type.",
		}, []string{"direction", "type"}),
		ChatLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "chat_latency_ms",
			Help:      "Wall-clock chat handling latency in milliseconds.",
			Buckets:   []float64{1, 2, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
		}, []string{"agent"}),
	}
}

func (m *Metrics) ObserveChat(agent, intent string, d time.Duration) {
	if m == nil {
		return
	}
	ms := float64(d.Microseconds()) / 1000
	m.ChatRequests.WithLabelValues(agent, intent).Inc()
	m.ChatLatency.WithLabelValues(agent).Observe(ms)
	m.latency.Observe(agent, ms)
}

func (m *Metrics) ObserveValidationError(agent string) {
	if m == nil {
		return
	}
	m.ValidationErrors.WithLabelValues(agent).Inc()
}

func (m *Metrics) ObserveBrainFallback(agent, reason string) {
	if m == nil {
		return
	}
	m.BrainFallbacks.WithLabelValues(agent, reason).Inc()
	m.latency.ObserveIndicator(agent + ":brain_fallback")
}

func (m *Metrics) ObserveEviction(agent string) {
	if m == nil {
		return
	}
	m.HistoryEvictions.WithLabelValues(agent).Inc()
}

func (m *Metrics) ObserveMemoryOp(op string) {
	if m == nil {
		return
	}
	m.MemoryOps.WithLabelValues(op).Inc()
}

func (m *Metrics) ObserveSessionEvent(event string, active int) {
	if m == nil {
		return
	}
	m.SessionEvents.WithLabelValues(event).Inc()
	m.ActiveSessions.Set(float64(active))
}

func (m *Metrics) ObserveWSMessage(direction, msgType string) {
	if m == nil {
		return
	}
	m.WSMessages.WithLabelValues(direction, msgType).Inc()
}

// SnapshotLatency returns the rolling per-agent latency window.
func (m *Metrics) SnapshotLatency() LatencySnapshot {
	if m == nil {
		return LatencySnapshot{GeneratedAt: time.Now().UTC(), Agents: []AgentLatency{}}
	}
	return m.latency.Snapshot()
}

// AgentLatency returns the window stats of one agent, if any were recorded.
func (m *Metrics) AgentLatency(agent string) (AgentLatency, bool) {
	for _, a := range m.SnapshotLatency().Agents {
		if a.Agent == agent {
			return a, true
		}
	}
	return AgentLatency{}, false
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
