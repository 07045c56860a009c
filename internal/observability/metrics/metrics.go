package metrics

import "github.com/prometheus/client_golang/prometheus"

// DispatchMetrics exposes counters/histograms for conversation dispatch.
type DispatchMetrics struct {
	dispatchTotal     *prometheus.CounterVec
	transitionsTotal  *prometheus.CounterVec
	pendingTotal      *prometheus.CounterVec
	collaboratorDelay *prometheus.HistogramVec
	expiredTotal      *prometheus.CounterVec
}

func NewDispatchMetrics(reg prometheus.Registerer) *DispatchMetrics {
	m := &DispatchMetrics{
		dispatchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "concierge",
			Name:      "dispatch_total",
			Help:      "Inbound messages dispatched, by owning flow and outcome",
		}, []string{"flow", "outcome"}),
		transitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "concierge",
			Name:      "transitions_total",
			Help:      "Conversation state transitions",
		}, []string{"from", "to"}),
		pendingTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "concierge",
			Name:      "pending_intents_total",
			Help:      "Cross-flow requests parked and resumed",
		}, []string{"action"}),
		collaboratorDelay: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "concierge",
			Name:      "collaborator_seconds",
			Help:      "Latency of booking backend calls",
			Buckets:   prometheus.DefBuckets,
		}, []string{"call"}),
		expiredTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "concierge",
			Name:      "sessions_expired_total",
			Help:      "Idle sessions removed by the sweeper, by the flow they were in",
		}, []string{"flow"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.dispatchTotal, m.transitionsTotal, m.pendingTotal, m.collaboratorDelay, m.expiredTotal)
	return m
}

func (m *DispatchMetrics) ObserveDispatch(flow, outcome string) {
	if m == nil {
		return
	}
	if flow == "" {
		flow = "idle"
	}
	m.dispatchTotal.WithLabelValues(flow, outcome).Inc()
}

func (m *DispatchMetrics) ObserveTransition(from, to string) {
	if m == nil || from == to {
		return
	}
	m.transitionsTotal.WithLabelValues(from, to).Inc()
}

// ObservePending counts "parked" and "resumed" events.
func (m *DispatchMetrics) ObservePending(action string) {
	if m == nil {
		return
	}
	m.pendingTotal.WithLabelValues(action).Inc()
}

func (m *DispatchMetrics) ObserveCollaborator(call string, seconds float64) {
	if m == nil {
		return
	}
	m.collaboratorDelay.WithLabelValues(call).Observe(seconds)
}

func (m *DispatchMetrics) ObserveExpired(flow string) {
	if m == nil {
		return
	}
	if flow == "" {
		flow = "idle"
	}
	m.expiredTotal.WithLabelValues(flow).Inc()
}
