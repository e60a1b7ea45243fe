package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "creditsales"

// MessagingMetrics exposes counters/histograms for the WhatsApp channel.
type MessagingMetrics struct {
	inboundTotal   *prometheus.CounterVec
	outboundTotal  *prometheus.CounterVec
	webhookLatency *prometheus.HistogramVec
}

func NewMessagingMetrics(reg prometheus.Registerer) *MessagingMetrics {
	m := &MessagingMetrics{
		inboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "messaging",
			Name:      "inbound_webhook_total",
			Help:      "Total inbound WhatsApp webhook messages",
		}, []string{"message_type", "status"}),
		outboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "messaging",
			Name:      "outbound_total",
			Help:      "Total outbound WhatsApp sends",
		}, []string{"kind", "status"}),
		webhookLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "messaging",
			Name:      "webhook_latency_seconds",
			Help:      "Latency of WhatsApp webhook processing",
			Buckets:   prometheus.DefBuckets,
		}, []string{"message_type"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.inboundTotal, m.outboundTotal, m.webhookLatency)
	return m
}

func (m *MessagingMetrics) ObserveInbound(messageType, status string) {
	if m == nil {
		return
	}
	m.inboundTotal.WithLabelValues(messageType, status).Inc()
}

// ObserveOutbound records a send; kind is "text", "image" or "read".
func (m *MessagingMetrics) ObserveOutbound(kind string, ok bool) {
	if m == nil {
		return
	}
	status := "sent"
	if !ok {
		status = "failed"
	}
	m.outboundTotal.WithLabelValues(kind, status).Inc()
}

func (m *MessagingMetrics) ObserveWebhookLatency(messageType string, seconds float64) {
	if m == nil {
		return
	}
	m.webhookLatency.WithLabelValues(messageType).Observe(seconds)
}

// ConversationMetrics covers the turn pipeline: engine loop, lock, providers and aggregator.
type ConversationMetrics struct {
	turnsTotal         *prometheus.CounterVec
	turnLatency        prometheus.Histogram
	enrichmentTotal    *prometheus.CounterVec
	loopIterations     prometheus.Histogram
	lockWait           prometheus.Histogram
	lockEvents         *prometheus.CounterVec
	providerCalls      *prometheus.CounterVec
	providerLatency    *prometheus.HistogramVec
	aggregatorFlushes  prometheus.Counter
	aggregatorFragment prometheus.Histogram
}

func NewConversationMetrics(reg prometheus.Registerer) *ConversationMetrics {
	m := &ConversationMetrics{
		turnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "conversation",
			Name:      "turns_total",
			Help:      "Processed conversation turns by outcome",
		}, []string{"outcome"}),
		turnLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "conversation",
			Name:      "turn_duration_seconds",
			Help:      "Wall time of a full turn including command execution",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 40},
		}),
		enrichmentTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "conversation",
			Name:      "enrichment_total",
			Help:      "Enrichment side effects executed by kind and outcome",
		}, []string{"kind", "outcome"}),
		loopIterations: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "conversation",
			Name:      "enrichment_loop_iterations",
			Help:      "Engine invocations per turn",
			Buckets:   []float64{1, 2, 3, 4, 5, 6, 8, 10, 11},
		}),
		lockWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "lock",
			Name:      "wait_seconds",
			Help:      "Time spent waiting for a customer lock",
			Buckets:   prometheus.DefBuckets,
		}),
		lockEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "lock",
			Name:      "events_total",
			Help:      "Lock anomalies: timeouts, sweeps and panics",
		}, []string{"event"}),
		providerCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "eligibility",
			Name:      "provider_calls_total",
			Help:      "Eligibility provider calls by provider and outcome",
		}, []string{"provider", "outcome"}),
		providerLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "eligibility",
			Name:      "provider_latency_seconds",
			Help:      "Latency of eligibility provider calls",
			Buckets:   prometheus.DefBuckets,
		}, []string{"provider"}),
		aggregatorFlushes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "aggregator",
			Name:      "flushes_total",
			Help:      "Buffered turns flushed by the aggregator",
		}),
		aggregatorFragment: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "aggregator",
			Name:      "fragments_per_flush",
			Help:      "Number of inbound fragments merged into a single turn",
			Buckets:   []float64{1, 2, 3, 5, 8, 13},
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(
		m.turnsTotal, m.turnLatency, m.enrichmentTotal, m.loopIterations,
		m.lockWait, m.lockEvents, m.providerCalls, m.providerLatency,
		m.aggregatorFlushes, m.aggregatorFragment,
	)
	return m
}

func (m *ConversationMetrics) ObserveTurn(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.turnsTotal.WithLabelValues(outcome).Inc()
	m.turnLatency.Observe(seconds)
}

func (m *ConversationMetrics) ObserveEnrichment(kind, outcome string) {
	if m == nil {
		return
	}
	m.enrichmentTotal.WithLabelValues(kind, outcome).Inc()
}

func (m *ConversationMetrics) ObserveLoopIterations(n int) {
	if m == nil {
		return
	}
	m.loopIterations.Observe(float64(n))
}

func (m *ConversationMetrics) ObserveLockWait(seconds float64) {
	if m == nil {
		return
	}
	m.lockWait.Observe(seconds)
}

// ObserveLockEvent counts "timeout", "swept" or "panic".
func (m *ConversationMetrics) ObserveLockEvent(event string) {
	if m == nil {
		return
	}
	m.lockEvents.WithLabelValues(event).Inc()
}

func (m *ConversationMetrics) ObserveProviderCall(provider, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.providerCalls.WithLabelValues(provider, outcome).Inc()
	m.providerLatency.WithLabelValues(provider).Observe(seconds)
}

func (m *ConversationMetrics) ObserveFlush(fragments int) {
	if m == nil {
		return
	}
	m.aggregatorFlushes.Inc()
	m.aggregatorFragment.Observe(float64(fragments))
}
