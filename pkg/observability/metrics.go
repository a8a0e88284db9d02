package observability

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/aretw0/weft/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Namespace prefixes every metric name.
const Namespace = "weft"

// Metrics collects interpreter metrics on its own registry.
type Metrics struct {
	registry *prometheus.Registry

	SessionsStarted  prometheus.Counter
	SessionsEnded    *prometheus.CounterVec
	SessionsActive   prometheus.Gauge
	SessionDuration  *prometheus.HistogramVec
	Operations       *prometheus.CounterVec
	OperationLatency *prometheus.HistogramVec
	Faults           *prometheus.CounterVec

	mu       sync.Mutex
	sessions map[string]time.Time
	inflight map[int64]time.Time
}

// NewMetrics creates and registers the collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		SessionsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "sessions_started_total",
			Help:      "Total number of sessions started",
		}),
		SessionsEnded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "sessions_ended_total",
			Help:      "Total number of sessions ended, by final status",
		}, []string{"status"}),
		SessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "sessions_active",
			Help:      "Number of sessions currently running",
		}),
		SessionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "session_duration_seconds",
			Help:      "Duration of sessions, by final status",
			Buckets:   prometheus.DefBuckets,
		}, []string{"status"}),
		Operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "operations_total",
			Help:      "Total number of operation events, by operation and event type",
		}, []string{"operation", "event"}),
		OperationLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "operation_duration_seconds",
			Help:      "Time from an operation starting to its end",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		Faults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "faults_total",
			Help:      "Total number of faults raised, by fault name",
		}, []string{"fault"}),
		sessions: make(map[string]time.Time),
		inflight: make(map[int64]time.Time),
	}
	m.registry.MustRegister(
		m.SessionsStarted,
		m.SessionsEnded,
		m.SessionsActive,
		m.SessionDuration,
		m.Operations,
		m.OperationLatency,
		m.Faults,
	)
	return m
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the metrics in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Hooks returns lifecycle hooks feeding the collectors.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	operation := func(_ context.Context, e *domain.OperationEvent) {
		m.Operations.WithLabelValues(e.Operation, string(e.Type)).Inc()
	}
	return domain.LifecycleHooks{
		OnSessionStart: m.sessionStarted,
		OnSessionEnd:   m.sessionEnded,
		OnOperationStarted: func(ctx context.Context, e *domain.OperationEvent) {
			operation(ctx, e)
			m.mu.Lock()
			m.inflight[e.MessageID] = e.Timestamp
			m.mu.Unlock()
		},
		OnOperationEnded: func(ctx context.Context, e *domain.OperationEvent) {
			operation(ctx, e)
			m.mu.Lock()
			started, ok := m.inflight[e.MessageID]
			delete(m.inflight, e.MessageID)
			m.mu.Unlock()
			if ok {
				m.OperationLatency.WithLabelValues(e.Operation).Observe(e.Timestamp.Sub(started).Seconds())
			}
		},
		OnOperationCall:  operation,
		OnOperationReply: operation,
		OnFault: func(_ context.Context, e *domain.FaultEvent) {
			m.Faults.WithLabelValues(e.Fault).Inc()
		},
	}
}

func (m *Metrics) sessionStarted(_ context.Context, e *domain.SessionEvent) {
	m.SessionsStarted.Inc()
	m.SessionsActive.Inc()
	m.mu.Lock()
	m.sessions[e.SessionID] = e.Timestamp
	m.mu.Unlock()
}

func (m *Metrics) sessionEnded(_ context.Context, e *domain.SessionEvent) {
	status := string(e.Status)
	m.SessionsEnded.WithLabelValues(status).Inc()

	m.mu.Lock()
	started, ok := m.sessions[e.SessionID]
	delete(m.sessions, e.SessionID)
	m.mu.Unlock()
	// Sessions cancelled while queued end without having started.
	if ok {
		m.SessionsActive.Dec()
		m.SessionDuration.WithLabelValues(status).Observe(e.Timestamp.Sub(started).Seconds())
	}
}
