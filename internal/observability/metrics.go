package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Frame directions
const (
	DirectionOutbound = "outbound"
	DirectionInbound  = "inbound"
)

var (
	// Stream metrics
	activeStreams = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "transcribe_stream_active_streams",
		Help: "Number of open transcription streams",
	})

	totalStreams = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "transcribe_stream_streams_total",
		Help: "Total number of streams by outcome",
	}, []string{"outcome"}) // outcome: "eof", "error"

	streamDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "transcribe_stream_duration_seconds",
		Help:    "Duration of transcription streams in seconds",
		Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
	})

	streamOpenLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "transcribe_stream_open_latency_seconds",
		Help:    "Time to open a stream including retries",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.0, 5.0},
	})

	streamOpenAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "transcribe_stream_open_attempts_total",
		Help: "Stream open attempts by status",
	}, []string{"status"})

	// Frame metrics
	framesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "transcribe_stream_frames_total",
		Help: "Total event stream frames",
	}, []string{"direction"})

	frameBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "transcribe_stream_frame_bytes_total",
		Help: "Total encoded frame bytes",
	}, []string{"direction"})

	checksumFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "transcribe_stream_checksum_failures_total",
		Help: "Inbound frames rejected for a CRC mismatch",
	})

	// Event metrics
	eventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "transcribe_stream_events_total",
		Help: "Inbound events by event type",
	}, []string{"type"})

	exceptionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "transcribe_stream_exceptions_total",
		Help: "Service exceptions by kind",
	}, []string{"kind"})

	firstResultLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "transcribe_stream_first_result_seconds",
		Help:    "Time from stream open to the first event",
		Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0},
	})

	// Circuit breaker metrics
	circuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "transcribe_stream_circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
	}, []string{"service"})

	circuitBreakerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "transcribe_stream_circuit_breaker_failures_total",
		Help: "Total circuit breaker failures",
	}, []string{"service"})
)

// StreamMetrics tracks metrics for a single stream
type StreamMetrics struct {
	sessionID string
	startTime time.Time
	sawEvent  bool
	ended     bool
	mu        sync.Mutex
}

// NewStreamMetrics creates a new metrics tracker for a stream
func NewStreamMetrics(sessionID string) *StreamMetrics {
	return &StreamMetrics{
		sessionID: sessionID,
		startTime: time.Now(),
	}
}

// SessionID returns the session the tracker belongs to
func (m *StreamMetrics) SessionID() string {
	return m.sessionID
}

// RecordStreamStart records the start of a stream
func (m *StreamMetrics) RecordStreamStart() {
	activeStreams.Inc()
}

// RecordStreamEnd records the end of a stream. Only the first call counts.
func (m *StreamMetrics) RecordStreamEnd(success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ended {
		return
	}
	m.ended = true

	activeStreams.Dec()
	streamDuration.Observe(time.Since(m.startTime).Seconds())
	outcome := "eof"
	if !success {
		outcome = "error"
	}
	totalStreams.WithLabelValues(outcome).Inc()
}

// RecordFrame records one encoded frame crossing the wire
func (m *StreamMetrics) RecordFrame(direction string, size int) {
	framesTotal.WithLabelValues(direction).Inc()
	frameBytes.WithLabelValues(direction).Add(float64(size))
}

// RecordEvent records one dispatched inbound event
func (m *StreamMetrics) RecordEvent(eventType string) {
	m.mu.Lock()
	first := !m.sawEvent
	m.sawEvent = true
	m.mu.Unlock()

	if first {
		firstResultLatency.Observe(time.Since(m.startTime).Seconds())
	}
	eventsTotal.WithLabelValues(eventType).Inc()
}

// RecordException records a service exception by kind
func (m *StreamMetrics) RecordException(kind string) {
	exceptionsTotal.WithLabelValues(kind).Inc()
}

// RecordChecksumFailure records a corrupted inbound frame
func (m *StreamMetrics) RecordChecksumFailure() {
	checksumFailures.Inc()
}

// RecordOpenAttempt records the outcome of one attempt to open a stream
func RecordOpenAttempt(success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	streamOpenAttempts.WithLabelValues(status).Inc()
}

// RecordOpenLatency records the total time spent opening a stream
func RecordOpenLatency(d time.Duration) {
	streamOpenLatency.Observe(d.Seconds())
}

// UpdateCircuitBreakerState updates circuit breaker state metric
func UpdateCircuitBreakerState(service string, state int) {
	circuitBreakerState.WithLabelValues(service).Set(float64(state))
}

// IncrementCircuitBreakerFailures increments circuit breaker failure counter
func IncrementCircuitBreakerFailures(service string) {
	circuitBreakerFailures.WithLabelValues(service).Inc()
}
