// Package metrics provides Prometheus metrics for the focusd session service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Default metrics configuration constants.
const (
	defaultRefreshInterval = 10 * time.Second
)

// Manager manages all Prometheus metrics for the focusd service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	refreshInterval  time.Duration
	customLabels     map[string]string
	metricPrefix     string
	registry         prometheus.Registerer

	// Session Lifecycle Metrics
	sessionsStarted prometheus.Counter
	sessionsEnded   prometheus.Counter
	activeSessions  prometheus.Gauge
	sessionDuration prometheus.Histogram

	// Roster Metrics
	activeParticipants prometheus.Gauge
	authSuccess        prometheus.Counter
	authFailure        prometheus.Counter
	disconnects        *prometheus.CounterVec

	// Hub Traffic Metrics
	messagesSent      prometheus.Counter
	messagesReceived  prometheus.Counter
	broadcasts        prometheus.Counter
	broadcastErrors   prometheus.Counter
	heartbeatTimeouts prometheus.Counter
	unknownMessages   prometheus.Counter

	// Violation Metrics
	violationsRaw       *prometheus.CounterVec
	violationsReported  prometheus.Counter
	violationsDiscarded prometheus.Counter
	throttleWindows     prometheus.Gauge

	// Focus Compliance Metrics
	focusCommands     prometheus.Counter
	focusAcks         prometheus.Counter
	complianceUnknown prometheus.Gauge

	// Streaming Metrics
	framesCaptured     prometheus.Counter
	framesSent         prometheus.Counter
	framesDropped      prometheus.Counter
	frameEncodeLatency prometheus.Histogram
	streamRecipients   prometheus.Gauge
	captureFailures    prometheus.Counter

	// Persistence Metrics
	persistWrites       prometheus.Counter
	persistErrors       prometheus.Counter
	persistDropped      prometheus.Counter
	persistWriteLatency prometheus.Histogram
	persistQueueSize    prometheus.Gauge
	persistQueueCap     prometheus.Gauge
	persistUtilization  prometheus.Gauge

	// HTTP Performance Metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Enhanced Error Metrics - Detailed error tracking
	errorRateByComponent *prometheus.CounterVec
	errorRateByType      *prometheus.CounterVec
	errorRateByEndpoint  *prometheus.CounterVec
	errorLatency         *prometheus.HistogramVec

	// System Performance Metrics
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

// Initialize global metrics.
func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "focusd",
		subsystem:        "session",
		histogramBuckets: prometheus.DefBuckets,
		enabled:          true,
		refreshInterval:  defaultRefreshInterval,
		customLabels:     make(map[string]string),
		metricPrefix:     "",
		registry:         prometheus.DefaultRegisterer,
	}

	// Apply all options
	for _, opt := range opts {
		opt(m)
	}

	// Initialize metrics
	m.initializeMetrics()

	return m
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	// Ensure metrics are registered on the configured registry (custom by default)
	auto := promauto.With(m.registry)

	// Session Lifecycle Metrics
	m.sessionsStarted = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "sessions_started_total",
		Help:      "Total number of sessions started",
	})

	m.sessionsEnded = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "sessions_ended_total",
		Help:      "Total number of sessions ended",
	})

	m.activeSessions = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "active_sessions",
		Help:      "Number of currently active sessions",
	})

	m.sessionDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "session_duration_seconds",
		Help:      "Histogram of ended session durations in seconds",
		Buckets:   []float64{60, 300, 900, 1800, 2700, 3600, 5400, 7200},
	})

	// Roster Metrics
	m.activeParticipants = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "active_participants",
		Help:      "Number of participants currently in the roster",
	})

	m.authSuccess = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "auth_success_total",
		Help:      "Total number of successful participant authentications",
	})

	m.authFailure = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "auth_failure_total",
		Help:      "Total number of rejected participant authentications",
	})

	m.disconnects = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "disconnects_total",
			Help:      "Total number of participant disconnects by reason",
		},
		[]string{"reason"},
	)

	// Hub Traffic Metrics
	m.messagesSent = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "messages_sent_total",
		Help:      "Total number of unicast messages delivered to participants",
	})

	m.messagesReceived = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "messages_received_total",
		Help:      "Total number of messages received from participants",
	})

	m.broadcasts = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "broadcasts_total",
		Help:      "Total number of broadcast operations",
	})

	m.broadcastErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "broadcast_errors_total",
		Help:      "Total number of per-recipient broadcast delivery failures",
	})

	m.heartbeatTimeouts = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "heartbeat_timeouts_total",
		Help:      "Total number of liveness timeouts that triggered a disconnect",
	})

	m.unknownMessages = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "unknown_messages_total",
		Help:      "Total number of inbound messages with an unknown type tag",
	})

	// Violation Metrics
	m.violationsRaw = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "violations_raw_total",
			Help:      "Total number of raw violation events received by kind",
		},
		[]string{"kind"},
	)

	m.violationsReported = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "violations_reported_total",
		Help:      "Total number of aggregated violation reports emitted",
	})

	m.violationsDiscarded = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "violations_discarded_total",
		Help:      "Total number of raw violations discarded while focus mode was off",
	})

	m.throttleWindows = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "throttle_windows",
		Help:      "Current number of open throttle windows (memory bound indicator)",
	})

	// Focus Compliance Metrics
	m.focusCommands = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "focus_commands_total",
		Help:      "Total number of focus mode commands sent to participants",
	})

	m.focusAcks = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "focus_acks_total",
		Help:      "Total number of focus mode acknowledgments received",
	})

	m.complianceUnknown = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "compliance_unknown",
		Help:      "Number of participants whose focus mode ack is overdue",
	})

	// Streaming Metrics
	m.framesCaptured = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "frames_captured_total",
		Help:      "Total number of frames captured from the screen source",
	})

	m.framesSent = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "frames_sent_total",
		Help:      "Total number of frames delivered to recipients",
	})

	m.framesDropped = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "frames_dropped_total",
		Help:      "Total number of frames dropped due to recipient backpressure",
	})

	m.frameEncodeLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "frame_encode_latency_milliseconds",
		Help:      "Histogram of frame capture and encode latency in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	m.streamRecipients = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "stream_recipients",
		Help:      "Number of recipients currently attached to the stream",
	})

	m.captureFailures = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "capture_failures_total",
		Help:      "Total number of stream start attempts that found no usable source",
	})

	// Persistence Metrics
	m.persistWrites = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "persist_writes_total",
		Help:      "Total number of records written through the persistence gateway",
	})

	m.persistErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "persist_errors_total",
		Help:      "Total number of persistence write failures (logged, not propagated)",
	})

	m.persistDropped = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "persist_dropped_total",
		Help:      "Total number of persistence writes dropped due to a full queue",
	})

	m.persistWriteLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "persist_write_latency_milliseconds",
		Help:      "Persistence write latency in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	m.persistQueueSize = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "persist_queue_size",
		Help:      "Current size of the persistence write queue (backlog indicator)",
	})

	m.persistQueueCap = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "persist_queue_capacity",
		Help:      "Maximum persistence write queue capacity",
	})

	m.persistUtilization = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "persist_queue_utilization_ratio",
		Help:      "Persistence queue utilization ratio (current size / capacity)",
	})

	// HTTP Performance Metrics - User experience indicators
	m.httpRequests = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests by endpoint and method",
		},
		[]string{"endpoint", "method", "status_code"},
	)

	m.httpRequestDuration = auto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "http_request_duration_milliseconds",
			Help:      "HTTP request duration in milliseconds (user experience)",
			Buckets:   m.histogramBuckets,
		},
		[]string{"endpoint", "method", "status_code"},
	)

	// Enhanced Error Metrics - Detailed error tracking
	m.errorRateByComponent = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "errors_by_component_total",
			Help:      "Total number of errors by component",
		},
		[]string{"component", "error_type"},
	)

	m.errorRateByType = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "errors_by_type_total",
			Help:      "Total number of errors by type",
		},
		[]string{"error_type", "severity"},
	)

	m.errorRateByEndpoint = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "errors_by_endpoint_total",
			Help:      "Total number of errors by endpoint",
		},
		[]string{"endpoint", "method", "error_type"},
	)

	m.errorLatency = auto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "error_latency_milliseconds",
			Help:      "Latency of operations that resulted in errors",
			Buckets:   m.histogramBuckets,
		},
		[]string{"component", "error_type"},
	)

	// System Performance Metrics
	m.systemMemoryUsage = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "system_memory_usage_bytes",
		Help:      "System memory usage in bytes",
	})

	m.systemGoroutineCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "system_goroutine_count",
		Help:      "Number of goroutines",
	})

	m.systemGCPauseTime = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "system_gc_pause_time_milliseconds",
		Help:      "GC pause time in milliseconds",
		Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000},
	})
}

// Session Lifecycle Functions.

// RecordSessionStarted increments the started sessions counter.
func RecordSessionStarted() {
	globalManager.sessionsStarted.Inc()
}

// RecordSessionEnded increments the ended sessions counter and observes its duration.
func RecordSessionEnded(duration time.Duration) {
	globalManager.sessionsEnded.Inc()
	globalManager.sessionDuration.Observe(duration.Seconds())
}

// UpdateActiveSessions sets the number of active sessions.
func UpdateActiveSessions(count int) {
	globalManager.activeSessions.Set(float64(count))
}

// Roster Functions.

// UpdateActiveParticipants sets the current roster size.
func UpdateActiveParticipants(count int) {
	globalManager.activeParticipants.Set(float64(count))
}

// RecordAuthSuccess increments the successful authentication counter.
func RecordAuthSuccess() {
	globalManager.authSuccess.Inc()
}

// RecordAuthFailure increments the rejected authentication counter.
func RecordAuthFailure() {
	globalManager.authFailure.Inc()
}

// RecordDisconnect increments the disconnect counter for a reason.
func RecordDisconnect(reason string) {
	globalManager.disconnects.WithLabelValues(reason).Inc()
}

// Hub Traffic Functions.

// RecordMessageSent increments the unicast delivery counter.
func RecordMessageSent() {
	globalManager.messagesSent.Inc()
}

// RecordMessageReceived increments the inbound message counter.
func RecordMessageReceived() {
	globalManager.messagesReceived.Inc()
}

// RecordBroadcast increments the broadcast operation counter.
func RecordBroadcast() {
	globalManager.broadcasts.Inc()
}

// RecordBroadcastError increments the per-recipient broadcast failure counter.
func RecordBroadcastError() {
	globalManager.broadcastErrors.Inc()
}

// RecordHeartbeatTimeout increments the liveness timeout counter.
func RecordHeartbeatTimeout() {
	globalManager.heartbeatTimeouts.Inc()
}

// RecordUnknownMessage increments the unknown message type counter.
func RecordUnknownMessage() {
	globalManager.unknownMessages.Inc()
}

// Violation Functions.

// RecordViolationRaw increments the raw violation counter for a kind.
func RecordViolationRaw(kind string) {
	globalManager.violationsRaw.WithLabelValues(kind).Inc()
}

// RecordViolationReported increments the aggregated report counter.
func RecordViolationReported() {
	globalManager.violationsReported.Inc()
}

// RecordViolationDiscarded increments the discarded-while-off counter.
func RecordViolationDiscarded() {
	globalManager.violationsDiscarded.Inc()
}

// UpdateThrottleWindows sets the number of open throttle windows.
func UpdateThrottleWindows(count int) {
	globalManager.throttleWindows.Set(float64(count))
}

// Focus Compliance Functions.

// RecordFocusCommand increments the focus command counter.
func RecordFocusCommand() {
	globalManager.focusCommands.Inc()
}

// RecordFocusAck increments the focus acknowledgment counter.
func RecordFocusAck() {
	globalManager.focusAcks.Inc()
}

// UpdateComplianceUnknown sets the number of participants with overdue acks.
func UpdateComplianceUnknown(count int) {
	globalManager.complianceUnknown.Set(float64(count))
}

// Streaming Functions.

// RecordFrameCaptured increments the captured frame counter.
func RecordFrameCaptured() {
	globalManager.framesCaptured.Inc()
}

// RecordFrameSent increments the delivered frame counter.
func RecordFrameSent() {
	globalManager.framesSent.Inc()
}

// RecordFrameDropped increments the backpressure drop counter.
func RecordFrameDropped() {
	globalManager.framesDropped.Inc()
}

// RecordFrameEncodeLatency records capture+encode latency in milliseconds.
func RecordFrameEncodeLatency(latencyMs float64) {
	globalManager.frameEncodeLatency.Observe(latencyMs)
}

// UpdateStreamRecipients sets the number of attached stream recipients.
func UpdateStreamRecipients(count int) {
	globalManager.streamRecipients.Set(float64(count))
}

// RecordCaptureFailure increments the capture-unavailable counter.
func RecordCaptureFailure() {
	globalManager.captureFailures.Inc()
}

// Persistence Functions.

// RecordPersistWrite increments the persistence write counter.
func RecordPersistWrite() {
	globalManager.persistWrites.Inc()
}

// RecordPersistError increments the persistence failure counter.
func RecordPersistError() {
	globalManager.persistErrors.Inc()
}

// RecordPersistDropped increments the dropped-write counter.
func RecordPersistDropped() {
	globalManager.persistDropped.Inc()
}

// RecordPersistWriteLatency records a persistence write latency in milliseconds.
func RecordPersistWriteLatency(latencyMs float64) {
	globalManager.persistWriteLatency.Observe(latencyMs)
}

// UpdatePersistQueueSize sets the current persistence queue size.
func UpdatePersistQueueSize(size int) {
	globalManager.persistQueueSize.Set(float64(size))
}

// UpdatePersistQueueCapacity sets the maximum persistence queue capacity.
func UpdatePersistQueueCapacity(capacity int) {
	globalManager.persistQueueCap.Set(float64(capacity))
}

// UpdatePersistQueueUtilization sets the persistence queue utilization ratio.
func UpdatePersistQueueUtilization(utilization float64) {
	globalManager.persistUtilization.Set(utilization)
}

// HTTP Functions.

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// Error Functions.

// RecordErrorByComponent increments the error counter for a component.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByType increments the error counter for a type and severity.
func RecordErrorByType(errorType, severity string) {
	globalManager.errorRateByType.WithLabelValues(errorType, severity).Inc()
}

// RecordErrorByEndpoint increments the error counter for an endpoint.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// RecordErrorLatency records the latency of an operation that errored.
func RecordErrorLatency(component, errorType string, latencyMs float64) {
	globalManager.errorLatency.WithLabelValues(component, errorType).Observe(latencyMs)
}

// System Functions.

// UpdateSystemMemoryUsage sets the system memory usage.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the goroutine count.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records a GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// GetRegistry returns the custom Prometheus registry used by the global manager.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
