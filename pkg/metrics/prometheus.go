// Package metrics provides Prometheus metrics for the tally rating service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the tally service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      prometheus.Labels
	registry         prometheus.Registerer

	// Consumer side
	deliveriesReceived *prometheus.CounterVec
	deliveriesOutcome  *prometheus.CounterVec
	consumerReconnects prometheus.Counter
	consumerConnected  prometheus.Gauge
	handleLatency      prometheus.Histogram

	// Rating transitions
	ratingsCreated   prometheus.Counter
	ratingsUpdated   prometheus.Counter
	foldErrors       *prometheus.CounterVec
	redeliverySkips  prometheus.Counter
	ratingsTotal     prometheus.Gauge
	storeOpLatency   *prometheus.HistogramVec
	workerQueueDepth *prometheus.GaugeVec
	workerCount      prometheus.Gauge

	// Publisher side
	publisherQueueSize  prometheus.Gauge
	eventsPublished     *prometheus.CounterVec
	eventsDropped       *prometheus.CounterVec
	publisherReconnects prometheus.Counter
	publishLatency      prometheus.Histogram

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // metrics registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "tally",
		subsystem:        "ratings",
		histogramBuckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 25, 50, 100, 250, 500, 1000},
		constLabels:      prometheus.Labels{},
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) counterOpts(name, help string) prometheus.CounterOpts {
	return prometheus.CounterOpts{Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels}
}

func (m *Manager) gaugeOpts(name, help string) prometheus.GaugeOpts {
	return prometheus.GaugeOpts{Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels}
}

func (m *Manager) histogramOpts(name, help string) prometheus.HistogramOpts {
	return prometheus.HistogramOpts{Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels, Buckets: m.histogramBuckets}
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every metric
	auto := promauto.With(m.registry)

	m.deliveriesReceived = auto.NewCounterVec(
		m.counterOpts("deliveries_received_total", "Broker deliveries received by event type"),
		[]string{"event_type"},
	)
	m.deliveriesOutcome = auto.NewCounterVec(
		m.counterOpts("deliveries_outcome_total", "Broker deliveries by settlement (ack, nak, term)"),
		[]string{"outcome"},
	)
	m.consumerReconnects = auto.NewCounter(m.counterOpts("consumer_reconnects_total", "Consumer reconnect attempts"))
	m.consumerConnected = auto.NewGauge(m.gaugeOpts("consumer_connected", "1 when the consumer holds a live subscription"))
	m.handleLatency = auto.NewHistogram(m.histogramOpts("handle_latency_milliseconds", "Time spent handling one delivery"))

	m.ratingsCreated = auto.NewCounter(m.counterOpts("ratings_created_total", "Ratings created from a first score"))
	m.ratingsUpdated = auto.NewCounter(m.counterOpts("ratings_updated_total", "Ratings folded with a subsequent score"))
	m.foldErrors = auto.NewCounterVec(
		m.counterOpts("fold_errors_total", "Failed rating transitions by reason"),
		[]string{"reason"},
	)
	m.redeliverySkips = auto.NewCounter(m.counterOpts("redelivery_skips_total", "Redelivered events acked without a second fold"))
	m.ratingsTotal = auto.NewGauge(m.gaugeOpts("ratings", "Number of rating records in the store"))
	m.storeOpLatency = auto.NewHistogramVec(
		m.histogramOpts("store_op_latency_milliseconds", "Rating store operation latency"),
		[]string{"op"},
	)
	m.workerQueueDepth = auto.NewGaugeVec(
		m.gaugeOpts("worker_queue_depth", "Deliveries waiting per worker"),
		[]string{"worker"},
	)
	m.workerCount = auto.NewGauge(m.gaugeOpts("worker_count", "Number of running workers"))

	m.publisherQueueSize = auto.NewGauge(m.gaugeOpts("publisher_queue_size", "Events waiting in the outbound queue"))
	m.eventsPublished = auto.NewCounterVec(
		m.counterOpts("events_published_total", "Events confirmed by the broker"),
		[]string{"event_type"},
	)
	m.eventsDropped = auto.NewCounterVec(
		m.counterOpts("events_dropped_total", "Outbound events given up on, by reason"),
		[]string{"reason"},
	)
	m.publisherReconnects = auto.NewCounter(m.counterOpts("publisher_reconnects_total", "Publisher reconnect attempts"))
	m.publishLatency = auto.NewHistogram(m.histogramOpts("publish_latency_milliseconds", "Broker publish round trip"))

	m.httpRequests = auto.NewCounterVec(
		m.counterOpts("http_requests_total", "Total number of HTTP requests by endpoint and method"),
		[]string{"endpoint", "method", "status_code"},
	)
	m.httpRequestDuration = auto.NewHistogramVec(
		m.histogramOpts("http_request_duration_milliseconds", "HTTP request duration in milliseconds"),
		[]string{"endpoint", "method", "status_code"},
	)
}

// RecordDeliveryReceived counts a delivery by its event type.
func RecordDeliveryReceived(eventType string) {
	globalManager.deliveriesReceived.WithLabelValues(eventType).Inc()
}

// RecordDeliveryOutcome counts how a delivery was settled.
func RecordDeliveryOutcome(outcome string) {
	globalManager.deliveriesOutcome.WithLabelValues(outcome).Inc()
}

// RecordConsumerReconnect increments the consumer reconnect counter.
func RecordConsumerReconnect() { globalManager.consumerReconnects.Inc() }

// UpdateConsumerConnected flips the consumer connectivity gauge.
func UpdateConsumerConnected(connected bool) {
	if connected {
		globalManager.consumerConnected.Set(1)
		return
	}
	globalManager.consumerConnected.Set(0)
}

// RecordHandleLatency records delivery handling latency in milliseconds.
func RecordHandleLatency(latencyMs float64) { globalManager.handleLatency.Observe(latencyMs) }

// RecordRatingCreated increments the created ratings counter.
func RecordRatingCreated() { globalManager.ratingsCreated.Inc() }

// RecordRatingUpdated increments the folded ratings counter.
func RecordRatingUpdated() { globalManager.ratingsUpdated.Inc() }

// RecordFoldError counts a failed transition.
func RecordFoldError(reason string) { globalManager.foldErrors.WithLabelValues(reason).Inc() }

// RecordRedeliverySkip counts a delivery that was already folded.
func RecordRedeliverySkip() { globalManager.redeliverySkips.Inc() }

// UpdateRatingsTotal sets the number of stored ratings.
func UpdateRatingsTotal(count int) { globalManager.ratingsTotal.Set(float64(count)) }

// RecordStoreOpLatency records store latency by operation.
func RecordStoreOpLatency(op string, latencyMs float64) {
	globalManager.storeOpLatency.WithLabelValues(op).Observe(latencyMs)
}

// UpdateWorkerQueueDepth sets the backlog of one worker.
func UpdateWorkerQueueDepth(worker string, depth int) {
	globalManager.workerQueueDepth.WithLabelValues(worker).Set(float64(depth))
}

// UpdateWorkerCount sets the current worker count.
func UpdateWorkerCount(count int) { globalManager.workerCount.Set(float64(count)) }

// UpdatePublisherQueueSize sets the outbound backlog.
func UpdatePublisherQueueSize(size int) { globalManager.publisherQueueSize.Set(float64(size)) }

// RecordEventPublished counts a broker-confirmed publish.
func RecordEventPublished(eventType string) {
	globalManager.eventsPublished.WithLabelValues(eventType).Inc()
}

// RecordEventDropped counts an outbound event that was given up on.
func RecordEventDropped(reason string) { globalManager.eventsDropped.WithLabelValues(reason).Inc() }

// RecordPublisherReconnect increments the publisher reconnect counter.
func RecordPublisherReconnect() { globalManager.publisherReconnects.Inc() }

// RecordPublishLatency records publish latency in milliseconds.
func RecordPublishLatency(latencyMs float64) { globalManager.publishLatency.Observe(latencyMs) }

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
