package observability

import (
	"strings"
	"sync"
	"time"
)

// Metrics records application measurements. The production backend is
// PrometheusMetrics; tests and local development use InMemoryMetrics.
type Metrics interface {
	// Counter adds value to a monotonically increasing counter.
	Counter(name string, value int64, tags ...Tag)

	// Gauge records the current value of a fluctuating quantity.
	Gauge(name string, value float64, tags ...Tag)

	// Histogram records one observation of a distribution.
	Histogram(name string, value float64, tags ...Tag)

	// Timing records how long an operation took.
	Timing(name string, duration time.Duration, tags ...Tag)
}

// Tag labels a metric with a key-value dimension.
type Tag struct {
	Key   string
	Value string
}

// T is shorthand for constructing a Tag at a call site.
func T(key, value string) Tag {
	return Tag{Key: key, Value: value}
}

// NoopMetrics discards every measurement. It is the default backend
// when no metrics sink is configured.
type NoopMetrics struct{}

func (NoopMetrics) Counter(string, int64, ...Tag)        {}
func (NoopMetrics) Gauge(string, float64, ...Tag)        {}
func (NoopMetrics) Histogram(string, float64, ...Tag)    {}
func (NoopMetrics) Timing(string, time.Duration, ...Tag) {}

// InMemoryMetrics keeps measurements in maps keyed by metric name plus
// tags, so tests can assert on what was recorded.
type InMemoryMetrics struct {
	mu         sync.RWMutex
	counters   map[string]int64
	gauges     map[string]float64
	histograms map[string][]float64
	timings    map[string][]time.Duration
}

func NewInMemoryMetrics() *InMemoryMetrics {
	m := &InMemoryMetrics{}
	m.reset()
	return m
}

func (m *InMemoryMetrics) Counter(name string, value int64, tags ...Tag) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[seriesKey(name, tags)] += value
}

func (m *InMemoryMetrics) Gauge(name string, value float64, tags ...Tag) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gauges[seriesKey(name, tags)] = value
}

func (m *InMemoryMetrics) Histogram(name string, value float64, tags ...Tag) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := seriesKey(name, tags)
	m.histograms[k] = append(m.histograms[k], value)
}

func (m *InMemoryMetrics) Timing(name string, duration time.Duration, tags ...Tag) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := seriesKey(name, tags)
	m.timings[k] = append(m.timings[k], duration)
}

// GetCounter reports the accumulated value for a counter series.
func (m *InMemoryMetrics) GetCounter(name string, tags ...Tag) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.counters[seriesKey(name, tags)]
}

// GetGauge reports the last value set for a gauge series.
func (m *InMemoryMetrics) GetGauge(name string, tags ...Tag) float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.gauges[seriesKey(name, tags)]
}

// GetHistogram reports every observation recorded for a series.
func (m *InMemoryMetrics) GetHistogram(name string, tags ...Tag) []float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.histograms[seriesKey(name, tags)]
}

// GetTimings reports every duration recorded for a series.
func (m *InMemoryMetrics) GetTimings(name string, tags ...Tag) []time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.timings[seriesKey(name, tags)]
}

// Reset discards all recorded measurements.
func (m *InMemoryMetrics) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reset()
}

func (m *InMemoryMetrics) reset() {
	m.counters = make(map[string]int64)
	m.gauges = make(map[string]float64)
	m.histograms = make(map[string][]float64)
	m.timings = make(map[string][]time.Duration)
}

// seriesKey folds the tag set into the map key so that differently
// tagged series of the same metric are tracked independently.
func seriesKey(name string, tags []Tag) string {
	if len(tags) == 0 {
		return name
	}
	var b strings.Builder
	b.WriteString(name)
	for _, t := range tags {
		b.WriteByte(':')
		b.WriteString(t.Key)
		b.WriteByte('=')
		b.WriteString(t.Value)
	}
	return b.String()
}

// Standard metric names used throughout the craftfolio services.
const (
	// Operation metrics
	MetricOperationTotal    = "craftfolio.operation.total"
	MetricOperationDuration = "craftfolio.operation.duration"
	MetricOperationErrors   = "craftfolio.operation.errors"

	// Pricing metrics
	MetricQuotesServed       = "craftfolio.pricing.quotes"
	MetricPriceListRefreshes = "craftfolio.pricing.price_list_refreshes"

	// Checkout metrics
	MetricCheckoutsCreated = "craftfolio.checkout.sessions"
	MetricWebhooksReceived = "craftfolio.checkout.webhooks"
	MetricWebhooksRejected = "craftfolio.checkout.webhooks_rejected"

	// Fulfillment metrics
	MetricFulfillmentsStarted   = "craftfolio.fulfillment.started"
	MetricFulfillmentsCompleted = "craftfolio.fulfillment.completed"
	MetricFulfillmentsFailed    = "craftfolio.fulfillment.failed"

	// Routing metrics
	MetricRouteLookups     = "craftfolio.routing.lookups"
	MetricRouteActivations = "craftfolio.routing.activations"

	// Database metrics
	MetricDBQueries       = "craftfolio.db.queries"
	MetricDBQueryDuration = "craftfolio.db.query_duration"

	// Event bus metrics
	MetricEventsPublished = "craftfolio.events.published"
	MetricEventsConsumed  = "craftfolio.events.consumed"
)
