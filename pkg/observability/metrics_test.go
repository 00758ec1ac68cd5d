package observability

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNoopMetrics_DiscardsEverything(t *testing.T) {
	m := NoopMetrics{}

	// Must be safe to call with any arguments.
	m.Counter(MetricQuotesServed, 1)
	m.Gauge(MetricDBQueries, 12)
	m.Histogram(MetricOperationDuration, 0.25)
	m.Timing(MetricDBQueryDuration, 3*time.Millisecond)
}

func TestInMemoryMetrics_CounterAccumulates(t *testing.T) {
	m := NewInMemoryMetrics()

	m.Counter(MetricQuotesServed, 1)
	m.Counter(MetricQuotesServed, 1)
	m.Counter(MetricQuotesServed, 3)

	assert.Equal(t, int64(5), m.GetCounter(MetricQuotesServed))
}

func TestInMemoryMetrics_TagsSeparateSeries(t *testing.T) {
	m := NewInMemoryMetrics()

	m.Counter(MetricQuotesServed, 1, T("tld", "dev"))
	m.Counter(MetricQuotesServed, 1, T("tld", "io"))
	m.Counter(MetricQuotesServed, 1, T("tld", "dev"))

	assert.Equal(t, int64(2), m.GetCounter(MetricQuotesServed, T("tld", "dev")))
	assert.Equal(t, int64(1), m.GetCounter(MetricQuotesServed, T("tld", "io")))
	assert.Zero(t, m.GetCounter(MetricQuotesServed))
}

func TestInMemoryMetrics_GaugeKeepsLastValue(t *testing.T) {
	m := NewInMemoryMetrics()

	m.Gauge(MetricDBQueries, 8, T("pool", "primary"))
	m.Gauge(MetricDBQueries, 3, T("pool", "primary"))
	m.Gauge(MetricDBQueries, 11, T("pool", "replica"))

	assert.Equal(t, 3.0, m.GetGauge(MetricDBQueries, T("pool", "primary")))
	assert.Equal(t, 11.0, m.GetGauge(MetricDBQueries, T("pool", "replica")))
}

func TestInMemoryMetrics_HistogramKeepsAllObservations(t *testing.T) {
	m := NewInMemoryMetrics()

	m.Histogram(MetricOperationDuration, 0.12)
	m.Histogram(MetricOperationDuration, 0.30)
	m.Histogram(MetricOperationDuration, 0.12)

	assert.Equal(t, []float64{0.12, 0.30, 0.12}, m.GetHistogram(MetricOperationDuration))
}

func TestInMemoryMetrics_TimingKeepsAllDurations(t *testing.T) {
	m := NewInMemoryMetrics()

	m.Timing(MetricDBQueryDuration, 4*time.Millisecond)
	m.Timing(MetricDBQueryDuration, 9*time.Millisecond)

	got := m.GetTimings(MetricDBQueryDuration)
	assert.Equal(t, []time.Duration{4 * time.Millisecond, 9 * time.Millisecond}, got)
}

func TestInMemoryMetrics_Reset(t *testing.T) {
	m := NewInMemoryMetrics()
	m.Counter(MetricCheckoutsCreated, 1)
	m.Gauge(MetricDBQueries, 2)
	m.Histogram(MetricOperationDuration, 0.5)
	m.Timing(MetricDBQueryDuration, time.Second)

	m.Reset()

	assert.Zero(t, m.GetCounter(MetricCheckoutsCreated))
	assert.Zero(t, m.GetGauge(MetricDBQueries))
	assert.Empty(t, m.GetHistogram(MetricOperationDuration))
	assert.Empty(t, m.GetTimings(MetricDBQueryDuration))
}

func TestSeriesKey(t *testing.T) {
	tests := []struct {
		name string
		tags []Tag
		want string
	}{
		{name: "bare metric", tags: nil, want: "craftfolio.routing.lookups"},
		{
			name: "one tag",
			tags: []Tag{T("tld", "dev")},
			want: "craftfolio.routing.lookups:tld=dev",
		},
		{
			name: "tag order preserved",
			tags: []Tag{T("tld", "dev"), T("result", "hit")},
			want: "craftfolio.routing.lookups:tld=dev:result=hit",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, seriesKey(MetricRouteLookups, tt.tags))
		})
	}
}

func TestMetricNamesCarryServicePrefix(t *testing.T) {
	names := []string{
		MetricOperationTotal,
		MetricOperationDuration,
		MetricOperationErrors,
		MetricQuotesServed,
		MetricCheckoutsCreated,
		MetricFulfillmentsCompleted,
		MetricRouteActivations,
		MetricEventsPublished,
	}
	for _, name := range names {
		assert.Regexp(t, `^craftfolio\.[a-z_]+\.[a-z_]+$`, name)
	}
}
