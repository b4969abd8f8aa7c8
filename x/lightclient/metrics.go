package lightclient

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/headlight-network/headlight/metrics"
)

// Metrics holds coordinator-level metrics.
type Metrics struct {
	registry *metrics.ComponentRegistry

	RequestsTotal      *prometheus.CounterVec
	CommitsTotal       *prometheus.CounterVec
	CallbackFailures   *prometheus.CounterVec
	HeadHeight         prometheus.Gauge
	LatestAuthoritySet prometheus.Gauge
	RangeSpan          prometheus.Histogram
}

// NewMetrics creates coordinator metrics.
func NewMetrics() *Metrics {
	reg := metrics.NewComponentRegistry("lightclient", "")

	return &Metrics{
		registry: reg,

		RequestsTotal: reg.NewCounterVec(prometheus.CounterOpts{
			Name: "requests_total",
			Help: "Proof requests submitted to the gateway",
		}, []string{"flow", "status"}),

		CommitsTotal: reg.NewCounterVec(prometheus.CounterOpts{
			Name: "commits_total",
			Help: "Callback commits processed",
		}, []string{"flow", "status"}),

		CallbackFailures: reg.NewCounterVec(prometheus.CounterOpts{
			Name: "callback_failures_total",
			Help: "Callback commits rejected, by reason",
		}, []string{"flow", "reason"}),

		HeadHeight: reg.NewGauge(prometheus.GaugeOpts{
			Name: "head_height",
			Help: "Highest committed canonical block height",
		}),

		LatestAuthoritySet: reg.NewGauge(prometheus.GaugeOpts{
			Name: "latest_authority_set_id",
			Help: "Highest recorded authority set id",
		}),

		RangeSpan: reg.NewHistogram(prometheus.HistogramOpts{
			Name:    "committed_range_span",
			Help:    "Block span of committed header ranges",
			Buckets: metrics.CountBuckets,
		}),
	}
}

// RecordRequest records a proof request outcome.
func (m *Metrics) RecordRequest(flow, status string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(flow, status).Inc()
}

// RecordCommit records a callback commit outcome.
func (m *Metrics) RecordCommit(flow, status string) {
	if m == nil {
		return
	}
	m.CommitsTotal.WithLabelValues(flow, status).Inc()
}

// RecordCallbackFailure records a rejected callback by reason.
func (m *Metrics) RecordCallbackFailure(flow, reason string) {
	if m == nil {
		return
	}
	m.CallbackFailures.WithLabelValues(flow, reason).Inc()
}

// RecordHead records the new head height and committed span.
func (m *Metrics) RecordHead(height uint32, span uint32) {
	if m == nil {
		return
	}
	m.HeadHeight.Set(float64(height))
	m.RangeSpan.Observe(float64(span))
}

// RecordAuthoritySet records the newest authority set id.
func (m *Metrics) RecordAuthoritySet(id uint64) {
	if m == nil {
		return
	}
	m.LatestAuthoritySet.Set(float64(id))
}
