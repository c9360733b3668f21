package session

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Availability query outcomes, used as the "result" label.
const (
	ResultEntry = "entry"
	ResultData  = "data"
	ResultNone  = "none"
	ResultError = "error"
)

// Metrics holds the Prometheus collectors updated by a Manager.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	SessionsActive      prometheus.Gauge
	OutputsRecorded     *prometheus.CounterVec
	OutputsCleared      prometheus.Counter
	AvailabilityQueries *prometheus.CounterVec
	CompactionRatio     prometheus.Histogram
}

// NewMetrics creates the collectors and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		SessionsActive: f.NewGauge(prometheus.GaugeOpts{
			Name: "nodeflow_sessions_active",
			Help: "Number of open sessions held in memory",
		}),
		OutputsRecorded: f.NewCounterVec(prometheus.CounterOpts{
			Name: "nodeflow_outputs_recorded_total",
			Help: "Node execution results recorded, by status",
		}, []string{"status"}),
		OutputsCleared: f.NewCounter(prometheus.CounterOpts{
			Name: "nodeflow_outputs_cleared_total",
			Help: "Node execution results removed by clear or reset",
		}),
		AvailabilityQueries: f.NewCounterVec(prometheus.CounterOpts{
			Name: "nodeflow_availability_queries_total",
			Help: "Available-data queries, by result",
		}, []string{"result"}),
		CompactionRatio: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "nodeflow_compaction_ratio",
			Help:    "Compacted over original output size, in tree nodes",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 0.75, 0.9, 1},
		}),
	}
}

func (m *Metrics) sessionOpened() {
	if m != nil {
		m.SessionsActive.Inc()
	}
}

func (m *Metrics) sessionClosed() {
	if m != nil {
		m.SessionsActive.Dec()
	}
}

func (m *Metrics) recorded(status string, ratio float64) {
	if m == nil {
		return
	}
	m.OutputsRecorded.WithLabelValues(status).Inc()
	if ratio > 0 {
		m.CompactionRatio.Observe(ratio)
	}
}

func (m *Metrics) cleared(n int) {
	if m != nil && n > 0 {
		m.OutputsCleared.Add(float64(n))
	}
}

func (m *Metrics) queried(result string) {
	if m != nil {
		m.AvailabilityQueries.WithLabelValues(result).Inc()
	}
}
