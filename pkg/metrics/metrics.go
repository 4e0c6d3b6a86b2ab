package metrics

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricType selects the prometheus collector built for a Metric.
type MetricType string

const (
	CounterVec   MetricType = "counter_vec"
	Gauge        MetricType = "gauge"
	HistogramVec MetricType = "histogram_vec"
	SummaryVec   MetricType = "summary_vec"
)

// LatencyBucketsMs covers HTTP handlers and outbound processor calls, in
// milliseconds.
var LatencyBucketsMs = []float64{
	5, 10, 25, 50, 75, 100, 150, 200, 300, 400, 500,
	750, 1000, 1500, 2000, 3000, 5000, 10000, 15000,
}

// Metric describes one collector. Buckets defaults to LatencyBucketsMs for
// histograms.
type Metric struct {
	ID          string
	Name        string
	Description string
	Type        MetricType
	Args        []string
	Buckets     []float64
}

// NewMetric builds the collector for m under subsystem. It panics on an
// unknown type, which is a programming error in a package-level definition.
func NewMetric(m *Metric, subsystem string) prometheus.Collector {
	switch m.Type {
	case CounterVec:
		return prometheus.NewCounterVec(
			prometheus.CounterOpts{Subsystem: subsystem, Name: m.Name, Help: m.Description},
			m.Args,
		)
	case Gauge:
		return prometheus.NewGauge(
			prometheus.GaugeOpts{Subsystem: subsystem, Name: m.Name, Help: m.Description},
		)
	case HistogramVec:
		buckets := m.Buckets
		if len(buckets) == 0 {
			buckets = LatencyBucketsMs
		}
		return prometheus.NewHistogramVec(
			prometheus.HistogramOpts{Subsystem: subsystem, Name: m.Name, Help: m.Description, Buckets: buckets},
			m.Args,
		)
	case SummaryVec:
		return prometheus.NewSummaryVec(
			prometheus.SummaryOpts{Subsystem: subsystem, Name: m.Name, Help: m.Description},
			m.Args,
		)
	}
	panic(fmt.Sprintf("metrics: unknown type %q for %s", m.Type, m.Name))
}

func asAlreadyRegistered(err error, target *prometheus.AlreadyRegisteredError) bool {
	return errors.As(err, target)
}

const (
	RefererKey = "X-Referer"
)
