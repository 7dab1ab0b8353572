package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// AnalysisMetrics holds the metrics of an analyzer that indexes mined receipts.
type AnalysisMetrics struct {
	// Counts of processed items, partitioned by analyzer and status.
	processedItems *prometheus.CounterVec

	// Number of items waiting to be processed.
	queueLength *prometheus.GaugeVec

	// Latencies of processing a single item.
	processLatencies *prometheus.HistogramVec
}

func NewDefaultAnalysisMetrics(pkg string) AnalysisMetrics {
	metrics := AnalysisMetrics{
		processedItems: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: fmt.Sprintf("%s_processed_items", pkg),
				Help: "How many items were indexed, partitioned by analyzer and status.",
			},
			[]string{"analyzer", "status"}, // Labels.
		),
		queueLength: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: fmt.Sprintf("%s_queue_length", pkg),
				Help: "How many items are waiting to be indexed.",
			},
			[]string{"analyzer"}, // Labels.
		),
		processLatencies: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: fmt.Sprintf("%s_process_latencies", pkg),
				Help: "How long indexing a single item takes, partitioned by analyzer.",
			},
			[]string{"analyzer"}, // Labels.
		),
	}
	metrics.processedItems = registerOnce(metrics.processedItems).(*prometheus.CounterVec)
	metrics.queueLength = registerOnce(metrics.queueLength).(*prometheus.GaugeVec)
	metrics.processLatencies = registerOnce(metrics.processLatencies).(*prometheus.HistogramVec)
	return metrics
}

func (m *AnalysisMetrics) ProcessedItems(analyzer string, status string) prometheus.Counter {
	return m.processedItems.WithLabelValues(analyzer, status)
}

func (m *AnalysisMetrics) QueueLength(analyzer string) prometheus.Gauge {
	return m.queueLength.WithLabelValues(analyzer)
}

func (m *AnalysisMetrics) ProcessLatencies(analyzer string) *prometheus.Timer {
	return prometheus.NewTimer(m.processLatencies.WithLabelValues(analyzer))
}
