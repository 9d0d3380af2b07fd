package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PipelineStats provides the metrics collector access to pipeline state.
type PipelineStats interface {
	Totals() (processed, succeeded, failed int64)
	AverageTotalTime() float64
}

// Collector implements prometheus.Collector to read live gauges at scrape time.
type Collector struct {
	stats       PipelineStats
	recognition *Recognition

	processed      *prometheus.Desc
	succeeded      *prometheus.Desc
	failed         *prometheus.Desc
	avgTotalTime   *prometheus.Desc
	languageCounts *prometheus.Desc
}

// NewCollector creates a collector that reads live state at scrape time.
// Either argument may be nil (metrics will report 0).
func NewCollector(stats PipelineStats, recognition *Recognition) *Collector {
	return &Collector{
		stats:       stats,
		recognition: recognition,
		processed: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "pipeline", "processed"),
			"Attachments processed since start.",
			nil, nil,
		),
		succeeded: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "pipeline", "succeeded"),
			"Attachments transcribed successfully since start.",
			nil, nil,
		),
		failed: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "pipeline", "failed"),
			"Attachments that failed since start.",
			nil, nil,
		),
		avgTotalTime: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "pipeline", "average_total_seconds"),
			"Mean end-to-end time of successful runs.",
			nil, nil,
		),
		languageCounts: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "recognition", "language_requests"),
			"Recognitions per detected language.",
			[]string{"language"}, nil,
		),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.processed
	ch <- c.succeeded
	ch <- c.failed
	ch <- c.avgTotalTime
	ch <- c.languageCounts
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	var processed, succeeded, failed int64
	var avg float64
	if c.stats != nil {
		processed, succeeded, failed = c.stats.Totals()
		avg = c.stats.AverageTotalTime()
	}
	ch <- prometheus.MustNewConstMetric(c.processed, prometheus.GaugeValue, float64(processed))
	ch <- prometheus.MustNewConstMetric(c.succeeded, prometheus.GaugeValue, float64(succeeded))
	ch <- prometheus.MustNewConstMetric(c.failed, prometheus.GaugeValue, float64(failed))
	ch <- prometheus.MustNewConstMetric(c.avgTotalTime, prometheus.GaugeValue, avg)

	if c.recognition != nil {
		for lang, n := range c.recognition.Summary().LanguageDistribution {
			ch <- prometheus.MustNewConstMetric(c.languageCounts, prometheus.GaugeValue, float64(n), lang)
		}
	}
}
