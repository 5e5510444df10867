package omgmatch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricScansTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "omgmatch_scans_total",
		Help: "Number of haystack scans.",
	})
	metricMatchesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "omgmatch_matches_total",
		Help: "Number of matches returned, after filtering.",
	})
	metricBloomFilteredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "omgmatch_bloom_filtered_total",
		Help: "Number of candidate offsets rejected by the bloom filter.",
	})
	metricScanDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "omgmatch_scan_duration_seconds",
		Help:    "Wall time of Scan calls.",
		Buckets: prometheus.DefBuckets,
	})
	metricCompileFinished = promauto.NewCounter(prometheus.CounterOpts{
		Name: "omgmatch_compile_total",
		Help: "Number of successfully compiled indexes.",
	})
)
