package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	AssetCacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mediavault",
		Subsystem: "assets",
		Name:      "cache_hits_total",
		Help:      "Derived asset requests answered from disk.",
	}, []string{"kind"})

	AssetCacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mediavault",
		Subsystem: "assets",
		Name:      "cache_misses_total",
		Help:      "Derived asset requests that triggered generation.",
	}, []string{"kind"})

	TranscodeJobs = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mediavault",
		Subsystem: "transcode",
		Name:      "jobs_total",
		Help:      "Transcode jobs by terminal status.",
	}, []string{"status"})

	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "mediavault",
		Subsystem: "transcode",
		Name:      "queue_depth",
		Help:      "Pending transcode jobs.",
	})

	ActiveEncodes = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "mediavault",
		Subsystem: "transcode",
		Name:      "active_encodes",
		Help:      "Encoder processes currently running (0 or 1).",
	})
)
