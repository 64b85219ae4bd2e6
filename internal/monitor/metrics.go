package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cyclesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "procsampler_cycles_total",
		Help: "Number of poll cycles started.",
	})

	cycleErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "procsampler_cycle_errors_total",
		Help: "Number of poll cycles abandoned because of an error.",
	})

	processSkips = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "procsampler_process_skips_total",
		Help: "Processes skipped for one cycle because they could not be read.",
	}, []string{"reason"})

	trackedProcesses = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "procsampler_tracked_processes",
		Help: "Logical processes currently tracked.",
	})

	cycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "procsampler_cycle_duration_seconds",
		Help:    "Time spent sampling in one cycle.",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
	})
)
