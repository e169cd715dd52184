package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ticksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "redpiler_ticks_total",
		Help: "Total number of simulated ticks",
	}, []string{"backend"})

	interactionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "redpiler_interactions_total",
		Help: "Player interactions applied, by type and outcome",
	}, []string{"type", "outcome"})

	tickDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "redpiler_tick_duration_seconds",
		Help:    "Wall time spent simulating one tick",
		Buckets: []float64{0.000001, 0.00001, 0.0001, 0.001, 0.01, 0.05},
	}, []string{"backend"})

	compileDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "redpiler_compile_duration_seconds",
		Help:    "Wall time spent compiling a circuit",
		Buckets: []float64{0.0001, 0.001, 0.01, 0.1, 1, 10},
	}, []string{"backend", "outcome"})

	flushedBlocksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "redpiler_flushed_blocks_total",
		Help: "Block changes written back to the world",
	})
)
