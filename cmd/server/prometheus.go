package main

import (
	"github.com/miretskiy/budgetfair/scheduler"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// Prometheus metrics (gauges)
	promMetrics = struct {
		dispatches        prometheus.Gauge
		sectorsDispatched prometheus.Gauge
		expirations       prometheus.Gauge
		idleWaits         prometheus.Gauge
		wrActivations     prometheus.Gauge
		busyQueues        prometheus.Gauge
		queuedRequests    prometheus.Gauge
		peakRate          prometheus.Gauge
		broken            prometheus.Gauge
	}{
		dispatches: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "budgetfair_dispatches_total",
			Help: "Requests handed to the device",
		}),
		sectorsDispatched: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "budgetfair_sectors_dispatched_total",
			Help: "Sectors handed to the device",
		}),
		expirations: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "budgetfair_expirations_total",
			Help: "In-service turn expirations",
		}),
		idleWaits: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "budgetfair_idle_waits_total",
			Help: "Anticipatory idling periods armed",
		}),
		wrActivations: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "budgetfair_wr_activations_total",
			Help: "Weight-raising periods started",
		}),
		busyQueues: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "budgetfair_busy_queues",
			Help: "Queues with pending requests",
		}),
		queuedRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "budgetfair_queued_requests",
			Help: "Requests waiting to be dispatched",
		}),
		peakRate: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "budgetfair_peak_rate",
			Help: "Estimated device peak rate (sectors/usec, fixed point)",
		}),
		broken: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "budgetfair_broken",
			Help: "Scheduling halted by an invariant violation (0=ok, 1=halted)",
		}),
	}
)

func initPrometheusMetrics() {
	prometheus.MustRegister(
		promMetrics.dispatches,
		promMetrics.sectorsDispatched,
		promMetrics.expirations,
		promMetrics.idleWaits,
		promMetrics.wrActivations,
		promMetrics.busyQueues,
		promMetrics.queuedRequests,
		promMetrics.peakRate,
		promMetrics.broken,
	)
}

func updatePrometheusMetrics(results *scheduler.Results, state map[string]interface{}) {
	m := results.Scheduler
	promMetrics.dispatches.Set(float64(m.Dispatches))
	promMetrics.sectorsDispatched.Set(float64(m.SectorsDispatched))
	promMetrics.expirations.Set(float64(m.Expirations))
	promMetrics.idleWaits.Set(float64(m.IdleWaits))
	promMetrics.wrActivations.Set(float64(m.WrActivations))

	if v, ok := state["busyQueues"].(int); ok {
		promMetrics.busyQueues.Set(float64(v))
	}
	if v, ok := state["queuedRequests"].(int); ok {
		promMetrics.queuedRequests.Set(float64(v))
	}
	if v, ok := state["peakRate"].(int64); ok {
		promMetrics.peakRate.Set(float64(v))
	}
	if results.Broken {
		promMetrics.broken.Set(1.0)
	} else {
		promMetrics.broken.Set(0.0)
	}
}
