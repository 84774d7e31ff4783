// Package metrics exposes Prometheus collectors for the companion.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	AnalysisCycles = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "neuroduck_analysis_cycles_total",
			Help: "Total number of completed EEG analysis cycles",
		},
	)

	AnalysisErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "neuroduck_analysis_errors_total",
			Help: "Total number of acquisition loop failures",
		},
	)

	StressRatio = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "neuroduck_stress_ratio",
			Help: "Latest beta/alpha power ratio",
		},
	)

	BandRelativePower = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "neuroduck_band_relative_power",
			Help: "Latest relative band power",
		},
		[]string{"band"},
	)

	StressLevel = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "neuroduck_stress_level_normalized",
			Help: "Latest normalized stress level in [0, 1]",
		},
	)

	TriggerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "neuroduck_trigger_state",
			Help: "1 for the current discrete trigger state, 0 otherwise",
		},
		[]string{"state"},
	)

	SourceStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "neuroduck_source_status",
			Help: "1 for the current acquisition status, 0 otherwise",
		},
		[]string{"status"},
	)

	Interventions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "neuroduck_interventions_total",
			Help: "Total number of interventions by trigger and outcome",
		},
		[]string{"trigger", "outcome"},
	)

	InterventionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "neuroduck_intervention_duration_seconds",
			Help:    "Intervention duration in seconds",
			Buckets: []float64{1, 2, 5, 10, 20, 30, 60, 120},
		},
	)

	BrainLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "neuroduck_brain_latency_seconds",
			Help: "Language model request latency in seconds",
		},
		[]string{"result"},
	)

	WebsocketClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "neuroduck_websocket_clients",
			Help: "Number of connected GUI websocket clients",
		},
	)
)

// SetOneHot marks value as the active label of vec, clearing the others.
func SetOneHot(vec *prometheus.GaugeVec, all []string, value string) {
	for _, v := range all {
		if v == value {
			vec.WithLabelValues(v).Set(1)
		} else {
			vec.WithLabelValues(v).Set(0)
		}
	}
}

// ObserveBrain records one language model call.
func ObserveBrain(d time.Duration, ok bool) {
	result := "ok"
	if !ok {
		result = "fallback"
	}
	BrainLatency.WithLabelValues(result).Observe(d.Seconds())
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
