// Package metrics provides Prometheus metrics for the mode controller and the
// PWM sink.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	modeSwitches = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "barbatos",
		Subsystem: "controller",
		Name:      "mode_switches_total",
		Help:      "Number of completed mode switches",
	}, []string{"mode"})

	activeMode = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "barbatos",
		Subsystem: "controller",
		Name:      "active_mode",
		Help:      "1 for the mode whose animation is running, 0 otherwise",
	}, []string{"mode"})

	switchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "barbatos",
		Subsystem: "controller",
		Name:      "switch_duration_seconds",
		Help:      "Time taken to cancel the previous animation and start the next",
		Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
	})

	paletteChanges = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "barbatos",
		Subsystem: "thruster",
		Name:      "palette_changes_total",
		Help:      "Number of thruster palette rotations",
	}, []string{"palette"})

	transportErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "barbatos",
		Subsystem: "pwm",
		Name:      "transport_errors_total",
		Help:      "Number of PWM sink writes that failed",
	})
)

// RecordSwitch records a completed switch to mode.
func RecordSwitch(mode string, seconds float64) {
	modeSwitches.WithLabelValues(mode).Inc()
	switchDuration.Observe(seconds)
}

// SetActiveMode marks mode as the only active mode. An empty mode marks the
// controller idle.
func SetActiveMode(modes []string, mode string) {
	for _, m := range modes {
		v := 0.0
		if m == mode {
			v = 1
		}
		activeMode.WithLabelValues(m).Set(v)
	}
}

// RecordPaletteChange records a thruster palette rotation.
func RecordPaletteChange(palette string) {
	paletteChanges.WithLabelValues(palette).Inc()
}

// RecordTransportError records a failed sink write.
func RecordTransportError() {
	transportErrors.Inc()
}

// Handler returns the HTTP handler for the Prometheus metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
