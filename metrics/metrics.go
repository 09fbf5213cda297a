package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Frames counts presented frames by run state
	Frames = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fluidsim_frames_total",
			Help: "Frames presented, by run state",
		},
		[]string{"state"},
	)

	// FrameDuration tracks wall time spent submitting one frame
	FrameDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fluidsim_frame_duration_seconds",
			Help:    "Time spent submitting one frame",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		},
	)

	// StepDuration tracks the solver chain alone
	StepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fluidsim_step_duration_seconds",
			Help:    "Time spent submitting the solver passes of one step",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		},
	)

	// TimeStep is the last clamped dt handed to the solver
	TimeStep = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fluidsim_timestep_seconds",
			Help: "Last simulation time step after clamping",
		},
	)

	// Splats counts injected splats by source (pointer, auto, remote)
	Splats = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fluidsim_splats_total",
			Help: "Splats injected, by source",
		},
		[]string{"source"},
	)

	// SplatsDropped counts splats rejected because the queue was full
	SplatsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fluidsim_splats_dropped_total",
			Help: "Splats dropped because the queue was full",
		},
	)

	// Passes counts full-surface draws by program
	Passes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fluidsim_passes_total",
			Help: "Full-surface draws submitted, by program",
		},
		[]string{"program"},
	)

	// Compilations counts program variants built
	Compilations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fluidsim_program_compilations_total",
			Help: "Program variants compiled, by program",
		},
		[]string{"program"},
	)

	// Reallocations counts field reallocations after resolution changes
	Reallocations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fluidsim_reallocations_total",
			Help: "Field reallocations after a resolution change",
		},
	)

	// ConfigReloads counts config file reloads by outcome
	ConfigReloads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fluidsim_config_reloads_total",
			Help: "Config file reloads, by result",
		},
		[]string{"result"},
	)

	// Clients is the number of connected control clients
	Clients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fluidsim_control_clients",
			Help: "Connected websocket control clients",
		},
	)
)

// ObserveSince records the time elapsed since start on h.
func ObserveSince(h prometheus.Observer, start time.Time) {
	h.Observe(time.Since(start).Seconds())
}

// Handler serves the default registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.Handler()
}
