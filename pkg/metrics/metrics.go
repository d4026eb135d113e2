package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RT cycle metrics
	MinorCycleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mxrc_rt_minor_cycle_seconds",
			Help:    "Execution time of one minor cycle",
			Buckets: prometheus.ExponentialBuckets(1e-6, 2, 16),
		},
	)

	MajorCycleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mxrc_rt_major_cycle_seconds",
			Help:    "Execution time of one major cycle",
			Buckets: prometheus.ExponentialBuckets(1e-5, 2, 16),
		},
	)

	CycleJitter = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mxrc_rt_cycle_jitter_seconds",
			Help:    "Deviation of cycle start from its deadline",
			Buckets: prometheus.ExponentialBuckets(1e-7, 2, 16),
		},
	)

	DeadlineMisses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mxrc_rt_deadline_misses_total",
			Help: "Cycles that finished after their deadline",
		},
	)

	// State machine metrics
	RTState = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "mxrc_rt_state",
			Help: "Current RT state machine state code",
		},
	)

	StateTransitions = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mxrc_rt_state_transitions_total",
			Help: "Accepted RT state machine transitions",
		},
	)

	SafeModeEntries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mxrc_rt_safe_mode_entries_total",
			Help: "Times the RT process entered SAFE_MODE",
		},
	)

	// Heartbeat metrics
	NonRTHeartbeatAlive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "mxrc_nonrt_heartbeat_alive",
			Help: "Whether the Non-RT heartbeat is within the timeout (1 = alive)",
		},
	)

	// EtherCAT metrics
	EtherCATCycles = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mxrc_ethercat_cycles_total",
			Help: "Completed EtherCAT cycles",
		},
	)

	EtherCATErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mxrc_ethercat_errors_total",
			Help: "EtherCAT failures by kind",
		},
		[]string{"kind"},
	)

	MotorCommands = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mxrc_ethercat_motor_commands_total",
			Help: "Motor commands accepted for publication",
		},
	)

	SensorReads = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mxrc_ethercat_sensor_reads_total",
			Help: "Successful sensor reads into the data store",
		},
	)
)

func init() {
	prometheus.MustRegister(
		MinorCycleDuration,
		MajorCycleDuration,
		CycleJitter,
		DeadlineMisses,
		RTState,
		StateTransitions,
		SafeModeEntries,
		NonRTHeartbeatAlive,
		EtherCATCycles,
		EtherCATErrors,
		MotorCommands,
		SensorReads,
	)
}

// Handler returns the Prometheus metrics HTTP handler. Served off the RT
// path by the daemon when --metrics-addr is set.
func Handler() http.Handler {
	return promhttp.Handler()
}
