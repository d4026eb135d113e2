package heartbeat

import (
	"github.com/rs/zerolog"

	"github.com/5rbit/mxrc/pkg/datastore"
	"github.com/5rbit/mxrc/pkg/events"
	"github.com/5rbit/mxrc/pkg/fsm"
	"github.com/5rbit/mxrc/pkg/log"
	"github.com/5rbit/mxrc/pkg/metrics"
)

// DefaultTimeoutNS is the Non-RT liveness timeout. Overridable through the
// executive configuration at build/wire time, not at runtime.
const DefaultTimeoutNS uint64 = 500_000_000

// Monitor watches the Non-RT heartbeat in shared memory and drives the
// state machine into and out of SAFE_MODE. It runs on the RT thread every
// minor cycle and never blocks: any internal failure is counted and leaves
// the state unchanged.
type Monitor struct {
	shared    *datastore.Shared
	machine   *fsm.Machine
	sink      events.Sink
	timeoutNS uint64
	logger    zerolog.Logger

	// enteredAtNS is nonzero while the monitor itself holds the process in
	// SAFE_MODE. SAFE_MODE entered by the cycle driver is not exited here.
	enteredAtNS uint64
	failures    uint64
}

// NewMonitor wires the monitor. A zero timeoutNS selects the default.
func NewMonitor(shared *datastore.Shared, machine *fsm.Machine, sink events.Sink, timeoutNS uint64) *Monitor {
	if timeoutNS == 0 {
		timeoutNS = DefaultTimeoutNS
	}
	if sink == nil {
		sink = events.NopSink{}
	}
	return &Monitor{
		shared:    shared,
		machine:   machine,
		sink:      sink,
		timeoutNS: timeoutNS,
		logger:    log.WithComponent("heartbeat"),
	}
}

// TimeoutNS returns the configured liveness timeout.
func (m *Monitor) TimeoutNS() uint64 {
	return m.timeoutNS
}

// Failures returns the count of internal check failures.
func (m *Monitor) Failures() uint64 {
	return m.failures
}

// Check evaluates Non-RT liveness at nowNS. A heartbeat that was never
// written reads as zero and is treated as timed out.
func (m *Monitor) Check(nowNS uint64) {
	hb := m.shared.NonRTHeartbeatNS()
	alive := hb <= nowNS && nowNS-hb <= m.timeoutNS
	if hb > nowNS {
		// A heartbeat from the future means clock domains diverged; count
		// it but do not escalate.
		m.failures++
		return
	}

	if alive {
		metrics.NonRTHeartbeatAlive.Set(1)
	} else {
		metrics.NonRTHeartbeatAlive.Set(0)
	}

	switch {
	case !alive && m.enteredAtNS == 0 && m.machine.State() != fsm.StateSafeMode:
		if err := m.machine.HandleEvent(fsm.EventSafeModeEnter); err != nil {
			m.failures++
			return
		}
		m.enteredAtNS = nowNS
		metrics.SafeModeEntries.Inc()
		m.logger.Warn().
			Uint64("age_ns", nowNS-hb).
			Uint64("timeout_ns", m.timeoutNS).
			Msg("Non-RT heartbeat lost, entering SAFE_MODE")
		m.sink.Publish(events.Event{
			Type:      events.EventRTSafeModeEntered,
			TimeoutMS: m.timeoutNS / 1_000_000,
			Reason:    "nonrt heartbeat timeout",
		})

	case alive && m.enteredAtNS != 0 && m.machine.State() == fsm.StateSafeMode:
		if err := m.machine.HandleEvent(fsm.EventSafeModeExit); err != nil {
			m.failures++
			return
		}
		downtimeMS := (nowNS - m.enteredAtNS) / 1_000_000
		m.enteredAtNS = 0
		m.logger.Info().
			Uint64("downtime_ms", downtimeMS).
			Msg("Non-RT heartbeat recovered, leaving SAFE_MODE")
		m.sink.Publish(events.Event{
			Type:       events.EventRTSafeModeExited,
			DowntimeMS: downtimeMS,
		})
	}
}
