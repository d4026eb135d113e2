package fsm

import (
	"errors"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/5rbit/mxrc/pkg/log"
)

// State is the RT process state.
type State uint8

const (
	StateInit State = iota
	StateReady
	StateRunning
	StatePaused
	StateSafeMode
	StateError
	StateShutdown
)

// String returns the canonical state name.
func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateReady:
		return "READY"
	case StateRunning:
		return "RUNNING"
	case StatePaused:
		return "PAUSED"
	case StateSafeMode:
		return "SAFE_MODE"
	case StateError:
		return "ERROR"
	case StateShutdown:
		return "SHUTDOWN"
	default:
		return "UNKNOWN"
	}
}

// Code returns the state as the uint32 mirrored into shared memory.
func (s State) Code() uint32 {
	return uint32(s)
}

// Event triggers a state transition.
type Event uint8

const (
	EventStart Event = iota
	EventPause
	EventResume
	EventStop
	EventErrorOccur
	EventSafeModeEnter
	EventSafeModeExit
	EventReset
)

// String returns the canonical event name.
func (e Event) String() string {
	switch e {
	case EventStart:
		return "START"
	case EventPause:
		return "PAUSE"
	case EventResume:
		return "RESUME"
	case EventStop:
		return "STOP"
	case EventErrorOccur:
		return "ERROR_OCCUR"
	case EventSafeModeEnter:
		return "SAFE_MODE_ENTER"
	case EventSafeModeExit:
		return "SAFE_MODE_EXIT"
	case EventReset:
		return "RESET"
	default:
		return "UNKNOWN"
	}
}

// ErrRejected is returned for an event that is not permitted in the current
// state. The state is unchanged.
var ErrRejected = errors.New("fsm: transition rejected")

// TransitionCallback observes accepted transitions. A single sink; fan-out
// to multiple observers happens behind the events broker.
type TransitionCallback func(from, to State, event Event)

// Machine is the RT state machine. Transitions are a total function of
// (state, event); invalid pairs are rejected without side effects. Callers
// are serialised by convention (only the executive and the cycle driver
// raise events, both on the RT thread).
type Machine struct {
	state    atomic.Uint32
	callback TransitionCallback
	logger   zerolog.Logger
}

// New creates a machine in INIT.
func New() *Machine {
	m := &Machine{logger: log.WithComponent("fsm")}
	m.state.Store(uint32(StateInit))
	return m
}

// State returns the current state. Readable from any thread; transitions
// remain single-caller.
func (m *Machine) State() State {
	return State(m.state.Load())
}

// SetTransitionCallback registers the single transition observer.
func (m *Machine) SetTransitionCallback(cb TransitionCallback) {
	m.callback = cb
}

// next resolves the transition table. Returning the current state means the
// pair is invalid.
func (m *Machine) next(e Event) State {
	switch m.State() {
	case StateInit:
		switch e {
		case EventStart:
			return StateReady
		case EventErrorOccur:
			return StateError
		}
	case StateReady:
		switch e {
		case EventStart:
			return StateRunning
		case EventStop:
			return StateShutdown
		case EventErrorOccur:
			return StateError
		case EventSafeModeEnter:
			return StateSafeMode
		}
	case StateRunning:
		switch e {
		case EventPause:
			return StatePaused
		case EventStop:
			return StateShutdown
		case EventErrorOccur:
			return StateError
		case EventSafeModeEnter:
			return StateSafeMode
		}
	case StatePaused:
		switch e {
		case EventResume:
			return StateRunning
		case EventStop:
			return StateShutdown
		case EventErrorOccur:
			return StateError
		case EventSafeModeEnter:
			return StateSafeMode
		}
	case StateSafeMode:
		switch e {
		case EventSafeModeExit:
			return StateRunning
		case EventStop:
			return StateShutdown
		case EventErrorOccur:
			return StateError
		}
	case StateError:
		switch e {
		case EventReset:
			return StateInit
		case EventStop:
			return StateShutdown
		}
	case StateShutdown:
		// Terminal.
	}
	return m.State()
}

// HandleEvent applies the event. On an accepted transition the state
// changes and the callback fires with (from, to, event); otherwise
// ErrRejected is returned and the state is unchanged.
func (m *Machine) HandleEvent(e Event) error {
	from := m.State()
	to := m.next(e)
	if to == from {
		m.logger.Warn().
			Stringer("state", from).
			Stringer("event", e).
			Msg("Rejected state transition")
		return ErrRejected
	}

	m.state.Store(uint32(to))

	m.logger.Info().
		Stringer("from", from).
		Stringer("to", to).
		Stringer("event", e).
		Msg("State transition")

	if m.callback != nil {
		m.callback(from, to, e)
	}
	return nil
}
