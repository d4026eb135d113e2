package executive

import (
	"errors"
	"fmt"
	"math"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/5rbit/mxrc/pkg/datastore"
	"github.com/5rbit/mxrc/pkg/events"
	"github.com/5rbit/mxrc/pkg/fsm"
	"github.com/5rbit/mxrc/pkg/heartbeat"
	"github.com/5rbit/mxrc/pkg/log"
	"github.com/5rbit/mxrc/pkg/metrics"
	"github.com/5rbit/mxrc/pkg/rtos"
)

var (
	ErrBadPeriod       = errors.New("executive: action period not a multiple of the minor cycle")
	ErrNotRegisterable = errors.New("executive: registrations only allowed before RUNNING")
)

// Context is handed to every action invocation. Actions must not retain it.
type Context struct {
	Store    *datastore.Store
	Tick     uint64
	NowNS    uint64
	SafeMode bool
}

// ActionFunc is one periodic action. A returned error is logged and
// counted; a panic is converted into an ERROR_OCCUR transition at the
// invocation boundary and never crosses the loop.
type ActionFunc func(*Context) error

type action struct {
	name        string
	periodTicks uint64
	safeMode    bool
	fn          ActionFunc
}

// Config parameterises the executive.
type Config struct {
	// MinorCycleUS is the base period; defaults to 1000.
	MinorCycleUS uint32
	// MajorCycleMultiple is k in major = k * minor; defaults to 10.
	MajorCycleMultiple uint32
	// Priority is the SCHED_FIFO priority; defaults to 80.
	Priority int
	// CPU pins the loop to a core; negative skips pinning.
	CPU int
	// HeartbeatTimeoutNS overrides the Non-RT liveness timeout; zero
	// selects the default.
	HeartbeatTimeoutNS uint64
	// DeadlineMissWindow is the consecutive-miss count past which the
	// machine transitions to ERROR; defaults to 100.
	DeadlineMissWindow uint64
	// SkipRTSetup disables the SCHED_FIFO/affinity/mlock syscalls, for
	// unprivileged test and bench runs.
	SkipRTSetup bool
}

func (c *Config) applyDefaults() {
	if c.MinorCycleUS == 0 {
		c.MinorCycleUS = 1000
	}
	if c.MajorCycleMultiple == 0 {
		c.MajorCycleMultiple = 10
	}
	if c.Priority == 0 {
		c.Priority = 80
	}
	if c.DeadlineMissWindow == 0 {
		c.DeadlineMissWindow = 100
	}
}

// Executive owns the cyclic RT loop: it composes registered periodic
// actions by period, enforces deadlines, monitors Non-RT liveness and
// publishes state transitions. One instance drives one SCHED_FIFO thread;
// all collections are sized before RUNNING so the steady-state loop does
// not allocate.
type Executive struct {
	cfg     Config
	shared  *datastore.Shared
	machine *fsm.Machine
	monitor *heartbeat.Monitor
	sink    events.Sink
	logger  zerolog.Logger

	actions []action
	ctx     Context

	tick           uint64
	deadlineMisses atomic.Uint64
	actionErrors   atomic.Uint64
	consecMisses   uint64

	// Welford running variance over observed start jitter.
	jitterCount uint64
	jitterMean  float64
	jitterM2    float64

	// pendingEvent holds an externally requested transition, applied on
	// the RT thread at the top of the next tick. Last writer wins.
	pendingEvent atomic.Int32
}

const noPendingEvent int32 = -1

// New builds the executive around a shared layout and transitions the
// state machine INIT → READY. The event sink may be nil.
func New(cfg Config, shared *datastore.Shared, sink events.Sink) *Executive {
	cfg.applyDefaults()
	if sink == nil {
		sink = events.NopSink{}
	}

	e := &Executive{
		cfg:    cfg,
		shared: shared,
		sink:   sink,
		logger: log.WithComponent("executive"),
	}
	e.pendingEvent.Store(noPendingEvent)

	e.machine = fsm.New()
	e.machine.SetTransitionCallback(func(from, to fsm.State, ev fsm.Event) {
		e.shared.SetRTStateCode(to.Code())
		metrics.RTState.Set(float64(to.Code()))
		metrics.StateTransitions.Inc()
		e.sink.Publish(events.Event{
			Type:    events.EventRTStateChanged,
			From:    from.String(),
			To:      to.String(),
			Trigger: ev.String(),
		})
	})

	e.monitor = heartbeat.NewMonitor(shared, e.machine, sink, cfg.HeartbeatTimeoutNS)

	// Construction completes initialisation.
	e.machine.HandleEvent(fsm.EventStart)

	return e
}

// Machine exposes the state machine for wiring (the cycle driver raises
// SAFE_MODE_ENTER through it). Callers outside the RT thread must go
// through RequestPause/RequestStop instead of HandleEvent.
func (e *Executive) Machine() *fsm.Machine {
	return e.machine
}

// Monitor exposes the heartbeat monitor.
func (e *Executive) Monitor() *heartbeat.Monitor {
	return e.monitor
}

// State returns the current RT state.
func (e *Executive) State() fsm.State {
	return e.machine.State()
}

// Tick returns the number of completed minor cycles.
func (e *Executive) Tick() uint64 {
	return atomic.LoadUint64(&e.tick)
}

// DeadlineMisses returns the number of cycles that overran their deadline.
func (e *Executive) DeadlineMisses() uint64 {
	return e.deadlineMisses.Load()
}

// ActionErrors returns the number of action invocations that returned an
// error or panicked.
func (e *Executive) ActionErrors() uint64 {
	return e.actionErrors.Load()
}

// JitterStats returns the mean and standard deviation of observed cycle
// start jitter in nanoseconds.
func (e *Executive) JitterStats() (mean, stddev float64) {
	if e.jitterCount < 2 {
		return e.jitterMean, 0
	}
	return e.jitterMean, math.Sqrt(e.jitterM2 / float64(e.jitterCount-1))
}

// RegisterAction adds a periodic action. periodUS must be a positive
// multiple of the minor cycle. safeMode marks the action as runnable in
// SAFE_MODE. Registration is only legal before RUNNING.
func (e *Executive) RegisterAction(name string, periodUS uint32, safeMode bool, fn ActionFunc) error {
	switch e.machine.State() {
	case fsm.StateInit, fsm.StateReady:
	default:
		return ErrNotRegisterable
	}
	if periodUS == 0 || periodUS%e.cfg.MinorCycleUS != 0 {
		return fmt.Errorf("%w: period %dus, minor %dus", ErrBadPeriod, periodUS, e.cfg.MinorCycleUS)
	}
	e.actions = append(e.actions, action{
		name:        name,
		periodTicks: uint64(periodUS / e.cfg.MinorCycleUS),
		safeMode:    safeMode,
		fn:          fn,
	})
	e.logger.Info().
		Str("action", name).
		Uint32("period_us", periodUS).
		Bool("safe_mode", safeMode).
		Msg("Action registered")
	return nil
}

// RequestPause asks the loop to transition RUNNING → PAUSED on its next
// tick. Safe from any goroutine.
func (e *Executive) RequestPause() {
	e.pendingEvent.Store(int32(fsm.EventPause))
}

// RequestResume asks the loop to transition PAUSED → RUNNING.
func (e *Executive) RequestResume() {
	e.pendingEvent.Store(int32(fsm.EventResume))
}

// RequestStop asks the loop to shut down.
func (e *Executive) RequestStop() {
	e.pendingEvent.Store(int32(fsm.EventStop))
}

// RequestReset asks the loop to transition ERROR → INIT.
func (e *Executive) RequestReset() {
	e.pendingEvent.Store(int32(fsm.EventReset))
}

// setupThread applies the RT scheduling configuration to the calling
// thread. Failures are fatal at startup.
func (e *Executive) setupThread() error {
	if e.cfg.SkipRTSetup {
		e.logger.Warn().Msg("RT thread setup skipped")
		return nil
	}
	if err := rtos.SetRTScheduler(rtos.PolicyFIFO, e.cfg.Priority); err != nil {
		return err
	}
	if e.cfg.CPU >= 0 {
		if err := rtos.PinToCPU(e.cfg.CPU); err != nil {
			return err
		}
	}
	if err := rtos.LockAllMemory(); err != nil {
		return err
	}
	e.logger.Info().
		Int("priority", e.cfg.Priority).
		Int("cpu", e.cfg.CPU).
		Msg("RT thread configured")
	return nil
}

// Run executes the cyclic loop until SHUTDOWN. It blocks; callers run it
// on a dedicated goroutine. The goroutine is locked to its OS thread for
// the lifetime of the loop.
func (e *Executive) Run() error {
	unlock := rtos.LockThread()
	defer unlock()

	if err := e.setupThread(); err != nil {
		e.machine.HandleEvent(fsm.EventErrorOccur)
		return fmt.Errorf("rt setup: %w", err)
	}

	if err := e.machine.HandleEvent(fsm.EventStart); err != nil {
		return fmt.Errorf("start from %s: %w", e.machine.State(), err)
	}

	minorNS := uint64(e.cfg.MinorCycleUS) * 1000
	majorTicks := uint64(e.cfg.MajorCycleMultiple)

	deadline := rtos.MonotonicNowNS() + minorNS
	majorStart := rtos.MonotonicNowNS()

	for {
		tStart := rtos.MonotonicNowNS()

		// 1. Liveness bookkeeping.
		e.shared.SetRTHeartbeatNS(tStart)
		e.applyPendingEvent()
		e.monitor.Check(tStart)

		state := e.machine.State()
		if state == fsm.StateShutdown {
			e.logger.Info().Uint64("tick", e.tick).Msg("RT loop draining")
			return nil
		}

		// 2. Start jitter relative to the previous deadline.
		e.observeJitter(tStart, deadline-minorNS)

		// 3. Dispatch due actions per state.
		switch state {
		case fsm.StateRunning:
			e.runDueActions(false, tStart)
		case fsm.StateSafeMode:
			e.runDueActions(true, tStart)
		case fsm.StatePaused, fsm.StateError:
			// Sleep through the cycle; cancellation is observed next tick.
		}

		// 4. Deadline accounting.
		tEnd := rtos.MonotonicNowNS()
		metrics.MinorCycleDuration.Observe(float64(tEnd-tStart) / 1e9)

		if e.tick%majorTicks == majorTicks-1 {
			metrics.MajorCycleDuration.Observe(float64(tEnd-majorStart) / 1e9)
			majorStart = deadline
		}

		if tEnd > deadline {
			e.deadlineMisses.Add(1)
			e.consecMisses++
			metrics.DeadlineMisses.Inc()
			if e.consecMisses > e.cfg.DeadlineMissWindow {
				e.logger.Error().
					Uint64("consecutive_misses", e.consecMisses).
					Msg("Deadline miss window exceeded")
				e.machine.HandleEvent(fsm.EventErrorOccur)
				e.consecMisses = 0
			}
		} else {
			e.consecMisses = 0
			if err := rtos.SleepUntilNS(deadline); err != nil {
				e.logger.Error().Err(err).Msg("Deadline sleep failed")
			}
		}

		atomic.AddUint64(&e.tick, 1)
		deadline += minorNS
	}
}

// observeJitter folds the deviation between the actual and scheduled cycle
// start into the running variance (Welford).
func (e *Executive) observeJitter(tStart, scheduled uint64) {
	var j float64
	if tStart >= scheduled {
		j = float64(tStart - scheduled)
	} else {
		j = float64(scheduled - tStart)
	}
	e.jitterCount++
	d := j - e.jitterMean
	e.jitterMean += d / float64(e.jitterCount)
	e.jitterM2 += d * (j - e.jitterMean)
	metrics.CycleJitter.Observe(j / 1e9)
}

// applyPendingEvent drains an externally requested transition onto the RT
// thread, keeping the state machine single-caller.
func (e *Executive) applyPendingEvent() {
	ev := e.pendingEvent.Swap(noPendingEvent)
	if ev == noPendingEvent {
		return
	}
	e.machine.HandleEvent(fsm.Event(ev))
}

// runDueActions dispatches every action whose period divides the current
// tick. In SAFE_MODE only actions marked safe run.
func (e *Executive) runDueActions(safeOnly bool, nowNS uint64) {
	e.ctx = Context{
		Store:    e.shared.Store(),
		Tick:     e.tick,
		NowNS:    nowNS,
		SafeMode: safeOnly,
	}
	for i := range e.actions {
		a := &e.actions[i]
		if e.tick%a.periodTicks != 0 {
			continue
		}
		if safeOnly && !a.safeMode {
			continue
		}
		e.invoke(a)
	}
}

// invoke is the single point where the panic boundary is crossed: any
// panic inside an action becomes an ERROR_OCCUR transition.
func (e *Executive) invoke(a *action) {
	defer func() {
		if r := recover(); r != nil {
			e.actionErrors.Add(1)
			e.logger.Error().
				Str("action", a.name).
				Interface("panic", r).
				Msg("Action panicked")
			e.machine.HandleEvent(fsm.EventErrorOccur)
		}
	}()
	if err := a.fn(&e.ctx); err != nil {
		e.actionErrors.Add(1)
		e.logger.Error().Str("action", a.name).Err(err).Msg("Action failed")
	}
}
