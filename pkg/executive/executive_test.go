package executive

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/5rbit/mxrc/pkg/datastore"
	"github.com/5rbit/mxrc/pkg/events"
	"github.com/5rbit/mxrc/pkg/fsm"
	"github.com/5rbit/mxrc/pkg/rtos"
)

type captureSink struct {
	mu     sync.Mutex
	events []events.Event
}

func (c *captureSink) Publish(ev events.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

func (c *captureSink) count(t events.Type) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, ev := range c.events {
		if ev.Type == t {
			n++
		}
	}
	return n
}

// testConfig keeps cycles fast and skips privileged setup.
func testConfig() Config {
	return Config{
		MinorCycleUS:       1000,
		MajorCycleMultiple: 10,
		SkipRTSetup:        true,
		HeartbeatTimeoutNS: uint64(time.Hour.Nanoseconds()),
	}
}

// start runs the executive with a fresh heartbeat and returns a stop
// function that waits for the loop to drain.
func start(t *testing.T, e *Executive, shared *datastore.Shared) func() {
	t.Helper()
	shared.SetNonRTHeartbeatNS(rtos.MonotonicNowNS())

	done := make(chan error, 1)
	go func() {
		done <- e.Run()
	}()

	return func() {
		e.RequestStop()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("executive did not drain")
		}
	}
}

func TestNewReachesReady(t *testing.T) {
	shared := datastore.NewShared()
	e := New(testConfig(), shared, nil)

	assert.Equal(t, fsm.StateReady, e.State())
	assert.Equal(t, fsm.StateReady.Code(), shared.RTStateCode())
}

func TestRegisterActionValidation(t *testing.T) {
	e := New(testConfig(), datastore.NewShared(), nil)

	noop := func(*Context) error { return nil }
	assert.NoError(t, e.RegisterAction("ok", 5000, false, noop))
	assert.ErrorIs(t, e.RegisterAction("zero", 0, false, noop), ErrBadPeriod)
	assert.ErrorIs(t, e.RegisterAction("fraction", 1500, false, noop), ErrBadPeriod)
}

func TestDispatchByPeriod(t *testing.T) {
	shared := datastore.NewShared()
	sink := &captureSink{}
	e := New(testConfig(), shared, sink)

	var fast, slow atomic.Uint64
	require.NoError(t, e.RegisterAction("fast", 1000, false, func(ctx *Context) error {
		fast.Add(1)
		return nil
	}))
	require.NoError(t, e.RegisterAction("slow", 5000, false, func(ctx *Context) error {
		slow.Add(1)
		return nil
	}))

	stop := start(t, e, shared)

	assert.Eventually(t, func() bool {
		return slow.Load() >= 3
	}, 5*time.Second, time.Millisecond)
	stop()

	assert.Equal(t, fsm.StateShutdown, e.State())
	assert.Greater(t, fast.Load(), slow.Load(), "the 1ms action runs more often than the 5ms action")
	assert.GreaterOrEqual(t, fast.Load(), 3*slow.Load(), "period ratio roughly preserved")
}

func TestActionsSeeStoreAndTick(t *testing.T) {
	shared := datastore.NewShared()
	e := New(testConfig(), shared, nil)

	var sawStore atomic.Bool
	require.NoError(t, e.RegisterAction("probe", 1000, false, func(ctx *Context) error {
		if ctx.Store != nil && !ctx.SafeMode {
			ctx.Store.SetUint64(datastore.KeyFrameCount, ctx.Tick)
			sawStore.Store(true)
		}
		return nil
	}))

	stop := start(t, e, shared)
	assert.Eventually(t, sawStore.Load, 5*time.Second, time.Millisecond)
	stop()

	_, err := shared.Store().GetUint64(datastore.KeyFrameCount)
	assert.NoError(t, err)
}

func TestPauseSkipsActions(t *testing.T) {
	shared := datastore.NewShared()
	e := New(testConfig(), shared, nil)

	var runs atomic.Uint64
	require.NoError(t, e.RegisterAction("counted", 1000, false, func(ctx *Context) error {
		runs.Add(1)
		return nil
	}))

	// Keep the heartbeat fresh for the whole test.
	stopHB := make(chan struct{})
	go func() {
		for {
			select {
			case <-stopHB:
				return
			default:
				shared.SetNonRTHeartbeatNS(rtos.MonotonicNowNS())
				time.Sleep(time.Millisecond)
			}
		}
	}()
	defer close(stopHB)

	stop := start(t, e, shared)
	defer stop()

	assert.Eventually(t, func() bool { return runs.Load() > 0 }, 5*time.Second, time.Millisecond)

	e.RequestPause()
	assert.Eventually(t, func() bool { return e.State() == fsm.StatePaused }, 5*time.Second, time.Millisecond)

	paused := runs.Load()
	time.Sleep(20 * time.Millisecond)
	assert.LessOrEqual(t, runs.Load(), paused+1, "paused loop must not run actions")

	e.RequestResume()
	assert.Eventually(t, func() bool { return runs.Load() > paused+1 }, 5*time.Second, time.Millisecond)
}

func TestHeartbeatTimeoutThenRecovery(t *testing.T) {
	shared := datastore.NewShared()
	sink := &captureSink{}
	cfg := testConfig()
	cfg.HeartbeatTimeoutNS = 50 * 1_000_000 // 50ms

	e := New(cfg, shared, sink)

	var normal, safe atomic.Uint64
	require.NoError(t, e.RegisterAction("normal", 1000, false, func(ctx *Context) error {
		normal.Add(1)
		return nil
	}))
	require.NoError(t, e.RegisterAction("monitorable", 1000, true, func(ctx *Context) error {
		if ctx.SafeMode {
			safe.Add(1)
		}
		return nil
	}))

	stop := start(t, e, shared)
	defer stop()

	// Heartbeat goes stale: SAFE_MODE within the timeout window.
	assert.Eventually(t, func() bool {
		return e.State() == fsm.StateSafeMode
	}, 5*time.Second, time.Millisecond)
	assert.Equal(t, 1, sink.count(events.EventRTSafeModeEntered))

	// Only safe-marked actions run while in SAFE_MODE.
	normalAtEntry := normal.Load()
	assert.Eventually(t, func() bool { return safe.Load() > 0 }, 5*time.Second, time.Millisecond)
	assert.LessOrEqual(t, normal.Load(), normalAtEntry+1)

	// Recovery: heartbeat returns, SAFE_MODE exits.
	shared.SetNonRTHeartbeatNS(rtos.MonotonicNowNS())
	assert.Eventually(t, func() bool {
		return e.State() == fsm.StateRunning
	}, time.Second, time.Millisecond)
	assert.Equal(t, 1, sink.count(events.EventRTSafeModeExited))
}

func TestActionPanicBecomesErrorTransition(t *testing.T) {
	shared := datastore.NewShared()
	sink := &captureSink{}
	e := New(testConfig(), shared, sink)

	require.NoError(t, e.RegisterAction("bomb", 1000, false, func(ctx *Context) error {
		panic("actuator driver exploded")
	}))

	stop := start(t, e, shared)
	defer stop()

	assert.Eventually(t, func() bool {
		return e.State() == fsm.StateError
	}, 5*time.Second, time.Millisecond)
	assert.NotZero(t, e.ActionErrors())
	assert.Equal(t, fsm.StateError.Code(), shared.RTStateCode())
}

func TestStateChangesArePublished(t *testing.T) {
	shared := datastore.NewShared()
	sink := &captureSink{}
	e := New(testConfig(), shared, sink)

	stop := start(t, e, shared)
	stop()

	// INIT→READY at construction, READY→RUNNING at start, →SHUTDOWN at stop.
	assert.GreaterOrEqual(t, sink.count(events.EventRTStateChanged), 3)
}

func TestRegistrationRejectedWhileRunning(t *testing.T) {
	shared := datastore.NewShared()
	e := New(testConfig(), shared, nil)

	stop := start(t, e, shared)
	defer stop()

	assert.Eventually(t, func() bool { return e.State() == fsm.StateRunning }, 5*time.Second, time.Millisecond)
	err := e.RegisterAction("late", 1000, false, func(*Context) error { return nil })
	assert.ErrorIs(t, err, ErrNotRegisterable)
}
