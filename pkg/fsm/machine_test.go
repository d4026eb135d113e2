package fsm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// drive walks the machine into the wanted state through valid events.
func drive(t *testing.T, m *Machine, path ...Event) {
	t.Helper()
	for _, e := range path {
		require.NoError(t, m.HandleEvent(e))
	}
}

func TestTransitionTable(t *testing.T) {
	tests := []struct {
		name  string
		setup []Event
		event Event
		want  State
		ok    bool
	}{
		{"init start", nil, EventStart, StateReady, true},
		{"init error", nil, EventErrorOccur, StateError, true},
		{"init pause rejected", nil, EventPause, StateInit, false},
		{"init stop rejected", nil, EventStop, StateInit, false},

		{"ready start", []Event{EventStart}, EventStart, StateRunning, true},
		{"ready stop", []Event{EventStart}, EventStop, StateShutdown, true},
		{"ready safe mode", []Event{EventStart}, EventSafeModeEnter, StateSafeMode, true},
		{"ready resume rejected", []Event{EventStart}, EventResume, StateReady, false},

		{"running pause", []Event{EventStart, EventStart}, EventPause, StatePaused, true},
		{"running stop", []Event{EventStart, EventStart}, EventStop, StateShutdown, true},
		{"running error", []Event{EventStart, EventStart}, EventErrorOccur, StateError, true},
		{"running safe mode", []Event{EventStart, EventStart}, EventSafeModeEnter, StateSafeMode, true},
		{"running start rejected", []Event{EventStart, EventStart}, EventStart, StateRunning, false},
		{"running safe exit rejected", []Event{EventStart, EventStart}, EventSafeModeExit, StateRunning, false},

		{"paused resume", []Event{EventStart, EventStart, EventPause}, EventResume, StateRunning, true},
		{"paused stop", []Event{EventStart, EventStart, EventPause}, EventStop, StateShutdown, true},
		{"paused safe mode", []Event{EventStart, EventStart, EventPause}, EventSafeModeEnter, StateSafeMode, true},
		{"paused pause rejected", []Event{EventStart, EventStart, EventPause}, EventPause, StatePaused, false},

		{"safe mode exit", []Event{EventStart, EventStart, EventSafeModeEnter}, EventSafeModeExit, StateRunning, true},
		{"safe mode stop", []Event{EventStart, EventStart, EventSafeModeEnter}, EventStop, StateShutdown, true},
		{"safe mode error", []Event{EventStart, EventStart, EventSafeModeEnter}, EventErrorOccur, StateError, true},
		{"safe mode enter rejected", []Event{EventStart, EventStart, EventSafeModeEnter}, EventSafeModeEnter, StateSafeMode, false},

		{"error reset", []Event{EventErrorOccur}, EventReset, StateInit, true},
		{"error stop", []Event{EventErrorOccur}, EventStop, StateShutdown, true},
		{"error start rejected", []Event{EventErrorOccur}, EventStart, StateError, false},

		{"shutdown terminal", []Event{EventStart, EventStop}, EventStart, StateShutdown, false},
		{"shutdown reset rejected", []Event{EventStart, EventStop}, EventReset, StateShutdown, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New()
			drive(t, m, tt.setup...)

			err := m.HandleEvent(tt.event)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrRejected)
			}
			assert.Equal(t, tt.want, m.State())
		})
	}
}

func TestTransitionCallback(t *testing.T) {
	m := New()

	type transition struct {
		from, to State
		event    Event
	}
	var seen []transition
	m.SetTransitionCallback(func(from, to State, event Event) {
		seen = append(seen, transition{from, to, event})
	})

	require.NoError(t, m.HandleEvent(EventStart))
	require.NoError(t, m.HandleEvent(EventStart))
	assert.Error(t, m.HandleEvent(EventResume)) // rejected, no callback

	require.Len(t, seen, 2)
	assert.Equal(t, transition{StateInit, StateReady, EventStart}, seen[0])
	assert.Equal(t, transition{StateReady, StateRunning, EventStart}, seen[1])
}

func TestStateStrings(t *testing.T) {
	assert.Equal(t, "SAFE_MODE", StateSafeMode.String())
	assert.Equal(t, "SAFE_MODE_ENTER", EventSafeModeEnter.String())
	assert.Equal(t, uint32(StateRunning), StateRunning.Code())
}
