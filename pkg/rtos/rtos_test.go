package rtos

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMonotonicNowNeverRewinds(t *testing.T) {
	prev := MonotonicNowNS()
	require.NotZero(t, prev)

	for i := 0; i < 1000; i++ {
		now := MonotonicNowNS()
		assert.GreaterOrEqual(t, now, prev)
		prev = now
	}
}

func TestSleepUntilAbsoluteDeadline(t *testing.T) {
	const delay = 20 * time.Millisecond

	deadline := MonotonicNowNS() + uint64(delay.Nanoseconds())
	require.NoError(t, SleepUntilNS(deadline))
	assert.GreaterOrEqual(t, MonotonicNowNS(), deadline)
}

func TestSleepUntilPastDeadlineReturnsImmediately(t *testing.T) {
	start := MonotonicNowNS()
	require.NoError(t, SleepUntilNS(start-1))
	assert.Less(t, MonotonicNowNS()-start, uint64(time.Second.Nanoseconds()))
}

func TestSetRTSchedulerRejectsBadPriority(t *testing.T) {
	assert.Error(t, SetRTScheduler(PolicyFIFO, 0))
	assert.Error(t, SetRTScheduler(PolicyFIFO, 100))
}
