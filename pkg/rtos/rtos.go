package rtos

import (
	"fmt"
	"runtime"

	"golang.org/x/sys/unix"
)

// Scheduling policies accepted by SetRTScheduler.
const (
	PolicyFIFO       = unix.SCHED_FIFO
	PolicyRoundRobin = unix.SCHED_RR
)

// SetRTScheduler configures the calling thread for real-time scheduling.
// priority must be in 1..99 for SCHED_FIFO/SCHED_RR.
// The caller must have pinned its goroutine with runtime.LockOSThread first,
// otherwise the Go scheduler may migrate it to an unconfigured thread.
func SetRTScheduler(policy int, priority int) error {
	if priority < 1 || priority > 99 {
		return fmt.Errorf("rt priority %d out of range 1..99", priority)
	}

	attr := unix.SchedAttr{
		Size:     unix.SizeofSchedAttr,
		Policy:   uint32(policy),
		Priority: uint32(priority),
	}
	if err := unix.SchedSetAttr(0, &attr, 0); err != nil {
		return fmt.Errorf("sched_setattr(policy=%d, priority=%d): %w", policy, priority, err)
	}
	return nil
}

// PinToCPU restricts the calling thread to a single CPU core.
func PinToCPU(core int) error {
	var set unix.CPUSet
	set.Zero()
	set.Set(core)
	if err := unix.SchedSetaffinity(0, &set); err != nil {
		return fmt.Errorf("sched_setaffinity(core=%d): %w", core, err)
	}
	return nil
}

// LockAllMemory locks current and future mappings into RAM to prevent paging.
func LockAllMemory() error {
	if err := unix.Mlockall(unix.MCL_CURRENT | unix.MCL_FUTURE); err != nil {
		return fmt.Errorf("mlockall: %w", err)
	}
	return nil
}

// MonotonicNowNS returns CLOCK_MONOTONIC in nanoseconds. It never rewinds
// and is unaffected by wall-clock adjustments.
func MonotonicNowNS() uint64 {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts); err != nil {
		// clock_gettime on a valid clockid cannot fail on Linux.
		return 0
	}
	return uint64(ts.Sec)*1_000_000_000 + uint64(ts.Nsec)
}

// SleepUntilNS blocks until the absolute CLOCK_MONOTONIC deadline.
// Signal wakeups are benign: the sleep is resumed until the deadline passes.
func SleepUntilNS(deadlineNS uint64) error {
	ts := unix.Timespec{
		Sec:  int64(deadlineNS / 1_000_000_000),
		Nsec: int64(deadlineNS % 1_000_000_000),
	}
	for {
		err := unix.ClockNanosleep(unix.CLOCK_MONOTONIC, unix.TIMER_ABSTIME, &ts, nil)
		if err == nil {
			return nil
		}
		if err == unix.EINTR {
			continue
		}
		return fmt.Errorf("clock_nanosleep(deadline=%d): %w", deadlineNS, err)
	}
}

// LockThread pins the calling goroutine to its OS thread. Returns the
// unlock function; the executive defers it until its loop returns.
func LockThread() func() {
	runtime.LockOSThread()
	return runtime.UnlockOSThread
}
