/*
Package executive implements the cyclic real-time scheduler.

The loop runs on a single SCHED_FIFO thread pinned to one core with all
memory locked. Registered periodic actions name a period that is a
multiple of the minor cycle; an action runs on ticks its period divides.
Every tick the loop refreshes the RT heartbeat, evaluates Non-RT liveness,
dispatches due actions for the current state (all of them in RUNNING, only
safe-marked ones in SAFE_MODE, none in PAUSED or ERROR), and sleeps to the
next absolute deadline. Overruns are recorded as deadline misses and the
loop keeps going; a long consecutive run of misses transitions the state
machine to ERROR.

No allocation, locking or blocking happens in steady state apart from the
deadline sleep. External control arrives through Request* methods, which
stage a transition the loop applies on its own thread.
*/
package executive
