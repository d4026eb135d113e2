/*
Package rtos wraps the Linux primitives the real-time loop needs:
SCHED_FIFO scheduling, CPU pinning, memory locking, the monotonic clock and
absolute-deadline sleep via clock_nanosleep(TIMER_ABSTIME).

All operations act on the calling thread. The executive calls LockThread
before applying the scheduling configuration so the goroutine cannot be
migrated off the configured thread.
*/
package rtos
