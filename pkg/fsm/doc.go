// Package fsm implements the finite state machine governing the RT
// process: INIT, READY, RUNNING, PAUSED, SAFE_MODE, ERROR and SHUTDOWN.
package fsm
