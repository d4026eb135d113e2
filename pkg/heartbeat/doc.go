// Package heartbeat monitors Non-RT liveness through the shared-memory
// heartbeat word and drives SAFE_MODE entry and exit.
package heartbeat
