/*
Package shm manages the POSIX shared-memory region the RT and Non-RT
processes communicate through.

The RT process owns the region lifecycle: it calls Create at startup and
Unlink at shutdown. Non-RT processes call Open, which validates the magic
number and layout version stamped into the first 16 bytes and the region
size, so a reader can never misinterpret a region built by an incompatible
build. Payload returns the bytes after the header; pkg/datastore lays the
data store and the heartbeat words into that payload.
*/
package shm
