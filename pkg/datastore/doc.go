/*
Package datastore implements the lock-free typed value store shared between
the RT and Non-RT processes.

The store is a fixed array of MaxKeys uniform-stride entries over a raw
byte block. Each entry carries a 32-byte value union, a type tag, the
monotonic timestamp of the last write and a per-entry seqlock counter.
Writers bump the counter to odd, write, and bump it back to even; readers
copy the entry between two counter loads and retry if the counter changed
or was odd. Writers are wait-free, readers never block writers.

Writer serialisation is by convention, not by CAS: the RT loop owns the
sensor and status key bands, Non-RT owns the command band. Two writers on
the same key are a protocol violation and corrupt that entry's seqlock.

The same layout works heap-backed (New, for tests and in-process use) and
over a shared-memory payload (Attach / AttachShared). AttachShared adds the
control block holding the heartbeat words and the mirrored RT state.
*/
package datastore
