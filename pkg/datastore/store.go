package datastore

import (
	"encoding/binary"
	"errors"
	"math"
	"runtime"
	"sync/atomic"
	"unsafe"

	"github.com/5rbit/mxrc/pkg/rtos"
)

// Type discriminates the value stored under a key.
type Type uint32

const (
	TypeNone Type = iota
	TypeInt32
	TypeFloat32
	TypeFloat64
	TypeUint64
	TypeString // at most 31 bytes plus NUL
)

// String returns the type name.
func (t Type) String() string {
	switch t {
	case TypeNone:
		return "NONE"
	case TypeInt32:
		return "INT32"
	case TypeFloat32:
		return "FLOAT"
	case TypeFloat64:
		return "DOUBLE"
	case TypeUint64:
		return "UINT64"
	case TypeString:
		return "STRING32"
	default:
		return "UNKNOWN"
	}
}

// Entry layout inside the backing block. Every entry has the same stride so
// indexing by key is O(1) and the layout is identical on both sides of the
// shared-memory boundary.
//
//	offset  0  value     32 bytes (union of all variants)
//	offset 32  type      uint32
//	offset 36  padding   uint32
//	offset 40  timestamp uint64, CLOCK_MONOTONIC ns of last write
//	offset 48  seq       uint64, seqlock counter (even = quiescent)
const (
	valueSize   = 32
	typeOffset  = 32
	tsOffset    = 40
	seqOffset   = 48
	entryStride = 56

	// MaxStringLen is the longest string payload; the NUL terminator
	// occupies the 32nd byte.
	MaxStringLen = 31

	// Size is the backing block size for a full store.
	Size = MaxKeys * entryStride
)

var (
	ErrInvalidKey   = errors.New("datastore: invalid key")
	ErrNotPresent   = errors.New("datastore: key never written")
	ErrTypeMismatch = errors.New("datastore: stored type mismatch")
	ErrBadBacking   = errors.New("datastore: backing block unusable")
)

// Store is a fixed-capacity typed value store over a raw byte block. Each
// entry is guarded by its own seqlock: one logical writer per key, any
// number of readers, and readers never block writers. The block may live on
// the heap or inside a shared-memory region; the layout is the same.
type Store struct {
	buf []byte

	nowNS func() uint64
}

// New allocates a heap-backed store. The backing array is taken from a
// []uint64 so the seq words are 8-byte aligned for atomic access.
func New() *Store {
	words := make([]uint64, Size/8)
	buf := unsafe.Slice((*byte)(unsafe.Pointer(&words[0])), Size)
	s, _ := Attach(buf)
	return s
}

// Attach views an existing block (typically a shared-memory payload) as a
// store. The block must be at least Size bytes and 8-byte aligned; it is
// not zeroed, so attaching to a live region preserves its contents.
func Attach(buf []byte) (*Store, error) {
	if len(buf) < Size {
		return nil, ErrBadBacking
	}
	if uintptr(unsafe.Pointer(&buf[0]))%8 != 0 {
		return nil, ErrBadBacking
	}
	return &Store{buf: buf[:Size], nowNS: rtos.MonotonicNowNS}, nil
}

func (s *Store) entry(k Key) []byte {
	off := int(k) * entryStride
	return s.buf[off : off+entryStride]
}

func (s *Store) seqWord(k Key) *uint64 {
	return (*uint64)(unsafe.Pointer(&s.buf[int(k)*entryStride+seqOffset]))
}

// beginWrite makes the entry's seq odd. Writers on a given key are
// serialised by band ownership, so no CAS is needed.
func (s *Store) beginWrite(k Key) {
	atomic.AddUint64(s.seqWord(k), 1)
}

// endWrite stamps type and timestamp and makes seq even again.
func (s *Store) endWrite(k Key, t Type) {
	e := s.entry(k)
	binary.LittleEndian.PutUint32(e[typeOffset:], uint32(t))
	binary.LittleEndian.PutUint64(e[tsOffset:], s.nowNS())
	atomic.AddUint64(s.seqWord(k), 1)
}

// SetInt32 stores an INT32 value under key.
func (s *Store) SetInt32(k Key, v int32) error {
	if !k.Valid() {
		return ErrInvalidKey
	}
	s.beginWrite(k)
	binary.LittleEndian.PutUint32(s.entry(k), uint32(v))
	s.endWrite(k, TypeInt32)
	return nil
}

// SetFloat32 stores a FLOAT value under key.
func (s *Store) SetFloat32(k Key, v float32) error {
	if !k.Valid() {
		return ErrInvalidKey
	}
	s.beginWrite(k)
	binary.LittleEndian.PutUint32(s.entry(k), math.Float32bits(v))
	s.endWrite(k, TypeFloat32)
	return nil
}

// SetFloat64 stores a DOUBLE value under key.
func (s *Store) SetFloat64(k Key, v float64) error {
	if !k.Valid() {
		return ErrInvalidKey
	}
	s.beginWrite(k)
	binary.LittleEndian.PutUint64(s.entry(k), math.Float64bits(v))
	s.endWrite(k, TypeFloat64)
	return nil
}

// SetUint64 stores a UINT64 value under key.
func (s *Store) SetUint64(k Key, v uint64) error {
	if !k.Valid() {
		return ErrInvalidKey
	}
	s.beginWrite(k)
	binary.LittleEndian.PutUint64(s.entry(k), v)
	s.endWrite(k, TypeUint64)
	return nil
}

// SetString stores a STRING32 value under key. Inputs longer than
// MaxStringLen bytes are truncated; the NUL terminator is always written.
func (s *Store) SetString(k Key, v string) error {
	if !k.Valid() {
		return ErrInvalidKey
	}
	if len(v) > MaxStringLen {
		v = v[:MaxStringLen]
	}
	s.beginWrite(k)
	e := s.entry(k)
	n := copy(e[:MaxStringLen], v)
	for i := n; i < valueSize; i++ {
		e[i] = 0
	}
	s.endWrite(k, TypeString)
	return nil
}

// snapshot copies value, type and timestamp out of the entry under the
// seqlock read protocol. The double seq check is mandatory even for
// single-word values: a torn 32-byte string is otherwise indistinguishable
// from a complete one.
func (s *Store) snapshot(k Key, value *[valueSize]byte) (Type, uint64) {
	e := s.entry(k)
	seq := s.seqWord(k)
	for {
		s1 := atomic.LoadUint64(seq)
		if s1&1 != 0 {
			runtime.Gosched()
			continue
		}
		copy(value[:], e[:valueSize])
		t := Type(binary.LittleEndian.Uint32(e[typeOffset:]))
		ts := binary.LittleEndian.Uint64(e[tsOffset:])
		s2 := atomic.LoadUint64(seq)
		if s1 == s2 {
			return t, ts
		}
	}
}

func (s *Store) read(k Key, want Type, value *[valueSize]byte) error {
	if !k.Valid() {
		return ErrInvalidKey
	}
	t, _ := s.snapshot(k, value)
	switch {
	case t == TypeNone:
		return ErrNotPresent
	case t != want:
		return ErrTypeMismatch
	}
	return nil
}

// GetInt32 reads the INT32 value stored under key.
func (s *Store) GetInt32(k Key) (int32, error) {
	var v [valueSize]byte
	if err := s.read(k, TypeInt32, &v); err != nil {
		return 0, err
	}
	return int32(binary.LittleEndian.Uint32(v[:])), nil
}

// GetFloat32 reads the FLOAT value stored under key.
func (s *Store) GetFloat32(k Key) (float32, error) {
	var v [valueSize]byte
	if err := s.read(k, TypeFloat32, &v); err != nil {
		return 0, err
	}
	return math.Float32frombits(binary.LittleEndian.Uint32(v[:])), nil
}

// GetFloat64 reads the DOUBLE value stored under key.
func (s *Store) GetFloat64(k Key) (float64, error) {
	var v [valueSize]byte
	if err := s.read(k, TypeFloat64, &v); err != nil {
		return 0, err
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(v[:])), nil
}

// GetUint64 reads the UINT64 value stored under key.
func (s *Store) GetUint64(k Key) (uint64, error) {
	var v [valueSize]byte
	if err := s.read(k, TypeUint64, &v); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(v[:]), nil
}

// GetString reads the STRING32 value stored under key.
func (s *Store) GetString(k Key) (string, error) {
	var v [valueSize]byte
	if err := s.read(k, TypeString, &v); err != nil {
		return "", err
	}
	n := 0
	for n < valueSize && v[n] != 0 {
		n++
	}
	return string(v[:n]), nil
}

// IncrementSeq bumps the entry's seq counter without touching value or
// type, and returns the new count. Hint-only cross-process signalling; a
// caller that bumps an odd number of times leaves readers spinning, so it
// must always pair its bumps.
func (s *Store) IncrementSeq(k Key) (uint64, error) {
	if !k.Valid() {
		return 0, ErrInvalidKey
	}
	return atomic.AddUint64(s.seqWord(k), 1), nil
}

// Seq returns the entry's current seq counter.
func (s *Store) Seq(k Key) uint64 {
	if !k.Valid() {
		return 0
	}
	return atomic.LoadUint64(s.seqWord(k))
}

// Timestamp returns the CLOCK_MONOTONIC nanoseconds of the last write, or
// zero if the key was never written.
func (s *Store) Timestamp(k Key) uint64 {
	if !k.Valid() {
		return 0
	}
	var v [valueSize]byte
	_, ts := s.snapshot(k, &v)
	return ts
}

// IsFresh reports whether the key holds a value written within maxAgeNS.
func (s *Store) IsFresh(k Key, maxAgeNS uint64) bool {
	if !k.Valid() {
		return false
	}
	var v [valueSize]byte
	t, ts := s.snapshot(k, &v)
	if t == TypeNone {
		return false
	}
	return s.nowNS()-ts <= maxAgeNS
}

// TypeOf returns the current type tag for the key.
func (s *Store) TypeOf(k Key) Type {
	if !k.Valid() {
		return TypeNone
	}
	var v [valueSize]byte
	t, _ := s.snapshot(k, &v)
	return t
}
