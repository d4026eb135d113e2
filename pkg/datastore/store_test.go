package datastore

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrips(t *testing.T) {
	s := New()

	require.NoError(t, s.SetInt32(KeyRobotStatus, -42))
	i, err := s.GetInt32(KeyRobotStatus)
	require.NoError(t, err)
	assert.Equal(t, int32(-42), i)

	require.NoError(t, s.SetFloat32(KeyRobotSpeed, 1.5))
	f32, err := s.GetFloat32(KeyRobotSpeed)
	require.NoError(t, err)
	assert.Equal(t, float32(1.5), f32)

	require.NoError(t, s.SetFloat64(KeyRobotX, 12.345))
	f64, err := s.GetFloat64(KeyRobotX)
	require.NoError(t, err)
	assert.Equal(t, 12.345, f64)

	require.NoError(t, s.SetUint64(KeyFrameCount, 1<<40))
	u, err := s.GetUint64(KeyFrameCount)
	require.NoError(t, err)
	assert.Equal(t, uint64(1<<40), u)

	require.NoError(t, s.SetString(KeyRobotY, "hello"))
	str, err := s.GetString(KeyRobotY)
	require.NoError(t, err)
	assert.Equal(t, "hello", str)
}

func TestStringTruncation(t *testing.T) {
	s := New()

	long := strings.Repeat("x", 64)
	require.NoError(t, s.SetString(KeyRobotX, long))

	got, err := s.GetString(KeyRobotX)
	require.NoError(t, err)
	assert.Len(t, got, MaxStringLen)
	assert.Equal(t, long[:MaxStringLen], got)
}

func TestInvalidKey(t *testing.T) {
	s := New()
	bad := Key(MaxKeys)

	assert.ErrorIs(t, s.SetInt32(bad, 1), ErrInvalidKey)
	assert.ErrorIs(t, s.SetString(bad, "x"), ErrInvalidKey)

	_, err := s.GetFloat64(bad)
	assert.ErrorIs(t, err, ErrInvalidKey)

	_, err = s.IncrementSeq(bad)
	assert.ErrorIs(t, err, ErrInvalidKey)

	assert.Zero(t, s.Seq(bad))
	assert.Zero(t, s.Timestamp(bad))
	assert.False(t, s.IsFresh(bad, 1<<62))
}

func TestReadFailures(t *testing.T) {
	s := New()

	_, err := s.GetInt32(KeyRobotZ)
	assert.ErrorIs(t, err, ErrNotPresent)

	require.NoError(t, s.SetFloat64(KeyRobotZ, 1.0))
	_, err = s.GetInt32(KeyRobotZ)
	assert.ErrorIs(t, err, ErrTypeMismatch)
}

func TestSeqAdvancesByTwoPerWrite(t *testing.T) {
	s := New()

	before := s.Seq(KeyRobotX)
	require.NoError(t, s.SetFloat64(KeyRobotX, 1.0))
	assert.Equal(t, before+2, s.Seq(KeyRobotX))
	assert.Zero(t, s.Seq(KeyRobotX)%2, "seq must be even after a write")

	// Repeated identical writes keep advancing seq but not the value.
	for i := 0; i < 5; i++ {
		require.NoError(t, s.SetFloat64(KeyRobotX, 1.0))
	}
	assert.Equal(t, before+12, s.Seq(KeyRobotX))
	v, err := s.GetFloat64(KeyRobotX)
	require.NoError(t, err)
	assert.Equal(t, 1.0, v)
}

func TestTimestampMonotonic(t *testing.T) {
	s := New()

	require.NoError(t, s.SetInt32(KeyRobotX, 1))
	ts1 := s.Timestamp(KeyRobotX)
	require.NotZero(t, ts1)

	require.NoError(t, s.SetInt32(KeyRobotX, 2))
	ts2 := s.Timestamp(KeyRobotX)
	assert.GreaterOrEqual(t, ts2, ts1)
}

func TestIsFresh(t *testing.T) {
	s := New()

	assert.False(t, s.IsFresh(KeyRobotX, 1<<62), "never-written key is not fresh")

	require.NoError(t, s.SetInt32(KeyRobotX, 7))
	assert.True(t, s.IsFresh(KeyRobotX, uint64(1e12)))
	assert.False(t, s.IsFresh(KeyRobotX, 0))
}

func TestIncrementSeq(t *testing.T) {
	s := New()

	require.NoError(t, s.SetInt32(KeyRobotX, 3))
	before := s.Seq(KeyRobotX)

	// A paired bump leaves the entry quiescent and the value untouched.
	_, err := s.IncrementSeq(KeyRobotX)
	require.NoError(t, err)
	after, err := s.IncrementSeq(KeyRobotX)
	require.NoError(t, err)
	assert.Equal(t, before+2, after)

	v, err := s.GetInt32(KeyRobotX)
	require.NoError(t, err)
	assert.Equal(t, int32(3), v)
}

func TestAttachRejectsShortBacking(t *testing.T) {
	_, err := Attach(make([]byte, 16))
	assert.ErrorIs(t, err, ErrBadBacking)
}
