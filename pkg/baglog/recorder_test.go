package baglog

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/5rbit/mxrc/pkg/datastore"
)

func newTestRecorder(t *testing.T, cfg Config, keys []TrackedKey) (*Recorder, *datastore.Store) {
	t.Helper()
	if cfg.Path == "" {
		cfg.Path = filepath.Join(t.TempDir(), "test.bag")
	}
	store := datastore.New()
	r, err := NewRecorder(cfg, store, keys)
	require.NoError(t, err)
	return r, store
}

func TestSweepRecordsWrittenKeys(t *testing.T) {
	keys := []TrackedKey{
		{Key: datastore.KeyRobotX, Name: "robot_x"},
		{Key: datastore.KeyRobotStatus, Name: "robot_status"},
		{Key: datastore.KeyRobotY, Name: "robot_y"}, // never written
	}
	r, store := newTestRecorder(t, Config{}, keys)
	defer r.db.Close()

	require.NoError(t, store.SetFloat64(datastore.KeyRobotX, 3.25))
	require.NoError(t, store.SetString(datastore.KeyRobotStatus, "picking"))

	require.NoError(t, r.sweep())

	xs, err := r.Records("robot_x")
	require.NoError(t, err)
	require.Len(t, xs, 1)
	assert.Equal(t, "DOUBLE", xs[0].Type)
	assert.Equal(t, 3.25, xs[0].Number)
	assert.NotZero(t, xs[0].TimestampNS)

	status, err := r.Records("robot_status")
	require.NoError(t, err)
	require.Len(t, status, 1)
	assert.Equal(t, "STRING32", status[0].Type)
	assert.Equal(t, "picking", status[0].Text)

	ys, err := r.Records("robot_y")
	require.NoError(t, err)
	assert.Empty(t, ys, "unwritten keys are skipped")
}

func TestRotationDropsOldestRecords(t *testing.T) {
	keys := []TrackedKey{{Key: datastore.KeyRobotX, Name: "robot_x"}}
	r, store := newTestRecorder(t, Config{MaxRecordsPerKey: 3}, keys)
	defer r.db.Close()

	for i := 0; i < 6; i++ {
		require.NoError(t, store.SetFloat64(datastore.KeyRobotX, float64(i)))
		require.NoError(t, r.sweep())
	}

	records, err := r.Records("robot_x")
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, 3.0, records[0].Number, "oldest records rotated out")
	assert.Equal(t, 5.0, records[2].Number)
}

func TestStartStopLoop(t *testing.T) {
	keys := []TrackedKey{{Key: datastore.KeyRobotX, Name: "robot_x"}}
	r, store := newTestRecorder(t, Config{Interval: 2 * time.Millisecond}, keys)

	require.NoError(t, store.SetFloat64(datastore.KeyRobotX, 7.0))

	r.Start()
	assert.Eventually(t, func() bool {
		return r.Written() >= 2
	}, time.Second, time.Millisecond)
	require.NoError(t, r.Stop())
}

func TestRecordsUnknownBucket(t *testing.T) {
	r, _ := newTestRecorder(t, Config{}, nil)
	defer r.db.Close()

	_, err := r.Records("nope")
	assert.Error(t, err)
}
