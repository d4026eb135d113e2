package events

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/5rbit/mxrc/pkg/datastore"
)

type testSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *testSink) Publish(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *testSink) forKey(k datastore.Key) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Event
	for _, ev := range s.events {
		if ev.Type == EventDataStoreChanged && ev.Key == k {
			out = append(out, ev)
		}
	}
	return out
}

func TestWatcherPublishesQuiescentWrites(t *testing.T) {
	store := datastore.New()
	sink := &testSink{}

	w := NewWatcher(store, sink, []datastore.Key{datastore.KeyRobotX}, time.Millisecond)
	w.Start()
	defer w.Stop()

	require.NoError(t, store.SetFloat64(datastore.KeyRobotX, 1.0))

	assert.Eventually(t, func() bool {
		return len(sink.forKey(datastore.KeyRobotX)) == 1
	}, time.Second, time.Millisecond)

	evs := sink.forKey(datastore.KeyRobotX)
	assert.Equal(t, store.Seq(datastore.KeyRobotX), evs[0].Seq)
}

func TestWatcherIgnoresUnregisteredKeys(t *testing.T) {
	store := datastore.New()
	sink := &testSink{}

	w := NewWatcher(store, sink, []datastore.Key{datastore.KeyRobotX}, time.Millisecond)
	w.Start()
	defer w.Stop()

	require.NoError(t, store.SetFloat64(datastore.KeyRobotY, 2.0))
	time.Sleep(20 * time.Millisecond)

	assert.Empty(t, sink.forKey(datastore.KeyRobotY))
}

func TestWatcherCoalescesBurst(t *testing.T) {
	store := datastore.New()
	sink := &testSink{}

	w := NewWatcher(store, sink, []datastore.Key{datastore.KeyRobotX}, 5*time.Millisecond)
	w.Start()
	defer w.Stop()

	for i := 0; i < 100; i++ {
		store.SetInt32(datastore.KeyRobotX, int32(i))
	}

	assert.Eventually(t, func() bool {
		return len(sink.forKey(datastore.KeyRobotX)) >= 1
	}, time.Second, time.Millisecond)

	// A poll-based watcher reports at most one change per sweep.
	assert.LessOrEqual(t, len(sink.forKey(datastore.KeyRobotX)), 3)
}

func TestSuppressSwallowsReentrantWrite(t *testing.T) {
	store := datastore.New()
	sink := &testSink{}

	w := NewWatcher(store, sink, []datastore.Key{datastore.KeyRobotX}, time.Millisecond)
	w.Start()
	defer w.Stop()

	// A subscriber applying an observed change writes the key back; the
	// suppression window keeps that from echoing forever.
	release := w.Suppress(datastore.KeyRobotX)
	require.NoError(t, store.SetFloat64(datastore.KeyRobotX, 3.0))
	time.Sleep(20 * time.Millisecond)
	release()

	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, sink.forKey(datastore.KeyRobotX))

	// Writes after release are visible again.
	require.NoError(t, store.SetFloat64(datastore.KeyRobotX, 4.0))
	assert.Eventually(t, func() bool {
		return len(sink.forKey(datastore.KeyRobotX)) == 1
	}, time.Second, time.Millisecond)
}
