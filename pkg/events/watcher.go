package events

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/5rbit/mxrc/pkg/datastore"
	"github.com/5rbit/mxrc/pkg/log"
)

// Watcher observes data-store keys from the Non-RT side and publishes
// DATASTORE_CHANGED events once a write is quiescent. It polls the
// per-entry seqlock counters; a key whose counter advanced to a new even
// value since the last poll has a completed write behind it.
//
// A subscriber that writes back to the store while handling a change can
// ping-pong with itself forever. Suppress marks a key as being applied;
// the watcher swallows changes on suppressed keys for the duration.
type Watcher struct {
	store    *datastore.Store
	sink     Sink
	interval time.Duration
	logger   zerolog.Logger

	mu         sync.Mutex
	lastSeq    map[datastore.Key]uint64
	suppressed map[datastore.Key]int

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewWatcher creates a watcher over the given keys. interval is the poll
// period; it bounds notification latency, not correctness.
func NewWatcher(store *datastore.Store, sink Sink, keys []datastore.Key, interval time.Duration) *Watcher {
	last := make(map[datastore.Key]uint64, len(keys))
	for _, k := range keys {
		last[k] = store.Seq(k)
	}
	return &Watcher{
		store:      store,
		sink:       sink,
		interval:   interval,
		logger:     log.WithComponent("watcher"),
		lastSeq:    last,
		suppressed: make(map[datastore.Key]int),
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}
}

// Start begins the poll loop.
func (w *Watcher) Start() {
	go w.run()
}

// Stop terminates the poll loop and waits for it to exit.
func (w *Watcher) Stop() {
	close(w.stopCh)
	<-w.doneCh
}

// Suppress marks the key as being applied by a subscriber; changes on it
// are swallowed until the returned release function is called. Nested
// suppressions stack.
func (w *Watcher) Suppress(k datastore.Key) func() {
	w.mu.Lock()
	w.suppressed[k]++
	w.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			w.mu.Lock()
			if w.suppressed[k] > 0 {
				w.suppressed[k]--
			}
			// Swallow the change the subscriber itself produced.
			w.lastSeq[k] = w.store.Seq(k)
			w.mu.Unlock()
		})
	}
}

func (w *Watcher) run() {
	defer close(w.doneCh)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.poll()
		case <-w.stopCh:
			return
		}
	}
}

func (w *Watcher) poll() {
	w.mu.Lock()
	defer w.mu.Unlock()

	for k, last := range w.lastSeq {
		seq := w.store.Seq(k)
		if seq == last || seq&1 != 0 {
			continue // unchanged, or a write is in flight
		}
		w.lastSeq[k] = seq
		if w.suppressed[k] > 0 {
			continue
		}
		w.sink.Publish(Event{
			Type: EventDataStoreChanged,
			Key:  k,
			Seq:  seq,
		})
	}
}
