package baglog

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	bolt "go.etcd.io/bbolt"

	"github.com/5rbit/mxrc/pkg/datastore"
	"github.com/5rbit/mxrc/pkg/log"
	"github.com/5rbit/mxrc/pkg/rtos"
)

// TrackedKey names a data-store key to record. Name becomes the bolt
// bucket the samples land in.
type TrackedKey struct {
	Key  datastore.Key
	Name string
}

// Sample is one recorded observation.
type Sample struct {
	TimestampNS uint64  `json:"ts_ns"`
	Type        string  `json:"type"`
	Number      float64 `json:"number,omitempty"`
	Text        string  `json:"text,omitempty"`
}

// Config parameterises the recorder.
type Config struct {
	Path string
	// Interval between sampling sweeps; defaults to 100ms.
	Interval time.Duration
	// MaxRecordsPerKey rotates a bucket by dropping its oldest records;
	// zero disables rotation.
	MaxRecordsPerKey int
}

// Recorder periodically samples data-store keys into a bolt file. It runs
// entirely on the Non-RT side; its only contact with the RT path is the
// store's lock-free read protocol.
type Recorder struct {
	cfg    Config
	store  *datastore.Store
	keys   []TrackedKey
	db     *bolt.DB
	logger zerolog.Logger

	stopCh chan struct{}
	doneCh chan struct{}

	written atomic.Uint64
}

// NewRecorder opens the bag file and prepares the tracked buckets.
func NewRecorder(cfg Config, store *datastore.Store, keys []TrackedKey) (*Recorder, error) {
	if cfg.Interval <= 0 {
		cfg.Interval = 100 * time.Millisecond
	}

	db, err := bolt.Open(cfg.Path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bag %q: %w", cfg.Path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, k := range keys {
			if _, err := tx.CreateBucketIfNotExists([]byte(k.Name)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("prepare bag buckets: %w", err)
	}

	return &Recorder{
		cfg:    cfg,
		store:  store,
		keys:   keys,
		db:     db,
		logger: log.WithComponent("baglog"),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}, nil
}

// Start begins the sampling loop.
func (r *Recorder) Start() {
	go r.run()
}

// Stop terminates sampling and closes the bag file.
func (r *Recorder) Stop() error {
	close(r.stopCh)
	<-r.doneCh
	return r.db.Close()
}

// Written returns the number of samples persisted.
func (r *Recorder) Written() uint64 {
	return r.written.Load()
}

func (r *Recorder) run() {
	defer close(r.doneCh)
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := r.sweep(); err != nil {
				r.logger.Error().Err(err).Msg("Bag sweep failed")
			}
		case <-r.stopCh:
			return
		}
	}
}

// sweep samples every tracked key once. Keys that were never written are
// skipped silently.
func (r *Recorder) sweep() error {
	nowNS := rtos.MonotonicNowNS()

	return r.db.Update(func(tx *bolt.Tx) error {
		for _, k := range r.keys {
			sample, ok := r.sample(k.Key, nowNS)
			if !ok {
				continue
			}

			bucket := tx.Bucket([]byte(k.Name))
			if bucket == nil {
				continue
			}

			payload, err := json.Marshal(sample)
			if err != nil {
				return err
			}

			var recKey [8]byte
			binary.BigEndian.PutUint64(recKey[:], nowNS)
			if err := bucket.Put(recKey[:], payload); err != nil {
				return err
			}
			r.written.Add(1)

			if r.cfg.MaxRecordsPerKey > 0 {
				cur := bucket.Cursor()
				n := 0
				for rk, _ := cur.First(); rk != nil; rk, _ = cur.Next() {
					n++
				}
				for ; n > r.cfg.MaxRecordsPerKey; n-- {
					if oldest, _ := cur.First(); oldest == nil {
						break
					}
					if err := cur.Delete(); err != nil {
						return err
					}
				}
			}
		}
		return nil
	})
}

func (r *Recorder) sample(k datastore.Key, nowNS uint64) (Sample, bool) {
	t := r.store.TypeOf(k)
	s := Sample{TimestampNS: nowNS, Type: t.String()}

	switch t {
	case datastore.TypeInt32:
		v, err := r.store.GetInt32(k)
		if err != nil {
			return s, false
		}
		s.Number = float64(v)
	case datastore.TypeFloat32:
		v, err := r.store.GetFloat32(k)
		if err != nil {
			return s, false
		}
		s.Number = float64(v)
	case datastore.TypeFloat64:
		v, err := r.store.GetFloat64(k)
		if err != nil {
			return s, false
		}
		s.Number = v
	case datastore.TypeUint64:
		v, err := r.store.GetUint64(k)
		if err != nil {
			return s, false
		}
		s.Number = float64(v)
	case datastore.TypeString:
		v, err := r.store.GetString(k)
		if err != nil {
			return s, false
		}
		s.Text = v
	default:
		return s, false
	}
	return s, true
}

// Records reads back every sample recorded under a tracked name, oldest
// first.
func (r *Recorder) Records(name string) ([]Sample, error) {
	var out []Sample
	err := r.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(name))
		if bucket == nil {
			return fmt.Errorf("unknown bag bucket %q", name)
		}
		return bucket.ForEach(func(_, v []byte) error {
			var s Sample
			if err := json.Unmarshal(v, &s); err != nil {
				return err
			}
			out = append(out, s)
			return nil
		})
	})
	return out, err
}
