package stats

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"go.etcd.io/bbolt"

	"GpsLogger/internal/model"
)

var perfBucket = []byte("perf")

// Store persists perf snapshots in a bbolt file keyed by window end time.
type Store struct {
	DB *bbolt.DB
}

// OpenStore opens or creates the database at path.
func OpenStore(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open stats db %s: %w", path, err)
	}
	return &Store{DB: db}, nil
}

// Save writes one snapshot.
func (s *Store) Save(snap model.PerfSnapshot) error {
	body, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	key := snap.End.UTC().Format(time.RFC3339Nano)
	err = s.DB.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(perfBucket)
		if err != nil {
			return err
		}
		return b.Put([]byte(key), body)
	})
	if err != nil {
		return fmt.Errorf("save perf snapshot: %w", err)
	}
	log.Printf("[stats] saved window %s (%d packets, %d dropped)", key, snap.Packets, snap.Dropped)
	return nil
}

// Latest returns the most recent snapshot, or false when none is stored.
func (s *Store) Latest() (model.PerfSnapshot, bool, error) {
	var snap model.PerfSnapshot
	found := false
	err := s.DB.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(perfBucket)
		if b == nil {
			return nil
		}
		_, v := b.Cursor().Last()
		if v == nil {
			return nil
		}
		found = true
		return json.Unmarshal(v, &snap)
	})
	return snap, found, err
}

// Count returns how many snapshots are stored.
func (s *Store) Count() (int, error) {
	n := 0
	err := s.DB.View(func(tx *bbolt.Tx) error {
		if b := tx.Bucket(perfBucket); b != nil {
			n = b.Stats().KeyN
		}
		return nil
	})
	return n, err
}

// Close closes the database.
func (s *Store) Close() error {
	return s.DB.Close()
}
