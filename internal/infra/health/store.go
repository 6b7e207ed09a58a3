package health

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"

	"tooldeck/internal/domain"
)

var bucketRecords = []byte("health_records")

// Store persists health snapshots so operators keep error history across
// restarts. Persistence is an implementer choice; the tracker works without
// one and store errors are logged, never surfaced to callers.
type Store struct {
	db   *bolt.DB
	path string
}

func OpenStore(path string) (*Store, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, fmt.Errorf("health store path is required")
	}
	if err := os.MkdirAll(filepath.Dir(trimmed), 0o755); err != nil {
		return nil, fmt.Errorf("ensure health store dir: %w", err)
	}

	db, err := bolt.Open(trimmed, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open health store: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketRecords)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init health store: %w", err)
	}
	return &Store{db: db, path: trimmed}, nil
}

// Save replaces the persisted snapshot with the given records.
func (s *Store) Save(records []NamedRecord) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(bucketRecords); err != nil && err != bolt.ErrBucketNotFound {
			return err
		}
		bucket, err := tx.CreateBucket(bucketRecords)
		if err != nil {
			return err
		}
		for _, nr := range records {
			raw, err := json.Marshal(nr.Record)
			if err != nil {
				return fmt.Errorf("encode record %q: %w", nr.Name, err)
			}
			if err := bucket.Put([]byte(nr.Name), raw); err != nil {
				return err
			}
		}
		return nil
	})
}

// Load reads the persisted snapshot. A missing or empty store is not an
// error.
func (s *Store) Load() ([]NamedRecord, error) {
	var out []NamedRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketRecords)
		if bucket == nil {
			return nil
		}
		return bucket.ForEach(func(k, v []byte) error {
			var hr domain.HealthRecord
			if err := json.Unmarshal(v, &hr); err != nil {
				return fmt.Errorf("decode record %q: %w", string(k), err)
			}
			out = append(out, NamedRecord{Name: string(k), Record: hr})
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
