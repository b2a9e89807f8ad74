// Package snapshot caches the last verified HashedDir payloads per update
// directory. Entries keep the server's signed bytes, and loading one verifies
// the signature again, so a modified cache is rejected rather than trusted.
package snapshot

import (
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/boltdb/bolt"
	"github.com/google/uuid"

	"github.com/adamancini/launchkit/internal/hasher"
	"github.com/adamancini/launchkit/internal/metrics"
	"github.com/adamancini/launchkit/internal/signed"
)

// ErrNotFound is returned when no snapshot matches.
var ErrNotFound = errors.New("snapshot not found")

var bucketSnapshots = []byte("snapshots")

// Snapshot is one stored signed payload.
type Snapshot struct {
	ID        string    `json:"id"`
	Dir       string    `json:"dir"`
	CreatedAt time.Time `json:"created_at"`
	Version   string    `json:"version,omitempty"`
	Signature []byte    `json:"signature"`
	Payload   []byte    `json:"payload"`
}

// Info summarizes a snapshot for listing.
type Info struct {
	ID        string    `json:"id" yaml:"id"`
	Dir       string    `json:"dir" yaml:"dir"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
	Size      int64     `json:"size" yaml:"size"`
}

// Store is a bolt-backed snapshot cache.
type Store struct {
	db      *bolt.DB
	path    string
	version string
	metrics *metrics.Metrics
	now     func() time.Time
}

// DefaultPath returns the cache file location.
func DefaultPath() (string, error) {
	cacheDir := os.Getenv("XDG_CACHE_HOME")
	if cacheDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to determine home directory: %w", err)
		}
		cacheDir = filepath.Join(home, ".cache")
	}
	return filepath.Join(cacheDir, "launchkit", "snapshots.db"), nil
}

// Open opens or creates the store at path. version is recorded in new
// snapshots. m may be nil.
func Open(path, version string, m *metrics.Metrics) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create snapshot directory: %w", err)
	}
	db, err := bolt.Open(filepath.Clean(path), 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot store: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, e := tx.CreateBucketIfNotExists(bucketSnapshots)
		return e
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize snapshot store: %w", err)
	}

	s := &Store{db: db, path: path, version: version, metrics: m, now: time.Now}
	s.refreshGauge()
	return s, nil
}

// Close releases the database.
func (s *Store) Close() error { return s.db.Close() }

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// Save stores the signed bytes of h for dir.
func (s *Store) Save(dir string, h *signed.Holder[*hasher.HashedDir]) (*Snapshot, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate snapshot id: %w", err)
	}

	snap := &Snapshot{
		ID:        id.String(),
		Dir:       dir,
		CreatedAt: s.now().UTC(),
		Version:   s.version,
		Signature: h.Signature(),
		Payload:   h.Bytes(),
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	err = s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.Bucket(bucketSnapshots).CreateBucketIfNotExists([]byte(dir))
		if err != nil {
			return err
		}
		return b.Put([]byte(snap.ID), data)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to write snapshot: %w", err)
	}

	s.refreshGauge()
	return snap, nil
}

// Get returns the raw snapshot without verifying it.
func (s *Store) Get(dir, id string) (*Snapshot, error) {
	var snap *Snapshot
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSnapshots).Bucket([]byte(dir))
		if b == nil {
			return ErrNotFound
		}
		data := b.Get([]byte(id))
		if data == nil {
			return ErrNotFound
		}
		var err error
		snap, err = decode(data)
		return err
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// Latest returns the newest snapshot for dir after verifying it with pub.
func (s *Store) Latest(dir string, pub *rsa.PublicKey) (*signed.Holder[*hasher.HashedDir], error) {
	infos, err := s.List(dir)
	if err != nil {
		return nil, err
	}
	if len(infos) == 0 {
		return nil, ErrNotFound
	}

	snap, err := s.Get(dir, infos[0].ID)
	if err != nil {
		return nil, err
	}
	return snap.Verify(pub)
}

// Verify checks the stored signature and decodes the payload.
func (snap *Snapshot) Verify(pub *rsa.PublicKey) (*signed.Holder[*hasher.HashedDir], error) {
	h, err := signed.New(snap.Payload, snap.Signature, pub, hasher.Decode)
	if err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", snap.ID, err)
	}
	return h, nil
}

// List returns snapshots for dir sorted newest first. An empty dir lists
// every directory.
func (s *Store) List(dir string) ([]Info, error) {
	var infos []Info
	err := s.db.View(func(tx *bolt.Tx) error {
		root := tx.Bucket(bucketSnapshots)
		return root.ForEach(func(name, v []byte) error {
			if v != nil || (dir != "" && string(name) != dir) {
				return nil
			}
			return root.Bucket(name).ForEach(func(_, data []byte) error {
				snap, err := decode(data)
				if err != nil {
					return err
				}
				infos = append(infos, Info{
					ID:        snap.ID,
					Dir:       snap.Dir,
					CreatedAt: snap.CreatedAt,
					Size:      int64(len(snap.Payload)),
				})
				return nil
			})
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}

	// UUIDv7 ids are time ordered, which breaks ties within one clock tick
	sort.Slice(infos, func(i, j int) bool {
		if !infos[i].CreatedAt.Equal(infos[j].CreatedAt) {
			return infos[i].CreatedAt.After(infos[j].CreatedAt)
		}
		return infos[i].ID > infos[j].ID
	})
	return infos, nil
}

// Delete removes one snapshot.
func (s *Store) Delete(dir, id string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSnapshots).Bucket([]byte(dir))
		if b == nil || b.Get([]byte(id)) == nil {
			return ErrNotFound
		}
		return b.Delete([]byte(id))
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return fmt.Errorf("%w: %s/%s", ErrNotFound, dir, id)
		}
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}
	s.refreshGauge()
	return nil
}

func (s *Store) refreshGauge() {
	if s.metrics == nil {
		return
	}
	if infos, err := s.List(""); err == nil {
		s.metrics.SetSnapshots(len(infos))
	}
}

func decode(data []byte) (*Snapshot, error) {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to parse snapshot: %w", err)
	}
	return &snap, nil
}
