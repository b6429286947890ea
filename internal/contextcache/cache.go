// Package contextcache stores gathered-context artifacts keyed by a content
// hash of their generating inputs, with a fixed time-to-live. Identical
// gathering requests hit the same entry; an expired entry is always a miss
// and is purged lazily on access or by an explicit sweep.
package contextcache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/pipegate/internal/statestore"
)

// DefaultTTL is how long a gathered-context artifact stays valid.
const DefaultTTL = 7 * 24 * time.Hour

// ErrMiss is the normal negative result: no entry, or an expired one.
var ErrMiss = errors.New("cache miss")

// keyPattern guards against using anything but a content hash as a filename.
var keyPattern = regexp.MustCompile(`^[0-9a-f]{64}$`)

// Entry is the persisted cache record.
type Entry struct {
	Key       string    `json:"key"`
	Payload   []byte    `json:"payload"`
	CreatedAt time.Time `json:"created_at"`
}

// Key computes the content hash for a gathering request over its canonical
// inputs: task description, namespace, and the fingerprints of the files the
// request depends on. Fingerprint order does not affect the key.
func Key(task, namespace string, fingerprints ...string) string {
	sorted := append([]string(nil), fingerprints...)
	sort.Strings(sorted)

	h := sha256.New()
	writeField(h, task)
	writeField(h, namespace)
	for _, fp := range sorted {
		writeField(h, fp)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// writeField length-prefixes each input so ("ab","c") and ("a","bc") never
// collide.
func writeField(h interface{ Write(p []byte) (int, error) }, field string) {
	fmt.Fprintf(h, "%d:", len(field))
	h.Write([]byte(field))
}

// Store is a per-namespace, content-addressed cache on disk.
type Store struct {
	root   string
	ttl    time.Duration
	logger *zap.Logger
	now    func() time.Time
}

// New creates a cache store rooted at the state root. A zero ttl selects
// DefaultTTL.
func New(root string, ttl time.Duration, logger *zap.Logger) (*Store, error) {
	if root == "" {
		return nil, errors.New("contextcache: root directory is required")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{root: root, ttl: ttl, logger: logger, now: time.Now}, nil
}

func (s *Store) dir(namespace string) string {
	return filepath.Join(statestore.NamespaceDir(s.root, namespace), "cache")
}

func (s *Store) path(namespace, key string) (string, error) {
	if !keyPattern.MatchString(key) {
		return "", fmt.Errorf("contextcache: invalid key %q", key)
	}
	return filepath.Join(s.dir(namespace), key+".json"), nil
}

// Get returns the payload for key, or ErrMiss. An entry past its TTL is a
// miss and is removed on the way out.
func (s *Store) Get(namespace, key string) ([]byte, error) {
	path, err := s.path(namespace, key)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrMiss
		}
		return nil, fmt.Errorf("contextcache: failed to read entry: %w", err)
	}

	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		// An undecodable entry is as good as absent; drop it.
		s.logger.Warn("dropping corrupt cache entry",
			zap.String("namespace", namespace), zap.String("key", key))
		os.Remove(path)
		return nil, ErrMiss
	}

	if s.expired(e.CreatedAt) {
		os.Remove(path)
		return nil, ErrMiss
	}
	return e.Payload, nil
}

// Put stores payload under key, stamping created_at with the current time.
func (s *Store) Put(namespace, key string, payload []byte) error {
	path, err := s.path(namespace, key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(s.dir(namespace), 0700); err != nil {
		return fmt.Errorf("contextcache: failed to create partition: %w", err)
	}

	data, err := json.Marshal(Entry{Key: key, Payload: payload, CreatedAt: s.now().UTC()})
	if err != nil {
		return fmt.Errorf("contextcache: failed to marshal entry: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("contextcache: failed to write entry: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("contextcache: failed to rename entry: %w", err)
	}
	return nil
}

// Sweep removes every expired entry in the namespace partition and returns
// how many were purged.
func (s *Store) Sweep(namespace string) (int, error) {
	entries, err := os.ReadDir(s.dir(namespace))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("contextcache: failed to list partition: %w", err)
	}

	purged := 0
	for _, de := range entries {
		if de.IsDir() || filepath.Ext(de.Name()) != ".json" {
			continue
		}
		path := filepath.Join(s.dir(namespace), de.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var e Entry
		if err := json.Unmarshal(data, &e); err != nil || s.expired(e.CreatedAt) {
			if os.Remove(path) == nil {
				purged++
			}
		}
	}
	if purged > 0 {
		s.logger.Debug("swept expired cache entries",
			zap.String("namespace", namespace), zap.Int("purged", purged))
	}
	return purged, nil
}

func (s *Store) expired(createdAt time.Time) bool {
	return !s.now().Before(createdAt.Add(s.ttl))
}
