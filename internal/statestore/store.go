package statestore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/pipegate/internal/pipeline"
)

// Errors for state store operations.
var (
	// ErrCorrupt means the persisted record exists but cannot be decoded.
	ErrCorrupt = errors.New("pipeline state corrupt")

	// ErrNotFound means no record exists for the namespace.
	ErrNotFound = errors.New("pipeline state not found")
)

const stateFileName = "state.json"

// PipelineState is the persisted record, exactly one per namespace.
type PipelineState struct {
	Namespace    string            `json:"namespace"`
	State        pipeline.State    `json:"state"`
	Mode         pipeline.Mode     `json:"pipeline_mode"`
	ActiveAgents []string          `json:"active_agents"`
	Timestamp    time.Time         `json:"timestamp"`
	Metadata     map[string]string `json:"classification_metadata,omitempty"`
}

// NamespaceDir returns the on-disk partition for a namespace. Journal, cache
// and checkpoint files for the namespace all live under this directory, so
// destroying a namespace is a single recursive delete.
func NamespaceDir(root, name string) string {
	return filepath.Join(root, "namespaces", name)
}

// Store reads and writes pipeline state records.
type Store struct {
	root   string
	logger *zap.Logger
	now    func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates a store rooted at the given directory.
func New(root string, logger *zap.Logger) (*Store, error) {
	if root == "" {
		return nil, errors.New("statestore: root directory is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(filepath.Join(root, "namespaces"), 0700); err != nil {
		return nil, fmt.Errorf("statestore: failed to create root: %w", err)
	}
	return &Store{
		root:   root,
		logger: logger,
		now:    time.Now,
		locks:  make(map[string]*sync.Mutex),
	}, nil
}

// Root returns the store's root directory.
func (s *Store) Root() string { return s.root }

// Dir returns the namespace partition directory.
func (s *Store) Dir(namespace string) string {
	return NamespaceDir(s.root, namespace)
}

func (s *Store) statePath(namespace string) string {
	return filepath.Join(s.Dir(namespace), stateFileName)
}

// lockFor returns the writer lock for a namespace. Locks are never held
// across namespaces, so independent pipelines stay fully parallel.
func (s *Store) lockFor(namespace string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[namespace]
	if !ok {
		l = &sync.Mutex{}
		s.locks[namespace] = l
	}
	return l
}

// Exists reports whether a record has been persisted for the namespace.
func (s *Store) Exists(namespace string) bool {
	_, err := os.Stat(s.statePath(namespace))
	return err == nil
}

// fresh returns a new idle record stamped with the current time.
func (s *Store) fresh(namespace string) *PipelineState {
	return &PipelineState{
		Namespace: namespace,
		State:     pipeline.StateIdle,
		Mode:      pipeline.ModeNone,
		Timestamp: s.now().UTC(),
	}
}

// Load reads the record for a namespace. A missing record returns
// ErrNotFound; an unreadable or malformed record returns ErrCorrupt.
// Reads take no lock: writes replace the whole file atomically.
func (s *Store) Load(namespace string) (*PipelineState, error) {
	data, err := os.ReadFile(s.statePath(namespace))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	var st PipelineState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if !st.State.Valid() {
		return nil, fmt.Errorf("%w: invalid state %q", ErrCorrupt, st.State)
	}
	return &st, nil
}

// LoadOrInit returns the persisted record, creating and persisting a fresh
// idle record when none exists.
func (s *Store) LoadOrInit(namespace string) (*PipelineState, error) {
	lock := s.lockFor(namespace)
	lock.Lock()
	defer lock.Unlock()

	st, err := s.Load(namespace)
	if err == nil {
		return st, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	st = s.fresh(namespace)
	if err := s.write(st); err != nil {
		return nil, err
	}
	s.logger.Debug("initialized pipeline state", zap.String("namespace", namespace))
	return st, nil
}

// Update applies fn to the current record (a fresh idle record when none
// exists) and persists the result. This is the single write path: it holds
// the namespace writer lock for the whole read-modify-write and keeps the
// timestamp monotonically non-decreasing.
func (s *Store) Update(namespace string, fn func(*PipelineState) error) (*PipelineState, error) {
	lock := s.lockFor(namespace)
	lock.Lock()
	defer lock.Unlock()

	st, err := s.Load(namespace)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
		st = s.fresh(namespace)
	}
	prev := st.Timestamp

	if err := fn(st); err != nil {
		return nil, err
	}

	st.Namespace = namespace
	st.Timestamp = s.now().UTC()
	if st.Timestamp.Before(prev) {
		st.Timestamp = prev
	}

	if err := s.write(st); err != nil {
		return nil, err
	}
	return st, nil
}

// Reinit overwrites the record with a fresh idle state, discarding whatever
// was there. Used to recover from a corrupt record.
func (s *Store) Reinit(namespace string) (*PipelineState, error) {
	lock := s.lockFor(namespace)
	lock.Lock()
	defer lock.Unlock()

	st := s.fresh(namespace)
	if err := s.write(st); err != nil {
		return nil, err
	}
	s.logger.Warn("reinitialized pipeline state", zap.String("namespace", namespace))
	return st, nil
}

// Save persists the given record verbatim (timestamp monotonicity is still
// enforced against any existing record). Used by legacy migration.
func (s *Store) Save(st *PipelineState) error {
	if st == nil || st.Namespace == "" {
		return errors.New("statestore: record with namespace is required")
	}
	lock := s.lockFor(st.Namespace)
	lock.Lock()
	defer lock.Unlock()

	if prev, err := s.Load(st.Namespace); err == nil && st.Timestamp.Before(prev.Timestamp) {
		st.Timestamp = prev.Timestamp
	}
	return s.write(st)
}

// Delete removes the namespace partition (state, journal, cache, checkpoints)
// irreversibly.
func (s *Store) Delete(namespace string) error {
	lock := s.lockFor(namespace)
	lock.Lock()
	defer lock.Unlock()
	return os.RemoveAll(s.Dir(namespace))
}

// List returns the records of all namespaces, sorted by name. The listing is
// recomputed from disk on every call. Unreadable records are reported with
// their namespace name and a corrupt marker rather than dropped.
func (s *Store) List() ([]*PipelineState, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, "namespaces"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("statestore: failed to list namespaces: %w", err)
	}

	var out []*PipelineState
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		st, err := s.Load(e.Name())
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			s.logger.Warn("unreadable pipeline state",
				zap.String("namespace", e.Name()), zap.Error(err))
			st = &PipelineState{Namespace: e.Name()}
		}
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Namespace < out[j].Namespace })
	return out, nil
}

// write persists a record via temp-file-then-rename so concurrent readers
// only ever see a fully written version.
func (s *Store) write(st *PipelineState) error {
	dir := s.Dir(st.Namespace)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("statestore: failed to create namespace dir: %w", err)
	}

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("statestore: failed to marshal state: %w", err)
	}

	path := filepath.Join(dir, stateFileName)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("statestore: failed to write state: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("statestore: failed to rename state: %w", err)
	}
	return nil
}
