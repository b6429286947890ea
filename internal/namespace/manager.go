// Package namespace manages isolated pipeline instances. Every namespace
// owns one state record, one journal, one cache partition and its checkpoint
// files, all under a single directory, so namespaces never share mutable
// state and destruction is one recursive delete.
package namespace

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/pipegate/internal/pipeline"
	"github.com/fyrsmithlabs/pipegate/internal/statestore"
)

// Default is the reserved namespace used when the caller selects none.
const Default = "_default"

// legacyFileName is the pre-namespace global state file at the store root.
const legacyFileName = "pipeline-state.json"

// Errors for namespace operations.
var (
	ErrInvalidName   = errors.New("invalid namespace: must match [A-Za-z0-9_-]+")
	ErrAlreadyExists = errors.New("namespace already exists")
	ErrNotFound      = errors.New("namespace not found")
	ErrBusy          = errors.New("namespace busy: pipeline must be idle or complete")
)

var namePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ValidateName checks that a namespace identifier is non-empty and safe to
// use as a directory name.
func ValidateName(name string) error {
	if !namePattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// Manager creates, lists and destroys namespaces.
type Manager struct {
	store  *statestore.Store
	logger *zap.Logger
}

// NewManager creates a namespace manager over the given store.
func NewManager(store *statestore.Store, logger *zap.Logger) (*Manager, error) {
	if store == nil {
		return nil, errors.New("namespace: state store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{store: store, logger: logger}, nil
}

// Exists reports whether the namespace has a persisted state record.
func (m *Manager) Exists(name string) bool {
	return m.store.Exists(name)
}

// Create initializes a new namespace with an idle pipeline and an empty
// cache partition.
func (m *Manager) Create(name string) (*statestore.PipelineState, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	if m.store.Exists(name) {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyExists, name)
	}

	st, err := m.store.LoadOrInit(name)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Join(m.store.Dir(name), "cache"), 0700); err != nil {
		return nil, fmt.Errorf("namespace: failed to create cache partition: %w", err)
	}

	m.logger.Info("created namespace", zap.String("namespace", name))
	return st, nil
}

// List returns every namespace with its current state and mode, recomputed
// from disk on each call.
func (m *Manager) List() ([]*statestore.PipelineState, error) {
	return m.store.List()
}

// Destroy hard-deletes a namespace's state, journal, cache and checkpoints.
// Refused unless the pipeline is idle or complete.
func (m *Manager) Destroy(name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	if !m.store.Exists(name) {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	st, err := m.store.Load(name)
	if err != nil && !errors.Is(err, statestore.ErrCorrupt) {
		return err
	}
	// A corrupt record cannot be mid-pipeline in any meaningful sense;
	// allow the delete so the operator can recover.
	if err == nil && !st.State.Terminal() {
		return fmt.Errorf("%w: %s is %s", ErrBusy, name, st.State)
	}

	if err := m.store.Delete(name); err != nil {
		return fmt.Errorf("namespace: failed to destroy %s: %w", name, err)
	}
	m.logger.Info("destroyed namespace", zap.String("namespace", name))
	return nil
}

// MigrateLegacy moves a pre-namespace global state file into the default
// namespace. Idempotent: it does nothing when the legacy file is absent or
// the default namespace already has state. Returns true when a migration
// actually happened.
func (m *Manager) MigrateLegacy() (bool, error) {
	legacyPath := filepath.Join(m.store.Root(), legacyFileName)
	data, err := os.ReadFile(legacyPath)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("namespace: failed to read legacy state: %w", err)
	}

	if m.store.Exists(Default) {
		// Already migrated (or the default was created independently);
		// the legacy file stays untouched as a historical artifact.
		return false, nil
	}

	var st statestore.PipelineState
	if err := json.Unmarshal(data, &st); err != nil || !st.State.Valid() {
		// Unreadable legacy state recovers as a fresh idle default.
		m.logger.Warn("legacy state unreadable, initializing default namespace fresh",
			zap.Error(err))
		st = statestore.PipelineState{State: pipeline.StateIdle}
	}
	st.Namespace = Default

	if err := m.store.Save(&st); err != nil {
		return false, err
	}
	if err := os.Remove(legacyPath); err != nil {
		return false, fmt.Errorf("namespace: failed to remove legacy state: %w", err)
	}

	m.logger.Info("migrated legacy state into default namespace",
		zap.String("state", string(st.State)))
	return true, nil
}
