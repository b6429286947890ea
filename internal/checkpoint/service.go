package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/pipegate/internal/statestore"
)

const instrumentationName = "github.com/fyrsmithlabs/pipegate/internal/checkpoint"

const openFileName = "open.json"

// Errors for checkpoint operations.
var (
	// ErrNotFound means the namespace has no open checkpoint.
	ErrNotFound = errors.New("no open documentation checkpoint")

	// ErrAlreadyOpen means a checkpoint is already pending for the namespace.
	ErrAlreadyOpen = errors.New("documentation checkpoint already open")
)

// Service manages documentation checkpoints.
type Service struct {
	root   string
	logger *zap.Logger
	now    func() time.Time

	clearCounter metric.Int64Counter
}

// NewService creates a checkpoint service rooted at the store's root.
func NewService(root string, logger *zap.Logger) (*Service, error) {
	if root == "" {
		return nil, errors.New("checkpoint: root directory is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Service{root: root, logger: logger, now: time.Now}

	var err error
	s.clearCounter, err = otel.Meter(instrumentationName).Int64Counter(
		"pipegate.checkpoint.clears_total",
		metric.WithDescription("Total number of documentation checkpoints cleared"),
		metric.WithUnit("{clear}"),
	)
	if err != nil {
		logger.Warn("failed to create clear counter", zap.Error(err))
	}

	return s, nil
}

func (s *Service) dir(namespace string) string {
	return filepath.Join(statestore.NamespaceDir(s.root, namespace), "checkpoints")
}

func (s *Service) openPath(namespace string) string {
	return filepath.Join(s.dir(namespace), openFileName)
}

// Open creates a checkpoint for a namespace that just completed a task.
func (s *Service) Open(namespace, description string) (*Checkpoint, error) {
	if _, err := s.Get(namespace); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyOpen, namespace)
	}

	cp := &Checkpoint{
		ID:            uuid.New().String(),
		Namespace:     namespace,
		Description:   description,
		RequiredItems: append([]string(nil), RequiredItems...),
		CreatedAt:     s.now().UTC(),
	}
	if err := s.write(s.openPath(namespace), cp); err != nil {
		return nil, err
	}

	s.logger.Info("opened documentation checkpoint",
		zap.String("namespace", namespace), zap.String("id", cp.ID))
	return cp, nil
}

// Get returns the open checkpoint for a namespace, or ErrNotFound.
func (s *Service) Get(namespace string) (*Checkpoint, error) {
	data, err := os.ReadFile(s.openPath(namespace))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, namespace)
		}
		return nil, fmt.Errorf("checkpoint: failed to read: %w", err)
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("checkpoint: failed to decode: %w", err)
	}
	return &cp, nil
}

// Clear discharges the open checkpoint, records the clearing notes, and
// moves it into the archive. The archived record is retained for audit.
func (s *Service) Clear(ctx context.Context, namespace, notes string) (*Checkpoint, error) {
	cp, err := s.Get(namespace)
	if err != nil {
		return nil, err
	}

	cp.Cleared = true
	cp.Notes = notes
	cp.ClearedAt = s.now().UTC()

	archivePath := filepath.Join(s.dir(namespace), "archive", cp.ID+".json")
	if err := s.write(archivePath, cp); err != nil {
		return nil, err
	}
	if err := os.Remove(s.openPath(namespace)); err != nil {
		return nil, fmt.Errorf("checkpoint: failed to close: %w", err)
	}

	if s.clearCounter != nil {
		s.clearCounter.Add(ctx, 1)
	}
	s.logger.Info("cleared documentation checkpoint",
		zap.String("namespace", namespace), zap.String("id", cp.ID))
	return cp, nil
}

// Archive returns cleared checkpoints for a namespace, oldest first.
func (s *Service) Archive(namespace string) ([]*Checkpoint, error) {
	dir := filepath.Join(s.dir(namespace), "archive")
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("checkpoint: failed to list archive: %w", err)
	}

	var out []*Checkpoint
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			continue
		}
		var cp Checkpoint
		if err := json.Unmarshal(data, &cp); err != nil {
			s.logger.Warn("skipping unreadable archived checkpoint",
				zap.String("file", e.Name()), zap.Error(err))
			continue
		}
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ClearedAt.Before(out[j].ClearedAt) })
	return out, nil
}

func (s *Service) write(path string, cp *Checkpoint) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("checkpoint: failed to create dir: %w", err)
	}
	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("checkpoint: failed to marshal: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("checkpoint: failed to write: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("checkpoint: failed to rename: %w", err)
	}
	return nil
}
