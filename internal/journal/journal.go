// Package journal appends an audit record for every gate decision and state
// transition. One JSONL file per namespace, append-only, never rewritten, so
// a partially diagnosed incident can always be replayed line by line.
package journal

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/pipegate/internal/pipeline"
	"github.com/fyrsmithlabs/pipegate/internal/statestore"
)

const fileName = "journal.jsonl"

// Outcome classifies a journal entry.
type Outcome string

const (
	// OutcomeAllowed records a gate decision that admitted an agent.
	OutcomeAllowed Outcome = "ALLOWED"
	// OutcomeBlocked records a denied agent or rejected transition.
	OutcomeBlocked Outcome = "BLOCKED"
	// OutcomeTransitioned records a committed state change.
	OutcomeTransitioned Outcome = "TRANSITIONED"
	// OutcomeReset records a manual or stale-timeout reset to idle.
	OutcomeReset Outcome = "RESET"
)

// Entry is one audit record.
type Entry struct {
	ID        string         `json:"id"`
	Namespace string         `json:"namespace"`
	From      pipeline.State `json:"from_state"`
	To        pipeline.State `json:"to_state"`
	Agent     string         `json:"agent,omitempty"`
	Outcome   Outcome        `json:"outcome"`
	Reason    string         `json:"reason,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Writer appends entries to per-namespace journal files.
type Writer struct {
	root   string
	logger *zap.Logger
	now    func() time.Time
}

// New creates a journal writer rooted at the store's root directory.
func New(root string, logger *zap.Logger) (*Writer, error) {
	if root == "" {
		return nil, errors.New("journal: root directory is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Writer{root: root, logger: logger, now: time.Now}, nil
}

func (w *Writer) path(namespace string) string {
	return filepath.Join(statestore.NamespaceDir(w.root, namespace), fileName)
}

// Append writes one entry. The ID and timestamp are filled in when absent.
// The file is opened O_APPEND so concurrent appenders interleave whole lines.
func (w *Writer) Append(e Entry) error {
	if e.Namespace == "" {
		return errors.New("journal: entry namespace is required")
	}
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = w.now().UTC()
	}

	if err := os.MkdirAll(filepath.Dir(w.path(e.Namespace)), 0700); err != nil {
		return fmt.Errorf("journal: failed to create namespace dir: %w", err)
	}

	f, err := os.OpenFile(w.path(e.Namespace), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("journal: failed to open: %w", err)
	}
	defer f.Close()

	line, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("journal: failed to marshal entry: %w", err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("journal: failed to append: %w", err)
	}
	return nil
}

// Read parses all entries for a namespace in append order. A missing journal
// is an empty history, not an error. Malformed lines are skipped with a
// warning so one bad write cannot hide the rest of the history.
func (w *Writer) Read(namespace string) ([]Entry, error) {
	f, err := os.Open(w.path(namespace))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("journal: failed to open: %w", err)
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var e Entry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			w.logger.Warn("skipping malformed journal line",
				zap.String("namespace", namespace), zap.Error(err))
			continue
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return entries, fmt.Errorf("journal: failed to read: %w", err)
	}
	return entries, nil
}
