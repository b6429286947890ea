package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/pipegate/internal/checkpoint"
	"github.com/fyrsmithlabs/pipegate/internal/config"
	"github.com/fyrsmithlabs/pipegate/internal/contextcache"
	"github.com/fyrsmithlabs/pipegate/internal/gate"
	"github.com/fyrsmithlabs/pipegate/internal/journal"
	"github.com/fyrsmithlabs/pipegate/internal/logging"
	"github.com/fyrsmithlabs/pipegate/internal/namespace"
	"github.com/fyrsmithlabs/pipegate/internal/statestore"
)

// selectionFileName persists the namespace chosen by `ns join`.
const selectionFileName = "current-namespace"

// namespaceEnv overrides the joined namespace without touching the selection
// file.
const namespaceEnv = "PIPEGATE_NAMESPACE"

// app wires the services behind every command.
type app struct {
	cfg         *config.Config
	logger      *zap.Logger
	store       *statestore.Store
	journal     *journal.Writer
	checkpoints *checkpoint.Service
	cache       *contextcache.Store
	gate        *gate.Service
	namespaces  *namespace.Manager
}

// newApp loads configuration and constructs the full service graph.
func newApp() (*app, error) {
	cfg, err := config.LoadWithFile(flagConfig)
	if err != nil {
		return nil, err
	}
	return newAppFromConfig(cfg)
}

func newAppFromConfig(cfg *config.Config) (*app, error) {
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, err
	}

	store, err := statestore.New(cfg.Storage.Root, logger)
	if err != nil {
		return nil, err
	}
	jw, err := journal.New(cfg.Storage.Root, logger)
	if err != nil {
		return nil, err
	}
	cps, err := checkpoint.NewService(cfg.Storage.Root, logger)
	if err != nil {
		return nil, err
	}
	cache, err := contextcache.New(cfg.Storage.Root, cfg.Cache.TTL, logger)
	if err != nil {
		return nil, err
	}
	g, err := gate.NewService(store, jw, cps, logger)
	if err != nil {
		return nil, err
	}
	mgr, err := namespace.NewManager(store, logger)
	if err != nil {
		return nil, err
	}

	return &app{
		cfg:         cfg,
		logger:      logger,
		store:       store,
		journal:     jw,
		checkpoints: cps,
		cache:       cache,
		gate:        g,
		namespaces:  mgr,
	}, nil
}

// Close flushes the logger.
func (a *app) Close() {
	_ = logging.Sync(a.logger)
}

func (a *app) selectionPath() string {
	return filepath.Join(a.cfg.Storage.Root, selectionFileName)
}

// resolveNamespace picks the namespace for this invocation: the --namespace
// flag, else $PIPEGATE_NAMESPACE, else the namespace joined via `ns join`,
// else the default.
func (a *app) resolveNamespace() (string, error) {
	name := flagNamespace
	if name == "" {
		name = os.Getenv(namespaceEnv)
	}
	if name == "" {
		if data, err := os.ReadFile(a.selectionPath()); err == nil {
			name = strings.TrimSpace(string(data))
		}
	}
	if name == "" {
		return namespace.Default, nil
	}
	if err := namespace.ValidateName(name); err != nil {
		return "", err
	}
	return name, nil
}

// joinNamespace persists name as the selection for future invocations.
func (a *app) joinNamespace(name string) error {
	if err := namespace.ValidateName(name); err != nil {
		return err
	}
	if !a.namespaces.Exists(name) {
		return fmt.Errorf("%w: %s (create it with `pipegate ns create %s`)",
			namespace.ErrNotFound, name, name)
	}
	if err := os.MkdirAll(a.cfg.Storage.Root, 0700); err != nil {
		return fmt.Errorf("failed to create state root: %w", err)
	}
	return os.WriteFile(a.selectionPath(), []byte(name+"\n"), 0600)
}

// leaveNamespace removes the selection; future invocations fall back to the
// default namespace.
func (a *app) leaveNamespace() error {
	if err := os.Remove(a.selectionPath()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to clear namespace selection: %w", err)
	}
	return nil
}
