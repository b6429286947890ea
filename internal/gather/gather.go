// Package gather runs context-gathering subtasks concurrently and joins their
// results into a single cached artifact. The join is all-or-nothing: a failing
// subtask cancels the rest and nothing is cached, so the cache only ever holds
// complete gathering results.
package gather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fyrsmithlabs/pipegate/internal/contextcache"
)

const instrumentationName = "github.com/fyrsmithlabs/pipegate/internal/gather"

// ErrNoSubtasks means a gathering request arrived with nothing to run.
var ErrNoSubtasks = errors.New("gather: no subtasks")

// Subtask is one unit of gathering work, typically one sub-gatherer agent.
type Subtask struct {
	Name string
	Run  func(ctx context.Context) (string, error)
}

// Request identifies a gathering run for cache keying.
type Request struct {
	Namespace string
	Task      string

	// Fingerprints are content hashes of the inputs the run depends on.
	// Order does not matter.
	Fingerprints []string
}

// Section is one subtask's output within the combined artifact.
type Section struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

// Result is the joined artifact, in subtask order.
type Result struct {
	Task     string    `json:"task"`
	Sections []Section `json:"sections"`

	// CacheHit reports whether the artifact was served without running
	// any subtask.
	CacheHit bool   `json:"-"`
	Key      string `json:"-"`
}

// Runner fans gathering subtasks out and joins them behind the cache.
type Runner struct {
	cache  *contextcache.Store
	logger *zap.Logger
	tracer trace.Tracer
}

// NewRunner creates a gather runner backed by the given cache.
func NewRunner(cache *contextcache.Store, logger *zap.Logger) (*Runner, error) {
	if cache == nil {
		return nil, errors.New("gather: cache store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		cache:  cache,
		logger: logger,
		tracer: otel.Tracer(instrumentationName),
	}, nil
}

// Gather serves the request from the cache when possible, otherwise runs all
// subtasks concurrently and joins their outputs in subtask order. The first
// subtask error cancels the remaining ones and is returned; a failed run
// caches nothing.
func (r *Runner) Gather(ctx context.Context, req Request, subtasks []Subtask) (*Result, error) {
	ctx, span := r.tracer.Start(ctx, "gather.run")
	defer span.End()
	span.SetAttributes(
		attribute.String("namespace", req.Namespace),
		attribute.Int("subtasks", len(subtasks)),
	)

	if len(subtasks) == 0 {
		return nil, ErrNoSubtasks
	}

	key := contextcache.Key(req.Task, req.Namespace, req.Fingerprints...)

	if payload, err := r.cache.Get(req.Namespace, key); err == nil {
		var res Result
		if uerr := json.Unmarshal(payload, &res); uerr == nil {
			res.CacheHit = true
			res.Key = key
			span.SetAttributes(attribute.Bool("cache_hit", true))
			r.logger.Debug("gathering served from cache",
				zap.String("namespace", req.Namespace), zap.String("key", key))
			return &res, nil
		}
		// A cached artifact that no longer decodes is treated as a miss.
		r.logger.Warn("ignoring undecodable cached gathering artifact",
			zap.String("namespace", req.Namespace), zap.String("key", key))
	} else if !errors.Is(err, contextcache.ErrMiss) {
		return nil, err
	}

	sections := make([]Section, len(subtasks))
	g, gctx := errgroup.WithContext(ctx)
	for i, st := range subtasks {
		g.Go(func() error {
			content, err := st.Run(gctx)
			if err != nil {
				return fmt.Errorf("gather: subtask %s: %w", st.Name, err)
			}
			sections[i] = Section{Name: st.Name, Content: content}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res := &Result{Task: req.Task, Sections: sections, Key: key}
	payload, err := json.Marshal(res)
	if err != nil {
		return nil, fmt.Errorf("gather: failed to marshal result: %w", err)
	}
	if err := r.cache.Put(req.Namespace, key, payload); err != nil {
		return nil, err
	}

	r.logger.Info("gathering joined",
		zap.String("namespace", req.Namespace),
		zap.Int("subtasks", len(subtasks)),
		zap.String("key", key))
	return res, nil
}
