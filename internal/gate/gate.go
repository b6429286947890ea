package gate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/pipegate/internal/checkpoint"
	"github.com/fyrsmithlabs/pipegate/internal/journal"
	"github.com/fyrsmithlabs/pipegate/internal/pipeline"
	"github.com/fyrsmithlabs/pipegate/internal/statestore"
)

const instrumentationName = "github.com/fyrsmithlabs/pipegate/internal/gate"

// Errors for gate operations.
var (
	// ErrIllegalTransition means the requested next state is not reachable
	// from the current state under the current mode.
	ErrIllegalTransition = errors.New("illegal transition")

	// ErrCheckpointPending means an open documentation checkpoint blocks
	// the requested action.
	ErrCheckpointPending = errors.New("documentation checkpoint pending")

	// ErrModeRequired means classification was requested without a mode.
	ErrModeRequired = errors.New("classification requires a pipeline mode")
)

// Decision is the result of evaluating an agent against the gate.
type Decision struct {
	Allowed   bool           `json:"allowed"`
	Namespace string         `json:"namespace"`
	Agent     string         `json:"agent"`
	State     pipeline.State `json:"state"`
	Mode      pipeline.Mode  `json:"pipeline_mode,omitempty"`
	Reason    string         `json:"reason,omitempty"`
}

// AdvanceOptions carries optional inputs for a state advancement.
type AdvanceOptions struct {
	// Mode is required when advancing into the classified state.
	Mode pipeline.Mode

	// Metadata records classification signals alongside the state.
	Metadata map[string]string
}

// Service wires the state store, journal and checkpoint service into the
// gate contract.
type Service struct {
	store       *statestore.Store
	journal     *journal.Writer
	checkpoints *checkpoint.Service
	logger      *zap.Logger
	now         func() time.Time

	tracer       trace.Tracer
	allowCounter metric.Int64Counter
	blockCounter metric.Int64Counter
	resetCounter metric.Int64Counter
}

// NewService creates the gate service.
func NewService(store *statestore.Store, jw *journal.Writer, cps *checkpoint.Service, logger *zap.Logger) (*Service, error) {
	if store == nil {
		return nil, errors.New("gate: state store is required")
	}
	if jw == nil {
		return nil, errors.New("gate: journal is required")
	}
	if cps == nil {
		return nil, errors.New("gate: checkpoint service is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Service{
		store:       store,
		journal:     jw,
		checkpoints: cps,
		logger:      logger,
		now:         time.Now,
		tracer:      otel.Tracer(instrumentationName),
	}
	s.initMetrics()
	return s, nil
}

func (s *Service) initMetrics() {
	meter := otel.Meter(instrumentationName)
	var err error

	s.allowCounter, err = meter.Int64Counter(
		"pipegate.gate.allowed_total",
		metric.WithDescription("Total number of allowed agent invocations"),
		metric.WithUnit("{decision}"),
	)
	if err != nil {
		s.logger.Warn("failed to create allow counter", zap.Error(err))
	}

	s.blockCounter, err = meter.Int64Counter(
		"pipegate.gate.blocked_total",
		metric.WithDescription("Total number of blocked agent invocations"),
		metric.WithUnit("{decision}"),
	)
	if err != nil {
		s.logger.Warn("failed to create block counter", zap.Error(err))
	}

	s.resetCounter, err = meter.Int64Counter(
		"pipegate.gate.resets_total",
		metric.WithDescription("Total number of pipeline resets"),
		metric.WithUnit("{reset}"),
	)
	if err != nil {
		s.logger.Warn("failed to create reset counter", zap.Error(err))
	}
}

// load returns the namespace's state, lazily creating it and recovering from
// a corrupt record by reinitializing to idle (journaled as a RESET). It never
// fails on bad content, only on an unusable store.
func (s *Service) load(namespace string) (*statestore.PipelineState, error) {
	st, err := s.store.Load(namespace)
	switch {
	case err == nil:
		return st, nil
	case errors.Is(err, statestore.ErrNotFound):
		return s.store.LoadOrInit(namespace)
	case errors.Is(err, statestore.ErrCorrupt):
		s.logger.Warn("recovering from corrupt pipeline state",
			zap.String("namespace", namespace), zap.Error(err))
		st, rerr := s.store.Reinit(namespace)
		if rerr != nil {
			return nil, rerr
		}
		if jerr := s.journal.Append(journal.Entry{
			Namespace: namespace,
			From:      st.State,
			To:        pipeline.StateIdle,
			Outcome:   journal.OutcomeReset,
			Reason:    "corrupt state",
		}); jerr != nil {
			return nil, jerr
		}
		return st, nil
	default:
		return nil, err
	}
}

// recoverStale resets a non-terminal state that has been inactive past the
// threshold, returning the refreshed record. Terminal states never go stale.
func (s *Service) recoverStale(st *statestore.PipelineState) (*statestore.PipelineState, error) {
	if st.State.Terminal() || s.now().Sub(st.Timestamp) <= pipeline.StaleThreshold {
		return st, nil
	}

	from := st.State
	reset, err := s.store.Update(st.Namespace, func(cur *statestore.PipelineState) error {
		resetToIdle(cur)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := s.journal.Append(journal.Entry{
		Namespace: st.Namespace,
		From:      from,
		To:        pipeline.StateIdle,
		Outcome:   journal.OutcomeReset,
		Reason:    "stale timeout",
	}); err != nil {
		return nil, err
	}
	if s.resetCounter != nil {
		s.resetCounter.Add(context.Background(), 1,
			metric.WithAttributes(attribute.String("trigger", "stale")))
	}
	s.logger.Info("reset stale pipeline",
		zap.String("namespace", st.Namespace), zap.String("was", string(from)))
	return reset, nil
}

// Evaluate decides whether the agent may run right now. It appends exactly
// one ALLOWED or BLOCKED journal entry (plus a RESET entry when stale-state
// recovery fires first) and never changes the pipeline state on a block.
func (s *Service) Evaluate(ctx context.Context, namespace, agent string) (Decision, error) {
	ctx, span := s.tracer.Start(ctx, "gate.evaluate")
	defer span.End()
	span.SetAttributes(
		attribute.String("namespace", namespace),
		attribute.String("agent", agent),
	)

	st, err := s.load(namespace)
	if err != nil {
		return Decision{}, err
	}
	st, err = s.recoverStale(st)
	if err != nil {
		return Decision{}, err
	}

	d := Decision{
		Namespace: namespace,
		Agent:     agent,
		State:     st.State,
		Mode:      st.Mode,
	}

	if st.State == pipeline.StateComplete {
		if cp, cerr := s.checkpoints.Get(namespace); cerr == nil && !cp.Cleared {
			d.Reason = fmt.Sprintf(
				"documentation checkpoint pending since %s: clear it before new work (required: %v)",
				cp.CreatedAt.Format(time.RFC3339), cp.RequiredItems)
			return d, s.record(ctx, d)
		}
	}

	set := pipeline.Permitted(st.State, st.Mode)
	if set.Allows(agent) {
		d.Allowed = true
		return d, s.record(ctx, d)
	}

	d.Reason = fmt.Sprintf("agent %q is not permitted in state %s%s; permitted: %s",
		agent, st.State, modeSuffix(st.Mode), set.Describe())
	return d, s.record(ctx, d)
}

// record journals the decision and bumps the matching counter. A journal
// write failure is returned to the caller: silently allowing ungated agent
// execution would defeat the gate.
func (s *Service) record(ctx context.Context, d Decision) error {
	outcome := journal.OutcomeBlocked
	counter := s.blockCounter
	if d.Allowed {
		outcome = journal.OutcomeAllowed
		counter = s.allowCounter
	}
	if err := s.journal.Append(journal.Entry{
		Namespace: d.Namespace,
		From:      d.State,
		To:        d.State,
		Agent:     d.Agent,
		Outcome:   outcome,
		Reason:    d.Reason,
	}); err != nil {
		return err
	}
	if counter != nil {
		counter.Add(ctx, 1, metric.WithAttributes(attribute.String("state", string(d.State))))
	}
	return nil
}

// Advance commits a state transition after an agent's work was accepted. An
// illegal transition is rejected with the state unchanged and a BLOCKED
// journal entry.
func (s *Service) Advance(ctx context.Context, namespace string, next pipeline.State, opts AdvanceOptions) (*statestore.PipelineState, error) {
	ctx, span := s.tracer.Start(ctx, "gate.advance")
	defer span.End()
	span.SetAttributes(
		attribute.String("namespace", namespace),
		attribute.String("next", string(next)),
	)

	st, err := s.load(namespace)
	if err != nil {
		return nil, err
	}
	from, mode := st.State, st.Mode

	if next == pipeline.StateClassified {
		if opts.Mode == pipeline.ModeNone {
			return nil, ErrModeRequired
		}
		mode = opts.Mode
	}

	if from == pipeline.StateComplete {
		if cp, cerr := s.checkpoints.Get(namespace); cerr == nil && !cp.Cleared {
			reason := "documentation checkpoint pending: clear it before starting new work"
			if jerr := s.journal.Append(journal.Entry{
				Namespace: namespace,
				From:      from,
				To:        next,
				Outcome:   journal.OutcomeBlocked,
				Reason:    reason,
			}); jerr != nil {
				return nil, jerr
			}
			return nil, fmt.Errorf("%w: %s", ErrCheckpointPending, reason)
		}
	}

	if !pipeline.CanTransition(from, next, mode) {
		reason := fmt.Sprintf("cannot advance %s -> %s%s; legal next: %s",
			from, next, modeSuffix(mode), pipeline.DescribeNext(from, mode))
		if jerr := s.journal.Append(journal.Entry{
			Namespace: namespace,
			From:      from,
			To:        next,
			Outcome:   journal.OutcomeBlocked,
			Reason:    reason,
		}); jerr != nil {
			return nil, jerr
		}
		return nil, fmt.Errorf("%w: %s", ErrIllegalTransition, reason)
	}

	updated, err := s.store.Update(namespace, func(cur *statestore.PipelineState) error {
		cur.State = next
		if next == pipeline.StateIdle {
			resetToIdle(cur)
			return nil
		}
		if next == pipeline.StateClassified {
			cur.Mode = mode
			cur.Metadata = mergeMetadata(cur.Metadata, opts.Metadata)
		}
		set := pipeline.Permitted(next, cur.Mode)
		cur.ActiveAgents = append([]string(nil), set.Agents...)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := s.journal.Append(journal.Entry{
		Namespace: namespace,
		From:      from,
		To:        next,
		Outcome:   journal.OutcomeTransitioned,
	}); err != nil {
		return nil, err
	}
	s.logger.Info("pipeline advanced",
		zap.String("namespace", namespace),
		zap.String("from", string(from)),
		zap.String("to", string(next)),
		zap.String("mode", string(updated.Mode)))
	return updated, nil
}

// Complete transitions the namespace into the complete state and opens the
// documentation checkpoint that must be cleared before new work starts.
func (s *Service) Complete(ctx context.Context, namespace, description string) (*checkpoint.Checkpoint, error) {
	if _, err := s.Advance(ctx, namespace, pipeline.StateComplete, AdvanceOptions{}); err != nil {
		return nil, err
	}
	return s.checkpoints.Open(namespace, description)
}

// Reset is the manual escape hatch: it returns the namespace to idle from
// any state and journals the operator-supplied reason.
func (s *Service) Reset(ctx context.Context, namespace, reason string) (*statestore.PipelineState, error) {
	ctx, span := s.tracer.Start(ctx, "gate.reset")
	defer span.End()

	if reason == "" {
		reason = "manual reset"
	}

	st, err := s.load(namespace)
	if err != nil {
		return nil, err
	}
	from := st.State

	updated, err := s.store.Update(namespace, func(cur *statestore.PipelineState) error {
		resetToIdle(cur)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := s.journal.Append(journal.Entry{
		Namespace: namespace,
		From:      from,
		To:        pipeline.StateIdle,
		Outcome:   journal.OutcomeReset,
		Reason:    reason,
	}); err != nil {
		return nil, err
	}
	if s.resetCounter != nil {
		s.resetCounter.Add(ctx, 1,
			metric.WithAttributes(attribute.String("trigger", "manual")))
	}
	return updated, nil
}

// ClearCheckpoint discharges the namespace's documentation obligation. The
// clearing action itself is never gated, so completed work can always be
// documented out of the blocked state.
func (s *Service) ClearCheckpoint(ctx context.Context, namespace, notes string) (*checkpoint.Checkpoint, error) {
	return s.checkpoints.Clear(ctx, namespace, notes)
}

// Checkpoint returns the open documentation checkpoint, if any.
func (s *Service) Checkpoint(namespace string) (*checkpoint.Checkpoint, error) {
	return s.checkpoints.Get(namespace)
}

func resetToIdle(st *statestore.PipelineState) {
	st.State = pipeline.StateIdle
	st.Mode = pipeline.ModeNone
	st.ActiveAgents = nil
	st.Metadata = nil
}

func mergeMetadata(dst, src map[string]string) map[string]string {
	if len(src) == 0 {
		return dst
	}
	if dst == nil {
		dst = make(map[string]string, len(src))
	}
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func modeSuffix(m pipeline.Mode) string {
	if m == pipeline.ModeNone {
		return ""
	}
	return fmt.Sprintf(" (mode %s)", m)
}
