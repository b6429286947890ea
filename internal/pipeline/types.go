package pipeline

import (
	"fmt"
	"strings"
	"time"
)

// State is a phase of the pipeline.
type State string

const (
	// StateIdle is the rest state; a new pipeline may start here.
	StateIdle State = "idle"

	// StateClassified means the task has been classified into a Mode.
	StateClassified State = "classified"

	// StateGathering means context gathering is in progress.
	StateGathering State = "gathering"

	// StateRefining means gathered context is being refined.
	StateRefining State = "refining"

	// StateOrchestrating means strategic orchestration is active.
	StateOrchestrating State = "orchestrating"

	// StateExecuting means domain specialists are doing the work.
	StateExecuting State = "executing"

	// StateComplete means the task finished; a documentation checkpoint
	// must be cleared before new work starts.
	StateComplete State = "complete"
)

// StaleThreshold is the inactivity age after which a non-terminal state is
// considered abandoned and auto-reset to idle.
const StaleThreshold = 10 * time.Minute

// allStates in traversal order, used for parsing and display.
var allStates = []State{
	StateIdle, StateClassified, StateGathering, StateRefining,
	StateOrchestrating, StateExecuting, StateComplete,
}

// Valid reports whether s is a defined state.
func (s State) Valid() bool {
	for _, st := range allStates {
		if s == st {
			return true
		}
	}
	return false
}

// Terminal reports whether a new pipeline may be started from s.
func (s State) Terminal() bool {
	return s == StateIdle || s == StateComplete
}

// ParseState converts a string (case-insensitive) to a State.
func ParseState(v string) (State, error) {
	s := State(strings.ToLower(strings.TrimSpace(v)))
	if !s.Valid() {
		return "", fmt.Errorf("unknown state %q (valid: %s)", v, joinStates(allStates))
	}
	return s, nil
}

// Mode classifies task complexity and selects the traversal route.
type Mode string

const (
	// ModeNone means no classification has happened yet.
	ModeNone Mode = ""

	// ModeTrivial routes straight from classified to executing.
	ModeTrivial Mode = "trivial"

	// ModeModerate gathers context, then executes (no refinement pass).
	ModeModerate Mode = "moderate"

	// ModeComplex traverses the full chain.
	ModeComplex Mode = "complex"

	// ModeExploratory traverses the full chain, same as complex.
	ModeExploratory Mode = "exploratory"
)

// Valid reports whether m is a defined mode. ModeNone is valid: it is the
// unclassified zero value.
func (m Mode) Valid() bool {
	switch m {
	case ModeNone, ModeTrivial, ModeModerate, ModeComplex, ModeExploratory:
		return true
	}
	return false
}

// ParseMode converts a string (case-insensitive) to a Mode.
func ParseMode(v string) (Mode, error) {
	m := Mode(strings.ToLower(strings.TrimSpace(v)))
	if !m.Valid() || m == ModeNone {
		return "", fmt.Errorf("unknown mode %q (valid: trivial, moderate, complex, exploratory)", v)
	}
	return m, nil
}

// Reserved pipeline agent identifiers. Anything outside this set (and the
// sub-gatherer set) is treated as a domain specialist.
const (
	// AgentClassifier classifies the task and picks a Mode.
	AgentClassifier = "task-classifier"

	// AgentGatherer runs the full context-gathering pass.
	AgentGatherer = "context-gatherer"

	// AgentRefiner condenses gathered context.
	AgentRefiner = "context-refiner"

	// AgentOrchestrator plans and evaluates specialist work.
	AgentOrchestrator = "strategic-orchestrator"
)

// subGatherers are the parallel workers the gatherer fans out to. They are
// only admitted while gathering is in progress.
var subGatherers = map[string]bool{
	"code-structure-gatherer": true,
	"repo-history-gatherer":   true,
	"docs-gatherer":           true,
	"web-search-gatherer":     true,
	"web-fetch-gatherer":      true,
}

// IsPipelineAgent reports whether agent is one of the reserved pipeline
// control agents (including sub-gatherers).
func IsPipelineAgent(agent string) bool {
	switch agent {
	case AgentClassifier, AgentGatherer, AgentRefiner, AgentOrchestrator:
		return true
	}
	return subGatherers[agent]
}

// IsSpecialist reports whether agent is a domain specialist, i.e. any
// identifier that is not reserved for pipeline control.
func IsSpecialist(agent string) bool {
	return agent != "" && !IsPipelineAgent(agent)
}

func joinStates(states []State) string {
	parts := make([]string, len(states))
	for i, s := range states {
		parts[i] = string(s)
	}
	return strings.Join(parts, ", ")
}
