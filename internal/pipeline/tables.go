package pipeline

import (
	"sort"
	"strings"
)

// PermittedSet describes which agents a (state, mode) pair admits.
type PermittedSet struct {
	// Agents are explicitly admitted identifiers.
	Agents []string

	// AnySpecialist admits every non-pipeline agent in addition to Agents.
	AnySpecialist bool
}

// Allows reports whether agent is a member of the set.
func (p PermittedSet) Allows(agent string) bool {
	if agent == "" {
		return false
	}
	for _, a := range p.Agents {
		if a == agent {
			return true
		}
	}
	return p.AnySpecialist && IsSpecialist(agent)
}

// Describe renders the set for block reasons shown to humans.
func (p PermittedSet) Describe() string {
	parts := append([]string(nil), p.Agents...)
	sort.Strings(parts)
	if p.AnySpecialist {
		parts = append(parts, "any domain specialist")
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, ", ")
}

// executingSet admits any specialist plus the orchestrator's evaluate loop.
var executingSet = PermittedSet{
	Agents:        []string{AgentOrchestrator},
	AnySpecialist: true,
}

// gatheringSet admits the gatherer and its parallel sub-gatherers.
var gatheringSet = func() PermittedSet {
	agents := []string{AgentGatherer}
	for a := range subGatherers {
		agents = append(agents, a)
	}
	sort.Strings(agents)
	return PermittedSet{Agents: agents}
}()

// Permitted returns the agent set the gate consults for a state. The
// classified state routes by mode: trivial goes straight to specialists,
// every other mode must gather context next.
func Permitted(state State, mode Mode) PermittedSet {
	switch state {
	case StateIdle:
		return PermittedSet{Agents: []string{AgentClassifier, AgentGatherer}}
	case StateClassified:
		if mode == ModeTrivial {
			return executingSet
		}
		return PermittedSet{Agents: []string{AgentGatherer}}
	case StateGathering:
		return gatheringSet
	case StateRefining:
		return PermittedSet{Agents: []string{AgentRefiner}}
	case StateOrchestrating:
		return PermittedSet{Agents: []string{AgentOrchestrator}}
	case StateExecuting:
		return executingSet
	case StateComplete:
		// Only a fresh gathering pass may restart work; everything else
		// waits on the documentation checkpoint.
		return PermittedSet{Agents: []string{AgentGatherer}}
	}
	return PermittedSet{}
}

// NextStates returns the states legally reachable from `from` under `mode`.
// Resets to idle are a separate operation and intentionally absent here.
func NextStates(from State, mode Mode) []State {
	switch from {
	case StateIdle:
		return []State{StateClassified}
	case StateClassified:
		if mode == ModeTrivial {
			return []State{StateExecuting}
		}
		return []State{StateGathering}
	case StateGathering:
		if mode == ModeModerate {
			return []State{StateExecuting}
		}
		return []State{StateRefining}
	case StateRefining:
		return []State{StateOrchestrating}
	case StateOrchestrating:
		return []State{StateExecuting}
	case StateExecuting:
		return []State{StateComplete}
	case StateComplete:
		return []State{StateIdle, StateClassified}
	}
	return nil
}

// CanTransition reports whether from → to is legal under mode.
func CanTransition(from, to State, mode Mode) bool {
	for _, s := range NextStates(from, mode) {
		if s == to {
			return true
		}
	}
	return false
}

// DescribeNext renders the legal next states for rejection messages.
func DescribeNext(from State, mode Mode) string {
	next := NextStates(from, mode)
	if len(next) == 0 {
		return "none"
	}
	return joinStates(next)
}
