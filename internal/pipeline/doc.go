// Package pipeline defines the task pipeline state machine.
//
// A namespace moves through a fixed sequence of phases (classification,
// context gathering, refinement, orchestration, execution, completion). The
// classification mode selects which phases are traversed, and every state
// carries a static set of agent identifiers the gate may admit. The package
// is pure data and lookup tables; persistence and enforcement live in
// statestore and gate.
package pipeline
