// Package gate is the synchronous decision point evaluated before any agent
// runs, and the single place pipeline state advances.
//
// Evaluate never mutates state on a block and never advances it on an allow;
// advancement is a separate, explicit operation so that one allow does not
// implicitly commit a transition (an agent may run several times, or fail,
// within the same state). Every decision and transition appends exactly one
// journal entry. Stale pipelines self-heal: a non-terminal state older than
// the inactivity threshold is reset to idle before the request is evaluated.
package gate
