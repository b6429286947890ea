// Package checkpoint enforces the post-completion documentation obligation.
//
// Completing a task opens a checkpoint with a fixed checklist of
// documentation items. While it stays open the gate blocks every agent in
// that namespace; clearing it records the operator's notes and archives the
// checkpoint for audit instead of deleting it.
package checkpoint
