package checkpoint

import "time"

// RequiredItems is the fixed documentation checklist attached to every
// checkpoint when it opens.
var RequiredItems = []string{
	"dev-notes",
	"decision-log",
	"diagrams-if-applicable",
	"architecture-docs-if-applicable",
}

// Checkpoint is a documentation obligation for a completed task.
type Checkpoint struct {
	// ID is the unique identifier for this checkpoint.
	ID string `json:"id"`

	// Namespace is the pipeline instance this checkpoint blocks.
	Namespace string `json:"namespace"`

	// Description is the completion description that opened it.
	Description string `json:"description"`

	// RequiredItems is the documentation checklist.
	RequiredItems []string `json:"required_items"`

	// Cleared is set once the obligation is explicitly discharged.
	Cleared bool `json:"cleared"`

	// Notes records what was done when clearing.
	Notes string `json:"clearing_notes,omitempty"`

	// CreatedAt is when the task completed.
	CreatedAt time.Time `json:"created_at"`

	// ClearedAt is when the checkpoint was cleared, zero while open.
	ClearedAt time.Time `json:"cleared_at,omitempty"`
}
