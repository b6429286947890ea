package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/pipegate/internal/checkpoint"
	"github.com/fyrsmithlabs/pipegate/internal/config"
	"github.com/fyrsmithlabs/pipegate/internal/gate"
	"github.com/fyrsmithlabs/pipegate/internal/pipeline"
	"github.com/fyrsmithlabs/pipegate/internal/statestore"
)

var (
	advanceMode string
	advanceMeta []string
	resetReason string
	outputAsJSON bool
)

func init() {
	evaluateCmd.Flags().BoolVar(&outputAsJSON, "json", false, "Output the decision as JSON")
	statusCmd.Flags().BoolVar(&outputAsJSON, "json", false, "Output status as JSON")
	advanceCmd.Flags().StringVar(&advanceMode, "mode", "",
		"Pipeline mode (trivial, moderate, complex, exploratory); required when advancing to classified")
	advanceCmd.Flags().StringArrayVar(&advanceMeta, "meta", nil,
		"Classification metadata as key=value (repeatable)")
	resetCmd.Flags().StringVar(&resetReason, "reason", "", "Reason recorded in the journal")
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize the namespace and migrate any legacy state",
	Long: `Initialize pipegate for the selected namespace: creates the config
directory, migrates a pre-namespace global state file into _default if one
exists, and persists an idle pipeline state.

Examples:
  pipegate init
  pipegate init --namespace billing`,
	RunE: runInit,
}

var evaluateCmd = &cobra.Command{
	Use:   "evaluate <agent>",
	Short: "Ask the gate whether an agent may run right now",
	Long: `Evaluate an agent identifier against the current pipeline state.
Exits 0 when the agent is allowed and 2 when it is blocked, so the command
can sit directly in a host hook.

Examples:
  pipegate evaluate task-classifier
  pipegate evaluate sql-migrator --namespace billing
  pipegate evaluate context-refiner --json`,
	Args: cobra.ExactArgs(1),
	RunE: runEvaluate,
}

var advanceCmd = &cobra.Command{
	Use:   "advance <state>",
	Short: "Advance the pipeline to the next state",
	Long: `Commit a state transition. Advancing to classified requires --mode.
Illegal transitions are rejected with the pipeline unchanged.

Examples:
  pipegate advance classified --mode complex --meta signal=multi-file
  pipegate advance gathering
  pipegate advance executing`,
	Args: cobra.ExactArgs(1),
	RunE: runAdvance,
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset the pipeline to idle",
	Long: `Return the namespace to idle from any state. The reset and its
reason are recorded in the journal.

Examples:
  pipegate reset
  pipegate reset --reason "task abandoned"`,
	RunE: runReset,
}

var completeCmd = &cobra.Command{
	Use:   "complete <description>",
	Short: "Mark the task complete and open a documentation checkpoint",
	Long: `Transition from executing to complete and open the documentation
checkpoint that must be cleared before new work starts.

Examples:
  pipegate complete "shipped the parser fix"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runComplete,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the pipeline state without touching the gate",
	Long: `Read the namespace's state file directly. Status never evaluates,
never journals and never triggers stale recovery.

Examples:
  pipegate status
  pipegate status --json`,
	RunE: runStatus,
}

func runInit(cmd *cobra.Command, args []string) error {
	if err := config.EnsureConfigDir(); err != nil {
		return err
	}
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	migrated, err := a.namespaces.MigrateLegacy()
	if err != nil {
		return err
	}
	if migrated {
		printWarning("migrated legacy state into the %s namespace", "_default")
	}

	ns, err := a.resolveNamespace()
	if err != nil {
		return err
	}
	st, err := a.store.LoadOrInit(ns)
	if err != nil {
		return err
	}
	printSuccess("namespace %s ready (state: %s)", ns, st.State)
	return nil
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ns, err := a.resolveNamespace()
	if err != nil {
		return err
	}

	d, err := a.gate.Evaluate(cmd.Context(), ns, args[0])
	if err != nil {
		return err
	}

	if outputAsJSON {
		if err := outputJSON(d); err != nil {
			return err
		}
	} else if d.Allowed {
		printSuccess("%s allowed in %s/%s", d.Agent, ns, d.State)
	} else {
		printBlocked("%s", d.Reason)
	}

	if !d.Allowed {
		return errBlocked
	}
	return nil
}

func runAdvance(cmd *cobra.Command, args []string) error {
	next, err := pipeline.ParseState(args[0])
	if err != nil {
		return err
	}

	opts := gate.AdvanceOptions{}
	if advanceMode != "" {
		opts.Mode, err = pipeline.ParseMode(advanceMode)
		if err != nil {
			return err
		}
	}
	opts.Metadata, err = parseMetadata(advanceMeta)
	if err != nil {
		return err
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ns, err := a.resolveNamespace()
	if err != nil {
		return err
	}

	st, err := a.gate.Advance(cmd.Context(), ns, next, opts)
	if err != nil {
		return err
	}
	printSuccess("%s advanced to %s%s", ns, st.State, modeLabel(st.Mode))
	return nil
}

func runReset(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ns, err := a.resolveNamespace()
	if err != nil {
		return err
	}

	if _, err := a.gate.Reset(cmd.Context(), ns, resetReason); err != nil {
		return err
	}
	printSuccess("%s reset to idle", ns)
	return nil
}

func runComplete(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ns, err := a.resolveNamespace()
	if err != nil {
		return err
	}

	cp, err := a.gate.Complete(cmd.Context(), ns, strings.Join(args, " "))
	if err != nil {
		return err
	}
	printSuccess("%s complete; documentation checkpoint %s opened", ns, cp.ID)
	for _, item := range cp.RequiredItems {
		fmt.Printf("  - %s\n", item)
	}
	fmt.Println("Clear it with: pipegate checkpoint clear --notes \"...\"")
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ns, err := a.resolveNamespace()
	if err != nil {
		return err
	}

	st, err := a.store.Load(ns)
	if errors.Is(err, statestore.ErrNotFound) {
		fmt.Printf("namespace %s has no pipeline state yet (run `pipegate init`)\n", ns)
		return nil
	}
	if err != nil {
		return err
	}

	var cp *checkpoint.Checkpoint
	if got, cerr := a.checkpoints.Get(ns); cerr == nil {
		cp = got
	}

	if outputAsJSON {
		return outputJSON(struct {
			*statestore.PipelineState
			OpenCheckpoint *checkpoint.Checkpoint `json:"open_checkpoint,omitempty"`
		}{st, cp})
	}

	printField("Namespace", st.Namespace)
	printField("State", string(st.State))
	if st.Mode != pipeline.ModeNone {
		printField("Mode", string(st.Mode))
	}
	if len(st.ActiveAgents) > 0 {
		printField("Agents", strings.Join(st.ActiveAgents, ", "))
	}
	printField("Updated", st.Timestamp.Format("2006-01-02 15:04:05 MST"))
	if cp != nil {
		printWarning("documentation checkpoint open since %s",
			cp.CreatedAt.Format("2006-01-02 15:04"))
	}
	return nil
}

func parseMetadata(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	meta := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid --meta %q (expected key=value)", p)
		}
		meta[k] = v
	}
	return meta, nil
}

func modeLabel(m pipeline.Mode) string {
	if m == pipeline.ModeNone {
		return ""
	}
	return fmt.Sprintf(" (mode: %s)", m)
}
