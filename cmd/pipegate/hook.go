package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/pipegate/internal/checkpoint"
)

// fileEditorAgent is the synthetic specialist identity assigned to direct
// file-editing tools. Edits are only admitted when the pipeline would admit
// a domain specialist.
const fileEditorAgent = "file-editor"

// fileEditTools are the host tools that write files.
var fileEditTools = map[string]bool{
	"Edit":         true,
	"Write":        true,
	"NotebookEdit": true,
}

// hookResponse is the JSON contract with the host's hook runner.
type hookResponse struct {
	Decision string `json:"decision,omitempty"`
	Reason   string `json:"reason,omitempty"`
	Status   string `json:"status,omitempty"`
}

func init() {
	hookCmd.AddCommand(hookPreToolCmd)
	hookCmd.AddCommand(hookPostToolCmd)
	hookCmd.AddCommand(hookSessionStartCmd)
	hookCmd.AddCommand(hookStopCmd)
}

var hookCmd = &cobra.Command{
	Use:   "hook",
	Short: "Host hook adapter",
	Long: `Adapter commands for host tool hooks. Each reads the tool input as
JSON from stdin, writes a JSON decision to stdout, and exits 0 to allow or 2
to block.

Wire them as:
  PreToolUse:    pipegate hook pre-tool <tool>
  PostToolUse:   pipegate hook post-tool <tool>
  SessionStart:  pipegate hook session-start
  Stop:          pipegate hook stop`,
}

var hookPreToolCmd = &cobra.Command{
	Use:   "pre-tool <tool>",
	Short: "Gate a tool invocation before it runs",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ns, err := a.resolveNamespace()
		if err != nil {
			return err
		}
		return runPreTool(cmd.Context(), a, ns, args[0], os.Stdin, os.Stdout)
	},
}

var hookPostToolCmd = &cobra.Command{
	Use:   "post-tool <tool>",
	Short: "Record a completed tool invocation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()
		return runPostTool(a, args[0], os.Stdin, os.Stdout)
	},
}

var hookSessionStartCmd = &cobra.Command{
	Use:   "session-start",
	Short: "Initialize pipeline state for a new session",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ns, err := a.resolveNamespace()
		if err != nil {
			return err
		}
		return runSessionStart(a, ns, os.Stdout)
	},
}

var hookStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Block session completion while a checkpoint is open",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ns, err := a.resolveNamespace()
		if err != nil {
			return err
		}
		return runStop(a, ns, os.Stdout)
	},
}

// readToolInput parses the hook payload from stdin. The host wraps the actual
// fields as {"tool_input": {...}}; unwrap when nested. A missing or malformed
// payload is treated as empty rather than failing the hook.
func readToolInput(in io.Reader) map[string]any {
	data, err := io.ReadAll(in)
	if err != nil || len(data) == 0 {
		return map[string]any{}
	}
	var input map[string]any
	if err := json.Unmarshal(data, &input); err != nil {
		return map[string]any{}
	}
	if nested, ok := input["tool_input"].(map[string]any); ok {
		return nested
	}
	return input
}

// agentForTool maps a host tool invocation to the agent identity the gate
// evaluates. Task invocations carry the agent in subagent_type; file-editing
// tools act as a domain specialist; everything else is ungated.
func agentForTool(tool string, input map[string]any) string {
	if tool == "Task" {
		if sub, ok := input["subagent_type"].(string); ok {
			return sub
		}
		return ""
	}
	if fileEditTools[tool] {
		return fileEditorAgent
	}
	return ""
}

func writeHookResponse(out io.Writer, resp hookResponse) error {
	return json.NewEncoder(out).Encode(resp)
}

func runPreTool(ctx context.Context, a *app, ns, tool string, in io.Reader, out io.Writer) error {
	input := readToolInput(in)

	agent := agentForTool(tool, input)
	if agent == "" {
		return writeHookResponse(out, hookResponse{Decision: "approve"})
	}

	d, err := a.gate.Evaluate(ctx, ns, agent)
	if err != nil {
		return err
	}
	if d.Allowed {
		return writeHookResponse(out, hookResponse{Decision: "approve"})
	}
	if err := writeHookResponse(out, hookResponse{Decision: "block", Reason: d.Reason}); err != nil {
		return err
	}
	return errBlocked
}

func runPostTool(a *app, tool string, in io.Reader, out io.Writer) error {
	input := readToolInput(in)

	a.logger.Debug("tool completed",
		zap.String("tool", tool),
		zap.String("agent", agentForTool(tool, input)))
	return writeHookResponse(out, hookResponse{Status: "tracked"})
}

func runSessionStart(a *app, ns string, out io.Writer) error {
	if _, err := a.namespaces.MigrateLegacy(); err != nil {
		return err
	}
	if _, err := a.store.LoadOrInit(ns); err != nil {
		return err
	}
	return writeHookResponse(out, hookResponse{Status: "initialized"})
}

func runStop(a *app, ns string, out io.Writer) error {
	cp, err := a.checkpoints.Get(ns)
	if errors.Is(err, checkpoint.ErrNotFound) {
		return writeHookResponse(out, hookResponse{Decision: "approve"})
	}
	if err != nil {
		return err
	}

	reason := fmt.Sprintf(
		"documentation checkpoint open since %s; clear it before stopping (required: %v)",
		cp.CreatedAt.Format("2006-01-02 15:04"), cp.RequiredItems)
	if werr := writeHookResponse(out, hookResponse{Decision: "block", Reason: reason}); werr != nil {
		return werr
	}
	return errBlocked
}
