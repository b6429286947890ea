// Package main implements the pipegate CLI: pipeline control commands plus
// the hook adapter that host tools call before and after agent invocations.
package main

import (
	"errors"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var (
	flagConfig    string
	flagNamespace string
)

// errBlocked marks a gate block so main can map it to exit code 2, the code
// host hooks interpret as "deny the invocation". Everything else exits 1.
var errBlocked = errors.New("blocked by pipeline gate")

func main() {
	if err := rootCmd.Execute(); err != nil {
		if errors.Is(err, errBlocked) {
			os.Exit(2)
		}
		printError(err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "pipegate",
	Short: "Gatekeeper for multi-phase agent pipelines",
	Long: `pipegate enforces a phased discipline on agent pipelines: tasks are
classified, context is gathered and refined, work is orchestrated and
executed, and completion requires a cleared documentation checkpoint.

Every agent invocation is checked against the current phase before it runs.
State is kept per namespace, so independent pipelines never interfere.

Examples:
  # Start a pipeline in the current namespace
  pipegate init
  pipegate evaluate task-classifier
  pipegate advance classified --mode complex

  # Inspect without touching the gate
  pipegate status
  pipegate checkpoint show`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "",
		"config file (default ~/.config/pipegate/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&flagNamespace, "namespace", "n", "",
		"namespace (default: $PIPEGATE_NAMESPACE, then the joined namespace, then _default)")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(evaluateCmd)
	rootCmd.AddCommand(advanceCmd)
	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(completeCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(nsCmd)
	rootCmd.AddCommand(checkpointCmd)
	rootCmd.AddCommand(cacheCmd)
	rootCmd.AddCommand(hookCmd)
	rootCmd.AddCommand(serveCmd)
}
