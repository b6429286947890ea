package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/pipegate/internal/pipeline"
)

var nsListJSON bool

func init() {
	nsCmd.AddCommand(nsCreateCmd)
	nsCmd.AddCommand(nsListCmd)
	nsCmd.AddCommand(nsJoinCmd)
	nsCmd.AddCommand(nsLeaveCmd)
	nsCmd.AddCommand(nsDestroyCmd)

	nsListCmd.Flags().BoolVar(&nsListJSON, "json", false, "Output namespaces as JSON")
}

var nsCmd = &cobra.Command{
	Use:   "ns",
	Short: "Manage namespaces",
	Long: `Manage isolated pipeline namespaces. Each namespace owns its own
state, journal, cache and checkpoints.

Examples:
  pipegate ns create billing
  pipegate ns join billing
  pipegate ns list
  pipegate ns leave
  pipegate ns destroy billing`,
}

var nsCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a namespace with an idle pipeline",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		st, err := a.namespaces.Create(args[0])
		if err != nil {
			return err
		}
		printSuccess("created namespace %s (state: %s)", st.Namespace, st.State)
		return nil
	},
}

var nsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List namespaces with their pipeline state",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		states, err := a.namespaces.List()
		if err != nil {
			return err
		}
		if nsListJSON {
			return outputJSON(states)
		}
		if len(states) == 0 {
			fmt.Println("No namespaces yet (run `pipegate init` or `pipegate ns create <name>`)")
			return nil
		}

		current, _ := a.resolveNamespace()
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "NAMESPACE\tSTATE\tMODE\tUPDATED")
		for _, st := range states {
			name := st.Namespace
			if name == current {
				name = "* " + name
			}
			state := string(st.State)
			if !st.State.Valid() {
				state = "corrupt"
			}
			mode := string(st.Mode)
			if st.Mode == pipeline.ModeNone {
				mode = "-"
			}
			updated := "-"
			if !st.Timestamp.IsZero() {
				updated = st.Timestamp.Format("2006-01-02 15:04")
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", name, state, mode, updated)
		}
		return w.Flush()
	},
}

var nsJoinCmd = &cobra.Command{
	Use:   "join <name>",
	Short: "Select a namespace for future invocations",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.joinNamespace(args[0]); err != nil {
			return err
		}
		printSuccess("joined namespace %s", args[0])
		return nil
	},
}

var nsLeaveCmd = &cobra.Command{
	Use:   "leave",
	Short: "Return to the default namespace",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.leaveNamespace(); err != nil {
			return err
		}
		printSuccess("left; future invocations use _default")
		return nil
	},
}

var nsDestroyCmd = &cobra.Command{
	Use:   "destroy <name>",
	Short: "Delete a namespace and all its data",
	Long: `Hard-delete a namespace's state, journal, cache and checkpoints.
Refused while the pipeline is mid-task; reset it first if you mean it.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.namespaces.Destroy(args[0]); err != nil {
			return err
		}
		printSuccess("destroyed namespace %s", args[0])
		return nil
	},
}
