package main

import (
	"github.com/spf13/cobra"
)

func init() {
	cacheCmd.AddCommand(cacheSweepCmd)
}

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the gathered-context cache",
}

var cacheSweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Remove expired cache entries",
	Long: `Remove every expired entry from the namespace's cache partition.
Expired entries are also purged lazily on access, so sweeping is only needed
to reclaim disk space proactively.`,
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

		purged, err := a.cache.Sweep(ns)
		if err != nil {
			return err
		}
		printSuccess("swept %s: %d expired entries removed", ns, purged)
		return nil
	},
}
