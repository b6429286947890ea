package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/pipegate/internal/checkpoint"
)

var checkpointNotes string

func init() {
	checkpointCmd.AddCommand(checkpointShowCmd)
	checkpointCmd.AddCommand(checkpointClearCmd)

	checkpointClearCmd.Flags().StringVar(&checkpointNotes, "notes", "",
		"What was documented (required)")
	_ = checkpointClearCmd.MarkFlagRequired("notes")
}

var checkpointCmd = &cobra.Command{
	Use:   "checkpoint",
	Short: "Manage the documentation checkpoint",
	Long: `A documentation checkpoint opens when a task completes and blocks
new work until it is cleared.

Examples:
  pipegate checkpoint show
  pipegate checkpoint clear --notes "dev notes and decision log written"`,
}

var checkpointShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the open checkpoint",
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

		cp, err := a.checkpoints.Get(ns)
		if errors.Is(err, checkpoint.ErrNotFound) {
			fmt.Printf("no open checkpoint in %s\n", ns)
			return nil
		}
		if err != nil {
			return err
		}

		printField("Namespace", cp.Namespace)
		printField("Opened", cp.CreatedAt.Format("2006-01-02 15:04:05 MST"))
		if cp.Description != "" {
			printField("Task", cp.Description)
		}
		fmt.Println("Required before new work:")
		for _, item := range cp.RequiredItems {
			fmt.Printf("  - %s\n", item)
		}
		return nil
	},
}

var checkpointClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Clear the open checkpoint",
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

		cp, err := a.gate.ClearCheckpoint(cmd.Context(), ns, checkpointNotes)
		if err != nil {
			return err
		}
		printSuccess("checkpoint %s cleared; %s may start new work", cp.ID, ns)
		return nil
	},
}
