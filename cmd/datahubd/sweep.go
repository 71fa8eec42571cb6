package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Remove backup files with no matching live observation",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := h.SweepOrphanBackups(context.Background()); err != nil {
			return err
		}
		fmt.Println("sweep complete")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sweepCmd)
}
