// Command datahubd is a thin CLI over the Data Hub core: configure the
// resource tree, push/read values, run aggregate queries, and sweep
// orphaned backup files. It exists to exercise the core directly from a
// terminal; the public client-facing API and long-running service hosting
// live outside this binary.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nxthongbk/datahub/internal/config"
	"github.com/nxthongbk/datahub/internal/hub"
	"github.com/nxthongbk/datahub/internal/hublog"
)

var h *hub.Hub

var rootCmd = &cobra.Command{
	Use:   "datahubd",
	Short: "Data Hub core: resource tree, observations, and backup store",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.Initialize(); err != nil {
			return fmt.Errorf("initialize config: %w", err)
		}
		hublog.Init()
		h = hub.NewFromConfig()
		return nil
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
