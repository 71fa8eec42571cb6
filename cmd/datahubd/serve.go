package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nxthongbk/datahub/internal/config"
	"github.com/nxthongbk/datahub/internal/hublog"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Host the Data Hub core and watch the backup root for external changes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		root := config.GetString("backup-root")
		if err := os.MkdirAll(root, 0o755); err != nil {
			hublog.Logger().Warn("could not create backup root", "root", root, "error", err)
		}
		watcher, err := h.WatchBackupRoot(root)
		if err != nil {
			hublog.Logger().Warn("backup watcher unavailable, continuing without it", "error", err)
		} else {
			defer watcher.Close()
		}

		hublog.Logger().Info("datahubd serving", "backup_root", root)

		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig

		hublog.Logger().Info("datahubd shutting down")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
