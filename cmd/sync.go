package cmd

import (
	"context"
	"fmt"
	"foldersync/internal/daemon"
	"foldersync/internal/logger"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run a single sync cycle and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		d, err := daemon.New(cfg)
		if err != nil {
			return err
		}

		logger.Log.Info("starting one-shot sync",
			zap.String("source", cfg.SourcePath),
			zap.String("replica", cfg.ReplicaPath))

		res, runErr := d.RunOnce(ctx)

		stopCtx, stopCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer stopCancel()
		if err := d.Stop(stopCtx); err != nil {
			logger.Log.Warn("failed to drain executor",
				zap.Error(err))
		}

		if runErr != nil {
			return runErr
		}

		if res.Unchanged {
			fmt.Println("up to date")
			return nil
		}

		fmt.Printf("done: %d tasks, %d synced, %d failed\n", res.Tasks, res.Success, res.Failed)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)
}
