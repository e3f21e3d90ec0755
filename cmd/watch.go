package cmd

import (
	"context"
	"foldersync/internal/daemon"
	"foldersync/internal/logger"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run the sync daemon until stopped",
	RunE:  runDaemon,
}

func runDaemon(cmd *cobra.Command, args []string) error {
	d, err := daemon.New(cfg)
	if err != nil {
		return err
	}

	srv := daemon.NewServer(d, cfg.DaemonPort)
	srv.Start()

	if err := d.Start(); err != nil {
		return err
	}

	logger.Log.Info("foldersync daemon started",
		zap.String("source", cfg.SourcePath),
		zap.String("replica", cfg.ReplicaPath),
		zap.Int("port", cfg.DaemonPort))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Log.Info("shutting down",
			zap.String("signal", sig.String()))
	case <-srv.StopCh():
		logger.Log.Info("stop requested via API")
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return srv.Stop(ctx)
}

func init() {
	watchCmd.Flags().Bool("fs-events", false, "Also sync early when the source changes")
	bindFlags(watchCmd.Flags(), map[string]string{"fs-events": "watch"})
	rootCmd.AddCommand(watchCmd)
}
