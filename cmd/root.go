package cmd

import (
	"fmt"
	"foldersync/internal/config"
	"foldersync/internal/db"
	"foldersync/internal/logger"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var (
	cfg       *config.Config
	debug     bool
	configDir string
)

// commands that only talk to a running daemon
var clientCmds = map[string]bool{
	"status": true, "stop": true, "history": true, "flush": true,
	"install": true, "uninstall": true,
}

var rootCmd = &cobra.Command{
	Use:          "foldersync",
	Short:        "Keep a replica folder synchronized with a source folder",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" || cmd.Name() == "completion" {
			return nil
		}

		var err error
		cfg, err = config.Load(viper.GetViper(), configDir)
		if err != nil {
			return err
		}

		if clientCmds[cmd.Name()] {
			return logger.Init(debug, "")
		}

		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}

		if err := logger.Init(debug, cfg.LogPath); err != nil {
			return err
		}

		return db.Init(cfg.DBPath)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = db.Close()
		logger.Sync()
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func daemonURL(path string) string {
	return fmt.Sprintf("http://localhost:%d%s", cfg.DaemonPort, path)
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.BoolVar(&debug, "debug", false, "Enable debug mode")
	flags.StringVar(&configDir, "config", "", "Config directory (default ~/.foldersync)")
	flags.String("source", "", "Source folder")
	flags.String("replica", "", "Replica folder")
	flags.String("log", "", "Log file path")
	flags.Int("interval", 0, "Seconds between sync cycles")
	flags.Int("port", 0, "Daemon control port")

	bindFlags(flags, map[string]string{
		"source":   "source_path",
		"replica":  "replica_path",
		"log":      "log_path",
		"interval": "interval_seconds",
		"port":     "daemon_port",
	})
}

// bindFlags maps flag names to config keys. Flags left unset fall through to
// the config file and environment.
func bindFlags(flags *pflag.FlagSet, keys map[string]string) {
	for name, key := range keys {
		if f := flags.Lookup(name); f != nil {
			_ = viper.BindPFlag(key, f)
		}
	}
}
