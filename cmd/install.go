package cmd

import (
	"fmt"
	"foldersync/internal/autostart"
	"os"

	"github.com/spf13/cobra"
)

var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Register as service on boot",
	RunE: func(cmd *cobra.Command, _ []string) error {
		execPath, err := os.Executable()
		if err != nil {
			return fmt.Errorf("failed to get executable path: %w", err)
		}

		var args []string
		if configDir != "" {
			args = append(args, "--config", configDir)
		}

		as := autostart.New()
		if err := as.Install(execPath, args...); err != nil {
			return err
		}

		fmt.Println("foldersync daemon registered for autostart")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(installCmd)
}
