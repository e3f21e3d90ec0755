package cmd

import (
	"fmt"
	"foldersync/internal/autostart"

	"github.com/spf13/cobra"
)

var uninstallCmd = &cobra.Command{
	Use:   "uninstall",
	Short: "Remove the foldersync autostart entry",
	RunE: func(cmd *cobra.Command, args []string) error {
		as := autostart.New()

		installed, err := as.IsInstalled()
		if err != nil {
			return fmt.Errorf("failed to check autostart entry: %w", err)
		}
		if !installed {
			fmt.Println("foldersync is not registered for autostart")
			return nil
		}

		if err := as.Uninstall(); err != nil {
			return fmt.Errorf("failed to remove autostart entry: %w", err)
		}

		fmt.Println("foldersync watch will no longer start with the session")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(uninstallCmd)
}
