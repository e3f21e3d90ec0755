package cmd

import (
	"encoding/json"
	"fmt"
	"foldersync/internal/model"
	"foldersync/internal/repository"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "View daemon status",
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := http.Get(daemonURL("/status"))
		if err != nil {
			return fmt.Errorf("daemon not running: %w", err)
		}

		defer func(Body io.ReadCloser) {
			_ = Body.Close()
		}(resp.Body)

		var result struct {
			Status  model.StatusSnapshot `json:"status"`
			History *repository.Stats    `json:"history"`
		}

		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			return fmt.Errorf("failed to decode status response: %w", err)
		}

		snap := result.Status
		lastCycle := "-"
		if snap.LastCycle != nil {
			lastCycle = snap.LastCycle.Format("2006-01-02 15:04:05")
		}

		fmt.Printf("source:     %s\n", snap.Source)
		fmt.Printf("replica:    %s\n", snap.Replica)
		fmt.Printf("interval:   %s\n", snap.Interval)
		fmt.Printf("uptime:     %s\n", time.Since(snap.StartedAt).Round(time.Second))
		fmt.Printf("cycles:     %d (%d unchanged)\n", snap.Cycles, snap.Unchanged)
		fmt.Printf("last cycle: %s, %d tasks\n", lastCycle, snap.LastTasks)
		fmt.Printf("batches:    %d\n", snap.Batches)
		fmt.Printf("synced:     %d\n", snap.Synced)
		fmt.Printf("failed:     %d\n", snap.Failed)
		fmt.Printf("queued:     %d\n", snap.QueueLength)
		fmt.Printf("hashes:     %d cached\n", snap.HashCached)
		if snap.Stopping {
			fmt.Println("state:      stopping")
		}
		if snap.LastError != "" {
			fmt.Printf("last error: %s\n", snap.LastError)
		}
		if result.History != nil {
			fmt.Printf("history:    %d recorded, %d failed\n", result.History.Total, result.History.Failed)
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
