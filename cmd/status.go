// File: cmd/status.go
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/guhesse/script-wf-sub000/internal/config"
)

var (
	statusHistory int
	statusCheck   bool
)

// statusCmd reports whether a usable session exists. Nothing is launched.
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report whether a usable session exists",
	RunE: func(cmd *cobra.Command, args []string) error {
		components, err := NewComponents(cmd.Context(), config.Get())
		if err != nil {
			return err
		}
		defer components.Shutdown()

		status := components.Service.CheckLoginStatus()
		if err := printJSON(status); err != nil {
			return err
		}

		if statusHistory > 0 {
			if components.Recorder == nil {
				return fmt.Errorf("login history requires audit.database_url to be configured")
			}
			attempts, err := components.Recorder.RecentAttempts(cmd.Context(), statusHistory)
			if err != nil {
				return err
			}
			if err := printJSON(attempts); err != nil {
				return err
			}
		}

		if statusCheck && components.Service.RequiresLogin() {
			return fmt.Errorf("login required: %s", status.Reason)
		}
		return nil
	},
}

func init() {
	statusCmd.Flags().IntVar(&statusHistory, "history", 0, "also print the last N recorded login attempts")
	statusCmd.Flags().BoolVar(&statusCheck, "check", false, "exit nonzero when a fresh login is required")
}
