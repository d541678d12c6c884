// File: cmd/watch.go
package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/guhesse/script-wf-sub000/internal/config"
	"github.com/guhesse/script-wf-sub000/internal/progress"
)

var watchInterval time.Duration

// watchCmd starts a background login and streams its progress until a
// terminal phase. Interrupting the watch abandons tracking: the browser is
// left to finish on its own.
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Start a background login and stream its progress",
	RunE: func(cmd *cobra.Command, args []string) error {
		components, err := NewComponents(cmd.Context(), config.Get())
		if err != nil {
			return err
		}
		defer components.Shutdown()

		attemptID, err := components.Service.StartLogin(loginOptionsFromFlags())
		if err != nil {
			if errors.Is(err, progress.ErrAlreadyRunning) {
				return fmt.Errorf("conflict: %w", err)
			}
			return err
		}
		fmt.Printf("attempt %s started\n", attemptID)

		ticker := time.NewTicker(watchInterval)
		defer ticker.Stop()

		var lastLine string
		for {
			select {
			case <-cmd.Context().Done():
				if components.Service.CancelLogin() {
					fmt.Println("cancelled, the browser may still finish in the background")
				}
				return cmd.Context().Err()
			case <-ticker.C:
				snap := components.Service.GetProgress()
				if line := fmt.Sprintf("[%s] %s", snap.Phase, snap.Message); line != lastLine {
					fmt.Println(line)
					lastLine = line
				}
				if snap.Done {
					if snap.Error != "" {
						return errors.New(snap.Error)
					}
					return printJSON(snap)
				}
			}
		}
	},
}

func init() {
	registerLoginFlags(watchCmd)
	watchCmd.Flags().DurationVar(&watchInterval, "interval", time.Second, "progress polling interval")
}
