// File: cmd/session.go
package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/guhesse/script-wf-sub000/internal/config"
	"github.com/guhesse/script-wf-sub000/internal/session"
)

// sessionCmd groups the session artifact helpers.
var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Inspect or clear the stored session artifact",
}

var sessionInfoCmd = &cobra.Command{
	Use:   "info",
	Short: "Print a redacted summary of the stored session",
	RunE: func(cmd *cobra.Command, args []string) error {
		components, err := NewComponents(cmd.Context(), config.Get())
		if err != nil {
			return err
		}
		defer components.Shutdown()

		info, err := components.Service.GetSessionInfo()
		if err != nil {
			if errors.Is(err, session.ErrNoSession) {
				fmt.Println("no session artifact found")
				return nil
			}
			return err
		}
		return printJSON(info)
	},
}

var sessionStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print file-level session diagnostics",
	RunE: func(cmd *cobra.Command, args []string) error {
		components, err := NewComponents(cmd.Context(), config.Get())
		if err != nil {
			return err
		}
		defer components.Shutdown()

		return printJSON(components.Service.GetSessionStats())
	},
}

var sessionValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Re-check the stored session and explain the verdict",
	RunE: func(cmd *cobra.Command, args []string) error {
		components, err := NewComponents(cmd.Context(), config.Get())
		if err != nil {
			return err
		}
		defer components.Shutdown()

		valid, reason := components.Service.ValidateSession()
		if !valid {
			return fmt.Errorf("session is not valid: %s", reason)
		}
		fmt.Println("session is valid")
		return nil
	},
}

var sessionClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete the stored session artifacts",
	RunE: func(cmd *cobra.Command, args []string) error {
		components, err := NewComponents(cmd.Context(), config.Get())
		if err != nil {
			return err
		}
		defer components.Shutdown()

		if err := components.Service.ClearSession(); err != nil {
			return err
		}
		fmt.Println("session cleared")
		return nil
	},
}

func init() {
	sessionCmd.AddCommand(sessionInfoCmd)
	sessionCmd.AddCommand(sessionStatsCmd)
	sessionCmd.AddCommand(sessionValidateCmd)
	sessionCmd.AddCommand(sessionClearCmd)
}
