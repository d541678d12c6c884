// File: cmd/login.go
package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/guhesse/script-wf-sub000/api/schemas"
	"github.com/guhesse/script-wf-sub000/internal/browser"
	"github.com/guhesse/script-wf-sub000/internal/config"
)

var (
	loginHeadlessFlag   string
	loginEmail          string
	loginPassword       string
	loginBrokerPassword string
)

// loginCmd runs the blocking login flow.
var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in and store the session artifact",
	RunE: func(cmd *cobra.Command, args []string) error {
		components, err := NewComponents(cmd.Context(), config.Get())
		if err != nil {
			return err
		}
		defer components.Shutdown()

		result, err := components.Service.Login(cmd.Context(), loginOptionsFromFlags())
		if err != nil {
			return err
		}
		return printJSON(result)
	},
}

func init() {
	registerLoginFlags(loginCmd)
}

// registerLoginFlags attaches the shared login flags; login and watch take
// the same inputs.
func registerLoginFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&loginHeadlessFlag, "headless", "", `per-call headless override ("true"/"false"), honored when browser.allow_override is set`)
	cmd.Flags().StringVar(&loginEmail, "email", "", "identity portal email (falls back to login.email)")
	cmd.Flags().StringVar(&loginPassword, "password", "", "primary identity provider password")
	cmd.Flags().StringVar(&loginBrokerPassword, "broker-password", "", "identity broker password")
}

// loginOptionsFromFlags converts the command line into the explicit options
// structure the driver validates.
func loginOptionsFromFlags() *schemas.LoginOptions {
	opts := &schemas.LoginOptions{}
	if loginHeadlessFlag != "" {
		opts.Headless = browser.ParseHeadlessOverride(loginHeadlessFlag)
	}
	if loginEmail != "" {
		opts.Credentials = &schemas.Credentials{
			Email:           loginEmail,
			PrimaryPassword: loginPassword,
			BrokerPassword:  loginBrokerPassword,
		}
	}
	return opts
}

func printJSON(v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to render output: %w", err)
	}
	fmt.Println(string(out))
	return nil
}
