// File: cmd/root.go
package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/guhesse/script-wf-sub000/internal/config"
	"github.com/guhesse/script-wf-sub000/internal/observability"
)

// Version is stamped by the build; local builds report "dev".
var Version = "dev"

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "script-wf",
	Short: "script-wf keeps an authenticated Adobe Experience Cloud session on disk.",
	Long: `script-wf signs in to the Adobe Experience Cloud portal through the
corporate identity providers, waits out the device-confirmation step and
stores the resulting browser session for other tooling to reuse.`,
	Version:      Version,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// 1. Initialize configuration loading (Viper)
		if err := initializeConfig(); err != nil {
			return fmt.Errorf("failed to initialize configuration: %w", err)
		}

		// 2. Unmarshal the configuration singleton
		if err := config.Load(viper.GetViper()); err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		cfg := config.Get()

		// 3. Validate the configuration
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}

		// 4. Initialize the logger
		observability.InitializeLogger(cfg.Logger)
		observability.GetLogger().Debug("Starting script-wf", zap.String("version", Version))
		return nil
	},
}

// Execute runs the root command with the context passed from main.go so an
// interrupt unwinds the whole command tree.
func Execute(ctx context.Context) error {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		// Interrupts surface as context errors, they are not failures worth
		// repeating on stderr.
		if ctx.Err() == nil {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		return err
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./config.yaml)")

	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(sessionCmd)
	rootCmd.AddCommand(watchCmd)
}

// initializeConfig reads in config file and ENV variables if set.
func initializeConfig() error {
	// Set default values so the tool can run with a minimal config.
	config.SetDefaults(viper.GetViper())

	// 1. Set up config file search paths
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	// 2. Environment Variable Configuration
	viper.SetEnvPrefix("SCRIPTWF")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Explicitly bind the secrets so they are picked up without a config
	// file present.
	_ = viper.BindEnv("audit.database_url", "SCRIPTWF_AUDIT_DATABASE_URL", "SCRIPTWF_DATABASE_URL")
	_ = viper.BindEnv("login.email", "SCRIPTWF_LOGIN_EMAIL")
	_ = viper.BindEnv("login.primary_password", "SCRIPTWF_LOGIN_PRIMARY_PASSWORD")
	_ = viper.BindEnv("login.broker_password", "SCRIPTWF_LOGIN_BROKER_PASSWORD")

	// 3. Read the configuration file
	if err := viper.ReadInConfig(); err != nil {
		// A missing config file is fine, defaults and environment carry the
		// run. Anything else (parse errors) must surface.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}
	return nil
}
