package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	configFile string
	timeout    int
)

var rootCommand = &cobra.Command{
	Use:     "admin-relay",
	Aliases: []string{"relay"},
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// 1. Allow 'version' (and 'help') to run without an API target
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}

		// 2. Optional config file, overridden by env vars and flags
		if configFile != "" {
			viper.SetConfigFile(configFile)
			if err := viper.ReadInConfig(); err != nil {
				return fmt.Errorf("failed to read config file '%s': %w", configFile, err)
			}
		}

		// 3. Enforce the API target for all other commands
		if viper.GetString("api-url") == "" {
			return fmt.Errorf("required flag(s) \"api-url\" not set")
		}

		return nil
	},
	Short: "Admin Relay: resilient gateway between the admin dashboard and the remote API",
	Long: `Admin Relay fronts the remote API used by the Robux and gamepass admin dashboard.
Every call gets a per-attempt timeout and capped exponential backoff, user actions are
rate limited locally, and a connectivity monitor tracks whether the API is reachable
through request outcomes, a periodic liveness probe and the host's network state.`,
}

func Execute() error {
	return rootCommand.Execute()
}

func init() {
	rootCommand.AddGroup(&cobra.Group{ID: "relay", Title: "Relay"})

	// Global Persistent Flags with env vars support
	flags := rootCommand.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "Path to a YAML config file")
	flags.String("api-name", "default", "Name tagging logs and notifications for this API profile")
	flags.String("api-url", "", "Base URL of the remote API, e.g. https://api.example.com/v1 (required)")
	flags.String("api-token", "", "Bearer token sent to the remote API")
	flags.String("health-path", "health", "Liveness endpoint, relative to the API base URL")
	flags.IntVar(&timeout, "timeout", 0, "Global execution timeout in seconds for one-shot commands (0 = run indefinitely)")
	flags.String("log-level", "info", "Logging level (debug, info, warn, error)")

	flags.Int("max-attempts", 3, "Attempts per call, including the first one")
	flags.Duration("base-delay", defaultRetry.BaseDelay, "Backoff before the second attempt")
	flags.Duration("max-delay", defaultRetry.MaxDelay, "Upper bound of any single backoff")
	flags.Duration("request-timeout", defaultRetry.RequestTimeout, "Deadline of a single attempt")

	flags.String("webhook-url", "", "Webhook URL for connectivity alerts")
	flags.String("webhook-username", "", "Webhook username for alerting")
	flags.String("webhook-password", "", "Webhook password for alerting")
	flags.Bool("webhook-insecure", false, "Skip TLS verification of the webhook endpoint")

	// Bind to env vars: --api-url <-> ADMINRELAY_API_URL
	_ = viper.BindPFlags(flags)
	viper.SetEnvPrefix("ADMINRELAY")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}
