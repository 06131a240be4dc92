package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/rbxdash/admin-relay/internal/connectivity"
	"github.com/rbxdash/admin-relay/internal/workflow"
)

var probeCommand = &cobra.Command{
	Use:     "probe",
	GroupID: "relay",
	Short:   "Check once whether the remote API is reachable",
	Long:    `Issues a single liveness probe against the API's health endpoint and prints the resulting connectivity state. Exits non-zero when the API is unreachable.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println(headerStyle.Render("Admin Relay - Liveness Probe"))

		cfg, err := sessionConfig(viper.GetViper())
		if err != nil {
			return err
		}
		cfg.DisableNetWatch = true

		session, err := workflow.NewSession(cfg)
		if err != nil {
			return err
		}
		defer func() { _ = session.Stop() }()

		ctx, cancel := commandContext(cmd.Context())
		defer cancel()

		started := time.Now()
		session.Monitor.Probe(ctx)
		snap := session.Monitor.Snapshot()

		fmt.Println(field("State", stateBadge(snap.State)))
		fmt.Println(field("API", cfg.BaseURL))
		fmt.Println(field("Latency", time.Since(started).Round(time.Millisecond)))

		if snap.State != connectivity.StateOnline {
			return fmt.Errorf("remote API at '%s' is unreachable", cfg.BaseURL)
		}
		return nil
	},
}

// commandContext applies the global --timeout to one-shot commands.
func commandContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	if timeout > 0 {
		return context.WithTimeout(parent, time.Duration(timeout)*time.Second)
	}
	return context.WithCancel(parent)
}

func init() {
	rootCommand.AddCommand(probeCommand)
}
