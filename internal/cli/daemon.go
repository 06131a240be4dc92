package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-co-op/gocron-ui/server"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/rbxdash/admin-relay/internal/api"
	"github.com/rbxdash/admin-relay/internal/workflow"
)

const shutdownGrace = 10 * time.Second

var daemonCommand = &cobra.Command{
	Use:     "daemon",
	Short:   "Run the relay in daemon mode",
	GroupID: "relay",
	Long:    `Serves the relay API for the dashboard (status, manual re-check, metrics and the resilient proxy) while the connectivity probe, the host network watch and the rate-limit sweep run in the background.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		banner := fmt.Sprintf("Admin Relay - Daemon Mode \n\nVersion: %s\nBuild Date: %s", RelayVersion, RelayDate)
		fmt.Println(headerStyle.Render(banner))

		cfg, err := sessionConfig(viper.GetViper())
		if err != nil {
			return err
		}

		session, err := workflow.NewSession(cfg)
		if err != nil {
			return err
		}
		dlog := session.Logger().With("component", "daemon")
		listenAddress := viper.GetString("listen-address")
		schedulerUIAddress := viper.GetString("scheduler-ui-address")

		// 1. Block until a system signal, then unwind everything below
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := session.Start(ctx); err != nil {
			return err
		}
		dlog.Info("Scheduler started", "api", cfg.BaseURL, "probe_interval", cfg.Monitor.ProbeInterval)

		// 2. HTTP surfaces
		servers := []*http.Server{{
			Addr:              listenAddress,
			Handler:           api.NewRouter(session, dlog),
			ReadHeaderTimeout: 10 * time.Second,
		}}
		if schedulerUIAddress != "" {
			port, err := portOf(schedulerUIAddress)
			if err != nil {
				return err
			}
			ui := server.NewServer(session.Scheduler(), port, server.WithTitle("Admin Relay - Scheduler"))
			servers = append(servers, &http.Server{
				Addr:              schedulerUIAddress,
				Handler:           ui.Router,
				ReadHeaderTimeout: 10 * time.Second,
			})
		}

		group, groupCtx := errgroup.WithContext(ctx)
		for _, srv := range servers {
			group.Go(func() error {
				dlog.Info("HTTP server listening", "address", srv.Addr)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("server on %s failed: %w", srv.Addr, err)
				}
				return nil
			})
		}

		// 3. Shutdown on signal or on the first server failure
		group.Go(func() error {
			<-groupCtx.Done()
			dlog.Warn("Shutting down relay...")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
			defer cancel()
			var errs []error
			for _, srv := range servers {
				errs = append(errs, srv.Shutdown(shutdownCtx))
			}
			errs = append(errs, session.Stop())
			return errors.Join(errs...)
		})

		return group.Wait()
	},
}

func portOf(address string) (int, error) {
	_, port, err := net.SplitHostPort(address)
	if err != nil {
		return 0, fmt.Errorf("invalid address '%s': %w", address, err)
	}
	return strconv.Atoi(port)
}

func init() {
	rootCommand.AddCommand(daemonCommand)
	flags := daemonCommand.Flags()
	flags.String("listen-address", "0.0.0.0:8080", "Address of the relay API")
	flags.String("scheduler-ui-address", "", "Address of the scheduler dashboard (disabled when empty)")
	flags.Duration("probe-interval", 60*time.Second, "Period of the background liveness probe")
	flags.Int("failure-threshold", 2, "Consecutive failures that take the API offline")
	flags.Duration("netwatch-interval", 5*time.Second, "Period of the host network inspection")
	flags.Bool("disable-netwatch", false, "Do not watch the host's network interfaces")
	_ = viper.BindPFlags(flags)
}
