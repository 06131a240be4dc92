package cli

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/rbxdash/admin-relay/internal/notifications"
	"github.com/rbxdash/admin-relay/internal/ratelimit"
	"github.com/rbxdash/admin-relay/internal/remote"
	"github.com/rbxdash/admin-relay/internal/workflow"
)

var defaultRetry = remote.DefaultRetryPolicy()

// sessionConfig assembles the workflow config from flags, env vars and the config file.
func sessionConfig(v *viper.Viper) (workflow.Config, error) {
	cfg := workflow.DefaultConfig()
	cfg.APIName = v.GetString("api-name")
	cfg.BaseURL = v.GetString("api-url")
	cfg.Token = v.GetString("api-token")
	cfg.HealthPath = v.GetString("health-path")
	cfg.LogLevel = v.GetString("log-level")

	cfg.Retry = remote.RetryPolicy{
		MaxAttempts:    v.GetInt("max-attempts"),
		BaseDelay:      v.GetDuration("base-delay"),
		MaxDelay:       v.GetDuration("max-delay"),
		RequestTimeout: v.GetDuration("request-timeout"),
	}
	if err := cfg.Retry.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid retry settings: %w", err)
	}

	if v.IsSet("probe-interval") {
		cfg.Monitor.ProbeInterval = v.GetDuration("probe-interval")
	}
	if v.IsSet("failure-threshold") {
		cfg.Monitor.FailureThreshold = v.GetInt("failure-threshold")
	}
	if v.IsSet("netwatch-interval") {
		cfg.NetWatchInterval = v.GetDuration("netwatch-interval")
	}
	cfg.DisableNetWatch = v.GetBool("disable-netwatch")

	// Per-action overrides only come from the config file:
	//
	//	rate_limits:
	//	  delete: {max_requests: 3, window: 2m}
	presets, err := ratelimit.DecodePresets(v.GetStringMap("rate_limits"), ratelimit.DefaultPresets())
	if err != nil {
		return cfg, err
	}
	cfg.Presets = presets

	cfg.Webhook = notifications.Webhook{
		URL:      v.GetString("webhook-url"),
		Username: v.GetString("webhook-username"),
		Password: v.GetString("webhook-password"),
		Insecure: v.GetBool("webhook-insecure"),
	}
	return cfg, nil
}
