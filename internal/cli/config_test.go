package cli

import (
	"testing"
	"time"

	"github.com/spf13/viper"

	"github.com/rbxdash/admin-relay/internal/ratelimit"
)

func newViper(values map[string]any) *viper.Viper {
	v := viper.New()
	v.SetDefault("api-name", "default")
	v.SetDefault("health-path", "health")
	v.SetDefault("max-attempts", 3)
	v.SetDefault("base-delay", defaultRetry.BaseDelay)
	v.SetDefault("max-delay", defaultRetry.MaxDelay)
	v.SetDefault("request-timeout", defaultRetry.RequestTimeout)
	for k, val := range values {
		v.Set(k, val)
	}
	return v
}

func TestSessionConfig(t *testing.T) {
	tests := []struct {
		name    string
		values  map[string]any
		wantErr bool
	}{
		{
			name:   "Defaults",
			values: map[string]any{"api-url": "https://api.example.test/v1"},
		},
		{
			name: "Retry overrides",
			values: map[string]any{
				"api-url":      "https://api.example.test/v1",
				"max-attempts": "5",
				"base-delay":   "500ms",
			},
		},
		{
			name: "Inverted backoff bounds",
			values: map[string]any{
				"api-url":    "https://api.example.test/v1",
				"base-delay": "1m",
			},
			wantErr: true,
		},
		{
			name: "Invalid rate limit override",
			values: map[string]any{
				"api-url":     "https://api.example.test/v1",
				"rate_limits": map[string]any{"delete": map[string]any{"max_requests": 0}},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := sessionConfig(newViper(tt.values))
			if (err != nil) != tt.wantErr {
				t.Errorf("sessionConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSessionConfig_AppliesOverrides(t *testing.T) {
	cfg, err := sessionConfig(newViper(map[string]any{
		"api-url":           "https://api.example.test/v1",
		"api-name":          "staging",
		"max-attempts":      "5",
		"failure-threshold": 4,
		"probe-interval":    "30s",
		"webhook-url":       "https://hooks.example.test/relay",
		"rate_limits": map[string]any{
			"delete": map[string]any{"max_requests": "3", "window": "2m"},
		},
	}))
	if err != nil {
		t.Fatalf("sessionConfig() unexpected error: %v", err)
	}

	if cfg.APIName != "staging" || cfg.Retry.MaxAttempts != 5 {
		t.Errorf("cfg = %+v, want staging profile with 5 attempts", cfg)
	}
	if cfg.Monitor.FailureThreshold != 4 || cfg.Monitor.ProbeInterval != 30*time.Second {
		t.Errorf("monitor = %+v, want threshold 4 and 30s interval", cfg.Monitor)
	}
	if got := cfg.Presets[ratelimit.ActionDelete]; got.MaxRequests != 3 || got.Window != 2*time.Minute {
		t.Errorf("delete preset = %+v, want 3 per 2m", got)
	}
	if got := cfg.Presets[ratelimit.ActionLogin]; got != ratelimit.DefaultPresets()[ratelimit.ActionLogin] {
		t.Errorf("login preset = %+v, want default", got)
	}
	if cfg.Webhook.URL != "https://hooks.example.test/relay" {
		t.Errorf("webhook url = %q", cfg.Webhook.URL)
	}
}

func TestPortOf(t *testing.T) {
	tests := []struct {
		address string
		want    int
		wantErr bool
	}{
		{address: "0.0.0.0:8081", want: 8081},
		{address: ":9090", want: 9090},
		{address: "localhost", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.address, func(t *testing.T) {
			got, err := portOf(tt.address)
			if (err != nil) != tt.wantErr {
				t.Fatalf("portOf() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("portOf() = %d, want %d", got, tt.want)
			}
		})
	}
}
