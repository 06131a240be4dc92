package ratelimit

import (
	"fmt"
	"time"

	"github.com/go-viper/mapstructure/v2"
)

// Action names a class of user-triggered calls that share one admission budget.
type Action string

const (
	ActionLogin   Action = "login"
	ActionCreate  Action = "create"
	ActionUpdate  Action = "update"
	ActionDelete  Action = "delete"
	ActionUpload  Action = "upload"
	ActionGeneric Action = "generic"
)

// Preset is the admission budget of one Action: MaxRequests per Window.
type Preset struct {
	MaxRequests int           `mapstructure:"max_requests"`
	Window      time.Duration `mapstructure:"window"`
}

// Validate reports whether the preset can be enforced.
func (p Preset) Validate() error {
	if p.MaxRequests < 1 {
		return fmt.Errorf("max_requests must be at least 1; got %d", p.MaxRequests)
	}
	if p.Window <= 0 {
		return fmt.Errorf("window must be positive; got %s", p.Window)
	}
	return nil
}

// DefaultPresets returns the policy table. Destructive and expensive actions get the
// tightest budgets; plain reads the loosest.
func DefaultPresets() map[Action]Preset {
	return map[Action]Preset{
		ActionLogin:   {MaxRequests: 5, Window: 5 * time.Minute},
		ActionCreate:  {MaxRequests: 10, Window: time.Minute},
		ActionUpdate:  {MaxRequests: 20, Window: time.Minute},
		ActionDelete:  {MaxRequests: 5, Window: time.Minute},
		ActionUpload:  {MaxRequests: 5, Window: time.Minute},
		ActionGeneric: {MaxRequests: 100, Window: time.Minute},
	}
}

// DecodePresets overlays configuration onto base. raw is keyed by action name, e.g.
//
//	delete:
//	  max_requests: 3
//	  window: 2m
//
// Weak typing lets numbers arrive as strings from environment variables.
func DecodePresets(raw map[string]any, base map[Action]Preset) (map[Action]Preset, error) {
	result := make(map[Action]Preset, len(base))
	for action, preset := range base {
		result[action] = preset
	}

	for name, value := range raw {
		preset := result[Action(name)]

		config := &mapstructure.DecoderConfig{
			Result:           &preset,
			WeaklyTypedInput: true,
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
			),
		}

		decoder, err := mapstructure.NewDecoder(config)
		if err != nil {
			return nil, err
		}
		if err := decoder.Decode(value); err != nil {
			return nil, fmt.Errorf("invalid rate limit preset '%s': %w", name, err)
		}
		if err := preset.Validate(); err != nil {
			return nil, fmt.Errorf("invalid rate limit preset '%s': %w", name, err)
		}
		result[Action(name)] = preset
	}

	return result, nil
}
