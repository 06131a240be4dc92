package notifications

import (
	"context"
	"time"
)

const (
	EventOffline  = "offline"
	EventRestored = "restored"
)

// Sender delivers a notification to an external channel.
type Sender interface {
	Notify(ctx context.Context, change ConnectivityChange) error
}

type Webhook struct {
	URL      string
	Username string
	Password string
	// Insecure skips TLS certificate verification of the webhook endpoint.
	Insecure bool
	Timeout  time.Duration
}

// ConnectivityChange is the payload posted when the remote API is lost or comes back.
type ConnectivityChange struct {
	Service       string    `json:"service"`
	Event         string    `json:"event"`
	State         string    `json:"state"`
	PreviousState string    `json:"previous_state"`
	Failures      int       `json:"consecutive_failures"`
	Since         time.Time `json:"since"`
	Message       string    `json:"message"`
}
