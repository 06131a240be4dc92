package notifications

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rbxdash/admin-relay/internal/connectivity"
)

const queueSize = 16

// Notifier forwards connectivity transitions to a Sender without ever blocking the monitor.
// Delivery failures are logged and dropped.
type Notifier struct {
	sender  Sender
	service string
	logger  *slog.Logger
	queue   chan ConnectivityChange
}

func NewNotifier(sender Sender, service string, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		sender:  sender,
		service: service,
		logger:  logger,
		queue:   make(chan ConnectivityChange, queueSize),
	}
}

// ChangeFor returns the notification owed for a transition, if any: entering Offline,
// or the restored flag being raised.
func ChangeFor(service string, prev, next connectivity.Snapshot) (ConnectivityChange, bool) {
	change := ConnectivityChange{
		Service:       service,
		State:         string(next.State),
		PreviousState: string(prev.State),
		Failures:      next.Failures,
		Since:         next.Since,
	}

	switch {
	case next.State == connectivity.StateOffline && prev.State != connectivity.StateOffline:
		change.Event = EventOffline
		change.Message = fmt.Sprintf("%s lost connection to the remote API (was %s)", service, prev.State)
	case next.Restored && !prev.Restored:
		change.Event = EventRestored
		change.Message = fmt.Sprintf("%s connection to the remote API restored", service)
	default:
		return ConnectivityChange{}, false
	}
	return change, true
}

// Listen is a connectivity.Listener. It only enqueues.
func (n *Notifier) Listen(prev, next connectivity.Snapshot) {
	change, ok := ChangeFor(n.service, prev, next)
	if !ok {
		return
	}
	select {
	case n.queue <- change:
	default:
		n.logger.Warn("Notification queue full, dropping connectivity change", "event", change.Event)
	}
}

// Run delivers queued notifications in order until ctx is done.
func (n *Notifier) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case change := <-n.queue:
			if err := n.sender.Notify(ctx, change); err != nil {
				n.logger.Error("Failed to deliver connectivity notification", "event", change.Event, "error", err)
				continue
			}
			n.logger.Debug("Connectivity notification delivered", "event", change.Event)
		}
	}
}
