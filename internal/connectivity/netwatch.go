package connectivity

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	psnet "github.com/shirou/gopsutil/v3/net"
)

// DefaultNetWatchInterval is how often the host's interfaces are inspected.
const DefaultNetWatchInterval = 5 * time.Second

// LinkChecker reports whether the host has a usable network link.
type LinkChecker func(ctx context.Context) (bool, error)

// NetworkListener consumes host network notifications. *Monitor satisfies it.
type NetworkListener interface {
	NetworkDown()
	NetworkUp(ctx context.Context)
}

// HostLinkUp reports whether any interface other than loopback is up and has an address.
func HostLinkUp(ctx context.Context) (bool, error) {
	interfaces, err := psnet.InterfacesWithContext(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to list network interfaces: %w", err)
	}

	for _, iface := range interfaces {
		if !slices.Contains(iface.Flags, "up") || slices.Contains(iface.Flags, "loopback") {
			continue
		}
		if len(iface.Addrs) > 0 {
			return true, nil
		}
	}
	return false, nil
}

// NetWatcher turns periodic link inspections into up/down notifications, emitted on change only.
type NetWatcher struct {
	mu       sync.Mutex
	observed bool
	linkUp   bool

	check    LinkChecker
	listener NetworkListener
	logger   *slog.Logger

	scheduler gocron.Scheduler
	job       gocron.Job
}

// NewNetWatcher returns a watcher using check, or HostLinkUp when check is nil.
func NewNetWatcher(listener NetworkListener, check LinkChecker, logger *slog.Logger) *NetWatcher {
	if check == nil {
		check = HostLinkUp
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &NetWatcher{check: check, listener: listener, logger: logger}
}

// Poll inspects the link once. The first observation only reports a down link;
// later ones report transitions.
func (w *NetWatcher) Poll(ctx context.Context) {
	up, err := w.check(ctx)
	if err != nil {
		w.logger.Debug("Host network inspection failed", "error", err)
		return
	}

	w.mu.Lock()
	first := !w.observed
	changed := first || up != w.linkUp
	w.observed, w.linkUp = true, up
	w.mu.Unlock()

	switch {
	case !changed:
	case !up:
		w.logger.Warn("Host network went down")
		w.listener.NetworkDown()
	case !first:
		w.logger.Info("Host network came back, re-probing API")
		w.listener.NetworkUp(ctx)
	}
}

// Schedule registers periodic polling on s.
func (w *NetWatcher) Schedule(ctx context.Context, s gocron.Scheduler, every time.Duration) error {
	if every <= 0 {
		every = DefaultNetWatchInterval
	}

	job, err := s.NewJob(
		gocron.DurationJob(every),
		gocron.NewTask(func() { w.Poll(ctx) }),
		gocron.WithName("Host Network Watch"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("failed to schedule network watch: %w", err)
	}

	w.mu.Lock()
	w.scheduler, w.job = s, job
	w.mu.Unlock()
	return nil
}

// Stop removes the scheduled polling, if any.
func (w *NetWatcher) Stop() error {
	w.mu.Lock()
	s, job := w.scheduler, w.job
	w.scheduler, w.job = nil, nil
	w.mu.Unlock()

	if s == nil || job == nil {
		return nil
	}
	return s.RemoveJob(job.ID())
}
