// Package connectivity decides, continuously, whether the remote API is reachable.
//
// The Monitor aggregates three kinds of input into one displayed state:
//   - connectivity signals emitted by the request executor after every terminal outcome,
//   - its own periodic liveness probe, which keeps running in an idle session,
//   - host network up/down notifications.
//
// Going offline needs several consecutive failures; coming back needs a single success.
// The monitor is advisory: it never returns errors and never blocks executor calls.
package connectivity

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"
	"github.com/looplab/fsm"
)

// State is the displayed connectivity state.
type State string

const (
	StateChecking     State = "checking"
	StateOnline       State = "online"
	StateOffline      State = "offline"
	StateReconnecting State = "reconnecting"
)

const (
	eventOnline  = "online"
	eventOffline = "offline"
	eventRecheck = "recheck"
)

// Prober performs one liveness check. A nil error means the API answered.
type Prober interface {
	Probe(ctx context.Context) error
}

// ProberFunc adapts a function to Prober.
type ProberFunc func(ctx context.Context) error

func (f ProberFunc) Probe(ctx context.Context) error { return f(ctx) }

// Config holds the monitor's tunables.
type Config struct {
	// ProbeInterval is the period of the background liveness probe.
	ProbeInterval time.Duration
	// FailureThreshold is the number of consecutive failures that flips Online to Offline.
	FailureThreshold int
	// RestoredDisplay is how long the "connection restored" flag stays raised.
	RestoredDisplay time.Duration
}

// DefaultConfig returns the production tunables.
func DefaultConfig() Config {
	return Config{
		ProbeInterval:    60 * time.Second,
		FailureThreshold: 2,
		RestoredDisplay:  3 * time.Second,
	}
}

// Snapshot is a point-in-time view of the monitor, safe to serialize.
type Snapshot struct {
	State       State     `json:"state"`
	Restored    bool      `json:"restored"`
	Failures    int       `json:"consecutive_failures"`
	Since       time.Time `json:"since"`
	LastProbeAt time.Time `json:"last_probe_at"`
}

// Listener receives a snapshot after every change of state, restored flag or failure count.
// Listeners run in signal order. They may read State and Snapshot but must not feed
// signals back into the monitor.
type Listener func(prev, next Snapshot)

// Monitor is the single connectivity state machine of a session.
type Monitor struct {
	mu        sync.Mutex
	machine   *fsm.FSM
	failures  int
	restored  bool
	since     time.Time
	lastProbe time.Time

	restoredTimer clockwork.Timer

	// current is republished on every mutation so readers never take mu.
	current atomic.Pointer[Snapshot]

	// notifyNext is guarded by mu, notifyDone by notifyMu. Each change takes a ticket
	// under mu and is delivered once every earlier ticket has been.
	notifyNext uint64
	notifyDone uint64
	notifyMu   sync.Mutex
	notifyCond *sync.Cond
	listeners  map[int]Listener
	nextID     int

	prober Prober
	cfg    Config
	clock  clockwork.Clock
	logger *slog.Logger

	// cancel ends the probes of the current schedule.
	cancel    context.CancelFunc
	scheduler gocron.Scheduler
	job       gocron.Job
}

// Option configures a Monitor.
type Option func(*Monitor)

func WithClock(c clockwork.Clock) Option { return func(m *Monitor) { m.clock = c } }

func WithLogger(l *slog.Logger) Option { return func(m *Monitor) { m.logger = l } }

// NewMonitor returns a monitor in StateChecking. Zero Config fields fall back to defaults.
func NewMonitor(prober Prober, cfg Config, opts ...Option) *Monitor {
	defaults := DefaultConfig()
	if cfg.ProbeInterval <= 0 {
		cfg.ProbeInterval = defaults.ProbeInterval
	}
	if cfg.FailureThreshold < 1 {
		cfg.FailureThreshold = defaults.FailureThreshold
	}
	if cfg.RestoredDisplay <= 0 {
		cfg.RestoredDisplay = defaults.RestoredDisplay
	}

	m := &Monitor{
		listeners: make(map[int]Listener),
		prober:    prober,
		cfg:       cfg,
		clock:     clockwork.NewRealClock(),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.notifyCond = sync.NewCond(&m.notifyMu)
	m.since = m.clock.Now()

	m.machine = fsm.NewFSM(
		string(StateChecking),
		fsm.Events{
			{Name: eventOnline, Src: []string{string(StateChecking), string(StateOffline), string(StateReconnecting)}, Dst: string(StateOnline)},
			{Name: eventOffline, Src: []string{string(StateChecking), string(StateOnline), string(StateReconnecting)}, Dst: string(StateOffline)},
			{Name: eventRecheck, Src: []string{string(StateOffline)}, Dst: string(StateReconnecting)},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				m.since = m.clock.Now()
				m.logger.Info("Connectivity state changed", "from", e.Src, "to", e.Dst, "failures", m.failures)
			},
		},
	)
	m.publishLocked()
	return m
}

// State returns the current displayed state.
func (m *Monitor) State() State {
	return m.current.Load().State
}

// Snapshot returns the current state with its bookkeeping.
func (m *Monitor) Snapshot() Snapshot {
	return *m.current.Load()
}

func (m *Monitor) publishLocked() Snapshot {
	snap := m.snapshotLocked()
	m.current.Store(&snap)
	return snap
}

func (m *Monitor) snapshotLocked() Snapshot {
	return Snapshot{
		State:       State(m.machine.Current()),
		Restored:    m.restored,
		Failures:    m.failures,
		Since:       m.since,
		LastProbeAt: m.lastProbe,
	}
}

// Subscribe registers fn for change notifications and returns its cancel function.
func (m *Monitor) Subscribe(fn Listener) (unsubscribe func()) {
	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()

	id := m.nextID
	m.nextID++
	m.listeners[id] = fn

	return func() {
		m.notifyMu.Lock()
		defer m.notifyMu.Unlock()
		delete(m.listeners, id)
	}
}

// ReportOnline records a success signal from any source.
func (m *Monitor) ReportOnline() {
	m.apply(func() { m.succeedLocked() })
}

// ReportOffline records a failure signal. Online flips to Offline only once
// FailureThreshold consecutive failures have been seen.
func (m *Monitor) ReportOffline() {
	m.apply(func() { m.failLocked() })
}

// NetworkDown forces Offline at once; the host already debounces this signal.
func (m *Monitor) NetworkDown() {
	m.apply(func() {
		m.failures++
		m.fire(eventOffline)
	})
}

// NetworkUp re-probes the API instead of assuming it is reachable because the link is.
func (m *Monitor) NetworkUp(ctx context.Context) {
	m.Probe(ctx)
}

// Probe runs one liveness check and feeds its result into the state machine.
// A probe abandoned through ctx leaves no trace.
func (m *Monitor) Probe(ctx context.Context) {
	err := m.prober.Probe(ctx)
	if ctx.Err() != nil {
		return
	}

	m.mu.Lock()
	m.lastProbe = m.clock.Now()
	m.publishLocked()
	m.mu.Unlock()

	if err != nil {
		m.logger.Debug("Liveness probe failed", "error", err)
		m.ReportOffline()
		return
	}
	m.ReportOnline()
}

// Recheck is the user's manual retry. From Offline the state passes through
// Reconnecting while the probe is in flight.
func (m *Monitor) Recheck(ctx context.Context) Snapshot {
	m.apply(func() { m.fire(eventRecheck) })

	err := m.prober.Probe(ctx)

	m.apply(func() {
		m.lastProbe = m.clock.Now()
		switch {
		case ctx.Err() != nil:
			// Abandoned: fall back to where the re-check started.
			if State(m.machine.Current()) == StateReconnecting {
				m.fire(eventOffline)
			}
		case err != nil:
			m.logger.Debug("Manual re-check failed", "error", err)
			m.failLocked()
		default:
			m.succeedLocked()
		}
	})
	return m.Snapshot()
}

// Schedule registers the periodic probe on s. The first probe runs immediately so
// the monitor leaves Checking as soon as possible. A stopped monitor can be scheduled again.
func (m *Monitor) Schedule(s gocron.Scheduler) error {
	ctx, cancel := context.WithCancel(context.Background())
	job, err := s.NewJob(
		gocron.DurationJob(m.cfg.ProbeInterval),
		gocron.NewTask(func() { m.Probe(ctx) }),
		gocron.WithName("Connectivity Probe"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		cancel()
		return fmt.Errorf("failed to schedule connectivity probe: %w", err)
	}

	m.mu.Lock()
	prevCancel := m.cancel
	m.scheduler, m.job, m.cancel = s, job, cancel
	m.mu.Unlock()

	if prevCancel != nil {
		prevCancel()
	}
	return nil
}

// Stop cancels the periodic probe, any probe in flight and the restored timer.
func (m *Monitor) Stop() error {
	m.mu.Lock()
	s, job, cancel := m.scheduler, m.job, m.cancel
	m.scheduler, m.job, m.cancel = nil, nil, nil
	if m.restoredTimer != nil {
		m.restoredTimer.Stop()
	}
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if s == nil || job == nil {
		return nil
	}
	return s.RemoveJob(job.ID())
}

func (m *Monitor) succeedLocked() {
	m.failures = 0
	prev := State(m.machine.Current())
	if m.fire(eventOnline) && (prev == StateOffline || prev == StateReconnecting) {
		m.raiseRestoredLocked()
	}
}

func (m *Monitor) failLocked() {
	m.failures++
	switch State(m.machine.Current()) {
	case StateChecking, StateReconnecting:
		// No online baseline to protect.
		m.fire(eventOffline)
	case StateOnline:
		if m.failures >= m.cfg.FailureThreshold {
			m.fire(eventOffline)
		}
	}
}

func (m *Monitor) raiseRestoredLocked() {
	m.restored = true
	if m.restoredTimer != nil {
		m.restoredTimer.Stop()
	}
	m.restoredTimer = m.clock.AfterFunc(m.cfg.RestoredDisplay, func() {
		m.apply(func() { m.restored = false })
	})
}

// fire attempts a transition and reports whether one happened.
// Events that are invalid in the current state are ignored.
func (m *Monitor) fire(event string) bool {
	return m.machine.Event(context.Background(), event) == nil
}

// apply runs mutate under the state lock, republishes the snapshot and notifies
// listeners if anything visible changed. The state lock is released before listeners
// run; tickets keep notifications in signal order.
func (m *Monitor) apply(mutate func()) {
	m.mu.Lock()
	prev := m.snapshotLocked()
	mutate()
	next := m.publishLocked()

	if prev.State == next.State && prev.Restored == next.Restored && prev.Failures == next.Failures {
		m.mu.Unlock()
		return
	}
	ticket := m.notifyNext
	m.notifyNext++
	m.mu.Unlock()

	m.notifyMu.Lock()
	for m.notifyDone != ticket {
		m.notifyCond.Wait()
	}
	for _, fn := range m.listeners {
		fn(prev, next)
	}
	m.notifyDone++
	m.notifyCond.Broadcast()
	m.notifyMu.Unlock()
}
