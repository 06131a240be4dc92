package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/rbxdash/admin-relay/internal/connectivity"
	"github.com/rbxdash/admin-relay/internal/metrics"
	"github.com/rbxdash/admin-relay/internal/notifications"
	"github.com/rbxdash/admin-relay/internal/ratelimit"
	"github.com/rbxdash/admin-relay/internal/remote"
)

// Config describes one relay session against one remote API.
type Config struct {
	// APIName tags every log line, like a profile name.
	APIName  string
	BaseURL  string
	Token    string
	LogLevel string

	// HealthPath is resolved against BaseURL for the liveness probe.
	HealthPath   string
	ProbeTimeout time.Duration

	Retry   remote.RetryPolicy
	Monitor connectivity.Config
	Presets map[ratelimit.Action]ratelimit.Preset

	SweepInterval    time.Duration
	NetWatchInterval time.Duration
	// DisableNetWatch turns off host interface polling, e.g. in containers without
	// a meaningful link state.
	DisableNetWatch bool

	// Webhook receives connectivity notifications when URL is set.
	Webhook notifications.Webhook
}

// DefaultConfig returns a config with production tunables and no API target.
func DefaultConfig() Config {
	return Config{
		APIName:          "default",
		LogLevel:         "info",
		HealthPath:       "health",
		ProbeTimeout:     connectivity.DefaultProbeTimeout,
		Retry:            remote.DefaultRetryPolicy(),
		Monitor:          connectivity.DefaultConfig(),
		Presets:          ratelimit.DefaultPresets(),
		SweepInterval:    ratelimit.DefaultSweepInterval,
		NetWatchInterval: connectivity.DefaultNetWatchInterval,
	}
}

// Session owns the executor, monitor and limiter of one process and their scheduled tasks.
type Session struct {
	cfg    Config
	logger *slog.Logger
	clock  clockwork.Clock

	Executor   *remote.Executor
	Monitor    *connectivity.Monitor
	Limiter    *ratelimit.Limiter
	Metrics    *metrics.Recorder
	NetWatcher *connectivity.NetWatcher
	Notifier   *notifications.Notifier

	scheduler      gocron.Scheduler
	unsubscribe    []func()
	loginRedirects atomic.Int64

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	group   *errgroup.Group
}

type sessionOptions struct {
	clock       clockwork.Clock
	client      *http.Client
	logger      *slog.Logger
	linkChecker connectivity.LinkChecker
	sender      notifications.Sender
}

// SessionOption customizes how NewSession builds its components.
type SessionOption func(*sessionOptions)

func WithClock(c clockwork.Clock) SessionOption {
	return func(o *sessionOptions) { o.clock = c }
}

func WithHTTPClient(c *http.Client) SessionOption {
	return func(o *sessionOptions) { o.client = c }
}

func WithLogger(l *slog.Logger) SessionOption {
	return func(o *sessionOptions) { o.logger = l }
}

func WithLinkChecker(check connectivity.LinkChecker) SessionOption {
	return func(o *sessionOptions) { o.linkChecker = check }
}

// WithNotificationSender replaces the webhook built from Config.Webhook.
func WithNotificationSender(s notifications.Sender) SessionOption {
	return func(o *sessionOptions) { o.sender = s }
}

// NewSession wires a complete remote-call layer from cfg.
//
// Wiring:
//  1. The executor reports connectivity signals to the monitor and attempt metrics to the recorder.
//  2. The monitor probes <BaseURL>/<HealthPath> and publishes transitions to metrics and notifications.
//  3. The limiter guards every Call with the preset of its action.
func NewSession(cfg Config, opts ...SessionOption) (*Session, error) {
	o := sessionOptions{clock: clockwork.NewRealClock()}
	for _, opt := range opts {
		opt(&o)
	}

	logger := o.logger
	if logger == nil {
		logger = SetupLogger(cfg.LogLevel, cfg.APIName)
	}

	client := o.client
	if client == nil {
		var err error
		if client, err = remote.NewHTTPClient(); err != nil {
			return nil, fmt.Errorf("failed to build http client: %w", err)
		}
	}

	healthURL, err := joinURL(cfg.BaseURL, cfg.HealthPath)
	if err != nil {
		return nil, err
	}

	s := &Session{
		cfg:     cfg,
		logger:  logger,
		clock:   o.clock,
		Metrics: metrics.NewRecorder(),
	}

	// 1. Connectivity
	prober := &connectivity.HTTPProber{Client: client, URL: healthURL, Timeout: cfg.ProbeTimeout}
	s.Monitor = connectivity.NewMonitor(prober, cfg.Monitor,
		connectivity.WithClock(o.clock),
		connectivity.WithLogger(logger.With("component", "connectivity")),
	)
	s.unsubscribe = append(s.unsubscribe, s.Monitor.Subscribe(s.Metrics.ObserveConnectivity))

	if !cfg.DisableNetWatch {
		s.NetWatcher = connectivity.NewNetWatcher(s.Monitor, o.linkChecker, logger.With("component", "netwatch"))
	}

	// 2. Notifications
	sender := o.sender
	if sender == nil && cfg.Webhook.URL != "" {
		webhook := cfg.Webhook
		sender = &webhook
	}
	if sender != nil {
		s.Notifier = notifications.NewNotifier(sender, cfg.APIName, logger.With("component", "notifications"))
		s.unsubscribe = append(s.unsubscribe, s.Monitor.Subscribe(s.Notifier.Listen))
	}

	// 3. Executor
	token := cfg.Token
	s.Executor, err = remote.NewExecutor(cfg.BaseURL, client, cfg.Retry,
		remote.WithSignaler(s.Monitor),
		remote.WithObserver(s.Metrics),
		remote.WithLoginRedirector(remote.LoginRedirectFunc(s.redirectToLogin)),
		remote.WithLogger(logger.With("component", "executor")),
		remote.WithClock(o.clock),
		remote.WithTokenSource(func() string { return token }),
	)
	if err != nil {
		return nil, err
	}

	// 4. Rate limiting
	presets := cfg.Presets
	if presets == nil {
		presets = ratelimit.DefaultPresets()
	}
	s.Limiter = ratelimit.New(
		ratelimit.WithClock(o.clock),
		ratelimit.WithLogger(logger.With("component", "ratelimit")),
		ratelimit.WithPresets(presets),
		ratelimit.WithRejectionObserver(s.Metrics),
	)

	s.scheduler, err = gocron.NewScheduler(gocron.WithClock(o.clock))
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	return s, nil
}

// Logger returns the session's logger.
func (s *Session) Logger() *slog.Logger {
	return s.logger
}

// Scheduler exposes the session's scheduler, e.g. for the scheduler dashboard.
func (s *Session) Scheduler() gocron.Scheduler {
	return s.scheduler
}

// LoginRedirects counts how often the API rejected the session's credentials.
func (s *Session) LoginRedirects() int64 {
	return s.loginRedirects.Load()
}

// Call admits req under the preset of action and executes it.
// A local rejection returns a *ratelimit.LimitError and never touches the network.
func (s *Session) Call(ctx context.Context, action ratelimit.Action, req remote.Request) (remote.Outcome, error) {
	if err := s.Limiter.Check(action); err != nil {
		return remote.Outcome{}, err
	}
	return s.Executor.Execute(ctx, req), nil
}

// Start schedules the liveness probe, the limiter sweep and the network watch,
// and starts delivering notifications.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return errors.New("session already started")
	}

	if err := s.Monitor.Schedule(s.scheduler); err != nil {
		return err
	}
	if err := s.Limiter.Schedule(s.scheduler, s.cfg.SweepInterval); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	if s.NetWatcher != nil {
		if err := s.NetWatcher.Schedule(runCtx, s.scheduler, s.cfg.NetWatchInterval); err != nil {
			cancel()
			return err
		}
	}

	group, groupCtx := errgroup.WithContext(runCtx)
	if s.Notifier != nil {
		group.Go(func() error { return s.Notifier.Run(groupCtx) })
	}

	s.scheduler.Start()
	s.cancel, s.group, s.started = cancel, group, true
	s.logger.Info("Session started", "base_url", s.cfg.BaseURL, "jobs", len(s.scheduler.Jobs()))
	return nil
}

// Stop removes scheduled tasks, waits for background work and shuts the scheduler down.
func (s *Session) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	errs = append(errs, s.Monitor.Stop(), s.Limiter.Stop())
	if s.NetWatcher != nil {
		errs = append(errs, s.NetWatcher.Stop())
	}
	for _, unsubscribe := range s.unsubscribe {
		unsubscribe()
	}
	s.unsubscribe = nil

	if s.started {
		s.cancel()
		errs = append(errs, s.group.Wait())
		s.started = false
	}
	errs = append(errs, s.scheduler.Shutdown())
	s.logger.Info("Session stopped")
	return errors.Join(errs...)
}

func (s *Session) redirectToLogin(_ context.Context, outcome remote.Outcome) {
	s.loginRedirects.Add(1)
	s.logger.Warn("Login required", "status", outcome.Status)
}

func joinURL(base, p string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid base url '%s': %w", base, err)
	}
	if p == "" {
		p = "health"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/" + strings.TrimPrefix(p, "/")
	return u.String(), nil
}
