package ratelimit

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"
)

// DefaultSweepInterval is how often expired entries are dropped.
const DefaultSweepInterval = time.Minute

// ErrRateLimited is matched by every *LimitError.
var ErrRateLimited = errors.New("rate limited")

// LimitError is a local rejection. It never reaches the network.
type LimitError struct {
	Action     Action
	RetryAfter time.Duration
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("too many %s requests, retry in %s", e.Action, e.RetryAfter.Round(time.Second))
}

func (e *LimitError) Is(target error) bool {
	return target == ErrRateLimited
}

// Message is the text shown to the dashboard user.
func (e *LimitError) Message() string {
	seconds := int(math.Ceil(e.RetryAfter.Seconds()))
	unit := "seconds"
	if seconds == 1 {
		unit = "second"
	}
	return fmt.Sprintf("Too many %s requests. Please wait %d %s before trying again.", e.Action, seconds, unit)
}

// RejectionObserver is told about every rejected action.
type RejectionObserver interface {
	ObserveRejection(action Action)
}

type entry struct {
	count   int
	resetAt time.Time
}

// Limiter is a fixed-window admission counter keyed by action. It exclusively owns its
// entry table; one instance is shared by everything issuing calls in a session.
type Limiter struct {
	mu      sync.Mutex
	entries map[string]*entry
	presets map[Action]Preset

	clock    clockwork.Clock
	logger   *slog.Logger
	observer RejectionObserver

	scheduler gocron.Scheduler
	job       gocron.Job
}

// Option configures a Limiter.
type Option func(*Limiter)

func WithClock(c clockwork.Clock) Option { return func(l *Limiter) { l.clock = c } }

func WithLogger(logger *slog.Logger) Option { return func(l *Limiter) { l.logger = logger } }

func WithPresets(p map[Action]Preset) Option { return func(l *Limiter) { l.presets = p } }

func WithRejectionObserver(o RejectionObserver) Option {
	return func(l *Limiter) { l.observer = o }
}

// New returns a limiter using DefaultPresets unless overridden.
func New(opts ...Option) *Limiter {
	l := &Limiter{
		entries: make(map[string]*entry),
		presets: DefaultPresets(),
		clock:   clockwork.NewRealClock(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Admit reports whether one more call for key fits in the current window.
func (l *Limiter) Admit(key string, maxRequests int, window time.Duration) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	ok, _ := l.admitLocked(key, maxRequests, window)
	return ok
}

func (l *Limiter) admitLocked(key string, maxRequests int, window time.Duration) (bool, time.Duration) {
	now := l.clock.Now()

	e, exists := l.entries[key]
	if !exists || !now.Before(e.resetAt) {
		if maxRequests < 1 {
			return false, window
		}
		l.entries[key] = &entry{count: 1, resetAt: now.Add(window)}
		return true, 0
	}

	if e.count < maxRequests {
		e.count++
		return true, 0
	}

	return false, e.resetAt.Sub(now)
}

// TimeUntilReset returns how long until key's window resets, or zero if it has none.
func (l *Limiter) TimeUntilReset(key string) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, exists := l.entries[key]
	if !exists {
		return 0
	}
	return max(e.resetAt.Sub(l.clock.Now()), 0)
}

// Check admits one call for action under its preset. A rejection is a *LimitError
// carrying the remaining wait.
func (l *Limiter) Check(action Action) error {
	preset, ok := l.presets[action]
	if !ok {
		preset = l.presets[ActionGeneric]
	}
	if err := preset.Validate(); err != nil {
		return fmt.Errorf("no usable rate limit preset for '%s': %w", action, err)
	}

	l.mu.Lock()
	admitted, retryAfter := l.admitLocked(string(action), preset.MaxRequests, preset.Window)
	l.mu.Unlock()

	if admitted {
		return nil
	}

	if l.observer != nil {
		l.observer.ObserveRejection(action)
	}
	l.logger.Warn("Action rejected by rate limiter", "action", action, "retry_after", retryAfter)
	return &LimitError{Action: action, RetryAfter: retryAfter}
}

// Presets returns a copy of the active policy table.
func (l *Limiter) Presets() map[Action]Preset {
	out := make(map[Action]Preset, len(l.presets))
	for k, v := range l.presets {
		out[k] = v
	}
	return out
}

// Sweep drops every entry whose window has passed and returns how many were removed.
func (l *Limiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	removed := 0
	for key, e := range l.entries {
		if !now.Before(e.resetAt) {
			delete(l.entries, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Schedule registers the periodic sweep on s. Stop removes it again.
func (l *Limiter) Schedule(s gocron.Scheduler, every time.Duration) error {
	if every <= 0 {
		every = DefaultSweepInterval
	}

	job, err := s.NewJob(
		gocron.DurationJob(every),
		gocron.NewTask(func() {
			if removed := l.Sweep(); removed > 0 {
				l.logger.Debug("Expired rate limit entries swept", "removed", removed)
			}
		}),
		gocron.WithName("Rate Limit Sweep"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("failed to schedule rate limit sweep: %w", err)
	}

	l.mu.Lock()
	l.scheduler, l.job = s, job
	l.mu.Unlock()
	return nil
}

// Stop cancels the scheduled sweep, if any.
func (l *Limiter) Stop() error {
	l.mu.Lock()
	s, job := l.scheduler, l.job
	l.scheduler, l.job = nil, nil
	l.mu.Unlock()

	if s == nil || job == nil {
		return nil
	}
	return s.RemoveJob(job.ID())
}
