package remote

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// maxBodyBytes bounds how much of a response body is buffered into an Outcome.
const maxBodyBytes = 8 << 20

// Doer is the transport primitive. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Signaler receives exactly one connectivity signal per terminal outcome.
type Signaler interface {
	ReportOnline()
	ReportOffline()
}

// LoginRedirector is the side channel invoked when the API rejects the session.
type LoginRedirector interface {
	RedirectToLogin(ctx context.Context, outcome Outcome)
}

// LoginRedirectFunc adapts a function to LoginRedirector.
type LoginRedirectFunc func(ctx context.Context, outcome Outcome)

func (f LoginRedirectFunc) RedirectToLogin(ctx context.Context, outcome Outcome) {
	f(ctx, outcome)
}

// Observer is told about every attempt and every terminal outcome.
type Observer interface {
	ObserveAttempt(kind Kind)
	ObserveOutcome(kind Kind, attempts int, elapsed time.Duration)
}

// Request describes one logical call against the remote API.
type Request struct {
	Method string
	// Path is resolved against the executor's base URL.
	Path   string
	Query  url.Values
	Header http.Header
	Body   []byte

	// Anonymous marks calls issued from an unauthenticated surface, such as the login form.
	// An auth failure on them is returned without redirecting to login.
	Anonymous bool
}

// Executor issues calls against the remote API with per-attempt deadlines and capped
// exponential backoff. It keeps no state between calls and is safe for concurrent use.
type Executor struct {
	baseURL  *url.URL
	client   Doer
	policy   RetryPolicy
	signals  Signaler
	redirect LoginRedirector
	observer Observer
	token    func() string
	logger   *slog.Logger
	clock    clockwork.Clock

	// sleep is swapped in tests to record backoff durations.
	sleep func(ctx context.Context, d time.Duration) error
}

// Option configures an Executor.
type Option func(*Executor)

func WithSignaler(s Signaler) Option { return func(e *Executor) { e.signals = s } }

func WithLoginRedirector(r LoginRedirector) Option { return func(e *Executor) { e.redirect = r } }

func WithObserver(o Observer) Option { return func(e *Executor) { e.observer = o } }

func WithLogger(l *slog.Logger) Option { return func(e *Executor) { e.logger = l } }

func WithClock(c clockwork.Clock) Option { return func(e *Executor) { e.clock = c } }

// WithTokenSource sets the bearer token provider. An empty token sends no Authorization header.
func WithTokenSource(token func() string) Option { return func(e *Executor) { e.token = token } }

// NewExecutor validates the base URL and policy and returns a ready executor.
func NewExecutor(baseURL string, client Doer, policy RetryPolicy, opts ...Option) (*Executor, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url '%s': %w", baseURL, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid base url '%s': scheme and host are required", baseURL)
	}
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("invalid retry policy: %w", err)
	}
	if client == nil {
		client = http.DefaultClient
	}

	e := &Executor{
		baseURL:  u,
		client:   client,
		policy:   policy,
		signals:  nopSignaler{},
		redirect: LoginRedirectFunc(func(context.Context, Outcome) {}),
		observer: nopObserver{},
		token:    func() string { return "" },
		logger:   slog.Default(),
		clock:    clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.sleep = e.wait
	return e, nil
}

// Policy returns the executor's default retry policy.
func (e *Executor) Policy() RetryPolicy {
	return e.policy
}

// Execute runs req with the executor's own retry policy.
func (e *Executor) Execute(ctx context.Context, req Request) Outcome {
	return e.ExecuteWith(ctx, req, e.policy)
}

// ExecuteWith runs req to completion or failure under the given policy.
//
// Only transport failures (including a per-attempt timeout) and 5xx responses are retried.
// 401/403 short-circuit and trigger the login redirect unless req.Anonymous is set;
// other 4xx and successes short-circuit as well. If ctx is cancelled the call stops,
// returns KindCanceled and emits no connectivity signal.
func (e *Executor) ExecuteWith(ctx context.Context, req Request, policy RetryPolicy) Outcome {
	if err := policy.Validate(); err != nil {
		return Outcome{Kind: KindClientError, LastErr: fmt.Errorf("invalid retry policy: %w", err)}
	}

	started := e.clock.Now()
	requestID := fmt.Sprintf("req-%s", uuid.New().String())
	log := e.logger.With("method", req.Method, "path", req.Path, "request_id", requestID)

	var last Outcome
	for attempt := 0; attempt < policy.MaxAttempts; attempt++ {
		// 1. Pre-check: stop immediately if the caller went away.
		if ctx.Err() != nil {
			return e.finish(Outcome{Kind: KindCanceled, Attempts: attempt, LastErr: ctx.Err()}, requestID, started)
		}

		// 2. Execute the attempt
		last = e.attempt(ctx, req, policy.RequestTimeout, requestID)
		last.Attempts = attempt + 1
		e.observer.ObserveAttempt(last.Kind)

		// 3. Decision: should we retry?
		switch last.Kind {
		case KindCanceled:
			return e.finish(last, requestID, started)
		case KindSuccess, KindClientError:
			// A request that could not even be built never reached the API.
			if last.Status != 0 {
				e.emit(ctx, true)
			}
			return e.finish(last, requestID, started)
		case KindUnauthorized:
			if !req.Anonymous && ctx.Err() == nil {
				log.Warn("Session rejected by the API, redirecting to login", "status", last.Status)
				e.redirect.RedirectToLogin(ctx, last)
			}
			e.emit(ctx, true)
			return e.finish(last, requestID, started)
		}

		// If this was the last attempt, don't wait/sleep.
		if attempt == policy.MaxAttempts-1 {
			break
		}

		delay := policy.Backoff(attempt)
		log.Warn("Transient error detected, scheduling retry",
			"attempt", attempt+1,
			"max_attempts", policy.MaxAttempts,
			"backoff", delay,
			"error", last.LastErr)

		// 4. Wait with context awareness
		if err := e.sleep(ctx, delay); err != nil {
			return e.finish(Outcome{Kind: KindCanceled, Attempts: attempt + 1, LastErr: err}, requestID, started)
		}
	}

	exhausted := Outcome{
		Kind:     KindExhaustedRetries,
		Status:   last.Status,
		Header:   last.Header,
		Body:     last.Body,
		Attempts: last.Attempts,
		LastErr:  last.LastErr,
	}
	log.Error("Call failed after all attempts", "attempts", exhausted.Attempts, "error", exhausted.LastErr)
	e.emit(ctx, false)
	return e.finish(exhausted, requestID, started)
}

// attempt issues a single request under its own deadline.
func (e *Executor) attempt(ctx context.Context, req Request, timeout time.Duration, requestID string) Outcome {
	attemptCtx, cancel := ctx, context.CancelFunc(func() {})
	if timeout > 0 {
		attemptCtx, cancel = context.WithTimeout(ctx, timeout)
	}
	defer cancel()

	httpReq, err := e.newHTTPRequest(attemptCtx, req, requestID)
	if err != nil {
		return Outcome{Kind: KindClientError, LastErr: err}
	}

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return e.transportFailure(ctx, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return e.transportFailure(ctx, err)
	}

	return classify(resp.StatusCode, resp.Header, body)
}

// transportFailure separates an abandoned call from a retryable network error.
// A per-attempt timeout and a dropped connection are the same thing to the caller.
func (e *Executor) transportFailure(ctx context.Context, err error) Outcome {
	if ctx.Err() != nil {
		return Outcome{Kind: KindCanceled, LastErr: ctx.Err()}
	}
	return Outcome{Kind: KindNetworkError, LastErr: fmt.Errorf("%w: %w", ErrNetwork, err)}
}

func (e *Executor) newHTTPRequest(ctx context.Context, req Request, requestID string) (*http.Request, error) {
	method := strings.ToUpper(req.Method)
	if method == "" {
		method = http.MethodGet
	}

	ref, err := url.Parse(strings.TrimPrefix(req.Path, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid request path '%s': %w", req.Path, err)
	}
	base := *e.baseURL
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}
	target := base.ResolveReference(ref)
	if len(req.Query) > 0 {
		q := target.Query()
		for k, vs := range req.Query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		target.RawQuery = q.Encode()
	}

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target.String(), body)
	if err != nil {
		return nil, err
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	if req.Body != nil && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("X-Request-Id", requestID)
	if token := e.token(); token != "" && httpReq.Header.Get("Authorization") == "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}
	return httpReq, nil
}

// emit sends a connectivity signal unless the caller has abandoned the call;
// a late signal from an abandoned call would corrupt the monitor's failure counter.
func (e *Executor) emit(ctx context.Context, online bool) {
	if ctx.Err() != nil {
		return
	}
	if online {
		e.signals.ReportOnline()
		return
	}
	e.signals.ReportOffline()
}

func (e *Executor) finish(out Outcome, requestID string, started time.Time) Outcome {
	out.RequestID = requestID
	e.observer.ObserveOutcome(out.Kind, out.Attempts, e.clock.Since(started))
	return out
}

func (e *Executor) wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-e.clock.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type nopSignaler struct{}

func (nopSignaler) ReportOnline()  {}
func (nopSignaler) ReportOffline() {}

type nopObserver struct{}

func (nopObserver) ObserveAttempt(Kind)                     {}
func (nopObserver) ObserveOutcome(Kind, int, time.Duration) {}
