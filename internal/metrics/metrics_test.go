package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/rbxdash/admin-relay/internal/connectivity"
	"github.com/rbxdash/admin-relay/internal/ratelimit"
	"github.com/rbxdash/admin-relay/internal/remote"
)

func TestRecorder_RemoteCalls(t *testing.T) {
	r := NewRecorder()

	r.ObserveAttempt(remote.KindServerError)
	r.ObserveAttempt(remote.KindServerError)
	r.ObserveAttempt(remote.KindSuccess)
	r.ObserveOutcome(remote.KindSuccess, 3, 2*time.Second)

	if got := testutil.ToFloat64(r.attempts.WithLabelValues("server_error")); got != 2 {
		t.Errorf("server_error attempts = %v, want 2", got)
	}
	if got := testutil.ToFloat64(r.outcomes.WithLabelValues("success")); got != 1 {
		t.Errorf("success outcomes = %v, want 1", got)
	}
	if got := testutil.CollectAndCount(r.callDuration); got != 1 {
		t.Errorf("duration series = %d, want 1", got)
	}
}

func TestRecorder_Rejections(t *testing.T) {
	r := NewRecorder()

	r.ObserveRejection(ratelimit.ActionLogin)
	r.ObserveRejection(ratelimit.ActionLogin)

	if got := testutil.ToFloat64(r.rejections.WithLabelValues("login")); got != 2 {
		t.Errorf("login rejections = %v, want 2", got)
	}
}

func TestRecorder_ConnectivityIsOneHot(t *testing.T) {
	tests := []struct {
		name  string
		state connectivity.State
	}{
		{name: "Online", state: connectivity.StateOnline},
		{name: "Offline", state: connectivity.StateOffline},
		{name: "Reconnecting", state: connectivity.StateReconnecting},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRecorder()
			r.ObserveConnectivity(connectivity.Snapshot{}, connectivity.Snapshot{State: tt.state, Failures: 2})

			for _, s := range states {
				want := 0.0
				if s == tt.state {
					want = 1.0
				}
				if got := testutil.ToFloat64(r.state.WithLabelValues(string(s))); got != want {
					t.Errorf("state{%s} = %v, want %v", s, got, want)
				}
			}
			if got := testutil.ToFloat64(r.consecutiveFail); got != 2 {
				t.Errorf("consecutive_failures = %v, want 2", got)
			}
		})
	}
}

func TestRecorder_Handler(t *testing.T) {
	r := NewRecorder()
	r.ObserveOutcome(remote.KindExhaustedRetries, 3, time.Second)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `adminrelay_remote_outcomes_total{kind="exhausted_retries"} 1`) {
		t.Errorf("exposition missing outcome counter:\n%s", rec.Body.String())
	}
}

func TestRecorder_TracksAbsorbedFailures(t *testing.T) {
	r := NewRecorder()
	m := connectivity.NewMonitor(connectivity.ProberFunc(func(context.Context) error { return nil }), connectivity.Config{})
	m.Subscribe(r.ObserveConnectivity)

	m.ReportOnline()
	m.ReportOffline()

	if got := testutil.ToFloat64(r.consecutiveFail); got != 1 {
		t.Errorf("consecutive_failures = %v, want 1 while still online", got)
	}
	if got := testutil.ToFloat64(r.state.WithLabelValues(string(connectivity.StateOnline))); got != 1 {
		t.Errorf("state{online} = %v, want 1", got)
	}
}
