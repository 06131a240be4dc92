package api

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"

	"github.com/rbxdash/admin-relay/internal/connectivity"
	"github.com/rbxdash/admin-relay/internal/notifications"
	"github.com/rbxdash/admin-relay/internal/ratelimit"
	"github.com/rbxdash/admin-relay/internal/remote"
	"github.com/rbxdash/admin-relay/internal/workflow"
)

type nopSender struct{}

func (nopSender) Notify(context.Context, notifications.ConnectivityChange) error { return nil }

// upstream mimics the remote API of the dashboard.
func upstream(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/v1/products", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			body, _ := io.ReadAll(r.Body)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write(body)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `[{"id":"p1","robux":400}]`)
	})
	mux.HandleFunc("/v1/coupons/dup", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_, _ = io.WriteString(w, `{"error":"coupon already exists"}`)
	})
	mux.HandleFunc("/v1/sellers", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})
	mux.HandleFunc("/v1/deliveries", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestRouter(t *testing.T, mutate func(*workflow.Config)) (*gin.Engine, *workflow.Session) {
	t.Helper()
	srv := upstream(t)

	cfg := workflow.DefaultConfig()
	cfg.BaseURL = srv.URL + "/v1"
	cfg.DisableNetWatch = true
	cfg.Retry = remote.RetryPolicy{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, RequestTimeout: time.Second}
	if mutate != nil {
		mutate(&cfg)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s, err := workflow.NewSession(cfg,
		workflow.WithHTTPClient(srv.Client()),
		workflow.WithLogger(logger),
		workflow.WithNotificationSender(nopSender{}),
	)
	if err != nil {
		t.Fatalf("NewSession() unexpected error: %v", err)
	}
	t.Cleanup(func() { _ = s.Stop() })
	return NewRouter(s, logger), s
}

func serve(r http.Handler, method, target string, body io.Reader) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(method, target, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	r.ServeHTTP(rec, req)
	return rec
}

func TestProxy_MapsOutcomes(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		target     string
		body       string
		wantStatus int
		wantBody   string
	}{
		{name: "Successful read", method: "GET", target: "/api/products", wantStatus: http.StatusOK, wantBody: `"robux":400`},
		{name: "Successful create echoes body", method: "POST", target: "/api/products", body: `{"name":"Gamepass"}`, wantStatus: http.StatusCreated, wantBody: `"name":"Gamepass"`},
		{name: "Client error passes through", method: "POST", target: "/api/coupons/dup", body: `{}`, wantStatus: http.StatusConflict, wantBody: "coupon already exists"},
		{name: "Forbidden becomes unauthorized", method: "GET", target: "/api/sellers", wantStatus: http.StatusUnauthorized, wantBody: `"error":"unauthorized"`},
		{name: "Exhausted server errors", method: "GET", target: "/api/deliveries", wantStatus: http.StatusBadGateway, wantBody: `"attempts":2`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _ := newTestRouter(t, nil)

			var body io.Reader
			if tt.body != "" {
				body = strings.NewReader(tt.body)
			}
			rec := serve(r, tt.method, tt.target, body)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if !strings.Contains(rec.Body.String(), tt.wantBody) {
				t.Errorf("body = %s, want it to contain %s", rec.Body.String(), tt.wantBody)
			}
			if rec.Header().Get("X-Request-Id") == "" {
				t.Errorf("X-Request-Id header missing")
			}
		})
	}
}

func TestProxy_RateLimited(t *testing.T) {
	r, _ := newTestRouter(t, func(cfg *workflow.Config) {
		cfg.Presets = ratelimit.DefaultPresets()
		cfg.Presets[ratelimit.ActionCreate] = ratelimit.Preset{MaxRequests: 1, Window: time.Minute}
	})

	if rec := serve(r, "POST", "/api/products", bytes.NewBufferString(`{}`)); rec.Code != http.StatusCreated {
		t.Fatalf("first create status = %d, want 201", rec.Code)
	}

	rec := serve(r, "POST", "/api/products", bytes.NewBufferString(`{}`))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second create status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") != "60" {
		t.Errorf("Retry-After = %q, want 60", rec.Header().Get("Retry-After"))
	}

	var resp errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if resp.Action != "create" || !strings.Contains(resp.Message, "60 seconds") {
		t.Errorf("response = %+v, want create rejection with wait time", resp)
	}

	// Other actions keep their own budget.
	if rec := serve(r, "GET", "/api/products", nil); rec.Code != http.StatusOK {
		t.Errorf("read status = %d, want 200", rec.Code)
	}
}

func TestStatusAndRecheck(t *testing.T) {
	r, s := newTestRouter(t, nil)
	s.Monitor.NetworkDown()

	rec := serve(r, "GET", "/status", nil)
	var status statusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("failed to decode status: %v", err)
	}
	if status.State != connectivity.StateOffline {
		t.Errorf("status state = %s, want offline", status.State)
	}

	rec = serve(r, "POST", "/recheck", nil)
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("failed to decode recheck: %v", err)
	}
	if status.State != connectivity.StateOnline || !status.Restored {
		t.Errorf("recheck = %+v, want online and restored", status.Snapshot)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	r, _ := newTestRouter(t, nil)
	serve(r, "GET", "/api/products", nil)

	rec := serve(r, "GET", "/metrics", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `adminrelay_remote_outcomes_total{kind="success"} 1`) {
		t.Errorf("metrics missing success outcome:\n%s", rec.Body.String())
	}
}
