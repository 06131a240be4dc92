package remote

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/h2non/gock"
)

func TestExecutor_AgainstMockedAPI(t *testing.T) {
	defer gock.Off()

	client, err := NewHTTPClient()
	if err != nil {
		t.Fatalf("NewHTTPClient() unexpected error: %v", err)
	}
	gock.InterceptClient(client)
	defer gock.RestoreClient(client)

	gock.New("https://api.example.test").
		Get("/v1/games").
		Times(2).
		Reply(503)
	gock.New("https://api.example.test").
		Get("/v1/games").
		MatchHeader("Authorization", "^Bearer admin-token$").
		Reply(200).
		JSON(map[string]any{"items": []string{"game-1", "game-2"}})

	signals := &recordingSignals{}
	ex, sleeps := newTestExecutor(t, client, testPolicy(3),
		WithSignaler(signals),
		WithTokenSource(func() string { return "admin-token" }),
	)

	out := ex.Execute(context.Background(), Request{Method: http.MethodGet, Path: "/games"})

	if !out.OK() {
		t.Fatalf("Kind = %s, want success (err: %v)", out.Kind, out.Err())
	}
	if out.Attempts != 3 || len(*sleeps) != 2 {
		t.Errorf("Attempts = %d sleeps = %d, want 3/2", out.Attempts, len(*sleeps))
	}
	if !gock.IsDone() {
		t.Errorf("not all mocked responses were consumed")
	}
	if online, offline := signals.counts(); online != 1 || offline != 0 {
		t.Errorf("signals online=%d offline=%d, want 1/0", online, offline)
	}
}

func TestExecutor_TransportErrorFromMockedAPI(t *testing.T) {
	defer gock.Off()

	client, err := NewHTTPClient()
	if err != nil {
		t.Fatalf("NewHTTPClient() unexpected error: %v", err)
	}
	gock.InterceptClient(client)
	defer gock.RestoreClient(client)

	gock.New("https://api.example.test").
		Post("/v1/uploads").
		Times(2).
		ReplyError(errors.New("connection refused"))

	signals := &recordingSignals{}
	ex, _ := newTestExecutor(t, client, testPolicy(2), WithSignaler(signals))

	out := ex.Execute(context.Background(), Request{Method: http.MethodPost, Path: "/uploads", Body: []byte(`{}`)})

	if out.Kind != KindExhaustedRetries || !errors.Is(out.Err(), ErrNetwork) {
		t.Fatalf("Kind = %s Err = %v, want exhausted network failure", out.Kind, out.Err())
	}
	if online, offline := signals.counts(); online != 0 || offline != 1 {
		t.Errorf("signals online=%d offline=%d, want 0/1", online, offline)
	}
}
