package connectivity

import (
	"context"
	"errors"
	"testing"
)

type recordingNetwork struct {
	events []string
}

func (r *recordingNetwork) NetworkDown()                { r.events = append(r.events, "down") }
func (r *recordingNetwork) NetworkUp(_ context.Context) { r.events = append(r.events, "up") }

type linkResult struct {
	up  bool
	err error
}

func scriptedLink(results ...linkResult) LinkChecker {
	i := 0
	return func(context.Context) (bool, error) {
		r := results[min(i, len(results)-1)]
		i++
		return r.up, r.err
	}
}

func TestNetWatcher_Poll(t *testing.T) {
	errInspect := errors.New("permission denied")

	tests := []struct {
		name       string
		link       []linkResult
		wantEvents []string
	}{
		{
			name:       "Stable link emits nothing",
			link:       []linkResult{{up: true}, {up: true}, {up: true}},
			wantEvents: nil,
		},
		{
			name:       "Link down at startup is reported",
			link:       []linkResult{{up: false}, {up: false}},
			wantEvents: []string{"down"},
		},
		{
			name:       "Drop and recovery",
			link:       []linkResult{{up: true}, {up: false}, {up: false}, {up: true}},
			wantEvents: []string{"down", "up"},
		},
		{
			name:       "Inspection errors are ignored",
			link:       []linkResult{{up: true}, {err: errInspect}, {up: true}},
			wantEvents: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recordingNetwork{}
			w := NewNetWatcher(rec, scriptedLink(tt.link...), nil)

			for range tt.link {
				w.Poll(context.Background())
			}

			if len(rec.events) != len(tt.wantEvents) {
				t.Fatalf("events = %v, want %v", rec.events, tt.wantEvents)
			}
			for i := range tt.wantEvents {
				if rec.events[i] != tt.wantEvents[i] {
					t.Errorf("events[%d] = %s, want %s", i, rec.events[i], tt.wantEvents[i])
				}
			}
		})
	}
}

func TestNetWatcher_DrivesMonitor(t *testing.T) {
	m := onlineMonitor(t)
	w := NewNetWatcher(m, scriptedLink(linkResult{up: true}, linkResult{up: false}, linkResult{up: true}), nil)

	w.Poll(context.Background())
	w.Poll(context.Background())
	if m.State() != StateOffline {
		t.Fatalf("State = %s after link drop, want offline", m.State())
	}

	w.Poll(context.Background())
	if m.State() != StateOnline {
		t.Errorf("State = %s after link recovery, want online", m.State())
	}
}
