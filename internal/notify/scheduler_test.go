package notify

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kalambet/jobdesk/internal/jobs"
)

type staticLister struct {
	mu   sync.Mutex
	list []jobs.Job
}

func (s *staticLister) List() []jobs.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]jobs.Job, len(s.list))
	copy(out, s.list)
	return out
}

func TestScheduler_RunOnce(t *testing.T) {
	e, _, _ := newTestEngine(t)
	s := NewScheduler(e, &staticLister{list: []jobs.Job{followUpJob("j1", "2025-03-10")}}, time.Hour)

	if got := s.RunOnce(); len(got) != 1 {
		t.Fatalf("RunOnce raised %d, want 1", len(got))
	}
	if got := s.RunOnce(); len(got) != 0 {
		t.Errorf("second RunOnce raised %d, want 0", len(got))
	}
}

func TestScheduler_DefaultInterval(t *testing.T) {
	e, _, _ := newTestEngine(t)
	s := NewScheduler(e, &staticLister{}, 0)
	if s.interval != DefaultScanInterval {
		t.Errorf("interval = %v, want %v", s.interval, DefaultScanInterval)
	}
}

func TestScheduler_RunScansImmediatelyAndStops(t *testing.T) {
	e, _, _ := newTestEngine(t)
	s := NewScheduler(e, &staticLister{list: []jobs.Job{followUpJob("j1", "2025-03-10")}}, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for len(e.Feed()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("scheduler did not scan at startup")
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestScheduler_TicksRescan(t *testing.T) {
	e, _, clock := newTestEngine(t)
	lister := &staticLister{}
	s := NewScheduler(e, lister, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	lister.mu.Lock()
	lister.list = []jobs.Job{interviewJob("j1", clock.Now().Add(time.Hour))}
	lister.mu.Unlock()

	deadline := time.Now().Add(2 * time.Second)
	for len(e.Feed()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("job added after startup was never scanned")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestCommandAlerter_Commands(t *testing.T) {
	tests := []struct {
		goos     string
		wantName string
		wantArg  string
		wantErr  error
	}{
		{"darwin", "osascript", `display notification "body" with title "Title"`, nil},
		{"linux", "notify-send", "--app-name=jobdesk", nil},
		{"freebsd", "notify-send", "--app-name=jobdesk", nil},
		{"windows", "", "", ErrAlertUnsupported},
	}
	for _, tt := range tests {
		t.Run(tt.goos, func(t *testing.T) {
			var gotName string
			var gotArgs []string
			a := &CommandAlerter{
				goos: tt.goos,
				run: func(_ context.Context, name string, args ...string) error {
					gotName, gotArgs = name, args
					return nil
				},
			}

			err := a.Alert("Title", "body")
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Alert error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr != nil {
				return
			}
			if gotName != tt.wantName {
				t.Errorf("command = %q, want %q", gotName, tt.wantName)
			}
			if !strings.Contains(strings.Join(gotArgs, " "), tt.wantArg) {
				t.Errorf("args = %q, want to contain %q", gotArgs, tt.wantArg)
			}
		})
	}
}

func TestCommandAlerter_RunFailure(t *testing.T) {
	a := &CommandAlerter{
		goos: "linux",
		run: func(context.Context, string, ...string) error {
			return errors.New("exit status 1")
		},
	}
	err := a.Alert("t", "b")
	if err == nil || !strings.Contains(err.Error(), "notify-send") {
		t.Errorf("Alert error = %v, want wrapped command failure", err)
	}
}
