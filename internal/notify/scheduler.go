package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/kalambet/jobdesk/internal/jobs"
)

// DefaultScanInterval is how often the scheduler rescans jobs.
const DefaultScanInterval = 60 * time.Second

// JobLister supplies the current job snapshot. Implemented by jobs.Store.
type JobLister interface {
	List() []jobs.Job
}

// Scheduler runs Engine.Scan once at startup and then on a fixed interval.
type Scheduler struct {
	engine   *Engine
	jobs     JobLister
	clock    Clock
	interval time.Duration
	logger   *slog.Logger
}

// NewScheduler creates a Scheduler. If interval is <= 0, it defaults to 60s.
func NewScheduler(engine *Engine, jobs JobLister, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = DefaultScanInterval
	}
	return &Scheduler{
		engine:   engine,
		jobs:     jobs,
		clock:    engine.clock,
		interval: interval,
		logger:   slog.Default(),
	}
}

// Run scans immediately, then every interval until ctx is cancelled.
// The ticker is stopped on return.
func (s *Scheduler) Run(ctx context.Context) {
	s.RunOnce()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce()
		}
	}
}

// RunOnce performs a single scan and returns what it raised.
func (s *Scheduler) RunOnce() []Notification {
	raised := s.engine.Scan(s.jobs.List(), s.clock.Now())
	if len(raised) > 0 {
		s.logger.Info("notifications raised", "count", len(raised))
	}
	return raised
}
