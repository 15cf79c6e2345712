package notify

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/jobdesk/internal/jobs"
)

// actionViewJobs is the navigation target attached to job-derived alerts.
const actionViewJobs = "jobs"

// Engine derives time-based alerts from job records and owns the
// notification feed. Each alert condition is raised at most once, tracked
// by a persisted set of seen keys.
type Engine struct {
	store   Persister
	clock   Clock
	alerter Alerter
	logger  *slog.Logger

	mu    sync.Mutex
	feed  []Notification
	seen  map[string]struct{}
	order []string // seen keys in insertion order, for stable persistence
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the clock used for notification timestamps.
func WithClock(c Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithAlerter sets the best-effort native alert channel.
func WithAlerter(a Alerter) Option {
	return func(e *Engine) { e.alerter = a }
}

// NewEngine creates an Engine and loads its persisted feed and seen keys.
// Corrupt or missing state falls back to empty.
func NewEngine(store Persister, opts ...Option) *Engine {
	e := &Engine{
		store:   store,
		clock:   realClock{},
		alerter: NopAlerter{},
		logger:  slog.Default(),
		seen:    make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.load()
	return e
}

func (e *Engine) load() {
	if raw, err := e.store.GetState(feedKey); err == nil {
		var feed []Notification
		if err := json.Unmarshal([]byte(raw), &feed); err != nil {
			e.logger.Warn("malformed persisted notifications, starting empty", "error", err)
		} else {
			e.feed = feed
		}
	}

	if raw, err := e.store.GetState(seenKey); err == nil {
		var keys []string
		if err := json.Unmarshal([]byte(raw), &keys); err != nil {
			e.logger.Warn("malformed persisted notified keys, starting empty", "error", err)
		} else {
			for _, k := range keys {
				e.markSeen(k)
			}
		}
	}
}

// Scan evaluates every job against the alert rules at instant now and
// returns the notifications it raised, newest first. It never fails: a job
// whose dates cannot be parsed is skipped, and persistence errors are logged.
func (e *Engine) Scan(list []jobs.Job, now time.Time) []Notification {
	e.mu.Lock()
	defer e.mu.Unlock()

	var raised []Notification
	seenBefore := len(e.order)

	for _, j := range list {
		raised = append(raised, e.evaluate(j, now)...)
	}

	for _, n := range raised {
		e.prepend(n)
	}
	if len(raised) > 0 {
		e.saveFeed()
	}
	if len(e.order) != seenBefore {
		e.saveSeen()
	}

	// Newest first, matching feed order.
	for i, k := 0, len(raised)-1; i < k; i, k = i+1, k-1 {
		raised[i], raised[k] = raised[k], raised[i]
	}
	return raised
}

// evaluate applies both rules to one job. A panic while evaluating is
// contained so the remaining jobs are still scanned.
func (e *Engine) evaluate(j jobs.Job, now time.Time) (out []Notification) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("notification rule panicked", "job_id", j.ID, "panic", r)
			out = nil
		}
	}()

	if n, ok := e.interviewReminder(j, now); ok {
		out = append(out, n)
	}
	if n, ok := e.followUp(j, now); ok {
		out = append(out, n)
	}
	return out
}

func (e *Engine) interviewReminder(j jobs.Job, now time.Time) (Notification, bool) {
	if j.Status != jobs.StatusInterview || j.InterviewDate == "" {
		return Notification{}, false
	}
	at, ok := j.Interview(now.Location())
	if !ok {
		e.logger.Debug("skipping unparseable interview date", "job_id", j.ID, "value", j.InterviewDate)
		return Notification{}, false
	}

	hours := at.Sub(now).Hours()
	if hours <= 0 || hours > 24 {
		return Notification{}, false
	}

	key := fmt.Sprintf("%s-interview-%s", j.ID, j.InterviewDate)
	if !e.claim(key) {
		return Notification{}, false
	}

	n := e.newNotification(TypeInterviewReminder,
		"Upcoming Interview",
		fmt.Sprintf("Your interview with %s for %s is %s.", j.Company, j.Role, relative(hours)),
		j.ID, actionViewJobs, now)

	go e.fireAlert(n.Title, n.Message)
	return n, true
}

func (e *Engine) followUp(j jobs.Job, now time.Time) (Notification, bool) {
	if j.Status != jobs.StatusApplied || j.FollowUpDate == "" {
		return Notification{}, false
	}
	due, ok := j.FollowUp(now.Location())
	if !ok {
		e.logger.Debug("skipping unparseable follow-up date", "job_id", j.ID, "value", j.FollowUpDate)
		return Notification{}, false
	}

	diff := daysBetween(now, due)
	today := now.Format(time.DateOnly)

	switch {
	case diff == 0:
		if !e.claim(fmt.Sprintf("%s-followup-%s", j.ID, today)) {
			return Notification{}, false
		}
		return e.newNotification(TypeFollowUpDue,
			"Follow-up Due Today",
			fmt.Sprintf("Time to follow up with %s about the %s position.", j.Company, j.Role),
			j.ID, actionViewJobs, now), true

	case diff < 0:
		overdue := -diff
		if !e.claim(fmt.Sprintf("%s-overdue-%s", j.ID, today)) {
			return Notification{}, false
		}
		return e.newNotification(TypeFollowUpOverdue,
			"Follow-up Overdue",
			fmt.Sprintf("Your follow-up with %s for %s is %d %s overdue.", j.Company, j.Role, overdue, plural(overdue, "day", "days")),
			j.ID, actionViewJobs, now), true
	}
	return Notification{}, false
}

// Add records a notification raised outside the scan, e.g. on a status change.
func (e *Engine) Add(typ Type, title, message, jobID, actionView string) Notification {
	e.mu.Lock()
	defer e.mu.Unlock()

	n := e.newNotification(typ, title, message, jobID, actionView, e.clock.Now())
	e.prepend(n)
	e.saveFeed()
	return n
}

// MarkAsRead marks one notification read. Unknown ids are ignored.
func (e *Engine) MarkAsRead(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i := range e.feed {
		if e.feed[i].ID == id {
			if !e.feed[i].Read {
				e.feed[i].Read = true
				e.saveFeed()
			}
			return
		}
	}
}

// MarkAllAsRead marks every notification read.
func (e *Engine) MarkAllAsRead() {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i := range e.feed {
		e.feed[i].Read = true
	}
	e.saveFeed()
}

// ClearAll empties the feed. Seen keys are kept so cleared alerts do not
// come back on the next scan.
func (e *Engine) ClearAll() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.feed = nil
	e.saveFeed()
}

// Reset clears the feed and forgets every seen key.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.feed = nil
	e.seen = make(map[string]struct{})
	e.order = nil
	e.saveFeed()
	e.saveSeen()
}

// Feed returns a snapshot of the feed, newest first.
func (e *Engine) Feed() []Notification {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]Notification, len(e.feed))
	copy(out, e.feed)
	return out
}

// UnreadCount returns the number of unread notifications.
func (e *Engine) UnreadCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	n := 0
	for _, f := range e.feed {
		if !f.Read {
			n++
		}
	}
	return n
}

func (e *Engine) newNotification(typ Type, title, message, jobID, actionView string, at time.Time) Notification {
	return Notification{
		ID:         uuid.New().String(),
		Type:       typ,
		Title:      title,
		Message:    message,
		Timestamp:  at.UnixMilli(),
		JobID:      jobID,
		ActionView: actionView,
	}
}

func (e *Engine) prepend(n Notification) {
	e.feed = append([]Notification{n}, e.feed...)
	if len(e.feed) > MaxFeed {
		e.feed = e.feed[:MaxFeed]
	}
}

// claim records key as seen and reports whether it was new.
func (e *Engine) claim(key string) bool {
	if _, ok := e.seen[key]; ok {
		return false
	}
	e.markSeen(key)
	return true
}

func (e *Engine) markSeen(key string) {
	if _, ok := e.seen[key]; ok {
		return
	}
	e.seen[key] = struct{}{}
	e.order = append(e.order, key)
}

func (e *Engine) saveFeed() {
	feed := e.feed
	if feed == nil {
		feed = []Notification{}
	}
	e.save(feedKey, feed)
}

func (e *Engine) saveSeen() {
	keys := e.order
	if keys == nil {
		keys = []string{}
	}
	e.save(seenKey, keys)
}

func (e *Engine) save(key string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		e.logger.Error("marshalling notification state", "key", key, "error", err)
		return
	}
	if err := e.store.SetState(key, string(data)); err != nil {
		e.logger.Error("persisting notification state", "key", key, "error", err)
	}
}

func (e *Engine) fireAlert(title, body string) {
	if err := e.alerter.Alert(title, body); err != nil {
		e.logger.Debug("native alert unavailable", "error", err)
	}
}

// daysBetween returns the whole calendar days from now's date to target's
// date. Time of day is ignored.
func daysBetween(now, target time.Time) int {
	y1, m1, d1 := now.Date()
	y2, m2, d2 := target.Date()
	a := time.Date(y1, m1, d1, 0, 0, 0, 0, time.UTC)
	b := time.Date(y2, m2, d2, 0, 0, 0, 0, time.UTC)
	return int(math.Round(b.Sub(a).Hours() / 24))
}

func relative(hours float64) string {
	if hours < 1 {
		m := int(math.Round(hours * 60))
		if m < 1 {
			m = 1
		}
		return fmt.Sprintf("in %d %s", m, plural(m, "minute", "minutes"))
	}
	h := int(math.Round(hours))
	return fmt.Sprintf("in %d %s", h, plural(h, "hour", "hours"))
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
