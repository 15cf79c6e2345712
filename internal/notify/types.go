package notify

import "time"

// Type classifies a notification.
type Type string

const (
	TypeInterviewReminder Type = "interview_reminder"
	TypeFollowUpDue       Type = "followup_due"
	TypeFollowUpOverdue   Type = "followup_overdue"
	TypeStatusChange      Type = "status_change"
	TypeInfo              Type = "info"
)

// Notification is one alert in the feed.
type Notification struct {
	ID         string `json:"id"`
	Type       Type   `json:"type"`
	Title      string `json:"title"`
	Message    string `json:"message"`
	Timestamp  int64  `json:"timestamp"` // epoch milliseconds
	Read       bool   `json:"read"`
	JobID      string `json:"job_id,omitempty"`
	ActionView string `json:"action_view,omitempty"`
}

// Time returns the creation time.
func (n Notification) Time() time.Time {
	return time.UnixMilli(n.Timestamp)
}

// MaxFeed is the number of most recent notifications kept.
const MaxFeed = 50

// Persisted state keys.
const (
	feedKey = "notifications"
	seenKey = "notified_keys"
)

// Persister is the key/value storage the Engine needs.
// Implemented by storage.Store.
type Persister interface {
	GetState(key string) (string, error)
	SetState(key, value string) error
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }
