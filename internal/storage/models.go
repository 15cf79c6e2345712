package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Persisted state keys. Each holds one JSON document.
const (
	KeyJobs          = "jobs"
	KeyResume        = "resume"
	KeyChat          = "chat"
	KeySettings      = "settings"
	KeyNotifications = "notifications"
	KeyNotifiedKeys  = "notified_keys"
)

// Task is a unit of background work, e.g. generating an AI artifact for a job.
type Task struct {
	ID          string
	Type        string
	PayloadJSON string
	Status      string // one of the TaskStatus values
	Attempts    int
	MaxAttempts int
	RunAfter    time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastError   string
}

// Task statuses.
const (
	TaskStatusPending   = "pending"
	TaskStatusRunning   = "running"
	TaskStatusCompleted = "completed"
	TaskStatusFailed    = "failed"
)
