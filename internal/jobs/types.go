package jobs

import (
	"encoding/json"
	"time"
)

// Status is the pipeline stage of a tracked job.
type Status string

const (
	StatusApplied   Status = "Applied"
	StatusInterview Status = "Interview"
	StatusOffer     Status = "Offer"
	StatusRejected  Status = "Rejected"
	StatusAccepted  Status = "Accepted"
)

// Statuses lists every valid status in pipeline order.
var Statuses = []Status{StatusApplied, StatusInterview, StatusOffer, StatusRejected, StatusAccepted}

// Valid reports whether s is one of the enumerated statuses.
func (s Status) Valid() bool {
	for _, v := range Statuses {
		if s == v {
			return true
		}
	}
	return false
}

// Origin distinguishes self-initiated applications from inbound offers.
type Origin string

const (
	OriginApplication Origin = "application"
	OriginOffer       Origin = "offer"
)

// Artifact kinds attached to a job by AI features. Payloads are opaque.
const (
	ArtifactCoverLetter        = "cover_letter"
	ArtifactInterviewGuide     = "interview_guide"
	ArtifactATSAnalysis        = "ats_analysis"
	ArtifactRedFlags           = "red_flags"
	ArtifactNegotiationScript  = "negotiation_script"
	ArtifactNetworkingDrafts   = "networking_drafts"
	ArtifactLearningRoadmap    = "learning_roadmap"
	ArtifactPracticeTranscript = "practice_transcript"
)

// Job is one tracked application or offer.
type Job struct {
	ID            string                     `json:"id"`
	Company       string                     `json:"company" validate:"required"`
	Role          string                     `json:"role" validate:"required"`
	Location      string                     `json:"location"`
	Salary        string                     `json:"salary"`
	Status        Status                     `json:"status" validate:"required,oneof=Applied Interview Offer Rejected Accepted"`
	DateApplied   string                     `json:"date_applied" validate:"omitempty,datetime=2006-01-02"`
	Description   string                     `json:"description"`
	FollowUpDate  string                     `json:"follow_up_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	InterviewDate string                     `json:"interview_date,omitempty"`
	Notes         string                     `json:"notes,omitempty"`
	Origin        Origin                     `json:"origin" validate:"omitempty,oneof=application offer"`
	Artifacts     map[string]json.RawMessage `json:"artifacts,omitempty"`
}

// Clone returns a copy of j that shares no mutable state with it.
func (j Job) Clone() Job {
	cp := j
	if j.Artifacts != nil {
		cp.Artifacts = make(map[string]json.RawMessage, len(j.Artifacts))
		for k, v := range j.Artifacts {
			cp.Artifacts[k] = append(json.RawMessage(nil), v...)
		}
	}
	return cp
}

// FollowUp returns the parsed follow-up date. ok is false when absent or malformed.
func (j Job) FollowUp(loc *time.Location) (time.Time, bool) {
	return ParseDate(j.FollowUpDate, loc)
}

// Interview returns the parsed interview instant. ok is false when absent or malformed.
func (j Job) Interview(loc *time.Location) (time.Time, bool) {
	return ParseInstant(j.InterviewDate, loc)
}

// ParseDate parses a YYYY-MM-DD calendar date at midnight in loc.
func ParseDate(s string, loc *time.Location) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	t, err := time.ParseInLocation(time.DateOnly, s, loc)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// instantLayouts are tried in order. The zone-less forms come from HTML
// datetime-local inputs and are interpreted in loc.
var instantLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
}

// ParseInstant parses an ISO 8601 date-time.
func ParseInstant(s string, loc *time.Location) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range instantLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
