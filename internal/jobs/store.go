package jobs

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

const stateKey = "jobs"

// ErrNotFound is returned when no job has the requested id.
var ErrNotFound = errors.New("job not found")

// ValidationError represents a field-level validation failure.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// Persister is the key/value storage the Store needs.
// Implemented by storage.Store.
type Persister interface {
	GetState(key string) (string, error)
	SetState(key, value string) error
}

// Store owns the job collection. All mutations go through it and are
// written back to the persister before returning.
type Store struct {
	persister Persister
	validate  *validator.Validate
	now       func() time.Time

	mu   sync.RWMutex
	jobs []Job
}

// NewStore loads the persisted collection. Missing or corrupt state yields
// an empty collection.
func NewStore(p Persister) *Store {
	s := &Store{
		persister: p,
		validate:  validator.New(),
		now:       time.Now,
	}
	s.jobs = s.load()
	return s
}

func (s *Store) load() []Job {
	raw, err := s.persister.GetState(stateKey)
	if err != nil {
		return nil
	}
	var list []Job
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		slog.Warn("malformed persisted jobs, starting empty", "error", err)
		return nil
	}
	return list
}

func (s *Store) save() error {
	data, err := json.Marshal(s.jobs)
	if err != nil {
		return fmt.Errorf("marshalling jobs: %w", err)
	}
	if err := s.persister.SetState(stateKey, string(data)); err != nil {
		return fmt.Errorf("saving jobs: %w", err)
	}
	return nil
}

// List returns a snapshot of the collection.
func (s *Store) List() []Job {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneAll(s.jobs)
}

// Get returns the job with the given id.
func (s *Store) Get(id string) (Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := s.indexOf(id)
	if i < 0 {
		return Job{}, ErrNotFound
	}
	return s.jobs[i].Clone(), nil
}

// Add validates and inserts a new job at the front of the collection.
// Empty id, status, origin and application date get defaults.
func (s *Store) Add(j Job) (Job, error) {
	if j.ID == "" {
		j.ID = uuid.New().String()
	}
	if j.Status == "" {
		j.Status = StatusApplied
	}
	if j.Origin == "" {
		j.Origin = OriginApplication
	}
	if j.DateApplied == "" {
		j.DateApplied = s.now().Format(time.DateOnly)
	}
	if err := s.Validate(j); err != nil {
		return Job{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.indexOf(j.ID) >= 0 {
		return Job{}, fmt.Errorf("job %q already exists", j.ID)
	}
	s.jobs = append([]Job{j.Clone()}, s.jobs...)
	if err := s.save(); err != nil {
		s.jobs = s.jobs[1:]
		return Job{}, err
	}
	return j, nil
}

// Validate checks struct-level constraints on j.
func (s *Store) Validate(j Job) error {
	if err := s.validate.Struct(j); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return &ValidationError{
				Field:   fe.Field(),
				Message: fmt.Sprintf("failed on '%s' validation", fe.Tag()),
			}
		}
		return err
	}
	if j.InterviewDate != "" {
		if _, ok := ParseInstant(j.InterviewDate, time.Local); !ok {
			return &ValidationError{Field: "InterviewDate", Message: "not an ISO 8601 date-time"}
		}
	}
	return nil
}

// Update applies fn to the job with the given id, validates the result and
// persists it. The id cannot be changed.
func (s *Store) Update(id string, fn func(*Job)) (Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return Job{}, ErrNotFound
	}
	updated := s.jobs[i].Clone()
	fn(&updated)
	updated.ID = id
	if err := s.Validate(updated); err != nil {
		return Job{}, err
	}

	prev := s.jobs[i]
	s.jobs[i] = updated
	if err := s.save(); err != nil {
		s.jobs[i] = prev
		return Job{}, err
	}
	return updated.Clone(), nil
}

// SetStatus changes a job's status and returns the previous one.
func (s *Store) SetStatus(id string, status Status) (Status, error) {
	if !status.Valid() {
		return "", &ValidationError{Field: "Status", Message: fmt.Sprintf("unknown status %q", status)}
	}
	var prev Status
	_, err := s.Update(id, func(j *Job) {
		prev = j.Status
		j.Status = status
	})
	return prev, err
}

// SetArtifact attaches an AI-generated payload of the given kind.
func (s *Store) SetArtifact(id, kind string, payload json.RawMessage) error {
	_, err := s.Update(id, func(j *Job) {
		if j.Artifacts == nil {
			j.Artifacts = make(map[string]json.RawMessage)
		}
		j.Artifacts[kind] = payload
	})
	return err
}

// Delete removes a job.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return ErrNotFound
	}
	prev := s.jobs
	s.jobs = append(cloneAll(s.jobs[:i]), s.jobs[i+1:]...)
	if err := s.save(); err != nil {
		s.jobs = prev
		return err
	}
	return nil
}

// Mutate replaces the whole collection with fn's result under a single lock,
// so a batch of edits is applied and persisted as one step. fn receives a
// copy and must not add or remove jobs.
func (s *Store) Mutate(fn func([]Job) []Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := fn(cloneAll(s.jobs))
	if len(next) != len(s.jobs) {
		return fmt.Errorf("mutate changed collection size from %d to %d", len(s.jobs), len(next))
	}
	prev := s.jobs
	s.jobs = next
	if err := s.save(); err != nil {
		s.jobs = prev
		return err
	}
	return nil
}

// Reset empties the collection.
func (s *Store) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = nil
	return s.save()
}

func (s *Store) indexOf(id string) int {
	for i := range s.jobs {
		if s.jobs[i].ID == id {
			return i
		}
	}
	return -1
}

func cloneAll(list []Job) []Job {
	if list == nil {
		return nil
	}
	out := make([]Job, len(list))
	for i, j := range list {
		out[i] = j.Clone()
	}
	return out
}

// maxSummaryChars caps the prompt context to roughly 2k tokens.
const maxSummaryChars = 8000

// Summary renders the collection as compact prompt context, one job per line.
func Summary(list []Job) string {
	if len(list) == 0 {
		return "No jobs tracked yet."
	}
	var sb strings.Builder
	for _, j := range list {
		line := fmt.Sprintf("- id=%s | %s at %s | status=%s", j.ID, j.Role, j.Company, j.Status)
		if j.Location != "" {
			line += " | location=" + j.Location
		}
		if j.Salary != "" {
			line += " | salary=" + j.Salary
		}
		if j.FollowUpDate != "" {
			line += " | followUp=" + j.FollowUpDate
		}
		if j.InterviewDate != "" {
			line += " | interview=" + j.InterviewDate
		}
		if j.Origin == OriginOffer {
			line += " | inbound offer"
		}
		if sb.Len()+len(line)+1 > maxSummaryChars {
			sb.WriteString("- ...")
			break
		}
		sb.WriteString(line)
		sb.WriteByte('\n')
	}
	return strings.TrimRight(sb.String(), "\n")
}
