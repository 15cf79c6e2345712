package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/jobdesk/internal/jobs"
	"github.com/kalambet/jobdesk/internal/notify"
	"github.com/kalambet/jobdesk/internal/storage"
	"github.com/kalambet/jobdesk/internal/tools"
)

// TaskGenerateArtifact is the task type for AI artifact generation.
const TaskGenerateArtifact = "generate_artifact"

// TaskQueue abstracts the task queue operations.
type TaskQueue interface {
	ClaimNextTask(types []string) (*storage.Task, error)
	CompleteTask(id string) error
	FailTask(id string, errMsg string) (bool, error)
	AbandonTask(id string, errMsg string) error
}

// Enqueuer adds tasks to the queue.
type Enqueuer interface {
	EnqueueTask(task storage.Task) error
}

// Generator produces an artifact payload for a job.
type Generator interface {
	Generate(ctx context.Context, kind string, j jobs.Job) (json.RawMessage, error)
}

// JobStore is the subset of jobs.Store the worker needs.
type JobStore interface {
	Get(id string) (jobs.Job, error)
	SetArtifact(id, kind string, payload json.RawMessage) error
}

// Notifier records feed notifications.
type Notifier interface {
	Add(typ notify.Type, title, message, jobID, actionView string) notify.Notification
}

// ArtifactPayload is the task payload for TaskGenerateArtifact.
type ArtifactPayload struct {
	JobID string `json:"job_id"`
	Kind  string `json:"kind"`
}

// errPermanent marks failures a retry cannot fix.
var errPermanent = errors.New("permanent failure")

// Enqueue schedules generation of kind for jobID and returns the task id.
func Enqueue(q Enqueuer, jobID, kind string) (string, error) {
	if !tools.Supported(kind) {
		return "", fmt.Errorf("%w: %q", tools.ErrUnsupportedKind, kind)
	}
	payload, err := json.Marshal(ArtifactPayload{JobID: jobID, Kind: kind})
	if err != nil {
		return "", err
	}
	id := uuid.New().String()
	if err := q.EnqueueTask(storage.Task{ID: id, Type: TaskGenerateArtifact, PayloadJSON: string(payload)}); err != nil {
		return "", fmt.Errorf("enqueueing %s for job %s: %w", kind, jobID, err)
	}
	return id, nil
}

// Worker processes generate_artifact tasks from the SQLite task queue.
type Worker struct {
	queue     TaskQueue
	generator Generator
	jobs      JobStore
	notifier  Notifier
	poll      time.Duration
	logger    *slog.Logger
}

// NewWorker creates a Worker. If pollInterval is <= 0, it defaults to 1s.
func NewWorker(queue TaskQueue, generator Generator, js JobStore, n Notifier, pollInterval time.Duration) *Worker {
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	return &Worker{
		queue:     queue,
		generator: generator,
		jobs:      js,
		notifier:  n,
		poll:      pollInterval,
		logger:    slog.Default(),
	}
}

// Run polls for tasks until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		done, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error("worker iteration failed", "error", err)
		}
		if done {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.poll):
		}
	}
}

// RunOnce claims and processes a single task. It reports whether a task
// was processed, regardless of outcome.
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	task, err := w.queue.ClaimNextTask([]string{TaskGenerateArtifact})
	if err != nil {
		return false, fmt.Errorf("claiming task: %w", err)
	}
	if task == nil {
		return false, nil
	}

	p, err := w.process(ctx, task)
	if err != nil {
		w.fail(task, p, err)
		return true, nil
	}

	if err := w.queue.CompleteTask(task.ID); err != nil {
		return true, fmt.Errorf("completing task %s: %w", task.ID, err)
	}
	w.logger.Info("artifact generated", "task_id", task.ID, "job_id", p.JobID, "kind", p.Kind)
	return true, nil
}

func (w *Worker) process(ctx context.Context, task *storage.Task) (ArtifactPayload, error) {
	var p ArtifactPayload
	if err := json.Unmarshal([]byte(task.PayloadJSON), &p); err != nil {
		return p, fmt.Errorf("%w: parsing payload: %v", errPermanent, err)
	}

	j, err := w.jobs.Get(p.JobID)
	if err != nil {
		return p, fmt.Errorf("%w: loading job %s: %v", errPermanent, p.JobID, err)
	}

	payload, err := w.generator.Generate(ctx, p.Kind, j)
	if errors.Is(err, tools.ErrUnsupportedKind) {
		return p, fmt.Errorf("%w: %v", errPermanent, err)
	}
	if err != nil {
		return p, fmt.Errorf("generating %s: %w", p.Kind, err)
	}

	if err := w.jobs.SetArtifact(j.ID, p.Kind, payload); err != nil {
		if errors.Is(err, jobs.ErrNotFound) {
			return p, fmt.Errorf("%w: job %s deleted during generation", errPermanent, j.ID)
		}
		return p, fmt.Errorf("storing %s: %w", p.Kind, err)
	}

	w.notifier.Add(notify.TypeInfo,
		"Ready: "+label(p.Kind),
		fmt.Sprintf("Your %s for %s at %s is ready.", label(p.Kind), j.Role, j.Company),
		j.ID, "jobs")
	return p, nil
}

func (w *Worker) fail(task *storage.Task, p ArtifactPayload, cause error) {
	w.logger.Warn("task failed", "task_id", task.ID, "error", cause)

	terminal := true
	if errors.Is(cause, errPermanent) {
		if err := w.queue.AbandonTask(task.ID, cause.Error()); err != nil {
			w.logger.Error("failed to abandon task", "task_id", task.ID, "error", err)
		}
	} else {
		var err error
		terminal, err = w.queue.FailTask(task.ID, cause.Error())
		if err != nil {
			w.logger.Error("failed to mark task as failed", "task_id", task.ID, "error", err)
			return
		}
	}

	if terminal {
		w.notifier.Add(notify.TypeInfo,
			"Generation failed",
			fmt.Sprintf("Could not generate %s: %v", label(p.Kind), cause),
			p.JobID, "jobs")
	}
}

var labels = map[string]string{
	jobs.ArtifactCoverLetter:       "cover letter",
	jobs.ArtifactInterviewGuide:    "interview guide",
	jobs.ArtifactATSAnalysis:       "ATS analysis",
	jobs.ArtifactRedFlags:          "red flag report",
	jobs.ArtifactNegotiationScript: "negotiation script",
	jobs.ArtifactNetworkingDrafts:  "networking drafts",
	jobs.ArtifactLearningRoadmap:   "learning roadmap",
}

func label(kind string) string {
	if l, ok := labels[kind]; ok {
		return l
	}
	if kind == "" {
		return "artifact"
	}
	return kind
}
