package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/jobdesk/internal/assistant"
	"github.com/kalambet/jobdesk/internal/jobs"
	"github.com/kalambet/jobdesk/internal/notify"
	"github.com/kalambet/jobdesk/internal/resume"
	"github.com/kalambet/jobdesk/internal/settings"
	"github.com/kalambet/jobdesk/internal/storage"
	"github.com/kalambet/jobdesk/internal/tools"
	"github.com/kalambet/jobdesk/internal/worker"
)

// DataStore is the storage surface the API needs beyond the domain managers.
type DataStore interface {
	EnqueueTask(task storage.Task) error
	RecentTasks(limit int) ([]storage.Task, error)
	Purge() error
}

type AppDeps struct {
	Jobs          *jobs.Store
	Notifications *notify.Engine
	Assistant     *assistant.Assistant
	Resume        *resume.Manager
	Settings      *settings.Manager
	Tools         *tools.Service
	Store         DataStore
	Token         string
}

// NewAppHandler returns the local REST API. Everything except /health
// requires the bearer token.
func NewAppHandler(deps AppDeps) http.Handler {
	r := chi.NewRouter()
	r.Get("/health", handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Route("/jobs", func(r chi.Router) {
			r.Get("/", handleListJobs(deps))
			r.Post("/", handleCreateJob(deps))
			r.Get("/{id}", handleGetJob(deps))
			r.Patch("/{id}", handlePatchJob(deps))
			r.Delete("/{id}", handleDeleteJob(deps))
			r.Put("/{id}/status", handleSetStatus(deps))
			r.Post("/{id}/artifacts", handleEnqueueArtifact(deps))
		})
		r.Get("/tasks", handleListTasks(deps))

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", handleListNotifications(deps))
			r.Post("/read-all", handleReadAll(deps))
			r.Post("/{id}/read", handleMarkRead(deps))
			r.Delete("/", handleClearNotifications(deps))
		})

		r.Route("/chat", func(r chi.Router) {
			r.Get("/", handleChatHistory(deps))
			r.Post("/", handleChat(deps))
			r.Delete("/", handleClearChat(deps))
		})

		r.Get("/resume", handleGetResume(deps))
		r.Put("/resume", handlePutResume(deps))
		r.Get("/settings", handleGetSettings(deps))
		r.Put("/settings", handlePutSettings(deps))

		r.Post("/tools/compare-offers", handleCompareOffers(deps))
		r.Post("/tools/extract-job", handleExtractJob(deps))

		r.Delete("/data", handlePurge(deps))
	})

	return r
}

func handleListJobs(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list := deps.Jobs.List()
		if status := r.URL.Query().Get("status"); status != "" {
			filtered := list[:0]
			for _, j := range list {
				if strings.EqualFold(string(j.Status), status) {
					filtered = append(filtered, j)
				}
			}
			list = filtered
		}
		if list == nil {
			list = []jobs.Job{}
		}
		writeJSON(w, http.StatusOK, list)
	}
}

func handleCreateJob(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var j jobs.Job
		if !decodeBody(w, r, maxRequestBodySize, &j) {
			return
		}
		// Ids and artifacts are server-owned.
		j.ID = ""
		j.Artifacts = nil

		created, err := deps.Jobs.Add(j)
		if err != nil {
			jobError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	}
}

func handleGetJob(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		j, err := deps.Jobs.Get(chi.URLParam(r, "id"))
		if err != nil {
			jobError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, j)
	}
}

// jobPatch carries the fields a PATCH may change; nil means unchanged.
type jobPatch struct {
	Company       *string      `json:"company"`
	Role          *string      `json:"role"`
	Location      *string      `json:"location"`
	Salary        *string      `json:"salary"`
	Status        *jobs.Status `json:"status"`
	DateApplied   *string      `json:"date_applied"`
	Description   *string      `json:"description"`
	FollowUpDate  *string      `json:"follow_up_date"`
	InterviewDate *string      `json:"interview_date"`
	Notes         *string      `json:"notes"`
	Origin        *jobs.Origin `json:"origin"`
}

func (p jobPatch) apply(j *jobs.Job) {
	setIf(&j.Company, p.Company)
	setIf(&j.Role, p.Role)
	setIf(&j.Location, p.Location)
	setIf(&j.Salary, p.Salary)
	setIf(&j.Status, p.Status)
	setIf(&j.DateApplied, p.DateApplied)
	setIf(&j.Description, p.Description)
	setIf(&j.FollowUpDate, p.FollowUpDate)
	setIf(&j.InterviewDate, p.InterviewDate)
	setIf(&j.Notes, p.Notes)
	setIf(&j.Origin, p.Origin)
}

func setIf[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

func handlePatchJob(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var p jobPatch
		if !decodeBody(w, r, maxRequestBodySize, &p) {
			return
		}
		updated, err := deps.Jobs.Update(chi.URLParam(r, "id"), p.apply)
		if err != nil {
			jobError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, updated)
	}
}

func handleDeleteJob(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Jobs.Delete(chi.URLParam(r, "id")); err != nil {
			jobError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	}
}

func handleSetStatus(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Status jobs.Status `json:"status"`
		}
		if !decodeBody(w, r, maxRequestBodySize, &req) {
			return
		}
		id := chi.URLParam(r, "id")
		prev, err := deps.Jobs.SetStatus(id, req.Status)
		if err != nil {
			jobError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{
			"id":       id,
			"status":   string(req.Status),
			"previous": string(prev),
		})
	}
}

func handleEnqueueArtifact(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Kind string `json:"kind"`
		}
		if !decodeBody(w, r, maxRequestBodySize, &req) {
			return
		}
		id := chi.URLParam(r, "id")
		if _, err := deps.Jobs.Get(id); err != nil {
			jobError(w, err)
			return
		}

		taskID, err := worker.Enqueue(deps.Store, id, req.Kind)
		if errors.Is(err, tools.ErrUnsupportedKind) {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v (supported: %s)", err, strings.Join(tools.Kinds(), ", "))
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to enqueue: %v", err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{
			"task_id": taskID,
			"status":  "queued",
		})
	}
}

type taskView struct {
	ID        string    `json:"id"`
	Status    string    `json:"status"`
	JobID     string    `json:"job_id,omitempty"`
	Kind      string    `json:"kind,omitempty"`
	Attempts  int       `json:"attempts"`
	LastError string    `json:"last_error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func handleListTasks(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tasks, err := deps.Store.RecentTasks(parseIntParam(r, "limit", 20, 100))
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list tasks: %v", err)
			return
		}

		views := make([]taskView, 0, len(tasks))
		for _, t := range tasks {
			v := taskView{
				ID:        t.ID,
				Status:    t.Status,
				Attempts:  t.Attempts,
				LastError: t.LastError,
				CreatedAt: t.CreatedAt,
				UpdatedAt: t.UpdatedAt,
			}
			var p worker.ArtifactPayload
			if json.Unmarshal([]byte(t.PayloadJSON), &p) == nil {
				v.JobID, v.Kind = p.JobID, p.Kind
			}
			views = append(views, v)
		}
		writeJSON(w, http.StatusOK, views)
	}
}

func jobError(w http.ResponseWriter, err error) {
	var verr *jobs.ValidationError
	switch {
	case errors.Is(err, jobs.ErrNotFound):
		httpError(w, http.StatusNotFound, "not_found", "job not found")
	case errors.As(err, &verr):
		httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", verr)
	default:
		httpError(w, http.StatusInternalServerError, "api_error", "%v", err)
	}
}

// handlePurge wipes the database and resets every in-memory owner so the
// running daemon does not write stale state back.
func handlePurge(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Store.Purge(); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to purge: %v", err)
			return
		}
		if err := deps.Jobs.Reset(); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to reset jobs: %v", err)
			return
		}
		deps.Notifications.Reset()
		if err := deps.Assistant.Clear(); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to clear chat: %v", err)
			return
		}
		deps.Resume.Invalidate()
		deps.Settings.Reset()

		slog.Info("all data purged")
		writeJSON(w, http.StatusOK, map[string]string{"status": "purged"})
	}
}
