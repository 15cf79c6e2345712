package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/jobdesk/internal/jobs"
	"github.com/kalambet/jobdesk/internal/notify"
	"github.com/kalambet/jobdesk/internal/resume"
	"github.com/kalambet/jobdesk/internal/tools"
)

type notificationFeed struct {
	Unread        int                   `json:"unread"`
	Notifications []notify.Notification `json:"notifications"`
}

func handleListNotifications(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		feed := deps.Notifications.Feed()
		if feed == nil {
			feed = []notify.Notification{}
		}
		writeJSON(w, http.StatusOK, notificationFeed{
			Unread:        deps.Notifications.UnreadCount(),
			Notifications: feed,
		})
	}
}

func handleMarkRead(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deps.Notifications.MarkAsRead(chi.URLParam(r, "id"))
		writeJSON(w, http.StatusOK, map[string]string{"status": "read"})
	}
}

func handleReadAll(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deps.Notifications.MarkAllAsRead()
		writeJSON(w, http.StatusOK, map[string]string{"status": "read"})
	}
}

func handleClearNotifications(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deps.Notifications.ClearAll()
		writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
	}
}

func handleGetResume(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, deps.Resume.Get())
	}
}

func handlePutResume(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var d resume.Document
		if !decodeBody(w, r, maxPostingSize, &d) {
			return
		}
		saved, err := deps.Resume.Save(d)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to save resume: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, saved)
	}
}

func handleGetSettings(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, deps.Settings.Get())
	}
}

func handlePutSettings(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// Start from current values so a partial body keeps the rest.
		s := deps.Settings.Get()
		if !decodeBody(w, r, maxRequestBodySize, &s) {
			return
		}
		saved, err := deps.Settings.Save(s)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to save settings: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, saved)
	}
}

func handleCompareOffers(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cmp, err := deps.Tools.CompareOffers(r.Context(), deps.Jobs.List())
		if err != nil {
			toolError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, cmp)
	}
}

func handleExtractJob(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Posting string `json:"posting"`
			Save    bool   `json:"save"`
		}
		if !decodeBody(w, r, maxPostingSize, &req) {
			return
		}

		j, err := deps.Tools.ExtractJob(r.Context(), req.Posting)
		if err != nil {
			toolError(w, err)
			return
		}
		if !req.Save {
			writeJSON(w, http.StatusOK, j)
			return
		}
		created, err := deps.Jobs.Add(j)
		if err != nil {
			jobError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	}
}

func toolError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, tools.ErrNotEnoughOffers), errors.Is(err, tools.ErrEmptyPosting):
		httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
	case errors.Is(err, context.DeadlineExceeded):
		httpError(w, http.StatusGatewayTimeout, "model_error", "model timed out: %v", err)
	case errors.Is(err, jobs.ErrNotFound):
		httpError(w, http.StatusNotFound, "not_found", "%v", err)
	default:
		httpError(w, http.StatusBadGateway, "model_error", "%v", err)
	}
}
