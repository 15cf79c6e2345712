package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/kalambet/jobdesk/internal/assistant"
)

// ChatEvent is the payload of "delta" and "done" events on the chat stream.
type ChatEvent struct {
	Text    string             `json:"text,omitempty"`
	Reply   *assistant.Message `json:"reply,omitempty"`
	Applied int                `json:"applied,omitempty"`
	Failed  bool               `json:"failed,omitempty"`
}

func handleChatHistory(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		history := deps.Assistant.History()
		if history == nil {
			history = []assistant.Message{}
		}
		writeJSON(w, http.StatusOK, history)
	}
}

func handleClearChat(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Assistant.Clear(); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to clear chat: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
	}
}

// handleChat streams one assistant turn as server-sent events. Each "delta"
// event carries the full cleaned reply so far; directive tags never appear.
// A final "done" event carries the stored reply and how many edits landed.
func handleChat(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Message string `json:"message"`
		}
		if !decodeBody(w, r, maxRequestBodySize, &req) {
			return
		}
		if strings.TrimSpace(req.Message) == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "message is required")
			return
		}

		flusher, ok := w.(http.Flusher)
		if !ok {
			httpError(w, http.StatusInternalServerError, "api_error", "streaming not supported")
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")

		turn, err := deps.Assistant.Send(r.Context(), req.Message, func(text string) {
			writeEvent(w, "delta", ChatEvent{Text: text})
			flusher.Flush()
		})
		if err != nil {
			writeEvent(w, "error", map[string]string{"message": err.Error()})
			flusher.Flush()
			return
		}

		reply := turn.Reply
		writeEvent(w, "done", ChatEvent{Reply: &reply, Applied: turn.Applied, Failed: turn.Failed})
		flusher.Flush()
	}
}

func writeEvent(w http.ResponseWriter, event string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
}
