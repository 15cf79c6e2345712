// Package assistant runs the AI chat: it keeps the transcript, streams
// replies from the model with directive syntax hidden, and applies the job
// edits the model requested once the reply is complete.
package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/jobdesk/internal/action"
	"github.com/kalambet/jobdesk/internal/jobs"
	"github.com/kalambet/jobdesk/internal/notify"
	"github.com/kalambet/jobdesk/internal/ollama"
)

const stateKey = "chat"

// Transcript roles.
const (
	RoleUser  = "user"
	RoleModel = "model"
)

// Apology is shown in place of a reply when the model call fails.
const Apology = "Sorry, I couldn't reach the AI model just now. Please try again in a moment."

// maxTranscript bounds the persisted transcript; maxContext bounds how much
// of it is replayed to the model.
const (
	maxTranscript = 200
	maxContext    = 20
)

// ErrEmptyMessage is returned by Send for blank input.
var ErrEmptyMessage = errors.New("message is empty")

// Message is one transcript entry.
type Message struct {
	ID        string `json:"id"`
	Role      string `json:"role"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"` // epoch milliseconds
}

// Turn is the outcome of one Send.
type Turn struct {
	Reply      Message
	Directives []action.Directive
	Applied    int
	Failed     bool
}

// Streamer produces a streamed chat completion.
type Streamer interface {
	ChatStream(ctx context.Context, model string, messages []ollama.Message, onChunk func(string)) (string, error)
}

// JobStore is the subset of jobs.Store the assistant needs.
type JobStore interface {
	List() []jobs.Job
	Mutate(fn func([]jobs.Job) []jobs.Job) error
}

// Notifier records feed notifications.
type Notifier interface {
	Add(typ notify.Type, title, message, jobID, actionView string) notify.Notification
}

// Persister is the key/value storage for the transcript.
type Persister interface {
	GetState(key string) (string, error)
	SetState(key, value string) error
}

// Context supplies optional prompt context. Either func may be nil.
type Context struct {
	DisplayName func() string
	Resume      func() string
}

// Assistant owns the chat transcript.
type Assistant struct {
	llm      Streamer
	model    string
	jobs     JobStore
	notifier Notifier
	store    Persister
	ctx      Context
	now      func() time.Time

	// sendMu serialises turns so replies land in order.
	sendMu sync.Mutex

	mu      sync.RWMutex
	history []Message
}

// New creates an Assistant and loads the persisted transcript.
func New(llm Streamer, model string, js JobStore, n Notifier, store Persister, c Context) *Assistant {
	a := &Assistant{
		llm:      llm,
		model:    model,
		jobs:     js,
		notifier: n,
		store:    store,
		ctx:      c,
		now:      time.Now,
	}
	if raw, err := store.GetState(stateKey); err == nil {
		if err := json.Unmarshal([]byte(raw), &a.history); err != nil {
			slog.Warn("malformed persisted chat, starting empty", "error", err)
			a.history = nil
		}
	}
	return a
}

// History returns the transcript, oldest first.
func (a *Assistant) History() []Message {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]Message, len(a.history))
	copy(out, a.history)
	return out
}

// Clear empties the transcript.
func (a *Assistant) Clear() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.history = nil
	return a.saveLocked()
}

// Send appends text as a user message and streams the model's reply.
// onUpdate, if non-nil, receives the cleaned cumulative reply after every
// chunk; directive syntax never reaches it. Directives are applied only
// after the stream completes. A model failure is not an error: the
// transcript gets an apology and the Turn is marked Failed.
func (a *Assistant) Send(ctx context.Context, text string, onUpdate func(string)) (Turn, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Turn{}, ErrEmptyMessage
	}

	a.sendMu.Lock()
	defer a.sendMu.Unlock()

	prior := a.History()
	a.append(a.message(RoleUser, text))

	var (
		buf  strings.Builder
		last string
	)
	full, err := a.llm.ChatStream(ctx, a.model, a.prompt(prior, text), func(chunk string) {
		buf.WriteString(chunk)
		clean := action.ParsePartial(buf.String()).Text
		if clean != last && onUpdate != nil {
			onUpdate(clean)
		}
		last = clean
	})
	if err != nil {
		slog.Warn("chat completion failed", "error", err)
		reply := a.message(RoleModel, Apology)
		a.append(reply)
		return Turn{Reply: reply, Failed: true}, nil
	}

	res := action.Parse(full)
	applied := a.ApplyEdits(res.Directives)

	replyText := res.Text
	if replyText == "" && applied > 0 {
		replyText = "Done. I've updated your job records."
	}
	reply := a.message(RoleModel, replyText)
	a.append(reply)

	return Turn{Reply: reply, Directives: res.Directives, Applied: applied}, nil
}

// ApplyEdits commits directives in one store mutation and raises a
// status_change notification for every job whose status moved.
func (a *Assistant) ApplyEdits(directives []action.Directive) int {
	if len(directives) == 0 {
		return 0
	}

	var before, after []jobs.Job
	applied := 0
	err := a.jobs.Mutate(func(list []jobs.Job) []jobs.Job {
		before = list
		after, applied = action.Apply(directives, list)
		return after
	})
	if err != nil {
		slog.Error("applying assistant edits", "error", err)
		return 0
	}

	for i := range after {
		if after[i].Status == before[i].Status {
			continue
		}
		j := after[i]
		a.notifier.Add(notify.TypeStatusChange,
			"Status Updated",
			fmt.Sprintf("%s at %s moved from %s to %s.", j.Role, j.Company, before[i].Status, j.Status),
			j.ID, "jobs")
	}
	if applied > 0 {
		slog.Info("assistant edits applied", "directives", len(directives), "applied", applied)
	}
	return applied
}

const personaTemplate = `You are jobdesk, a friendly and practical career assistant helping %s run their job search. Be concise and concrete. Today's date is %s.`

func (a *Assistant) prompt(prior []Message, text string) []ollama.Message {
	name := "the user"
	if a.ctx.DisplayName != nil {
		if n := a.ctx.DisplayName(); n != "" {
			name = n
		}
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, personaTemplate, name, a.now().Format(time.DateOnly))
	fmt.Fprintf(&sb, "\n\n[Tracked Jobs]\n%s", jobs.Summary(a.jobs.List()))
	if a.ctx.Resume != nil {
		fmt.Fprintf(&sb, "\n\n[Resume]\n%s", a.ctx.Resume())
	}
	fmt.Fprintf(&sb, "\n\n[Editing Jobs]\n%s", action.Instructions())

	msgs := []ollama.Message{{Role: ollama.RoleSystem, Content: sb.String()}}
	if len(prior) > maxContext {
		prior = prior[len(prior)-maxContext:]
	}
	for _, m := range prior {
		role := ollama.RoleUser
		if m.Role == RoleModel {
			role = ollama.RoleAssistant
		}
		msgs = append(msgs, ollama.Message{Role: role, Content: m.Text})
	}
	return append(msgs, ollama.Message{Role: ollama.RoleUser, Content: text})
}

func (a *Assistant) message(role, text string) Message {
	return Message{
		ID:        uuid.New().String(),
		Role:      role,
		Text:      text,
		Timestamp: a.now().UnixMilli(),
	}
}

func (a *Assistant) append(m Message) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.history = append(a.history, m)
	if len(a.history) > maxTranscript {
		a.history = a.history[len(a.history)-maxTranscript:]
	}
	if err := a.saveLocked(); err != nil {
		slog.Error("persisting chat", "error", err)
	}
}

func (a *Assistant) saveLocked() error {
	h := a.history
	if h == nil {
		h = []Message{}
	}
	data, err := json.Marshal(h)
	if err != nil {
		return fmt.Errorf("marshalling chat: %w", err)
	}
	if err := a.store.SetState(stateKey, string(data)); err != nil {
		return fmt.Errorf("saving chat: %w", err)
	}
	return nil
}
