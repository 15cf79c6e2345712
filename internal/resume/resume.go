package resume

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"
)

const stateKey = "resume"

// Document is the user's resume in structured form. RawText holds the
// original imported text when the document came from a file.
type Document struct {
	Name       string       `json:"name"`
	Headline   string       `json:"headline"`
	Email      string       `json:"email,omitempty"`
	Phone      string       `json:"phone,omitempty"`
	Location   string       `json:"location,omitempty"`
	Links      []string     `json:"links,omitempty"`
	Summary    string       `json:"summary"`
	Experience []Experience `json:"experience"`
	Education  []string     `json:"education,omitempty"`
	Skills     []string     `json:"skills"`
	RawText    string       `json:"raw_text,omitempty"`
	UpdatedAt  time.Time    `json:"updated_at"`
}

// Experience is one position held.
type Experience struct {
	Company    string   `json:"company"`
	Title      string   `json:"title"`
	Start      string   `json:"start,omitempty"`
	End        string   `json:"end,omitempty"`
	Highlights []string `json:"highlights,omitempty"`
}

// Empty reports whether the document carries no usable content.
func (d Document) Empty() bool {
	return d.Name == "" && d.Headline == "" && d.Summary == "" &&
		len(d.Experience) == 0 && len(d.Skills) == 0 && strings.TrimSpace(d.RawText) == ""
}

// Persister is the key/value storage the Manager needs.
// Implemented by storage.Store.
type Persister interface {
	GetState(key string) (string, error)
	SetState(key, value string) error
}

// Manager provides cached access to the persisted resume.
type Manager struct {
	store Persister
	now   func() time.Time

	mu     sync.RWMutex
	cached *Document
}

// NewManager creates a Manager over store.
func NewManager(store Persister) *Manager {
	return &Manager{store: store, now: time.Now}
}

// Get returns the resume. A missing or malformed record yields an empty
// Document.
func (m *Manager) Get() Document {
	m.mu.RLock()
	if m.cached != nil {
		d := clone(*m.cached)
		m.mu.RUnlock()
		return d
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cached != nil {
		return clone(*m.cached)
	}

	var d Document
	if raw, err := m.store.GetState(stateKey); err == nil {
		if err := json.Unmarshal([]byte(raw), &d); err != nil {
			slog.Warn("malformed persisted resume, using empty", "error", err)
			d = Document{}
		}
	}
	m.cached = &d
	return clone(d)
}

// Save replaces the resume and stamps UpdatedAt.
func (m *Manager) Save(d Document) (Document, error) {
	d.UpdatedAt = m.now().UTC()

	data, err := json.Marshal(d)
	if err != nil {
		return Document{}, fmt.Errorf("marshalling resume: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.store.SetState(stateKey, string(data)); err != nil {
		return Document{}, fmt.Errorf("saving resume: %w", err)
	}
	cp := clone(d)
	m.cached = &cp
	return clone(d), nil
}

// Invalidate drops the cached copy, e.g. after a data purge.
func (m *Manager) Invalidate() {
	m.mu.Lock()
	m.cached = nil
	m.mu.Unlock()
}

// maxSummaryChars keeps the prompt context to roughly 1000 tokens.
const maxSummaryChars = 4000

// Summary renders the resume as compact prompt context.
func (m *Manager) Summary() string {
	return Summarize(m.Get())
}

// Summarize renders d as compact prompt context.
func Summarize(d Document) string {
	if d.Empty() {
		return "No resume on file."
	}

	var b strings.Builder
	if d.Name != "" {
		fmt.Fprintf(&b, "Name: %s\n", d.Name)
	}
	if d.Headline != "" {
		fmt.Fprintf(&b, "Headline: %s\n", d.Headline)
	}
	if d.Location != "" {
		fmt.Fprintf(&b, "Location: %s\n", d.Location)
	}
	if d.Summary != "" {
		fmt.Fprintf(&b, "Summary: %s\n", d.Summary)
	}
	if len(d.Experience) > 0 {
		b.WriteString("Experience:\n")
		for _, e := range d.Experience {
			span := strings.Trim(e.Start+" - "+e.End, " -")
			fmt.Fprintf(&b, "- %s at %s", e.Title, e.Company)
			if span != "" {
				fmt.Fprintf(&b, " (%s)", span)
			}
			b.WriteString("\n")
			for _, h := range e.Highlights {
				fmt.Fprintf(&b, "  * %s\n", h)
			}
		}
	}
	if len(d.Skills) > 0 {
		fmt.Fprintf(&b, "Skills: %s\n", strings.Join(d.Skills, ", "))
	}
	if len(d.Education) > 0 {
		fmt.Fprintf(&b, "Education: %s\n", strings.Join(d.Education, "; "))
	}
	// Imported text only carries information the structured fields lack.
	if b.Len() == 0 && d.RawText != "" {
		b.WriteString(d.RawText)
	}

	return truncate(strings.TrimSpace(b.String()), maxSummaryChars)
}

// truncate cuts s to at most n bytes on a word boundary without splitting
// a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	end := n
	for end > 0 && !utf8.RuneStart(s[end]) {
		end--
	}
	if idx := strings.LastIndexAny(s[:end], " \n"); idx > 0 {
		return s[:idx]
	}
	return s[:end]
}

func clone(d Document) Document {
	cp := d
	cp.Links = append([]string(nil), d.Links...)
	cp.Education = append([]string(nil), d.Education...)
	cp.Skills = append([]string(nil), d.Skills...)
	if d.Experience != nil {
		cp.Experience = make([]Experience, len(d.Experience))
		for i, e := range d.Experience {
			e.Highlights = append([]string(nil), e.Highlights...)
			cp.Experience[i] = e
		}
	}
	return cp
}
