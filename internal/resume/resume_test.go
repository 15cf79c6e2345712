package resume

import (
	"errors"
	"strings"
	"testing"
	"time"
)

type mockPersister struct {
	data   map[string]string
	gets   int
	setErr error
}

func newMockPersister() *mockPersister {
	return &mockPersister{data: make(map[string]string)}
}

func (m *mockPersister) GetState(key string) (string, error) {
	m.gets++
	v, ok := m.data[key]
	if !ok {
		return "", errors.New("not found")
	}
	return v, nil
}

func (m *mockPersister) SetState(key, value string) error {
	if m.setErr != nil {
		return m.setErr
	}
	m.data[key] = value
	return nil
}

func TestGet_EmptyAndCorrupt(t *testing.T) {
	p := newMockPersister()
	if d := NewManager(p).Get(); !d.Empty() {
		t.Errorf("missing resume = %+v, want empty", d)
	}

	p.data[stateKey] = "{not json"
	if d := NewManager(p).Get(); !d.Empty() {
		t.Errorf("corrupt resume = %+v, want empty", d)
	}
}

func TestSave_RoundTripAndCache(t *testing.T) {
	p := newMockPersister()
	m := NewManager(p)
	fixed := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return fixed }

	saved, err := m.Save(Document{
		Name:     "Ada Lovelace",
		Headline: "Staff Engineer",
		Skills:   []string{"Go", "SQL"},
		Experience: []Experience{
			{Company: "Acme", Title: "Engineer", Start: "2020", Highlights: []string{"Shipped billing"}},
		},
	})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !saved.UpdatedAt.Equal(fixed) {
		t.Errorf("UpdatedAt = %v, want %v", saved.UpdatedAt, fixed)
	}

	// Mutating the returned copy must not leak into the cache.
	saved.Skills[0] = "Rust"
	saved.Experience[0].Highlights[0] = "changed"

	got := m.Get()
	if got.Skills[0] != "Go" || got.Experience[0].Highlights[0] != "Shipped billing" {
		t.Errorf("cache was mutated through returned copy: %+v", got)
	}

	reloaded := NewManager(p).Get()
	if reloaded.Name != "Ada Lovelace" || len(reloaded.Experience) != 1 {
		t.Errorf("reloaded = %+v", reloaded)
	}
}

func TestGet_Cached(t *testing.T) {
	p := newMockPersister()
	m := NewManager(p)
	m.Get()
	m.Get()
	if p.gets != 1 {
		t.Errorf("GetState calls = %d, want 1", p.gets)
	}
	m.Invalidate()
	m.Get()
	if p.gets != 2 {
		t.Errorf("GetState calls after Invalidate = %d, want 2", p.gets)
	}
}

func TestSave_Error(t *testing.T) {
	p := newMockPersister()
	p.setErr = errors.New("disk full")
	m := NewManager(p)

	if _, err := m.Save(Document{Name: "x"}); err == nil {
		t.Fatal("expected error")
	}
	if !m.Get().Empty() {
		t.Error("failed save should not update the cache")
	}
}

func TestSummarize(t *testing.T) {
	if got := Summarize(Document{}); got != "No resume on file." {
		t.Errorf("empty summary = %q", got)
	}

	d := Document{
		Name:     "Ada",
		Headline: "Engineer",
		Skills:   []string{"Go", "Kubernetes"},
		Experience: []Experience{
			{Company: "Acme", Title: "SRE", Start: "2021", End: "2024", Highlights: []string{"Cut paging by half"}},
			{Company: "Globex", Title: "Intern"},
		},
		RawText: "ignored when structured fields exist",
	}
	got := Summarize(d)
	for _, want := range []string{"Name: Ada", "- SRE at Acme (2021 - 2024)", "* Cut paging by half", "- Intern at Globex\n", "Skills: Go, Kubernetes"} {
		if !strings.Contains(got, want) {
			t.Errorf("summary missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "ignored") {
		t.Error("raw text should not be included when structured fields exist")
	}

	raw := Summarize(FromText("Plain imported resume"))
	if raw != "Plain imported resume" {
		t.Errorf("raw-only summary = %q", raw)
	}
}

func TestTruncate(t *testing.T) {
	s := strings.Repeat("héllo ", 1000)
	got := truncate(s, 101)
	if len(got) > 101 {
		t.Errorf("len = %d, want <= 101", len(got))
	}
	if strings.HasSuffix(got, " ") || !strings.HasSuffix(got, "héllo") {
		t.Errorf("truncate did not cut on a word boundary: %q", got[len(got)-10:])
	}
}

func TestNormalize(t *testing.T) {
	in := "Ada  \r\nEngineer\t\n\n\n\n\nSkills\n"
	if got := normalize(in); got != "Ada\nEngineer\n\nSkills" {
		t.Errorf("normalize = %q", got)
	}
}

func TestExtractPDFText_MissingFile(t *testing.T) {
	if _, err := ExtractPDFText(t.TempDir() + "/nope.pdf"); err == nil {
		t.Error("expected error for missing file")
	}
}
