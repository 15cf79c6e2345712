package tools

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/kalambet/jobdesk/internal/jobs"
	"github.com/kalambet/jobdesk/internal/ollama"
)

type mockChatter struct {
	response string
	err      error

	calls    int
	messages []ollama.Message
	schema   *ollama.Schema
}

func (m *mockChatter) Chat(_ context.Context, _ string, msgs []ollama.Message, schema *ollama.Schema) (string, error) {
	m.calls++
	m.messages = msgs
	m.schema = schema
	return m.response, m.err
}

type staticResume string

func (r staticResume) Summary() string { return string(r) }

var acme = jobs.Job{
	ID: "job-1", Company: "Acme", Role: "Platform Engineer",
	Status: jobs.StatusInterview, Description: "Run Kubernetes at scale.",
}

func TestCoverLetter(t *testing.T) {
	m := &mockChatter{response: "  Dear Acme team,\nI build platforms.  "}
	s := New(m, "llama3.1", staticResume("Skills: Go, Kubernetes"))

	got, err := s.CoverLetter(context.Background(), acme)
	if err != nil {
		t.Fatalf("CoverLetter: %v", err)
	}
	if got.Text != "Dear Acme team,\nI build platforms." {
		t.Errorf("Text = %q", got.Text)
	}
	if m.schema != nil {
		t.Error("cover letter should not request JSON")
	}
	if !strings.Contains(m.messages[0].Content, "Skills: Go, Kubernetes") {
		t.Error("system prompt missing resume context")
	}
	if !strings.Contains(m.messages[1].Content, "Run Kubernetes at scale.") {
		t.Error("user prompt missing job description")
	}
}

func TestStructuredTools_MalformedOutput(t *testing.T) {
	m := &mockChatter{response: "Sure! Here's your guide: ..."}
	s := New(m, "m", nil)

	calls := map[string]func() error{
		"interview guide": func() error { _, err := s.InterviewGuide(context.Background(), acme); return err },
		"negotiation":     func() error { _, err := s.NegotiationScript(context.Background(), acme); return err },
		"red flags":       func() error { _, err := s.RedFlags(context.Background(), acme); return err },
		"ats":             func() error { _, err := s.ATSAnalysis(context.Background(), acme); return err },
		"networking":      func() error { _, err := s.NetworkingDrafts(context.Background(), acme); return err },
		"roadmap":         func() error { _, err := s.LearningRoadmap(context.Background(), acme); return err },
	}
	for name, call := range calls {
		if err := call(); !errors.Is(err, ErrMalformedOutput) {
			t.Errorf("%s: err = %v, want ErrMalformedOutput", name, err)
		}
	}
}

func TestModelErrorSurfaces(t *testing.T) {
	boom := errors.New("connection refused")
	s := New(&mockChatter{err: boom}, "m", nil)
	if _, err := s.ATSAnalysis(context.Background(), acme); !errors.Is(err, boom) {
		t.Errorf("err = %v, want wrapped model error", err)
	}
}

func TestInterviewGuide_FencedJSON(t *testing.T) {
	m := &mockChatter{response: "```json\n" + `{"questions":[{"question":"Tell me about an outage","tip":"Use STAR"}],"topics":["SLOs"],"questions_to_ask":["On-call load?"]}` + "\n```"}
	g, err := New(m, "m", nil).InterviewGuide(context.Background(), acme)
	if err != nil {
		t.Fatalf("InterviewGuide: %v", err)
	}
	if len(g.Questions) != 1 || g.Questions[0].Tip != "Use STAR" {
		t.Errorf("guide = %+v", g)
	}
	if m.schema == nil || m.schema.Properties["questions"].Items == nil {
		t.Error("schema missing questions items")
	}
}

func TestRedFlags_NormalisesSeverity(t *testing.T) {
	m := &mockChatter{response: `{"flags":[{"flag":"Unpaid trial","severity":"critical","explanation":"x"},{"flag":"Vague pay","severity":"low","explanation":"y"}],"overall":"Proceed carefully"}`}
	r, err := New(m, "m", nil).RedFlags(context.Background(), acme)
	if err != nil {
		t.Fatalf("RedFlags: %v", err)
	}
	if r.Flags[0].Severity != SeverityMedium || r.Flags[1].Severity != SeverityLow {
		t.Errorf("severities = %s, %s", r.Flags[0].Severity, r.Flags[1].Severity)
	}
}

func TestATSAnalysis_ScoreRange(t *testing.T) {
	s := New(&mockChatter{response: `{"score":140,"matched_keywords":[],"missing_keywords":[],"suggestions":[]}`}, "m", nil)
	if _, err := s.ATSAnalysis(context.Background(), acme); !errors.Is(err, ErrMalformedOutput) {
		t.Errorf("err = %v, want ErrMalformedOutput", err)
	}
}

func TestGenerate(t *testing.T) {
	m := &mockChatter{response: `{"score":72,"matched_keywords":["Go"],"missing_keywords":["Terraform"],"suggestions":["Mention IaC"]}`}
	s := New(m, "m", nil)

	raw, err := s.Generate(context.Background(), jobs.ArtifactATSAnalysis, acme)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	var r ATSReport
	if err := json.Unmarshal(raw, &r); err != nil || r.Score != 72 {
		t.Errorf("payload = %s (%v)", raw, err)
	}

	if _, err := s.Generate(context.Background(), jobs.ArtifactPracticeTranscript, acme); !errors.Is(err, ErrUnsupportedKind) {
		t.Errorf("err = %v, want ErrUnsupportedKind", err)
	}
	if Supported(jobs.ArtifactPracticeTranscript) || !Supported(jobs.ArtifactCoverLetter) {
		t.Error("Supported disagrees with Generate")
	}
}

func TestCompareOffers(t *testing.T) {
	list := []jobs.Job{
		{ID: "a", Company: "Acme", Role: "SRE", Status: jobs.StatusOffer},
		{ID: "b", Company: "Globex", Role: "SRE", Status: jobs.StatusApplied, Origin: jobs.OriginOffer},
		{ID: "c", Company: "Initech", Role: "SRE", Status: jobs.StatusApplied},
	}
	m := &mockChatter{response: `{"ranking":[{"job_id":"a","score":60},{"job_id":"zzz","score":99},{"job_id":"b","score":85}],"recommendation":"Take Globex"}`}

	c, err := New(m, "m", nil).CompareOffers(context.Background(), list)
	if err != nil {
		t.Fatalf("CompareOffers: %v", err)
	}
	if len(c.Ranking) != 2 || c.Ranking[0].JobID != "b" || c.Ranking[1].JobID != "a" {
		t.Errorf("ranking = %+v, want b then a without unknown ids", c.Ranking)
	}
	if strings.Contains(m.messages[1].Content, "Initech") {
		t.Error("non-offer job sent for comparison")
	}
}

func TestCompareOffers_NotEnough(t *testing.T) {
	m := &mockChatter{}
	_, err := New(m, "m", nil).CompareOffers(context.Background(), []jobs.Job{{ID: "a", Status: jobs.StatusOffer}})
	if !errors.Is(err, ErrNotEnoughOffers) {
		t.Errorf("err = %v, want ErrNotEnoughOffers", err)
	}
	if m.calls != 0 {
		t.Error("model called with too few offers")
	}
}

func TestExtractJob(t *testing.T) {
	m := &mockChatter{response: `{"company":" Acme ","role":"SRE","location":"Berlin","salary":"€90k","description":"Keep things up."}`}
	posting := `<html><head><style>.x{color:red}</style><script>track()</script></head>
<body><h1>SRE</h1><p>Acme is hiring &amp; growing.</p><ul><li>Go</li><li>Linux</li></ul></body></html>`

	j, err := New(m, "m", nil).ExtractJob(context.Background(), posting)
	if err != nil {
		t.Fatalf("ExtractJob: %v", err)
	}
	if j.Company != "Acme" || j.Role != "SRE" || j.Status != jobs.StatusApplied || j.ID != "" {
		t.Errorf("job = %+v", j)
	}

	sent := m.messages[1].Content
	if strings.Contains(sent, "<") || strings.Contains(sent, "track()") || strings.Contains(sent, "color") {
		t.Errorf("markup leaked to model: %q", sent)
	}
	if !strings.Contains(sent, "Acme is hiring & growing.") {
		t.Errorf("posting text = %q", sent)
	}
}

func TestExtractJob_Errors(t *testing.T) {
	s := New(&mockChatter{response: `{"company":"","role":"SRE","location":"","salary":"","description":""}`}, "m", nil)
	if _, err := s.ExtractJob(context.Background(), "  <div> </div> "); !errors.Is(err, ErrEmptyPosting) {
		t.Errorf("err = %v, want ErrEmptyPosting", err)
	}
	if _, err := s.ExtractJob(context.Background(), "Senior SRE at somewhere"); !errors.Is(err, ErrMalformedOutput) {
		t.Errorf("err = %v, want ErrMalformedOutput for missing company", err)
	}
}

func TestPlainText(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"  plain   text \n\n second ", "plain text\nsecond"},
		{"<p>One</p><p>Two<br>Three</p>", "One\nTwo\nThree"},
		{"<div>a <b>bold</b> move</div>", "a bold move"},
		{"<noscript>enable js</noscript><p>kept</p>", "kept"},
	}
	for _, tt := range tests {
		if got := PlainText(tt.in); got != tt.want {
			t.Errorf("PlainText(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
