// Package tools implements the AI career tools: document generation for a
// single job, offer comparison and job extraction from a posting.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kalambet/jobdesk/internal/jobs"
	"github.com/kalambet/jobdesk/internal/ollama"
)

const toolTimeout = 3 * time.Minute

var (
	// ErrMalformedOutput is returned when the model's reply does not match
	// the requested structure.
	ErrMalformedOutput = errors.New("model returned malformed output")
	// ErrUnsupportedKind is returned by Generate for artifact kinds no tool
	// produces.
	ErrUnsupportedKind = errors.New("unsupported artifact kind")
	// ErrNotEnoughOffers is returned by CompareOffers with fewer than two offers.
	ErrNotEnoughOffers = errors.New("need at least two offers to compare")
)

// Chatter is the model call the tools need.
type Chatter interface {
	Chat(ctx context.Context, model string, messages []ollama.Message, schema *ollama.Schema) (string, error)
}

// ResumeSource supplies the resume as prompt context.
type ResumeSource interface {
	Summary() string
}

// Service runs the career tools against one model.
type Service struct {
	llm    Chatter
	model  string
	resume ResumeSource
}

// New creates a Service. resume may be nil.
func New(llm Chatter, model string, resume ResumeSource) *Service {
	return &Service{llm: llm, model: model, resume: resume}
}

// Generate produces the artifact of the given kind for j, encoded as JSON
// ready for jobs.Store.SetArtifact.
func (s *Service) Generate(ctx context.Context, kind string, j jobs.Job) (json.RawMessage, error) {
	var (
		v   any
		err error
	)
	switch kind {
	case jobs.ArtifactCoverLetter:
		v, err = s.CoverLetter(ctx, j)
	case jobs.ArtifactInterviewGuide:
		v, err = s.InterviewGuide(ctx, j)
	case jobs.ArtifactNegotiationScript:
		v, err = s.NegotiationScript(ctx, j)
	case jobs.ArtifactRedFlags:
		v, err = s.RedFlags(ctx, j)
	case jobs.ArtifactATSAnalysis:
		v, err = s.ATSAnalysis(ctx, j)
	case jobs.ArtifactNetworkingDrafts:
		v, err = s.NetworkingDrafts(ctx, j)
	case jobs.ArtifactLearningRoadmap:
		v, err = s.LearningRoadmap(ctx, j)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedKind, kind)
	}
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", kind, err)
	}
	return data, nil
}

// Kinds lists the artifact kinds Generate supports.
func Kinds() []string {
	return []string{
		jobs.ArtifactCoverLetter,
		jobs.ArtifactInterviewGuide,
		jobs.ArtifactNegotiationScript,
		jobs.ArtifactRedFlags,
		jobs.ArtifactATSAnalysis,
		jobs.ArtifactNetworkingDrafts,
		jobs.ArtifactLearningRoadmap,
	}
}

// Supported reports whether Generate can produce kind.
func Supported(kind string) bool {
	for _, k := range Kinds() {
		if k == kind {
			return true
		}
	}
	return false
}

// text runs a free-form prompt.
func (s *Service) text(ctx context.Context, system, user string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, toolTimeout)
	defer cancel()

	out, err := s.llm.Chat(ctx, s.model, s.messages(system, user), nil)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// structured runs a prompt with a JSON schema and decodes the reply into v.
func (s *Service) structured(ctx context.Context, system, user string, schema *ollama.Schema, v any) error {
	ctx, cancel := context.WithTimeout(ctx, toolTimeout)
	defer cancel()

	raw, err := s.llm.Chat(ctx, s.model, s.messages(system, user), schema)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(stripFences(raw)), v); err != nil {
		slog.Warn("tool output did not match schema", "error", err, "response", raw)
		return fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	return nil
}

func (s *Service) messages(system, user string) []ollama.Message {
	var sb strings.Builder
	sb.WriteString(system)
	if s.resume != nil {
		fmt.Fprintf(&sb, "\n\n[Candidate Resume]\n%s", s.resume.Summary())
	}
	return []ollama.Message{
		{Role: ollama.RoleSystem, Content: sb.String()},
		{Role: ollama.RoleUser, Content: user},
	}
}

// stripFences removes a surrounding markdown code fence some models add
// even when asked for bare JSON.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// describe renders a job for a user prompt.
func describe(j jobs.Job) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Role: %s\nCompany: %s\n", j.Role, j.Company)
	if j.Location != "" {
		fmt.Fprintf(&sb, "Location: %s\n", j.Location)
	}
	if j.Salary != "" {
		fmt.Fprintf(&sb, "Salary: %s\n", j.Salary)
	}
	fmt.Fprintf(&sb, "Status: %s\n", j.Status)
	if j.Notes != "" {
		fmt.Fprintf(&sb, "Notes: %s\n", j.Notes)
	}
	if j.Description != "" {
		fmt.Fprintf(&sb, "\nJob description:\n%s\n", j.Description)
	}
	return sb.String()
}

func stringArray(desc string) ollama.SchemaProperty {
	return ollama.SchemaProperty{Type: "array", Description: desc, Items: &ollama.SchemaProperty{Type: "string"}}
}
