package tools

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/kalambet/jobdesk/internal/jobs"
	"github.com/kalambet/jobdesk/internal/ollama"
)

// maxPostingChars bounds the posting text sent to the model.
const maxPostingChars = 12000

// ErrEmptyPosting is returned by ExtractJob when the posting has no text.
var ErrEmptyPosting = errors.New("job posting is empty")

type extracted struct {
	Company     string `json:"company"`
	Role        string `json:"role"`
	Location    string `json:"location"`
	Salary      string `json:"salary"`
	Description string `json:"description"`
}

const extractPrompt = `You extract structured data from job postings. Return the company name, the job title, the location (or "Remote"), the salary range exactly as written (empty if absent), and a concise description of responsibilities and requirements under 150 words. Output only JSON matching the schema.`

// ExtractJob turns a pasted posting, plain text or HTML, into a Job ready
// for jobs.Store.Add. The job is not persisted.
func (s *Service) ExtractJob(ctx context.Context, posting string) (jobs.Job, error) {
	text := PlainText(posting)
	if text == "" {
		return jobs.Job{}, ErrEmptyPosting
	}
	if len(text) > maxPostingChars {
		text = text[:maxPostingChars]
	}

	schema := &ollama.Schema{
		Type: "object",
		Properties: map[string]ollama.SchemaProperty{
			"company":     {Type: "string"},
			"role":        {Type: "string"},
			"location":    {Type: "string"},
			"salary":      {Type: "string"},
			"description": {Type: "string"},
		},
		Required: []string{"company", "role", "location", "salary", "description"},
	}

	var e extracted
	if err := s.structured(ctx, extractPrompt, text, schema, &e); err != nil {
		return jobs.Job{}, fmt.Errorf("extracting job: %w", err)
	}
	if strings.TrimSpace(e.Company) == "" || strings.TrimSpace(e.Role) == "" {
		return jobs.Job{}, fmt.Errorf("extracting job: %w: company and role are required", ErrMalformedOutput)
	}
	return jobs.Job{
		Company:     strings.TrimSpace(e.Company),
		Role:        strings.TrimSpace(e.Role),
		Location:    strings.TrimSpace(e.Location),
		Salary:      strings.TrimSpace(e.Salary),
		Description: strings.TrimSpace(e.Description),
		Status:      jobs.StatusApplied,
		Origin:      jobs.OriginApplication,
	}, nil
}

// PlainText returns the visible text of an HTML fragment, one block per
// line. Input without markup is returned trimmed.
func PlainText(s string) string {
	if !strings.Contains(s, "<") {
		return collapse(s)
	}

	var sb strings.Builder
	skip := 0
	z := html.NewTokenizer(strings.NewReader(s))
	for {
		switch z.Next() {
		case html.ErrorToken:
			if z.Err() != io.EOF {
				return collapse(s)
			}
			return collapse(sb.String())
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			a := atom.Lookup(name)
			if a == atom.Script || a == atom.Style || a == atom.Noscript {
				skip++
			}
			if block(a) {
				sb.WriteByte('\n')
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			a := atom.Lookup(name)
			if (a == atom.Script || a == atom.Style || a == atom.Noscript) && skip > 0 {
				skip--
			}
			if block(a) {
				sb.WriteByte('\n')
			}
		case html.TextToken:
			if skip == 0 {
				sb.Write(z.Text())
			}
		}
	}
}

func block(a atom.Atom) bool {
	switch a {
	case atom.P, atom.Div, atom.Br, atom.Li, atom.Ul, atom.Ol, atom.Tr,
		atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6,
		atom.Section, atom.Article, atom.Header, atom.Footer:
		return true
	}
	return false
}

// collapse normalises whitespace within lines and drops blank lines.
func collapse(s string) string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if f := strings.Fields(line); len(f) > 0 {
			out = append(out, strings.Join(f, " "))
		}
	}
	return strings.Join(out, "\n")
}
