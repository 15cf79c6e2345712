package tools

import (
	"context"
	"fmt"

	"github.com/kalambet/jobdesk/internal/jobs"
	"github.com/kalambet/jobdesk/internal/ollama"
)

// CoverLetter is a generated letter.
type CoverLetter struct {
	Text string `json:"text"`
}

const coverLetterPrompt = `You write tailored, specific cover letters. Use the candidate's resume to connect concrete experience to the role. Keep it under 350 words, no placeholders, no markdown. Output only the letter.`

// CoverLetter drafts a cover letter for j.
func (s *Service) CoverLetter(ctx context.Context, j jobs.Job) (CoverLetter, error) {
	out, err := s.text(ctx, coverLetterPrompt, describe(j))
	if err != nil {
		return CoverLetter{}, fmt.Errorf("cover letter: %w", err)
	}
	if out == "" {
		return CoverLetter{}, fmt.Errorf("cover letter: %w", ErrMalformedOutput)
	}
	return CoverLetter{Text: out}, nil
}

// InterviewGuide prepares the candidate for one interview.
type InterviewGuide struct {
	Questions      []PracticeQuestion `json:"questions"`
	Topics         []string           `json:"topics"`
	QuestionsToAsk []string           `json:"questions_to_ask"`
}

// PracticeQuestion is a likely interview question with a tip for answering.
type PracticeQuestion struct {
	Question string `json:"question"`
	Tip      string `json:"tip"`
}

const interviewGuidePrompt = `You are an interview coach. Produce a preparation guide for the role: likely questions with a short answering tip each (grounded in the candidate's resume), topics to review, and smart questions to ask the interviewer. Output only JSON matching the schema.`

// InterviewGuide prepares an interview guide for j.
func (s *Service) InterviewGuide(ctx context.Context, j jobs.Job) (InterviewGuide, error) {
	schema := &ollama.Schema{
		Type: "object",
		Properties: map[string]ollama.SchemaProperty{
			"questions": {
				Type: "array",
				Items: &ollama.SchemaProperty{
					Type: "object",
					Properties: map[string]ollama.SchemaProperty{
						"question": {Type: "string"},
						"tip":      {Type: "string"},
					},
				},
			},
			"topics":           stringArray("Topics to review before the interview"),
			"questions_to_ask": stringArray("Questions for the interviewer"),
		},
		Required: []string{"questions", "topics", "questions_to_ask"},
	}
	var g InterviewGuide
	if err := s.structured(ctx, interviewGuidePrompt, describe(j), schema, &g); err != nil {
		return InterviewGuide{}, fmt.Errorf("interview guide: %w", err)
	}
	if len(g.Questions) == 0 {
		return InterviewGuide{}, fmt.Errorf("interview guide: %w: no questions", ErrMalformedOutput)
	}
	return g, nil
}

// NegotiationScript is a salary negotiation plan.
type NegotiationScript struct {
	Opening       string   `json:"opening"`
	TalkingPoints []string `json:"talking_points"`
	CounterOffer  string   `json:"counter_offer"`
	WalkAway      string   `json:"walk_away"`
}

const negotiationPrompt = `You are a compensation negotiation coach. Write a script for negotiating this offer: an opening line, talking points backed by the candidate's experience, a concrete counter-offer, and a walk-away position. Output only JSON matching the schema.`

// NegotiationScript drafts a negotiation script for j.
func (s *Service) NegotiationScript(ctx context.Context, j jobs.Job) (NegotiationScript, error) {
	schema := &ollama.Schema{
		Type: "object",
		Properties: map[string]ollama.SchemaProperty{
			"opening":        {Type: "string"},
			"talking_points": stringArray(""),
			"counter_offer":  {Type: "string"},
			"walk_away":      {Type: "string"},
		},
		Required: []string{"opening", "talking_points", "counter_offer", "walk_away"},
	}
	var n NegotiationScript
	if err := s.structured(ctx, negotiationPrompt, describe(j), schema, &n); err != nil {
		return NegotiationScript{}, fmt.Errorf("negotiation script: %w", err)
	}
	return n, nil
}

// Severity grades a red flag.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// RedFlag is one concern found in a posting.
type RedFlag struct {
	Flag        string   `json:"flag"`
	Severity    Severity `json:"severity"`
	Explanation string   `json:"explanation"`
}

// RedFlagReport lists concerns about a job.
type RedFlagReport struct {
	Flags   []RedFlag `json:"flags"`
	Overall string    `json:"overall"`
}

const redFlagsPrompt = `You review job postings for warning signs: unrealistic requirements, vague compensation, signs of high turnover, scope creep, unpaid work. Report each concern with a severity of low, medium or high. An empty list is fine when nothing stands out. Output only JSON matching the schema.`

// RedFlags analyses j for warning signs.
func (s *Service) RedFlags(ctx context.Context, j jobs.Job) (RedFlagReport, error) {
	schema := &ollama.Schema{
		Type: "object",
		Properties: map[string]ollama.SchemaProperty{
			"flags": {
				Type: "array",
				Items: &ollama.SchemaProperty{
					Type: "object",
					Properties: map[string]ollama.SchemaProperty{
						"flag":        {Type: "string"},
						"severity":    {Type: "string", Enum: []string{"low", "medium", "high"}},
						"explanation": {Type: "string"},
					},
				},
			},
			"overall": {Type: "string"},
		},
		Required: []string{"flags", "overall"},
	}
	var r RedFlagReport
	if err := s.structured(ctx, redFlagsPrompt, describe(j), schema, &r); err != nil {
		return RedFlagReport{}, fmt.Errorf("red flags: %w", err)
	}
	for i, f := range r.Flags {
		switch f.Severity {
		case SeverityLow, SeverityMedium, SeverityHigh:
		default:
			r.Flags[i].Severity = SeverityMedium
		}
	}
	return r, nil
}

// ATSReport estimates how well the resume matches a posting.
type ATSReport struct {
	Score           int      `json:"score"`
	MatchedKeywords []string `json:"matched_keywords"`
	MissingKeywords []string `json:"missing_keywords"`
	Suggestions     []string `json:"suggestions"`
}

const atsPrompt = `You are an applicant tracking system analyst. Compare the candidate's resume to the job description. Score the match from 0 to 100, list matched and missing keywords, and suggest concrete resume edits. Output only JSON matching the schema.`

// ATSAnalysis scores the resume against j.
func (s *Service) ATSAnalysis(ctx context.Context, j jobs.Job) (ATSReport, error) {
	schema := &ollama.Schema{
		Type: "object",
		Properties: map[string]ollama.SchemaProperty{
			"score":            {Type: "integer", Description: "0-100"},
			"matched_keywords": stringArray(""),
			"missing_keywords": stringArray(""),
			"suggestions":      stringArray(""),
		},
		Required: []string{"score", "matched_keywords", "missing_keywords", "suggestions"},
	}
	var r ATSReport
	if err := s.structured(ctx, atsPrompt, describe(j), schema, &r); err != nil {
		return ATSReport{}, fmt.Errorf("ats analysis: %w", err)
	}
	if r.Score < 0 || r.Score > 100 {
		return ATSReport{}, fmt.Errorf("ats analysis: %w: score %d out of range", ErrMalformedOutput, r.Score)
	}
	return r, nil
}

// NetworkingDraft is an outreach message.
type NetworkingDraft struct {
	Recipient string `json:"recipient"`
	Subject   string `json:"subject"`
	Body      string `json:"body"`
}

// NetworkingDrafts holds outreach messages for a job.
type NetworkingDrafts struct {
	Drafts []NetworkingDraft `json:"drafts"`
}

const networkingPrompt = `You help candidates network. Draft up to three short outreach messages for this role: one to a recruiter, one to a hiring manager, one to a peer on the team. Keep each under 120 words. Output only JSON matching the schema.`

// NetworkingDrafts drafts outreach messages for j.
func (s *Service) NetworkingDrafts(ctx context.Context, j jobs.Job) (NetworkingDrafts, error) {
	schema := &ollama.Schema{
		Type: "object",
		Properties: map[string]ollama.SchemaProperty{
			"drafts": {
				Type: "array",
				Items: &ollama.SchemaProperty{
					Type: "object",
					Properties: map[string]ollama.SchemaProperty{
						"recipient": {Type: "string"},
						"subject":   {Type: "string"},
						"body":      {Type: "string"},
					},
				},
			},
		},
		Required: []string{"drafts"},
	}
	var d NetworkingDrafts
	if err := s.structured(ctx, networkingPrompt, describe(j), schema, &d); err != nil {
		return NetworkingDrafts{}, fmt.Errorf("networking drafts: %w", err)
	}
	return d, nil
}

// RoadmapStep is one skill to build.
type RoadmapStep struct {
	Skill     string   `json:"skill"`
	Why       string   `json:"why"`
	Resources []string `json:"resources"`
	Weeks     int      `json:"weeks"`
}

// LearningRoadmap closes the gap between the resume and a role.
type LearningRoadmap struct {
	Steps []RoadmapStep `json:"steps"`
}

const roadmapPrompt = `You are a career mentor. Identify the skills the candidate lacks for this role and lay out an ordered learning plan with resources and a rough time estimate in weeks. Output only JSON matching the schema.`

// LearningRoadmap plans skill growth for j.
func (s *Service) LearningRoadmap(ctx context.Context, j jobs.Job) (LearningRoadmap, error) {
	schema := &ollama.Schema{
		Type: "object",
		Properties: map[string]ollama.SchemaProperty{
			"steps": {
				Type: "array",
				Items: &ollama.SchemaProperty{
					Type: "object",
					Properties: map[string]ollama.SchemaProperty{
						"skill":     {Type: "string"},
						"why":       {Type: "string"},
						"resources": stringArray(""),
						"weeks":     {Type: "integer"},
					},
				},
			},
		},
		Required: []string{"steps"},
	}
	var r LearningRoadmap
	if err := s.structured(ctx, roadmapPrompt, describe(j), schema, &r); err != nil {
		return LearningRoadmap{}, fmt.Errorf("learning roadmap: %w", err)
	}
	return r, nil
}
