package tools

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/kalambet/jobdesk/internal/jobs"
	"github.com/kalambet/jobdesk/internal/ollama"
)

// OfferScore is the model's assessment of one offer.
type OfferScore struct {
	JobID string   `json:"job_id"`
	Score int      `json:"score"`
	Pros  []string `json:"pros"`
	Cons  []string `json:"cons"`
}

// Comparison ranks offers, best first.
type Comparison struct {
	Ranking        []OfferScore `json:"ranking"`
	Recommendation string       `json:"recommendation"`
}

const comparePrompt = `You help candidates choose between job offers. Score every offer from 0 to 100 considering compensation, growth, location and fit with the candidate's background, with pros and cons for each. Refer to offers only by the id given. Output only JSON matching the schema.`

// Offers returns the jobs eligible for comparison: inbound offers and
// applications that reached the Offer stage.
func Offers(list []jobs.Job) []jobs.Job {
	var out []jobs.Job
	for _, j := range list {
		if j.Origin == jobs.OriginOffer || j.Status == jobs.StatusOffer {
			out = append(out, j)
		}
	}
	return out
}

// CompareOffers ranks the offers in list. Scores for ids the model
// invented are dropped.
func (s *Service) CompareOffers(ctx context.Context, list []jobs.Job) (Comparison, error) {
	offers := Offers(list)
	if len(offers) < 2 {
		return Comparison{}, ErrNotEnoughOffers
	}

	known := make(map[string]bool, len(offers))
	var sb strings.Builder
	for _, j := range offers {
		known[j.ID] = true
		fmt.Fprintf(&sb, "Offer id=%s\n%s\n", j.ID, describe(j))
	}

	schema := &ollama.Schema{
		Type: "object",
		Properties: map[string]ollama.SchemaProperty{
			"ranking": {
				Type: "array",
				Items: &ollama.SchemaProperty{
					Type: "object",
					Properties: map[string]ollama.SchemaProperty{
						"job_id": {Type: "string"},
						"score":  {Type: "integer"},
						"pros":   stringArray(""),
						"cons":   stringArray(""),
					},
				},
			},
			"recommendation": {Type: "string"},
		},
		Required: []string{"ranking", "recommendation"},
	}

	var c Comparison
	if err := s.structured(ctx, comparePrompt, sb.String(), schema, &c); err != nil {
		return Comparison{}, fmt.Errorf("comparing offers: %w", err)
	}

	ranked := c.Ranking[:0]
	for _, r := range c.Ranking {
		if known[r.JobID] {
			ranked = append(ranked, r)
		}
	}
	if len(ranked) == 0 {
		return Comparison{}, fmt.Errorf("comparing offers: %w: no known offer ids", ErrMalformedOutput)
	}
	sort.SliceStable(ranked, func(a, b int) bool { return ranked[a].Score > ranked[b].Score })
	c.Ranking = ranked
	return c, nil
}
