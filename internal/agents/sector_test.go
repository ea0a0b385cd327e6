package agents

import (
	"context"
	"strings"
	"testing"

	"github.com/Arshim28/nbfc-system/internal/agent"
	"github.com/Arshim28/nbfc-system/internal/audit"
	"github.com/Arshim28/nbfc-system/internal/genai"
)

func TestSectorResearchRunsAllQueries(t *testing.T) {
	gen := genai.GenerateFunc(func(ctx context.Context, req genai.Request) (*genai.Result, error) {
		if req.Search {
			return &genai.Result{Text: "finding"}, nil
		}
		return &genai.Result{Text: "sector outlook"}, nil
	})

	payload, err := NewSectorSpecialist(gen).Execute(context.Background(), audit.New(), agent.Params{})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got := payload.Int("queries_total"); got != len(sectorQueries) {
		t.Errorf("queries_total = %d, want %d", got, len(sectorQueries))
	}
	if got := payload.Int("queries_failed"); got != 0 {
		t.Errorf("queries_failed = %d, want 0", got)
	}
	if got := payload.Len("research_findings"); got != len(sectorQueries) {
		t.Errorf("research_findings = %d, want %d", got, len(sectorQueries))
	}
	if payload.String("sector_outlook") != "sector outlook" {
		t.Errorf("sector_outlook = %q", payload.String("sector_outlook"))
	}
}

func TestSectorResearchDegradesOnQueryFailure(t *testing.T) {
	gen := genai.GenerateFunc(func(ctx context.Context, req genai.Request) (*genai.Result, error) {
		if req.Search && strings.Contains(req.Prompt, "auction") {
			return nil, &genai.StatusError{StatusCode: 500, Status: "500", ErrorMessage: "boom"}
		}
		return &genai.Result{Text: "ok"}, nil
	})

	payload, err := NewSectorSpecialist(gen).Execute(context.Background(), audit.New(), agent.Params{})
	if err != nil {
		t.Fatalf("Execute: %v, single-query failure should degrade not fail", err)
	}
	if got := payload.Int("queries_failed"); got != 1 {
		t.Errorf("queries_failed = %d, want 1", got)
	}
	findings := payload["research_findings"].([]map[string]any)
	var recorded bool
	for _, f := range findings {
		if _, ok := f["error"]; ok {
			recorded = true
		}
	}
	if !recorded {
		t.Error("failed query not recorded in findings")
	}
}
