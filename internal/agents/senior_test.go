package agents

import (
	"context"
	"strings"
	"testing"

	"github.com/Arshim28/nbfc-system/internal/agent"
	"github.com/Arshim28/nbfc-system/internal/audit"
	"github.com/Arshim28/nbfc-system/internal/genai"
)

func fullLog() *audit.Log {
	log := audit.New()
	log.Record("resource_pooler", "document_harvest", map[string]any{"pdf_analyses": []map[string]any{{"summary": "docs"}}}, audit.StatusCompleted, "")
	log.Record("resource_pooler_checker", "ingestion_qa", map[string]any{"verified": true}, audit.StatusVerified, "")
	log.Record("analyst", "qualitative_quantitative_inquiry", map[string]any{"avg_confidence": 4.0}, audit.StatusCompleted, "")
	log.Record("associate", "financial_ratio_analysis", map[string]any{"red_flag_count": 1}, audit.StatusCompleted, "")
	log.Record("sector_specialist", "sector_research", map[string]any{"sector_outlook": "stable"}, audit.StatusCompleted, "")
	return log
}

func TestSeniorWritesMemorandum(t *testing.T) {
	gen := genai.GenerateFunc(func(ctx context.Context, req genai.Request) (*genai.Result, error) {
		if !strings.Contains(req.Prompt, "Aurelia Gold Finance") {
			t.Errorf("prompt does not name the company")
		}
		if !strings.Contains(req.Prompt, "=== document_harvest ===") {
			t.Errorf("prompt does not include stage outputs")
		}
		return &genai.Result{Text: "IC MEMORANDUM\n\nRecommendation: proceed with conditions."}, nil
	})

	payload, err := NewSenior(gen, "Aurelia Gold Finance").Execute(context.Background(), fullLog(), agent.Params{})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got := payload.String("ic_memorandum"); !strings.Contains(got, "Recommendation") {
		t.Errorf("ic_memorandum = %q", got)
	}
	if got := payload.Int("stages_synthesized"); got != 5 {
		t.Errorf("stages_synthesized = %d, want 5", got)
	}
}

func TestSeniorRequiresEnoughStages(t *testing.T) {
	log := audit.New()
	log.Record("resource_pooler", "document_harvest", map[string]any{"x": 1}, audit.StatusCompleted, "")
	log.Record("analyst", "qualitative_quantitative_inquiry", map[string]any{"x": 1}, audit.StatusCompleted, "")
	log.Record("associate", "financial_ratio_analysis", map[string]any{"x": 1}, audit.StatusCompleted, "")

	gen := genai.NewStub("memo")
	if _, err := NewSenior(gen, "Co").Execute(context.Background(), log, agent.Params{}); err == nil {
		t.Fatal("expected error with only three stages of data")
	}
}

func TestSeniorIgnoresFailedStageData(t *testing.T) {
	log := fullLog()
	// A later failed attempt must not contribute data.
	log.Record("associate", "financial_ratio_analysis", map[string]any{"bad": true}, audit.StatusFailed, "timeout")

	gen := genai.GenerateFunc(func(ctx context.Context, req genai.Request) (*genai.Result, error) {
		if strings.Contains(req.Prompt, `"bad"`) {
			t.Errorf("failed stage data leaked into synthesis prompt")
		}
		return &genai.Result{Text: "memo"}, nil
	})
	if _, err := NewSenior(gen, "Co").Execute(context.Background(), log, agent.Params{}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
}

func TestRegistryRoster(t *testing.T) {
	roster := Build(genai.NewStub("{}"), nil, "Co")
	for _, name := range []string{"resource_pooler", "resource_pooler_checker", "analyst",
		"analyst_checker", "associate", "sector_specialist", "senior"} {
		a, ok := roster[name]
		if !ok {
			t.Errorf("roster missing %q", name)
			continue
		}
		if a.Name() != name {
			t.Errorf("agent %q reports name %q", name, a.Name())
		}
	}

	if _, err := Resolve(roster, []string{"analyst", "nonexistent"}); err == nil {
		t.Error("Resolve should fail on unknown agent name")
	}
	resolved, err := Resolve(roster, []string{"analyst", "senior"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(resolved) != 2 {
		t.Errorf("resolved = %d agents, want 2", len(resolved))
	}
}
