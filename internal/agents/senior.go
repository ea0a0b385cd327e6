package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Arshim28/nbfc-system/internal/agent"
	"github.com/Arshim28/nbfc-system/internal/audit"
	"github.com/Arshim28/nbfc-system/internal/genai"
	"github.com/Arshim28/nbfc-system/internal/prompt"
)

// minStagesForSynthesis is how many completed stages the memorandum needs
// behind it. Below this the evidence base is too thin to write credibly.
const minStagesForSynthesis = 4

// Senior writes the investment committee memorandum from everything the
// earlier stages produced.
type Senior struct {
	gen     genai.Generator
	company string
	logger  *slog.Logger
}

func NewSenior(gen genai.Generator, company string) *Senior {
	return &Senior{gen: gen, company: company, logger: slog.Default().With("agent", "senior")}
}

func (s *Senior) Name() string { return "senior" }

func (s *Senior) Execute(ctx context.Context, log *audit.Log, params agent.Params) (agent.Payload, error) {
	byStage := collectStageData(log)
	if len(byStage) < minStagesForSynthesis {
		return nil, fmt.Errorf("only %d stages produced data, need at least %d for synthesis",
			len(byStage), minStagesForSynthesis)
	}

	var sb strings.Builder
	for _, stage := range stageOrder(log) {
		data, ok := byStage[stage]
		if !ok {
			continue
		}
		b, err := json.MarshalIndent(data, "", "  ")
		if err != nil {
			continue
		}
		fmt.Fprintf(&sb, "=== %s ===\n%s\n\n", stage, b)
	}

	p, err := prompt.Build(prompt.Memorandum, params.DataDir, prompt.Vars{
		"company": s.company,
		"stages":  sb.String(),
	})
	if err != nil {
		return nil, err
	}
	res, err := s.gen.Generate(ctx, genai.Request{
		Prompt:      p,
		Temperature: 0.4,
		MaxTokens:   8192,
	})
	if err != nil {
		return nil, fmt.Errorf("generate memorandum: %w", err)
	}
	if strings.TrimSpace(res.Text) == "" {
		return nil, fmt.Errorf("generated memorandum is empty")
	}

	s.logger.Info("memorandum complete", "stages_synthesized", len(byStage), "length", len(res.Text))

	return agent.Payload{
		"ic_memorandum":      res.Text,
		"stages_synthesized": len(byStage),
		"company":            s.company,
	}, nil
}

// collectStageData maps each stage to its most recent successful payload.
func collectStageData(log *audit.Log) map[string]map[string]any {
	out := make(map[string]map[string]any)
	for _, e := range log.Entries() {
		if e.Status.IsSuccess() && e.Data != nil {
			out[e.Stage] = e.Data
		}
	}
	return out
}

// stageOrder returns stage names in first-seen order so the synthesis prompt
// follows pipeline order.
func stageOrder(log *audit.Log) []string {
	seen := make(map[string]bool)
	var order []string
	for _, e := range log.Entries() {
		if !seen[e.Stage] {
			seen[e.Stage] = true
			order = append(order, e.Stage)
		}
	}
	return order
}
