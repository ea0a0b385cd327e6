package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/Arshim28/nbfc-system/internal/agent"
	"github.com/Arshim28/nbfc-system/internal/audit"
	"github.com/Arshim28/nbfc-system/internal/genai"
	"github.com/Arshim28/nbfc-system/internal/prompt"
)

// questionCategories is the diligence battery the analyst runs against the
// harvested documents. Order is the presentation order in reports.
var questionCategories = []struct {
	Category  string
	Questions []string
}{
	{
		Category: "business_model",
		Questions: []string{
			"What are the primary lending products and their share of assets under management?",
			"How concentrated is the loan book by geography and branch network?",
			"What is the average ticket size and tenure of the core loan product?",
		},
	},
	{
		Category: "asset_quality",
		Questions: []string{
			"What are the reported gross and net NPA levels and how have they trended?",
			"What share of the book is in stage 3 and what coverage is held against it?",
			"Are there signs of restructured or written-off loans re-emerging as stress?",
		},
	},
	{
		Category: "liquidity_funding",
		Questions: []string{
			"What is the funding mix across bank lines, NCDs, and securitization?",
			"Are there asset-liability mismatches in the under-one-year buckets?",
			"What undrawn sanctioned lines and liquid assets back near-term obligations?",
		},
	},
	{
		Category: "profitability",
		Questions: []string{
			"What are the net interest margin and spread trends over recent periods?",
			"How has the cost-to-income ratio evolved and what drives operating costs?",
			"What is the return on assets decomposition across yield, cost, and credit cost?",
		},
	},
	{
		Category: "governance_management",
		Questions: []string{
			"What is the composition of the board and any auditor or rating changes?",
			"Are there related-party exposures or pledged promoter holdings of note?",
		},
	},
	{
		Category: "growth_strategy",
		Questions: []string{
			"What growth is management guiding for and what capital supports it?",
			"What new products or segments is the company entering and at what risk?",
		},
	},
}

// analystConcurrency bounds parallel question calls against the service.
const analystConcurrency = 4

// answer is one scored response to a diligence question.
type answer struct {
	Question    string   `json:"question"`
	Answer      string   `json:"answer"`
	Confidence  float64  `json:"confidence"`
	KeyFindings []string `json:"key_findings"`
	RiskFlags   []string `json:"risk_flags"`
}

// Analyst runs the diligence question battery concurrently and aggregates
// completion rate, confidence, findings, and risk flags. Individual question
// failures degrade the completion rate rather than failing the stage.
type Analyst struct {
	gen    genai.Generator
	logger *slog.Logger
}

func NewAnalyst(gen genai.Generator) *Analyst {
	return &Analyst{gen: gen, logger: slog.Default().With("agent", "analyst")}
}

func (a *Analyst) Name() string { return "analyst" }

func (a *Analyst) Execute(ctx context.Context, log *audit.Log, params agent.Params) (agent.Payload, error) {
	harvest, ok := log.AgentData("resource_pooler")
	if !ok {
		return nil, fmt.Errorf("no harvested documents to question")
	}
	docContext := summarizeHarvest(agent.Payload(harvest))

	type task struct {
		category string
		question string
	}
	var tasks []task
	for _, cat := range questionCategories {
		for _, q := range cat.Questions {
			tasks = append(tasks, task{category: cat.Category, question: q})
		}
	}

	var (
		mu     sync.Mutex
		byCat  = make(map[string][]answer)
		failed int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(analystConcurrency)
	for _, tk := range tasks {
		tk := tk
		g.Go(func() error {
			ans, err := a.ask(gctx, docContext, tk.question, params.DataDir)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				a.logger.Warn("question failed", "category", tk.category, "error", err)
				failed++
				return nil
			}
			byCat[tk.category] = append(byCat[tk.category], *ans)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	answered := len(tasks) - failed
	if answered == 0 {
		return nil, fmt.Errorf("all %d diligence questions failed", len(tasks))
	}

	var (
		confidenceSum float64
		keyFindings   []string
		riskFlags     []string
	)
	results := make(map[string]any, len(byCat))
	for cat, answers := range byCat {
		sort.Slice(answers, func(i, j int) bool { return answers[i].Question < answers[j].Question })
		var catAny []map[string]any
		for _, ans := range answers {
			confidenceSum += ans.Confidence
			keyFindings = append(keyFindings, ans.KeyFindings...)
			riskFlags = append(riskFlags, ans.RiskFlags...)
			catAny = append(catAny, map[string]any{
				"question":     ans.Question,
				"answer":       ans.Answer,
				"confidence":   ans.Confidence,
				"key_findings": ans.KeyFindings,
				"risk_flags":   ans.RiskFlags,
			})
		}
		results[cat] = catAny
	}

	completionRate := float64(answered) / float64(len(tasks))
	avgConfidence := confidenceSum / float64(answered)
	a.logger.Info("question battery complete",
		"answered", answered, "failed", failed,
		"completion_rate", completionRate, "avg_confidence", avgConfidence)

	return agent.Payload{
		"qa_results":       results,
		"completion_rate":  completionRate,
		"avg_confidence":   avgConfidence,
		"key_findings":     keyFindings,
		"risk_flags":       riskFlags,
		"questions_total":  len(tasks),
		"questions_failed": failed,
	}, nil
}

func (a *Analyst) ask(ctx context.Context, docContext, question, dataDir string) (*answer, error) {
	p, err := prompt.Build(prompt.AnalystQuestion, dataDir, prompt.Vars{
		"context":  docContext,
		"question": question,
	})
	if err != nil {
		return nil, err
	}
	res, err := a.gen.Generate(ctx, genai.Request{
		Prompt:      p,
		Temperature: 0.2,
		MaxTokens:   2048,
		JSONSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"answer":       map[string]any{"type": "string"},
				"confidence":   map[string]any{"type": "number"},
				"key_findings": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
				"risk_flags":   map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			},
			"required": []string{"answer", "confidence"},
		},
	})
	if err != nil {
		return nil, err
	}

	var ans answer
	if err := genai.DecodeJSON(res.Text, &ans); err != nil {
		return nil, err
	}
	ans.Question = question
	if ans.Confidence < 1 {
		ans.Confidence = 1
	}
	if ans.Confidence > 5 {
		ans.Confidence = 5
	}
	return &ans, nil
}

// summarizeHarvest flattens harvest analyses into a prompt-sized context
// block.
func summarizeHarvest(harvest agent.Payload) string {
	type entry struct {
		Source  string `json:"source_file"`
		Type    string `json:"document_type"`
		Summary string `json:"summary"`
		Metrics any    `json:"key_metrics,omitempty"`
	}
	var entries []entry

	collect := func(key string) {
		raw, ok := harvest[key]
		if !ok {
			return
		}
		b, err := json.Marshal(raw)
		if err != nil {
			return
		}
		var list []entry
		if err := json.Unmarshal(b, &list); err != nil {
			return
		}
		entries = append(entries, list...)
	}
	collect("pdf_analyses")
	collect("csv_analyses")

	b, _ := json.MarshalIndent(entries, "", "  ")
	return string(b)
}
