package agents

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/Arshim28/nbfc-system/internal/agent"
	"github.com/Arshim28/nbfc-system/internal/audit"
	"github.com/Arshim28/nbfc-system/internal/genai"
	"github.com/Arshim28/nbfc-system/internal/prompt"
)

// sectorQueries is the research plan for the gold-loan NBFC sector. Each
// query runs as a separate search-grounded call.
var sectorQueries = []string{
	"RBI regulatory changes affecting gold loan NBFCs in the last twelve months",
	"gold price trend and outlook impact on gold loan collateral values India",
	"gold loan NBFC sector AUM growth rates and market share shifts",
	"bank competition in gold loans versus NBFC market share",
	"gold loan NBFC funding costs and credit spreads recent trends",
	"RBI loan-to-value cap rules for gold loans current status",
	"gold loan auction trends and recovery rates NBFC sector",
	"digital gold lending and fintech disruption in Indian gold loans",
	"asset quality trends gold loan NBFCs GNPA movements",
	"credit rating actions on Indian gold loan NBFCs recent",
}

// sectorConcurrency bounds parallel search calls.
const sectorConcurrency = 3

// SectorSpecialist researches the operating environment through search
// grounded generation calls and synthesizes the findings into a sector view.
type SectorSpecialist struct {
	gen    genai.Generator
	logger *slog.Logger
}

func NewSectorSpecialist(gen genai.Generator) *SectorSpecialist {
	return &SectorSpecialist{gen: gen, logger: slog.Default().With("agent", "sector_specialist")}
}

func (s *SectorSpecialist) Name() string { return "sector_specialist" }

func (s *SectorSpecialist) Execute(ctx context.Context, log *audit.Log, params agent.Params) (agent.Payload, error) {
	findings := make([]map[string]any, len(sectorQueries))
	var (
		mu     sync.Mutex
		failed int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(sectorConcurrency)
	for i, query := range sectorQueries {
		i, query := i, query
		g.Go(func() error {
			p, perr := prompt.Build(prompt.SectorQuery, params.DataDir, prompt.Vars{"topic": query})
			if perr != nil {
				return perr
			}
			res, err := s.gen.Generate(gctx, genai.Request{
				Prompt:      p,
				Temperature: 0.3,
				MaxTokens:   2048,
				Search:      true,
			})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				s.logger.Warn("sector query failed", "query", query, "error", err)
				failed++
				findings[i] = map[string]any{"query": query, "error": err.Error()}
				return nil
			}
			findings[i] = map[string]any{"query": query, "finding": res.Text}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	answered := len(sectorQueries) - failed
	if answered == 0 {
		return nil, fmt.Errorf("all %d sector queries failed", len(sectorQueries))
	}

	synthesis, err := s.synthesize(ctx, findings, params.DataDir)
	if err != nil {
		return nil, fmt.Errorf("synthesize sector view: %w", err)
	}

	s.logger.Info("sector research complete", "queries", len(sectorQueries), "failed", failed)

	return agent.Payload{
		"research_findings": findings,
		"sector_outlook":    synthesis,
		"queries_total":     len(sectorQueries),
		"queries_failed":    failed,
	}, nil
}

func (s *SectorSpecialist) synthesize(ctx context.Context, findings []map[string]any, dataDir string) (string, error) {
	var sb strings.Builder
	for _, f := range findings {
		text, ok := f["finding"].(string)
		if !ok {
			continue
		}
		fmt.Fprintf(&sb, "## %s\n%s\n\n", f["query"], text)
	}

	p, err := prompt.Build(prompt.SectorSynthesis, dataDir, prompt.Vars{"notes": sb.String()})
	if err != nil {
		return "", err
	}
	res, err := s.gen.Generate(ctx, genai.Request{
		Prompt:      p,
		Temperature: 0.3,
		MaxTokens:   4096,
	})
	if err != nil {
		return "", err
	}
	return res.Text, nil
}
