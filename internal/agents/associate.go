package agents

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/Arshim28/nbfc-system/internal/agent"
	"github.com/Arshim28/nbfc-system/internal/audit"
	"github.com/Arshim28/nbfc-system/internal/genai"
	"github.com/Arshim28/nbfc-system/internal/prompt"
)

// Check outcome flags.
const (
	flagRed     = "RED"
	flagGreen   = "GREEN"
	flagDataGap = "DATA_GAP"
)

// Associate extracts financial metrics from the prior stages and runs the
// ratio battery against peer benchmarks. Metric extraction goes through the
// generation service; every ratio and flag is computed locally so the numbers
// in the memorandum are reproducible.
type Associate struct {
	gen    genai.Generator
	logger *slog.Logger
}

func NewAssociate(gen genai.Generator) *Associate {
	return &Associate{gen: gen, logger: slog.Default().With("agent", "associate")}
}

func (a *Associate) Name() string { return "associate" }

func (a *Associate) Execute(ctx context.Context, log *audit.Log, params agent.Params) (agent.Payload, error) {
	harvest, ok := log.AgentData("resource_pooler")
	if !ok {
		return nil, fmt.Errorf("no harvested documents to extract metrics from")
	}

	metrics, err := a.extractMetrics(ctx, agent.Payload(harvest), params.DataDir)
	if err != nil {
		return nil, fmt.Errorf("extract metrics: %w", err)
	}

	analyses := runRatioBattery(metrics)

	var red, green int
	for _, ra := range analyses {
		switch ra["flag"] {
		case flagRed:
			red++
		case flagGreen:
			green++
		}
	}
	a.logger.Info("ratio battery complete",
		"checks", len(analyses), "red", red, "green", green)

	return agent.Payload{
		"ratio_analyses":   analyses,
		"red_flag_count":   red,
		"green_flag_count": green,
		"metrics_used":     metricsMap(metrics),
		"peer_benchmarks":  peerBenchmarks,
	}, nil
}

func (a *Associate) extractMetrics(ctx context.Context, harvest agent.Payload, dataDir string) (*FinancialMetrics, error) {
	p, err := prompt.Build(prompt.MetricExtraction, dataDir, prompt.Vars{
		"analyses": summarizeHarvest(harvest),
	})
	if err != nil {
		return nil, err
	}
	res, err := a.gen.Generate(ctx, genai.Request{
		Prompt:      p,
		Temperature: 0.0,
		MaxTokens:   2048,
		JSONSchema:  financialMetricsSchema,
	})
	if err != nil {
		return nil, err
	}

	var metrics FinancialMetrics
	if err := genai.DecodeJSON(res.Text, &metrics); err != nil {
		return nil, err
	}
	return &metrics, nil
}

// runRatioBattery computes every check of the battery. The result order is
// stable: leverage, asset quality, coverage, debt service, earnings, cost,
// stress, then red-flag screens.
func runRatioBattery(m *FinancialMetrics) []map[string]any {
	return []map[string]any{
		checkDebtToAUM(m),
		checkGNPAConsistency(m),
		checkStage3Coverage(m),
		checkInterestCoverage(m),
		checkROADecomposition(m),
		checkCostToIncome(m),
		checkSensitivity(m),
		checkAccountingRedFlags(m),
	}
}

func checkDebtToAUM(m *FinancialMetrics) map[string]any {
	if m.TotalDebt == 0 || m.AUM == 0 {
		return gapResult("debt_to_aum", "total debt or AUM not disclosed")
	}
	ratio := m.TotalDebt / m.AUM
	flag := flagGreen
	if ratio > peerBenchmarks["debt_to_aum"] {
		flag = flagRed
	}
	return map[string]any{
		"check":     "debt_to_aum",
		"value":     ratio,
		"benchmark": peerBenchmarks["debt_to_aum"],
		"flag":      flag,
		"comment":   fmt.Sprintf("leverage at %.2fx AUM against peer ceiling %.2fx", ratio, peerBenchmarks["debt_to_aum"]),
	}
}

// checkGNPAConsistency cross-checks the reported GNPA ratio against the
// stage 3 share of AUM. A divergence above half a percentage point suggests
// classification differences worth querying management on.
func checkGNPAConsistency(m *FinancialMetrics) map[string]any {
	if m.GrossNPARatio == 0 || m.Stage3Assets == 0 || m.AUM == 0 {
		return gapResult("gnpa_consistency", "GNPA ratio or stage 3 assets not disclosed")
	}
	stage3Ratio := m.Stage3Assets / m.AUM
	divergence := math.Abs(stage3Ratio - m.GrossNPARatio)
	flag := flagGreen
	if divergence > 0.005 {
		flag = flagRed
	}
	return map[string]any{
		"check":        "gnpa_consistency",
		"value":        divergence,
		"gnpa_ratio":   m.GrossNPARatio,
		"stage3_ratio": stage3Ratio,
		"flag":         flag,
		"comment":      fmt.Sprintf("reported GNPA %.2f%% vs stage 3 share %.2f%%", m.GrossNPARatio*100, stage3Ratio*100),
	}
}

func checkStage3Coverage(m *FinancialMetrics) map[string]any {
	if m.Stage3Assets == 0 {
		return gapResult("stage3_coverage", "stage 3 assets not disclosed")
	}
	coverage := m.Stage3Provisions / m.Stage3Assets
	flag := flagGreen
	if coverage < peerBenchmarks["stage3_coverage"] {
		flag = flagRed
	}
	return map[string]any{
		"check":     "stage3_coverage",
		"value":     coverage,
		"benchmark": peerBenchmarks["stage3_coverage"],
		"flag":      flag,
		"comment":   fmt.Sprintf("provisions cover %.0f%% of stage 3 against peer floor %.0f%%", coverage*100, peerBenchmarks["stage3_coverage"]*100),
	}
}

func checkInterestCoverage(m *FinancialMetrics) map[string]any {
	if m.PPOP == 0 || m.InterestExpense == 0 {
		return gapResult("interest_coverage", "PPOP or interest expense not disclosed")
	}
	coverage := m.PPOP / m.InterestExpense
	flag := flagGreen
	if coverage < peerBenchmarks["interest_coverage"] {
		flag = flagRed
	}
	return map[string]any{
		"check":     "interest_coverage",
		"value":     coverage,
		"benchmark": peerBenchmarks["interest_coverage"],
		"flag":      flag,
		"comment":   fmt.Sprintf("pre-provision profit covers interest %.2fx against peer floor %.2fx", coverage, peerBenchmarks["interest_coverage"]),
	}
}

// checkROADecomposition breaks return on assets into income yield, operating
// cost, credit cost, and funding cost components.
func checkROADecomposition(m *FinancialMetrics) map[string]any {
	if m.NetIncome == 0 || m.TotalAssets == 0 {
		return gapResult("roa_decomposition", "net income or total assets not disclosed")
	}
	roa := m.NetIncome / m.TotalAssets
	flag := flagGreen
	if roa < peerBenchmarks["roa"] {
		flag = flagRed
	}
	components := map[string]any{
		"income_yield": safeDiv(m.TotalIncome, m.TotalAssets),
		"opex_drag":    safeDiv(m.OperatingExpense, m.TotalAssets),
		"credit_cost":  safeDiv(m.CreditCost, m.TotalAssets),
		"funding_cost": safeDiv(m.InterestExpense, m.TotalAssets),
	}
	return map[string]any{
		"check":      "roa_decomposition",
		"value":      roa,
		"benchmark":  peerBenchmarks["roa"],
		"components": components,
		"flag":       flag,
		"comment":    fmt.Sprintf("return on assets %.2f%% against peer floor %.2f%%", roa*100, peerBenchmarks["roa"]*100),
	}
}

func checkCostToIncome(m *FinancialMetrics) map[string]any {
	income := m.NetInterestInc + m.OtherIncome
	if m.OperatingExpense == 0 || income == 0 {
		return gapResult("cost_to_income", "operating expense or income not disclosed")
	}
	ratio := m.OperatingExpense / income
	flag := flagGreen
	if ratio > peerBenchmarks["cost_to_income"] {
		flag = flagRed
	}
	return map[string]any{
		"check":     "cost_to_income",
		"value":     ratio,
		"benchmark": peerBenchmarks["cost_to_income"],
		"flag":      flag,
		"comment":   fmt.Sprintf("cost-to-income %.0f%% against peer ceiling %.0f%%", ratio*100, peerBenchmarks["cost_to_income"]*100),
	}
}

// checkSensitivity stresses portfolio LTV under gold price declines of 10%,
// 20%, and 30%. The book turns under-collateralized where post-shock LTV
// crosses 100%; the check flags RED when that happens at the 20% scenario.
func checkSensitivity(m *FinancialMetrics) map[string]any {
	if m.PortfolioLTV == 0 {
		return gapResult("sensitivity_analysis", "portfolio LTV not disclosed")
	}
	scenarios := make(map[string]any, 3)
	flag := flagGreen
	for _, decline := range []float64{0.10, 0.20, 0.30} {
		shocked := m.PortfolioLTV / (1 - decline)
		scenarios[fmt.Sprintf("gold_down_%.0f%%", decline*100)] = shocked
		if decline == 0.20 && shocked > peerBenchmarks["post_shock_ltv"] {
			flag = flagRed
		}
	}
	return map[string]any{
		"check":     "sensitivity_analysis",
		"value":     m.PortfolioLTV,
		"scenarios": scenarios,
		"flag":      flag,
		"comment":   fmt.Sprintf("portfolio LTV %.0f%% before shock", m.PortfolioLTV*100),
	}
}

// checkAccountingRedFlags screens for figures that should not be possible in
// a clean set of accounts.
func checkAccountingRedFlags(m *FinancialMetrics) map[string]any {
	var flags []string
	if m.NetNPARatio > m.GrossNPARatio && m.GrossNPARatio > 0 {
		flags = append(flags, "net NPA ratio exceeds gross NPA ratio")
	}
	if m.Stage3Provisions > m.Stage3Assets && m.Stage3Assets > 0 {
		flags = append(flags, "stage 3 provisions exceed stage 3 assets")
	}
	if m.PPOP > 0 && m.InterestExpense > 0 && m.PPOP/m.InterestExpense < 1 {
		flags = append(flags, "pre-provision profit does not cover interest expense")
	}
	if m.TotalDebt > 0 && m.NetWorth > 0 && m.TotalDebt/m.NetWorth > 7 {
		flags = append(flags, fmt.Sprintf("gearing %.1fx net worth", m.TotalDebt/m.NetWorth))
	}

	flag := flagGreen
	if len(flags) > 0 {
		flag = flagRed
	}
	return map[string]any{
		"check":   "accounting_red_flags",
		"value":   len(flags),
		"items":   flags,
		"flag":    flag,
		"comment": fmt.Sprintf("%d accounting screens tripped", len(flags)),
	}
}

func gapResult(check, reason string) map[string]any {
	return map[string]any{
		"check":   check,
		"flag":    flagDataGap,
		"comment": reason,
	}
}

func safeDiv(a, b float64) float64 {
	if b == 0 {
		return 0
	}
	return a / b
}

func metricsMap(m *FinancialMetrics) map[string]any {
	return map[string]any{
		"total_debt":          m.TotalDebt,
		"aum":                 m.AUM,
		"net_worth":           m.NetWorth,
		"total_assets":        m.TotalAssets,
		"gross_npa_ratio":     m.GrossNPARatio,
		"net_npa_ratio":       m.NetNPARatio,
		"stage3_assets":       m.Stage3Assets,
		"stage3_provisions":   m.Stage3Provisions,
		"ppop":                m.PPOP,
		"interest_expense":    m.InterestExpense,
		"net_income":          m.NetIncome,
		"total_income":        m.TotalIncome,
		"operating_expense":   m.OperatingExpense,
		"net_interest_income": m.NetInterestInc,
		"other_income":        m.OtherIncome,
		"credit_cost":         m.CreditCost,
		"portfolio_ltv":       m.PortfolioLTV,
	}
}
