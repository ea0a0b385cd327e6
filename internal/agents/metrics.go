package agents

// FinancialMetrics is the numeric base the ratio battery computes from.
// Values are in the reporting currency (crores) except ratios, which are
// fractions (0.03 means 3%). A zero value means the figure was not found in
// the documents; every check treats zero inputs as a data gap rather than a
// real number.
type FinancialMetrics struct {
	TotalDebt        float64 `json:"total_debt"`
	AUM              float64 `json:"aum"`
	NetWorth         float64 `json:"net_worth"`
	TotalAssets      float64 `json:"total_assets"`
	GrossNPARatio    float64 `json:"gross_npa_ratio"`
	NetNPARatio      float64 `json:"net_npa_ratio"`
	Stage3Assets     float64 `json:"stage3_assets"`
	Stage3Provisions float64 `json:"stage3_provisions"`
	PPOP             float64 `json:"ppop"`
	InterestExpense  float64 `json:"interest_expense"`
	NetIncome        float64 `json:"net_income"`
	TotalIncome      float64 `json:"total_income"`
	OperatingExpense float64 `json:"operating_expense"`
	NetInterestInc   float64 `json:"net_interest_income"`
	OtherIncome      float64 `json:"other_income"`
	CreditCost       float64 `json:"credit_cost"`
	PortfolioLTV     float64 `json:"portfolio_ltv"`
}

var financialMetricsSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"total_debt":          map[string]any{"type": "number", "description": "total borrowings, crores"},
		"aum":                 map[string]any{"type": "number", "description": "assets under management, crores"},
		"net_worth":           map[string]any{"type": "number"},
		"total_assets":        map[string]any{"type": "number"},
		"gross_npa_ratio":     map[string]any{"type": "number", "description": "fraction, 0.03 means 3%"},
		"net_npa_ratio":       map[string]any{"type": "number"},
		"stage3_assets":       map[string]any{"type": "number"},
		"stage3_provisions":   map[string]any{"type": "number"},
		"ppop":                map[string]any{"type": "number", "description": "pre-provision operating profit"},
		"interest_expense":    map[string]any{"type": "number"},
		"net_income":          map[string]any{"type": "number"},
		"total_income":        map[string]any{"type": "number"},
		"operating_expense":   map[string]any{"type": "number"},
		"net_interest_income": map[string]any{"type": "number"},
		"other_income":        map[string]any{"type": "number"},
		"credit_cost":         map[string]any{"type": "number"},
		"portfolio_ltv":       map[string]any{"type": "number", "description": "fraction, 0.65 means 65%"},
	},
}

// peerBenchmarks are gold-loan NBFC peer medians the battery compares
// against. A check flags RED when the subject breaches its benchmark.
var peerBenchmarks = map[string]float64{
	"debt_to_aum":       0.85,
	"gross_npa_ratio":   0.03,
	"stage3_coverage":   0.25,
	"interest_coverage": 1.3,
	"cost_to_income":    0.50,
	"roa":               0.02,
	"post_shock_ltv":    1.00,
}
