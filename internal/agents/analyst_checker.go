package agents

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Arshim28/nbfc-system/internal/agent"
	"github.com/Arshim28/nbfc-system/internal/audit"
)

// Thresholds the analyst output must clear before synthesis may rely on it.
const (
	minCompletionRate = 0.8
	minAvgConfidence  = 3.0
	maxRiskFlags      = 8
	minKeyFindings    = 5
)

// AnalystChecker verifies the diligence battery output against fixed quality
// thresholds and reports whether synthesis can trust it.
type AnalystChecker struct {
	logger *slog.Logger
}

func NewAnalystChecker() *AnalystChecker {
	return &AnalystChecker{logger: slog.Default().With("agent", "analyst_checker")}
}

func (c *AnalystChecker) Name() string { return "analyst_checker" }

func (c *AnalystChecker) Execute(ctx context.Context, log *audit.Log, params agent.Params) (agent.Payload, error) {
	inquiry, ok := log.AgentData("analyst")
	if !ok {
		return nil, fmt.Errorf("no analyst output to verify")
	}
	data := agent.Payload(inquiry)

	completionRate := data.Float("completion_rate")
	avgConfidence := data.Float("avg_confidence")
	riskFlags := data.Len("risk_flags")
	keyFindings := data.Len("key_findings")

	var issues []string
	if completionRate < minCompletionRate {
		issues = append(issues, fmt.Sprintf("completion rate %.2f below minimum %.2f",
			completionRate, minCompletionRate))
	}
	if avgConfidence < minAvgConfidence {
		issues = append(issues, fmt.Sprintf("average confidence %.1f below minimum %.1f",
			avgConfidence, minAvgConfidence))
	}
	if riskFlags > maxRiskFlags {
		issues = append(issues, fmt.Sprintf("%d risk flags exceed maximum %d",
			riskFlags, maxRiskFlags))
	}
	if keyFindings < minKeyFindings {
		issues = append(issues, fmt.Sprintf("%d key findings below minimum %d",
			keyFindings, minKeyFindings))
	}

	verified := len(issues) == 0
	c.logger.Info("analyst verification complete", "verified", verified, "issues", len(issues))

	return agent.Payload{
		"verified": verified,
		"issues":   issues,
		"metrics": map[string]any{
			"completion_rate": completionRate,
			"avg_confidence":  avgConfidence,
			"risk_flags":      riskFlags,
			"key_findings":    keyFindings,
		},
	}, nil
}
