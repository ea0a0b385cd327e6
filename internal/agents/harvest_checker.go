package agents

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Arshim28/nbfc-system/internal/agent"
	"github.com/Arshim28/nbfc-system/internal/audit"
)

// maxHarvestFailureRate is the share of input documents allowed to fail
// ingestion before the harvest is rejected.
const maxHarvestFailureRate = 0.5

// HarvestChecker verifies the document harvest: enough documents processed,
// failure rate within bounds, analyses present and non-trivial.
type HarvestChecker struct {
	logger *slog.Logger
}

func NewHarvestChecker() *HarvestChecker {
	return &HarvestChecker{logger: slog.Default().With("agent", "resource_pooler_checker")}
}

func (c *HarvestChecker) Name() string { return "resource_pooler_checker" }

func (c *HarvestChecker) Execute(ctx context.Context, log *audit.Log, params agent.Params) (agent.Payload, error) {
	harvest, ok := log.AgentData("resource_pooler")
	if !ok {
		return nil, fmt.Errorf("no harvest output to verify")
	}
	data := agent.Payload(harvest)

	var issues []string

	summary := data.Map("processing_summary")
	if summary == nil {
		issues = append(issues, "processing_summary missing from harvest output")
	}
	sp := agent.Payload(summary)

	processed := sp.Int("processed_files")
	total := sp.Int("total_files")
	failed := sp.Int("failed_files")

	if processed < 1 {
		issues = append(issues, "no documents were successfully processed")
	}
	if total > 0 {
		rate := float64(failed) / float64(total)
		if rate > maxHarvestFailureRate {
			issues = append(issues, fmt.Sprintf("document failure rate %.0f%% exceeds %.0f%% limit",
				rate*100, maxHarvestFailureRate*100))
		}
	}

	pdfCount := data.Len("pdf_analyses")
	csvCount := data.Len("csv_analyses")
	excelCount := data.Len("excel_analyses")
	analyses := pdfCount + csvCount + excelCount
	if analyses == 0 {
		issues = append(issues, "harvest produced no document analyses")
	}
	if analyses != processed {
		issues = append(issues, fmt.Sprintf("analysis count %d does not match processed count %d",
			analyses, processed))
	}

	issues = append(issues, coverageIssues(params.DataDir, pdfCount, csvCount, excelCount, total)...)

	newCaches := sp.Int("new_caches")
	reusedCaches := sp.Int("reused_caches")
	if sp.Bool("cache_enabled") && pdfCount > 0 && newCaches+reusedCaches == 0 {
		issues = append(issues, "caching is enabled but no document cache was created or reused")
	}

	verified := len(issues) == 0
	c.logger.Info("harvest verification complete",
		"verified", verified, "issues", len(issues), "processed", processed, "failed", failed)

	return agent.Payload{
		"verified": verified,
		"issues":   issues,
		"stats": map[string]any{
			"pdf_analyses":    pdfCount,
			"csv_analyses":    csvCount,
			"excel_analyses":  excelCount,
			"processed_files": processed,
			"failed_files":    failed,
			"new_caches":      newCaches,
			"reused_caches":   reusedCaches,
		},
	}, nil
}

// coverageIssues compares the harvest output against what actually sits in
// the data dir: every document type present on disk must have analyses, and
// the harvest must have seen at least as many files as the dir holds.
func coverageIssues(dataDir string, pdfCount, csvCount, excelCount, total int) []string {
	if dataDir == "" {
		return nil
	}
	pdfs, csvs, excels, err := scanDocuments(dataDir)
	if err != nil {
		return []string{fmt.Sprintf("cannot rescan data dir: %v", err)}
	}

	var issues []string
	if len(pdfs) > 0 && pdfCount == 0 {
		issues = append(issues, fmt.Sprintf("data dir holds %d PDF files but harvest has no PDF analyses", len(pdfs)))
	}
	if len(csvs) > 0 && csvCount == 0 {
		issues = append(issues, fmt.Sprintf("data dir holds %d CSV files but harvest has no CSV analyses", len(csvs)))
	}
	if len(excels) > 0 && excelCount == 0 {
		issues = append(issues, fmt.Sprintf("data dir holds %d Excel files but harvest has no Excel analyses", len(excels)))
	}
	if onDisk := len(pdfs) + len(csvs) + len(excels); total < onDisk {
		issues = append(issues, fmt.Sprintf("harvest saw %d documents but the data dir holds %d files", total, onDisk))
	}
	return issues
}
