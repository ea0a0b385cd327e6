// Package agents holds the pipeline participants: makers that produce stage
// payloads and checkers that verify them.
package agents

import (
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/Arshim28/nbfc-system/internal/agent"
	"github.com/Arshim28/nbfc-system/internal/audit"
	"github.com/Arshim28/nbfc-system/internal/genai"
	"github.com/Arshim28/nbfc-system/internal/prompt"
)

// Uploader pushes a local document to the generation service and returns a
// cached handle for it. *genai.FileCache is the real implementation.
type Uploader interface {
	Ensure(ctx context.Context, path, mimeType string) (*genai.CachedFile, error)
}

// Harvester ingests every PDF and CSV under the data directory and produces
// per-document analyses. Individual document failures degrade the payload
// instead of failing the stage; the downstream checker decides whether the
// failure rate is acceptable.
type Harvester struct {
	gen      genai.Generator
	uploader Uploader
	logger   *slog.Logger
}

// NewHarvester builds the document harvest maker. uploader may be nil, in
// which case PDFs are summarized without attachment (used by tests and
// offline runs).
func NewHarvester(gen genai.Generator, uploader Uploader) *Harvester {
	return &Harvester{
		gen:      gen,
		uploader: uploader,
		logger:   slog.Default().With("agent", "resource_pooler"),
	}
}

func (h *Harvester) Name() string { return "resource_pooler" }

func (h *Harvester) Execute(ctx context.Context, log *audit.Log, params agent.Params) (agent.Payload, error) {
	pdfs, csvs, excels, err := scanDocuments(params.DataDir)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", params.DataDir, err)
	}
	if len(pdfs)+len(csvs)+len(excels) == 0 {
		return nil, fmt.Errorf("no PDF, CSV or Excel documents found in %s", params.DataDir)
	}

	h.logger.Info("harvesting documents", "pdfs", len(pdfs), "csvs", len(csvs), "excels", len(excels))

	var (
		pdfAnalyses   []map[string]any
		csvAnalyses   []map[string]any
		excelAnalyses []map[string]any
		failed        []string
		newCaches     int
		reusedCaches  int
	)

	for _, path := range pdfs {
		analysis, cached, err := h.analyzePDF(ctx, path, params.DataDir)
		if err != nil {
			h.logger.Warn("pdf analysis failed", "file", filepath.Base(path), "error", err)
			failed = append(failed, filepath.Base(path))
			continue
		}
		if cached != nil && cached.CacheName != "" {
			if cached.Reused {
				reusedCaches++
			} else {
				newCaches++
			}
		}
		pdfAnalyses = append(pdfAnalyses, analysis)
	}

	for _, path := range csvs {
		analysis, err := h.analyzeCSV(ctx, path, params.DataDir)
		if err != nil {
			h.logger.Warn("csv analysis failed", "file", filepath.Base(path), "error", err)
			failed = append(failed, filepath.Base(path))
			continue
		}
		csvAnalyses = append(csvAnalyses, analysis)
	}

	// Each non-empty workbook sheet counts as one document unit, like the
	// per-sheet CSV extraction the data rooms are prepared with.
	totalUnits := len(pdfs) + len(csvs)
	for _, path := range excels {
		analyses, sheetFailures, err := h.analyzeExcel(ctx, path, params.DataDir)
		if err != nil {
			h.logger.Warn("excel analysis failed", "file", filepath.Base(path), "error", err)
			totalUnits++
			failed = append(failed, filepath.Base(path))
			continue
		}
		totalUnits += len(analyses) + len(sheetFailures)
		failed = append(failed, sheetFailures...)
		excelAnalyses = append(excelAnalyses, analyses...)
	}

	processed := len(pdfAnalyses) + len(csvAnalyses) + len(excelAnalyses)
	payload := agent.Payload{
		"pdf_analyses":   pdfAnalyses,
		"csv_analyses":   csvAnalyses,
		"excel_analyses": excelAnalyses,
		"processing_summary": map[string]any{
			"total_files":     totalUnits,
			"processed_files": processed,
			"failed_files":    len(failed),
			"failed_names":    failed,
			"new_caches":      newCaches,
			"reused_caches":   reusedCaches,
			"cache_enabled":   h.uploader != nil,
			"processed_at":    time.Now().Format(time.RFC3339),
		},
	}
	if processed == 0 {
		return nil, fmt.Errorf("all %d documents failed to process", len(failed))
	}
	return payload, nil
}

func (h *Harvester) analyzePDF(ctx context.Context, path, dataDir string) (map[string]any, *genai.CachedFile, error) {
	p, err := prompt.Build(prompt.DocumentAnalysis, dataDir, nil)
	if err != nil {
		return nil, nil, err
	}
	req := genai.Request{
		Prompt:      p,
		Temperature: 0.1,
		MaxTokens:   4096,
		JSONSchema:  documentAnalysisSchema,
	}

	var cached *genai.CachedFile
	if h.uploader != nil {
		cached, err = h.uploader.Ensure(ctx, path, "application/pdf")
		if err != nil {
			return nil, nil, err
		}
		if cached.CacheName != "" {
			req.CachedContent = cached.CacheName
		} else {
			req.FileURI = cached.URI
			req.MIMEType = cached.MIMEType
		}
	}

	res, err := h.gen.Generate(ctx, req)
	if err != nil {
		return nil, nil, err
	}

	var analysis map[string]any
	if err := genai.DecodeJSON(res.Text, &analysis); err != nil {
		return nil, nil, err
	}
	analysis["source_file"] = filepath.Base(path)
	return analysis, cached, nil
}

// csvSampleRows caps how much tabular data is inlined into the prompt.
const csvSampleRows = 50

func (h *Harvester) analyzeCSV(ctx context.Context, path, dataDir string) (map[string]any, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	var rows [][]string
	for len(rows) < csvSampleRows {
		record, err := reader.Read()
		if err != nil {
			break
		}
		rows = append(rows, record)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("empty csv")
	}

	return h.analyzeTable(ctx, filepath.Base(path), rows, dataDir)
}

// analyzeExcel extracts every sheet of the workbook and analyzes each one as
// a table. Sheet failures degrade into sheetFailures; an unreadable workbook
// fails as a whole.
func (h *Harvester) analyzeExcel(ctx context.Context, path, dataDir string) (analyses []map[string]any, sheetFailures []string, err error) {
	book, err := excelize.OpenFile(path)
	if err != nil {
		return nil, nil, err
	}
	defer book.Close()

	for _, sheet := range book.GetSheetList() {
		rows, err := book.GetRows(sheet)
		if err != nil {
			sheetFailures = append(sheetFailures, filepath.Base(path)+"#"+sheet)
			continue
		}
		if len(rows) == 0 {
			continue
		}
		if len(rows) > csvSampleRows {
			rows = rows[:csvSampleRows]
		}
		label := filepath.Base(path) + "#" + sheet
		analysis, err := h.analyzeTable(ctx, label, rows, dataDir)
		if err != nil {
			h.logger.Warn("sheet analysis failed", "sheet", label, "error", err)
			sheetFailures = append(sheetFailures, label)
			continue
		}
		analyses = append(analyses, analysis)
	}
	if len(analyses)+len(sheetFailures) == 0 {
		return nil, nil, fmt.Errorf("no data in workbook")
	}
	return analyses, sheetFailures, nil
}

// analyzeTable summarizes tabular rows from a CSV file or a workbook sheet.
func (h *Harvester) analyzeTable(ctx context.Context, label string, rows [][]string, dataDir string) (map[string]any, error) {
	var sb strings.Builder
	for _, row := range rows {
		sb.WriteString(strings.Join(row, ","))
		sb.WriteByte('\n')
	}

	p, err := prompt.Build(prompt.TableAnalysis, dataDir, prompt.Vars{
		"rows":  strconv.Itoa(len(rows)),
		"file":  label,
		"table": sb.String(),
	})
	if err != nil {
		return nil, err
	}
	res, err := h.gen.Generate(ctx, genai.Request{
		Prompt:      p,
		Temperature: 0.1,
		MaxTokens:   4096,
		JSONSchema:  documentAnalysisSchema,
	})
	if err != nil {
		return nil, err
	}

	var analysis map[string]any
	if err := genai.DecodeJSON(res.Text, &analysis); err != nil {
		return nil, err
	}
	analysis["source_file"] = label
	analysis["rows_sampled"] = len(rows)
	return analysis, nil
}

var documentAnalysisSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"document_type":  map[string]any{"type": "string"},
		"period_covered": map[string]any{"type": "string"},
		"key_metrics":    map[string]any{"type": "object"},
		"notable_items":  map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		"summary":        map[string]any{"type": "string"},
	},
	"required": []string{"document_type", "summary"},
}

// scanDocuments lists the PDF, CSV and Excel files directly under dir,
// sorted for deterministic processing order.
func scanDocuments(dir string) (pdfs, csvs, excels []string, err error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, nil, err
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		path := filepath.Join(dir, e.Name())
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".pdf":
			pdfs = append(pdfs, path)
		case ".csv":
			csvs = append(csvs, path)
		case ".xlsx", ".xlsm", ".xls":
			excels = append(excels, path)
		}
	}
	sort.Strings(pdfs)
	sort.Strings(csvs)
	sort.Strings(excels)
	return pdfs, csvs, excels, nil
}
