package agents

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/Arshim28/nbfc-system/internal/agent"
	"github.com/Arshim28/nbfc-system/internal/audit"
	"github.com/Arshim28/nbfc-system/internal/genai"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestScanDocuments(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "b.pdf", "x")
	writeFile(t, dir, "a.PDF", "x")
	writeFile(t, dir, "data.csv", "h1,h2\n1,2\n")
	writeFile(t, dir, "notes.txt", "ignored")
	if err := os.Mkdir(filepath.Join(dir, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}

	writeFile(t, dir, "model.xlsx", "x")

	pdfs, csvs, excels, err := scanDocuments(dir)
	if err != nil {
		t.Fatalf("scanDocuments: %v", err)
	}
	if len(pdfs) != 2 {
		t.Errorf("pdfs = %v, want 2 entries", pdfs)
	}
	if len(csvs) != 1 {
		t.Errorf("csvs = %v, want 1 entry", csvs)
	}
	if len(excels) != 1 {
		t.Errorf("excels = %v, want 1 entry", excels)
	}
	// Sorted for deterministic processing.
	if filepath.Base(pdfs[0]) != "a.PDF" {
		t.Errorf("first pdf = %s, want a.PDF", pdfs[0])
	}
}

func TestHarvesterProcessesCSVs(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "financials.csv", "metric,fy24,fy25\naum,9000,10000\ngnpa,2.1,2.4\n")

	gen := genai.NewStub(`{"document_type": "financial_table", "period_covered": "FY24-FY25",
		"key_metrics": {"aum": 10000}, "notable_items": [], "summary": "AUM grew 11%"}`)

	payload, err := NewHarvester(gen, nil).Execute(context.Background(), audit.New(), agent.Params{DataDir: dir})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got := payload.Len("csv_analyses"); got != 1 {
		t.Errorf("csv_analyses = %d, want 1", got)
	}
	summary := agent.Payload(payload.Map("processing_summary"))
	if got := summary.Int("processed_files"); got != 1 {
		t.Errorf("processed_files = %d, want 1", got)
	}
	analyses := payload["csv_analyses"].([]map[string]any)
	if analyses[0]["source_file"] != "financials.csv" {
		t.Errorf("source_file = %v", analyses[0]["source_file"])
	}
}

func writeWorkbook(t *testing.T, dir, name string) {
	t.Helper()
	book := excelize.NewFile()
	defer book.Close()
	book.SetSheetRow("Sheet1", "A1", &[]any{"metric", "fy25"})
	book.SetSheetRow("Sheet1", "A2", &[]any{"aum", 10000})
	if _, err := book.NewSheet("Ratios"); err != nil {
		t.Fatal(err)
	}
	book.SetSheetRow("Ratios", "A1", &[]any{"gnpa", 0.021})
	if err := book.SaveAs(filepath.Join(dir, name)); err != nil {
		t.Fatal(err)
	}
}

func TestHarvesterProcessesExcelSheets(t *testing.T) {
	dir := t.TempDir()
	writeWorkbook(t, dir, "model.xlsx")

	gen := genai.NewStub(`{"document_type": "financial_table", "summary": "ok"}`)
	payload, err := NewHarvester(gen, nil).Execute(context.Background(), audit.New(), agent.Params{DataDir: dir})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if got := payload.Len("excel_analyses"); got != 2 {
		t.Fatalf("excel_analyses = %d, want one per non-empty sheet", got)
	}
	analyses := payload["excel_analyses"].([]map[string]any)
	if analyses[0]["source_file"] != "model.xlsx#Sheet1" {
		t.Errorf("source_file = %v, want model.xlsx#Sheet1", analyses[0]["source_file"])
	}
	summary := agent.Payload(payload.Map("processing_summary"))
	if got := summary.Int("processed_files"); got != 2 {
		t.Errorf("processed_files = %d, want 2 sheet units", got)
	}
	if got := summary.Int("total_files"); got != 2 {
		t.Errorf("total_files = %d, want 2 sheet units", got)
	}
}

func TestHarvesterCorruptWorkbookDegrades(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "good.csv", "a,b\n1,2\n")
	writeFile(t, dir, "bad.xlsx", "not a zip archive")

	gen := genai.NewStub(`{"document_type": "financial_table", "summary": "ok"}`)
	payload, err := NewHarvester(gen, nil).Execute(context.Background(), audit.New(), agent.Params{DataDir: dir})
	if err != nil {
		t.Fatalf("Execute: %v, workbook failure should degrade not fail", err)
	}

	summary := agent.Payload(payload.Map("processing_summary"))
	if got := summary.Int("failed_files"); got != 1 {
		t.Errorf("failed_files = %d, want 1", got)
	}
	names, _ := summary["failed_names"].([]string)
	if len(names) != 1 || names[0] != "bad.xlsx" {
		t.Errorf("failed_names = %v, want [bad.xlsx]", names)
	}
	if got := summary.Int("total_files"); got != 2 {
		t.Errorf("total_files = %d, want 2", got)
	}
}

type fakeUploader struct {
	calls int
}

func (f *fakeUploader) Ensure(ctx context.Context, path, mimeType string) (*genai.CachedFile, error) {
	f.calls++
	if f.calls == 1 {
		return &genai.CachedFile{CacheName: "cachedContents/a", Reused: true}, nil
	}
	return &genai.CachedFile{URI: "files/x", MIMEType: mimeType, CacheName: "cachedContents/b"}, nil
}

func TestHarvesterReportsCacheStats(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "annual.pdf", "x")
	writeFile(t, dir, "rating.pdf", "x")

	gen := genai.NewStub(`{"document_type": "annual_report", "summary": "ok"}`)
	up := &fakeUploader{}
	payload, err := NewHarvester(gen, up).Execute(context.Background(), audit.New(), agent.Params{DataDir: dir})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	summary := agent.Payload(payload.Map("processing_summary"))
	if got := summary.Int("reused_caches"); got != 1 {
		t.Errorf("reused_caches = %d, want 1", got)
	}
	if got := summary.Int("new_caches"); got != 1 {
		t.Errorf("new_caches = %d, want 1", got)
	}
	if !summary.Bool("cache_enabled") {
		t.Error("cache_enabled = false with an uploader configured")
	}
	if up.calls != 2 {
		t.Errorf("uploader calls = %d, want one per PDF", up.calls)
	}
}

func TestHarvesterFailsOnEmptyDirectory(t *testing.T) {
	gen := genai.NewStub(`{}`)
	_, err := NewHarvester(gen, nil).Execute(context.Background(), audit.New(), agent.Params{DataDir: t.TempDir()})
	if err == nil {
		t.Fatal("expected error for directory with no documents")
	}
}

func TestHarvesterDegradesOnPerFileFailure(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "good.csv", "a,b\n1,2\n")
	writeFile(t, dir, "bad.csv", "")

	gen := genai.NewStub(`{"document_type": "financial_table", "summary": "ok"}`)
	payload, err := NewHarvester(gen, nil).Execute(context.Background(), audit.New(), agent.Params{DataDir: dir})
	if err != nil {
		t.Fatalf("Execute: %v, single-file failure should degrade not fail", err)
	}
	summary := agent.Payload(payload.Map("processing_summary"))
	if got := summary.Int("failed_files"); got != 1 {
		t.Errorf("failed_files = %d, want 1", got)
	}
	if got := summary.Int("processed_files"); got != 1 {
		t.Errorf("processed_files = %d, want 1", got)
	}
}
