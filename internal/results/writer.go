// Package results persists pipeline outputs under the data directory so a
// run leaves a complete record beside its inputs.
package results

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Arshim28/nbfc-system/internal/audit"
	"github.com/Arshim28/nbfc-system/internal/orchestrator"
)

// Saved lists where a run's artifacts landed.
type Saved struct {
	Dir            string
	AnalysisPath   string
	AuditLogPath   string
	MemorandumPath string
}

// Writer saves run artifacts into <data-dir>/<results-dir>. Filenames carry
// the run timestamp so successive runs never clobber each other.
type Writer struct {
	dataDir    string
	resultsDir string
}

// NewWriter creates a writer for one data directory. resultsDir is relative
// to it.
func NewWriter(dataDir, resultsDir string) *Writer {
	return &Writer{dataDir: dataDir, resultsDir: resultsDir}
}

// Save writes the analysis summary, the full audit trail, and, when the run
// produced one, the memorandum text.
func (w *Writer) Save(summary *orchestrator.Summary, log *audit.Log) (*Saved, error) {
	dir := filepath.Join(w.dataDir, w.resultsDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir %s: %w", dir, err)
	}

	ts := summary.StartedAt.Format("20060102_150405")
	saved := &Saved{Dir: dir}

	analysis := map[string]any{
		"summary": summary,
		"stages":  stagePayloads(log),
	}
	saved.AnalysisPath = filepath.Join(dir, fmt.Sprintf("analysis_%s.json", ts))
	if err := writeJSON(saved.AnalysisPath, analysis); err != nil {
		return nil, err
	}

	saved.AuditLogPath = filepath.Join(dir, fmt.Sprintf("process_log_%s.json", ts))
	if err := log.SaveFile(saved.AuditLogPath); err != nil {
		return nil, fmt.Errorf("save audit log: %w", err)
	}

	if memo := memorandumText(log); memo != "" {
		saved.MemorandumPath = filepath.Join(dir, fmt.Sprintf("ic_memorandum_%s.txt", ts))
		if err := writeAtomic(saved.MemorandumPath, []byte(memo)); err != nil {
			return nil, err
		}
	}

	return saved, nil
}

// stagePayloads extracts the latest successful payload per stage.
func stagePayloads(log *audit.Log) map[string]map[string]any {
	out := make(map[string]map[string]any)
	for _, e := range log.Entries() {
		if e.Status.IsSuccess() && e.Data != nil {
			out[e.Stage] = e.Data
		}
	}
	return out
}

// memorandumText pulls the memorandum out of whichever stage produced one.
func memorandumText(log *audit.Log) string {
	for _, data := range stagePayloads(log) {
		if memo, ok := data["ic_memorandum"].(string); ok && memo != "" {
			return memo
		}
	}
	return ""
}

// writeAtomic writes data through a temp file in the same directory, then
// renames it into place.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	defer func() {
		if tmpName != "" {
			os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename %s -> %s: %w", tmpName, path, err)
	}
	tmpName = ""
	return nil
}

// writeJSON writes v as pretty-printed JSON to path atomically.
func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	data = append(data, '\n')
	return writeAtomic(path, data)
}

// Latest returns the most recent analysis file in the results directory, or
// "" when none exists.
func (w *Writer) Latest() string {
	dir := filepath.Join(w.dataDir, w.resultsDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	var latest string
	var latestMod time.Time
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if len(name) < 9 || name[:9] != "analysis_" {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(latestMod) {
			latestMod = info.ModTime()
			latest = filepath.Join(dir, name)
		}
	}
	return latest
}
