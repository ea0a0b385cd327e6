package audit

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestStageDataLatestSuccess(t *testing.T) {
	l := New()

	l.Record("harvester", "document_harvest", map[string]any{"v": 1.0}, StatusCompleted, "")
	l.Record("analyst", "inquiry", map[string]any{"v": 2.0}, StatusCompleted, "")
	l.Record("harvester", "document_harvest", map[string]any{"v": 3.0}, StatusCompleted, "")

	data, ok := l.StageData("document_harvest")
	if !ok {
		t.Fatal("StageData returned absent, want present")
	}
	if data["v"] != 3.0 {
		t.Errorf("StageData v = %v, want 3.0 (latest entry)", data["v"])
	}
}

func TestStageDataSkipsNonSuccessStatuses(t *testing.T) {
	l := New()

	l.Record("harvester", "document_harvest", map[string]any{"v": 1.0}, StatusCompleted, "")
	// A later failed attempt for the same stage must not hide the earlier
	// completed payload: the reverse scan skips it rather than stopping.
	l.Record("harvester", "document_harvest", map[string]any{"error": "boom"}, StatusFailed, "")
	l.Record("harvester", "document_harvest", nil, StatusRunning, "")

	data, ok := l.StageData("document_harvest")
	if !ok {
		t.Fatal("StageData returned absent, want present")
	}
	if data["v"] != 1.0 {
		t.Errorf("StageData v = %v, want 1.0", data["v"])
	}
}

func TestStageDataAbsent(t *testing.T) {
	l := New()
	l.Record("harvester", "document_harvest", map[string]any{}, StatusRunning, "")
	l.Record("harvester", "document_harvest", map[string]any{"error": "x"}, StatusFailed, "")

	if _, ok := l.StageData("document_harvest"); ok {
		t.Error("StageData returned present for stage with no successful entry")
	}
	if _, ok := l.StageData("never_ran"); ok {
		t.Error("StageData returned present for unknown stage")
	}
}

func TestAgentData(t *testing.T) {
	l := New()
	l.Record("checker", "ingestion_qa", map[string]any{"verified": true}, StatusVerified, "")
	l.Record("checker", "ingestion_qa", map[string]any{"verified": false}, StatusFailed, "")

	data, ok := l.AgentData("checker")
	if !ok {
		t.Fatal("AgentData returned absent, want present")
	}
	if data["verified"] != true {
		t.Errorf("AgentData verified = %v, want true", data["verified"])
	}
}

func TestVerifiedVisibleToLookup(t *testing.T) {
	l := New()
	l.Record("checker", "analyst_verification", map[string]any{"verified": true}, StatusVerified, "")

	if _, ok := l.StageData("analyst_verification"); !ok {
		t.Error("verified entry should be visible to StageData")
	}
}

func TestEntriesSnapshot(t *testing.T) {
	l := New()
	l.Record("a", "s", nil, StatusCompleted, "")

	snap := l.Entries()
	snap[0].Stage = "mutated"

	if l.Entries()[0].Stage != "s" {
		t.Error("Entries() must return a copy, not the backing slice")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	l := New()
	l.Record("harvester", "document_harvest", map[string]any{"processed_files": 4.0}, StatusCompleted, "harvest done")
	l.Record("checker", "ingestion_qa", map[string]any{"verified": true}, StatusVerified, "")
	l.Record("analyst", "inquiry", map[string]any{"error": "timeout"}, StatusFailed, "attempt 1")

	path := filepath.Join(t.TempDir(), "process_log.json")
	if err := l.SaveFile(path); err != nil {
		t.Fatalf("SaveFile: %v", err)
	}

	got, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}

	if got.Len() != l.Len() {
		t.Fatalf("reloaded log has %d entries, want %d", got.Len(), l.Len())
	}

	// Replayed lookups must match the in-memory log.
	for _, stage := range []string{"document_harvest", "ingestion_qa", "inquiry", "missing"} {
		wantData, wantOK := l.StageData(stage)
		gotData, gotOK := got.StageData(stage)
		if wantOK != gotOK {
			t.Errorf("stage %q: reloaded presence = %v, want %v", stage, gotOK, wantOK)
			continue
		}
		if wantOK && len(gotData) != len(wantData) {
			t.Errorf("stage %q: reloaded payload has %d keys, want %d", stage, len(gotData), len(wantData))
		}
	}

	entries := got.Entries()
	if entries[0].Details != "harvest done" {
		t.Errorf("Details = %q, want %q", entries[0].Details, "harvest done")
	}
	if entries[1].Status != StatusVerified {
		t.Errorf("Status = %v, want verified", entries[1].Status)
	}
}

func TestSaveFileWireFormat(t *testing.T) {
	l := New()
	l.Record("harvester", "document_harvest", map[string]any{"n": 1.0}, StatusCompleted, "d")

	path := filepath.Join(t.TempDir(), "log.json")
	if err := l.SaveFile(path); err != nil {
		t.Fatalf("SaveFile: %v", err)
	}

	fileData, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	var generic []map[string]any
	if err := json.Unmarshal(fileData, &generic); err != nil {
		t.Fatalf("persisted log is not a JSON array: %v", err)
	}

	e := generic[0]
	for _, key := range []string{"timestamp", "agent", "stage", "status", "data", "details", "elapsed_time"} {
		if _, ok := e[key]; !ok {
			t.Errorf("persisted entry missing key %q", key)
		}
	}
	if e["status"] != "completed" {
		t.Errorf("status persisted as %v, want string %q", e["status"], "completed")
	}
	if _, ok := e["timestamp"].(string); !ok {
		t.Errorf("timestamp persisted as %T, want string", e["timestamp"])
	}
	if _, ok := e["elapsed_time"].(float64); !ok {
		t.Errorf("elapsed_time persisted as %T, want float", e["elapsed_time"])
	}
}

func TestStatusJSONRoundTrip(t *testing.T) {
	for _, s := range []Status{StatusPending, StatusRunning, StatusCompleted, StatusFailed, StatusVerified} {
		data, err := json.Marshal(s)
		if err != nil {
			t.Fatalf("marshal %v: %v", s, err)
		}
		var back Status
		if err := json.Unmarshal(data, &back); err != nil {
			t.Fatalf("unmarshal %s: %v", data, err)
		}
		if back != s {
			t.Errorf("round trip %v -> %s -> %v", s, data, back)
		}
	}

	var bad Status
	if err := json.Unmarshal([]byte(`"bogus"`), &bad); err == nil {
		t.Error("unmarshal of unknown status should fail")
	}
}

func TestStagesWithStatus(t *testing.T) {
	l := New()
	l.Record("a", "one", nil, StatusCompleted, "")
	l.Record("b", "two", nil, StatusFailed, "")
	l.Record("a", "one", nil, StatusCompleted, "")
	l.Record("c", "three", nil, StatusCompleted, "")

	completed := l.StagesWithStatus(StatusCompleted)
	if len(completed) != 2 || completed[0] != "one" || completed[1] != "three" {
		t.Errorf("StagesWithStatus(completed) = %v, want [one three]", completed)
	}
	failed := l.StagesWithStatus(StatusFailed)
	if len(failed) != 1 || failed[0] != "two" {
		t.Errorf("StagesWithStatus(failed) = %v, want [two]", failed)
	}
}
