package db

import (
	"path/filepath"
	"testing"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	d, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	if err := d.Migrate(); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	return d
}

func TestMigrateIsIdempotent(t *testing.T) {
	d := openTestDB(t)
	if err := d.Migrate(); err != nil {
		t.Fatalf("second Migrate: %v", err)
	}
}

func TestRunLifecycle(t *testing.T) {
	d := openTestDB(t)

	id, err := d.CreateRun("gold-loan-nbfc-analysis", "Aurelia Gold Finance", "/data/aurelia")
	if err != nil {
		t.Fatalf("CreateRun: %v", err)
	}

	r, err := d.GetRun(id)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if r == nil || r.Status != "running" {
		t.Fatalf("run = %+v, want running", r)
	}

	if err := d.FinishRun(id, 1.0, ""); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}
	r, err = d.GetRun(id)
	if err != nil {
		t.Fatalf("GetRun after finish: %v", err)
	}
	if r.Status != "completed" || r.CompletionRate != 1.0 {
		t.Errorf("run = %+v, want completed at 1.0", r)
	}
	if r.FinishedAt == "" {
		t.Error("finished_at not set")
	}
}

func TestFinishRunWithErrorMarksFailed(t *testing.T) {
	d := openTestDB(t)
	id, _ := d.CreateRun("p", "c", "/d")
	if err := d.FinishRun(id, 0.4, "stage ingestion_qa failed"); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}
	r, _ := d.GetRun(id)
	if r.Status != "failed" || r.Error == "" {
		t.Errorf("run = %+v, want failed with error", r)
	}
}

func TestGetRunMissing(t *testing.T) {
	d := openTestDB(t)
	r, err := d.GetRun("no-such-id")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if r != nil {
		t.Errorf("run = %+v, want nil", r)
	}
}

func TestListRunsNewestFirst(t *testing.T) {
	d := openTestDB(t)
	first, _ := d.CreateRun("p", "c", "/one")
	second, _ := d.CreateRun("p", "c", "/two")

	runs, err := d.ListRuns(10)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("runs = %d, want 2", len(runs))
	}
	// Same-second inserts sort by id, so just check both are present.
	seen := map[string]bool{runs[0].ID: true, runs[1].ID: true}
	if !seen[first] || !seen[second] {
		t.Errorf("runs = %v, missing an id", runs)
	}
}

func TestStageEvents(t *testing.T) {
	d := openTestDB(t)
	id, _ := d.CreateRun("p", "c", "/d")

	events := []struct{ stage, agent, status, detail string }{
		{"document_harvest", "resource_pooler", "running", "attempt 1/2"},
		{"document_harvest", "resource_pooler", "completed", ""},
		{"ingestion_qa", "resource_pooler_checker", "verified", ""},
	}
	for _, e := range events {
		if err := d.LogStageEvent(id, e.stage, e.agent, e.status, e.detail); err != nil {
			t.Fatalf("LogStageEvent: %v", err)
		}
	}

	got, err := d.ListStageEvents(id)
	if err != nil {
		t.Fatalf("ListStageEvents: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("events = %d, want 3", len(got))
	}
	if got[0].Status != "running" || got[2].Status != "verified" {
		t.Errorf("event order wrong: %+v", got)
	}
	if got[0].Detail != "attempt 1/2" {
		t.Errorf("detail = %q", got[0].Detail)
	}
}
