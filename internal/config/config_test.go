package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nbfc.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
pipeline:
  name: test
  defaults:
    timeout: 10m
    max_retries: 2
  stages:
    - name: harvest
      agent: resource_pooler
    - name: harvest_qa
      agent: resource_pooler_checker
      dependencies: [harvest]
      timeout: 3m
      max_retries: 0
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	s := cfg.Pipeline.FindStage("harvest")
	if s == nil {
		t.Fatal("stage harvest not found")
	}
	if s.Timeout != "10m" {
		t.Errorf("Timeout = %q, want default %q", s.Timeout, "10m")
	}
	if s.Retries() != 2 {
		t.Errorf("Retries = %d, want default 2", s.Retries())
	}
	if s.IsVerificationGate() {
		t.Error("harvest should not be a verification gate")
	}

	qa := cfg.Pipeline.FindStage("harvest_qa")
	if qa.Timeout != "3m" {
		t.Errorf("explicit Timeout overridden: %q", qa.Timeout)
	}
	if qa.Retries() != 0 {
		t.Errorf("explicit max_retries 0 overridden: %d", qa.Retries())
	}
	// Gate inferred from the _qa suffix when unset.
	if !qa.IsVerificationGate() {
		t.Error("harvest_qa should be inferred as a verification gate")
	}
}

func TestExplicitVerificationGateWinsOverSuffix(t *testing.T) {
	path := writeConfig(t, `
pipeline:
  name: test
  stages:
    - name: review_qa
      agent: checker
      verification_gate: false
    - name: plain_stage
      agent: maker
      verification_gate: true
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Pipeline.FindStage("review_qa").IsVerificationGate() {
		t.Error("explicit verification_gate: false ignored")
	}
	if !cfg.Pipeline.FindStage("plain_stage").IsVerificationGate() {
		t.Error("explicit verification_gate: true ignored")
	}
}

func TestTimeoutDuration(t *testing.T) {
	s := Stage{Timeout: "90s"}
	if d := s.TimeoutDuration(time.Minute); d != 90*time.Second {
		t.Errorf("TimeoutDuration = %v", d)
	}
	s = Stage{}
	if d := s.TimeoutDuration(time.Minute); d != time.Minute {
		t.Errorf("fallback TimeoutDuration = %v", d)
	}
	s = Stage{Timeout: "bogus"}
	if d := s.TimeoutDuration(time.Minute); d != time.Minute {
		t.Errorf("malformed timeout should fall back, got %v", d)
	}
}

func TestValidateForwardDependency(t *testing.T) {
	cfg := &PipelineConfig{Pipeline: Pipeline{
		Name: "p",
		Stages: []Stage{
			{Name: "a", Agent: "x", Dependencies: []string{"b"}},
			{Name: "b", Agent: "y"},
		},
	}}

	errs := Validate(cfg)
	if len(errs) == 0 {
		t.Fatal("forward dependency accepted")
	}
}

func TestValidateSelfAndUnknownDependency(t *testing.T) {
	cfg := &PipelineConfig{Pipeline: Pipeline{
		Name: "p",
		Stages: []Stage{
			{Name: "a", Agent: "x", Dependencies: []string{"a"}},
			{Name: "b", Agent: "y", Dependencies: []string{"ghost"}},
		},
	}}

	errs := Validate(cfg)
	if len(errs) != 2 {
		t.Fatalf("got %d validation errors, want 2: %v", len(errs), errs)
	}
}

func TestValidateDuplicatesAndMissingFields(t *testing.T) {
	cfg := &PipelineConfig{Pipeline: Pipeline{
		Stages: []Stage{
			{Name: "a", Agent: "x"},
			{Name: "a", Agent: ""},
			{Name: "", Agent: "z"},
			{Name: "c", Agent: "w", Timeout: "not-a-duration"},
		},
	}}

	errs := Validate(cfg)
	fields := make(map[string]bool)
	for _, e := range errs {
		fields[e.Field] = true
	}
	for _, want := range []string{
		"pipeline.name",
		"pipeline.stages[1].name",
		"pipeline.stages[1].agent",
		"pipeline.stages[2].name",
		"pipeline.stages[3].timeout",
	} {
		if !fields[want] {
			t.Errorf("missing validation error for %s (got %v)", want, errs)
		}
	}
}

func TestDefaultPipelineIsValid(t *testing.T) {
	cfg := Default()

	if errs := Validate(cfg); len(errs) != 0 {
		t.Fatalf("built-in pipeline invalid: %v", errs)
	}

	if len(cfg.Pipeline.Stages) != 7 {
		t.Errorf("built-in pipeline has %d stages, want 7", len(cfg.Pipeline.Stages))
	}

	// Checker stages are verification gates; makers are not.
	for name, want := range map[string]bool{
		"ingestion_qa":             true,
		"analyst_verification":     true,
		"document_harvest":         false,
		"financial_ratio_analysis": false,
	} {
		s := cfg.Pipeline.FindStage(name)
		if s == nil {
			t.Fatalf("stage %q missing from built-in pipeline", name)
		}
		if got := s.IsVerificationGate(); got != want {
			t.Errorf("stage %q gate = %v, want %v", name, got, want)
		}
	}
}

func TestLoadDefaultFallsBackToBuiltin(t *testing.T) {
	dir := t.TempDir()
	oldWd, _ := os.Getwd()
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	defer os.Chdir(oldWd)
	t.Setenv("HOME", dir)

	cfg, err := LoadDefault()
	if err != nil {
		t.Fatalf("LoadDefault: %v", err)
	}
	if cfg.Pipeline.Name != "gold-loan-nbfc-analysis" {
		t.Errorf("Name = %q", cfg.Pipeline.Name)
	}
}
