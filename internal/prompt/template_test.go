package prompt

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRenderExpandsVariables(t *testing.T) {
	got, err := Render("Question: {{question}} for {{company}}", Vars{
		"question": "What is the gearing?",
		"company":  "Acme Finance",
	})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	want := "Question: What is the gearing? for Acme Finance"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestRenderMissingVariableFails(t *testing.T) {
	_, err := Render("{{a}} and {{b}}", Vars{"a": "x"})
	if err == nil {
		t.Fatal("expected error for missing variable")
	}
	if !strings.Contains(err.Error(), "b") {
		t.Errorf("error does not name the missing variable: %v", err)
	}
}

func TestRenderConditionalIncluded(t *testing.T) {
	tmpl := "head{{#if note}} note: {{note}}{{/if}} tail"
	got, err := Render(tmpl, Vars{"note": "watch liquidity"})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if got != "head note: watch liquidity tail" {
		t.Errorf("got %q", got)
	}
}

func TestRenderConditionalOmittedWhenEmpty(t *testing.T) {
	tmpl := "head{{#if note}} note: {{note}}{{/if}} tail"
	for _, vars := range []Vars{{}, {"note": ""}} {
		got, err := Render(tmpl, vars)
		if err != nil {
			t.Fatalf("Render: %v", err)
		}
		if got != "head tail" {
			t.Errorf("got %q, want %q", got, "head tail")
		}
	}
}

func TestRenderNestedConditionals(t *testing.T) {
	tmpl := "{{#if outer}}A{{#if inner}}B{{/if}}C{{/if}}"
	got, err := Render(tmpl, Vars{"outer": "1", "inner": "1"})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if got != "ABC" {
		t.Errorf("both set: got %q, want ABC", got)
	}

	got, err = Render(tmpl, Vars{"outer": "1"})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if got != "AC" {
		t.Errorf("inner unset: got %q, want AC", got)
	}
}

func TestRenderDanglingClose(t *testing.T) {
	if _, err := Render("text {{/if}}", nil); err == nil {
		t.Error("expected error for dangling {{/if}}")
	}
}

func TestRenderUnclosedConditional(t *testing.T) {
	if _, err := Render("{{#if x}}body", Vars{"x": "1"}); err == nil {
		t.Error("expected error for unclosed conditional")
	}
}

func TestLoadBuiltin(t *testing.T) {
	tmpl, err := Load(AnalystQuestion, "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !strings.Contains(tmpl, "{{question}}") {
		t.Errorf("builtin analyst template missing question placeholder")
	}
}

func TestLoadUnknownTemplate(t *testing.T) {
	if _, err := Load("nope.md", ""); err == nil {
		t.Error("expected error for unknown template")
	}
}

func TestLoadOverrideFromDataDir(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "prompts"), 0o755); err != nil {
		t.Fatal(err)
	}
	custom := "Summarize {{topic}} in one line."
	if err := os.WriteFile(filepath.Join(dir, "prompts", SectorQuery), []byte(custom), 0o644); err != nil {
		t.Fatal(err)
	}

	tmpl, err := Load(SectorQuery, dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if tmpl != custom {
		t.Errorf("override not used: got %q", tmpl)
	}

	// Other templates still come from the builtins.
	tmpl, err = Load(Memorandum, dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !strings.Contains(tmpl, "investment committee memorandum") {
		t.Errorf("builtin memorandum not served alongside override")
	}
}

func TestBuildRendersBuiltin(t *testing.T) {
	got, err := Build(Memorandum, "", Vars{
		"company": "Acme Finance",
		"stages":  "=== document_harvest ===\n{}",
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !strings.Contains(got, "Acme Finance") || !strings.Contains(got, "document_harvest") {
		t.Errorf("rendered memorandum missing variables:\n%s", got)
	}
}

// Every builtin must render cleanly with its documented variables.
func TestBuiltinsRender(t *testing.T) {
	vars := Vars{
		"rows":     "50",
		"file":     "balances.csv",
		"table":    "a,b\n1,2",
		"context":  "ctx",
		"question": "q",
		"analyses": "{}",
		"topic":    "gold prices",
		"notes":    "## q\nfinding",
		"company":  "Acme Finance",
		"stages":   "{}",
	}
	for name, tmpl := range builtinTemplates {
		if _, err := Render(tmpl, vars); err != nil {
			t.Errorf("builtin %s does not render: %v", name, err)
		}
	}
}
