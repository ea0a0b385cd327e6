package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load reads and parses a pipeline configuration from the given YAML file
// path, then applies defaults to stages that don't specify their own values.
func Load(path string) (*PipelineConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg PipelineConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// LoadDefault searches for a pipeline config in standard locations and loads
// the first one found: ./nbfc.yaml, then ~/.nbfc/config.yaml. When none
// exists the built-in pipeline is returned.
func LoadDefault() (*PipelineConfig, error) {
	candidates := []string{"nbfc.yaml"}

	home, err := os.UserHomeDir()
	if err == nil {
		candidates = append(candidates, filepath.Join(home, ".nbfc", "config.yaml"))
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}

	return Default(), nil
}

// applyDefaults merges pipeline-level defaults into stages that don't set
// their own values and infers verification-gate flags for legacy configs
// that rely on the "_verification"/"_qa" naming convention.
func applyDefaults(cfg *PipelineConfig) {
	p := &cfg.Pipeline

	if p.Defaults.Timeout == "" {
		p.Defaults.Timeout = "15m"
	}
	if p.Defaults.BackoffBase == "" {
		p.Defaults.BackoffBase = "5s"
	}
	if p.ResultsDir == "" {
		p.ResultsDir = "analysis_output"
	}

	for i := range p.Stages {
		s := &p.Stages[i]

		if s.Timeout == "" {
			s.Timeout = p.Defaults.Timeout
		}
		if s.MaxRetries == nil {
			retries := p.Defaults.MaxRetries
			s.MaxRetries = &retries
		}
		if s.VerificationGate == nil {
			gate := strings.HasSuffix(s.Name, "_verification") || strings.HasSuffix(s.Name, "_qa")
			s.VerificationGate = &gate
		}
	}
}

// Default returns the built-in seven-stage gold loan NBFC analysis pipeline.
func Default() *PipelineConfig {
	intp := func(n int) *int { return &n }

	cfg := &PipelineConfig{
		Pipeline: Pipeline{
			Name:    "gold-loan-nbfc-analysis",
			Company: "gold loan NBFC",
			Defaults: StageDefaults{
				Model:      "gemini-2.5-flash-lite-preview-06-17",
				MaxRetries: 1,
			},
			Stages: []Stage{
				{
					Name:        "document_harvest",
					Agent:       "resource_pooler",
					Description: "Document harvest & structuring",
					Timeout:     "15m",
					MaxRetries:  intp(1),
					Accept: AcceptRules{
						RequiredFields: []string{"pdf_analyses", "csv_analyses", "processing_summary"},
						MinFloat:       map[string]float64{"processing_summary.processed_files": 1},
					},
				},
				{
					Name:         "ingestion_qa",
					Agent:        "resource_pooler_checker",
					Description:  "Resource verification & QA",
					Dependencies: []string{"document_harvest"},
					Timeout:      "5m",
					MaxRetries:   intp(2),
					Accept:       AcceptRules{RequireVerified: true},
				},
				{
					Name:         "qualitative_quantitative_inquiry",
					Agent:        "analyst",
					Description:  "Analyst investigation & document analysis",
					Dependencies: []string{"ingestion_qa"},
					Timeout:      "20m",
					MaxRetries:   intp(1),
				},
				{
					Name:         "analyst_verification",
					Agent:        "analyst_checker",
					Description:  "Analyst output verification",
					Dependencies: []string{"qualitative_quantitative_inquiry"},
					Timeout:      "5m",
					MaxRetries:   intp(2),
					Accept:       AcceptRules{RequireVerified: true},
				},
				{
					Name:         "financial_ratio_analysis",
					Agent:        "associate",
					Description:  "Financial ratio deep-dive analysis",
					Dependencies: []string{"analyst_verification"},
					Timeout:      "15m",
					MaxRetries:   intp(1),
					Accept: AcceptRules{
						MinItems: map[string]int{"ratio_analyses": 1},
					},
				},
				{
					Name:         "sector_research",
					Agent:        "sector_specialist",
					Description:  "External benchmark & macro analysis",
					Dependencies: []string{"financial_ratio_analysis"},
					Timeout:      "25m",
					MaxRetries:   intp(1),
				},
				{
					Name:         "ic_synthesis",
					Agent:        "senior",
					Description:  "IC-level synthesis & risk-return",
					Dependencies: []string{"sector_research"},
					Timeout:      "10m",
					MaxRetries:   intp(1),
					Accept: AcceptRules{
						RequiredFields: []string{"ic_memorandum"},
					},
				},
			},
		},
	}
	applyDefaults(cfg)
	return cfg
}
