package config

import "time"

// PipelineConfig is the top-level configuration structure parsed from YAML.
type PipelineConfig struct {
	Pipeline Pipeline `yaml:"pipeline"`
}

// Pipeline defines the full analysis pipeline: metadata, defaults, and the
// ordered stage sequence.
type Pipeline struct {
	Name       string        `yaml:"name"`
	Company    string        `yaml:"company"`
	ResultsDir string        `yaml:"results_dir"`
	Defaults   StageDefaults `yaml:"defaults"`
	Stages     []Stage       `yaml:"stages"`
}

// StageDefaults holds values applied to stages that don't specify their own.
// Durations are strings in time.ParseDuration syntax.
type StageDefaults struct {
	Model       string `yaml:"model"`
	Timeout     string `yaml:"timeout"`
	MaxRetries  int    `yaml:"max_retries"`
	BackoffBase string `yaml:"backoff_base"`
}

// Stage is the static declaration of one pipeline step. It is not mutated at
// runtime.
type Stage struct {
	Name         string   `yaml:"name"`
	Agent        string   `yaml:"agent"`
	Description  string   `yaml:"description"`
	Dependencies []string `yaml:"dependencies"`
	Timeout      string   `yaml:"timeout"`
	MaxRetries   *int     `yaml:"max_retries"`

	// VerificationGate marks the stage as a verification checkpoint: stages
	// depending on it require its payload to carry verified=true, not merely
	// to exist. When omitted in YAML it is inferred from the historical
	// "_verification"/"_qa" name suffixes.
	VerificationGate *bool `yaml:"verification_gate"`

	// Accept declares the output acceptance rules evaluated once per
	// successful execution attempt.
	Accept AcceptRules `yaml:"accept"`
}

// AcceptRules is the declarative output validation applied to a stage's
// returned payload.
type AcceptRules struct {
	RequiredFields  []string           `yaml:"required_fields"`
	RequireVerified bool               `yaml:"require_verified"`
	MinItems        map[string]int     `yaml:"min_items"`
	MinFloat        map[string]float64 `yaml:"min_float"`
}

// Retries returns the stage's retry budget.
func (s *Stage) Retries() int {
	if s.MaxRetries == nil {
		return 0
	}
	return *s.MaxRetries
}

// TimeoutDuration parses the stage timeout, falling back to fallback when
// the field is empty or malformed.
func (s *Stage) TimeoutDuration(fallback time.Duration) time.Duration {
	if s.Timeout == "" {
		return fallback
	}
	d, err := time.ParseDuration(s.Timeout)
	if err != nil {
		return fallback
	}
	return d
}

// IsVerificationGate reports whether the stage is a verification checkpoint.
func (s *Stage) IsVerificationGate() bool {
	return s.VerificationGate != nil && *s.VerificationGate
}

// BackoffBaseDuration parses the defaults' backoff base, or returns 5s.
func (d *StageDefaults) BackoffBaseDuration() time.Duration {
	if d.BackoffBase == "" {
		return 5 * time.Second
	}
	parsed, err := time.ParseDuration(d.BackoffBase)
	if err != nil {
		return 5 * time.Second
	}
	return parsed
}

// FindStage returns the stage with the given name, or nil.
func (p *Pipeline) FindStage(name string) *Stage {
	for i := range p.Stages {
		if p.Stages[i].Name == name {
			return &p.Stages[i]
		}
	}
	return nil
}
