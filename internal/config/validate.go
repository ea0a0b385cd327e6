package config

import (
	"fmt"
	"time"
)

// ValidationError represents a single validation issue with a config.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks a PipelineConfig for structural and semantic errors.
// It returns a slice of all validation errors found (empty if valid).
func Validate(cfg *PipelineConfig) []ValidationError {
	var errs []ValidationError
	p := cfg.Pipeline

	if p.Name == "" {
		errs = append(errs, ValidationError{Field: "pipeline.name", Message: "is required"})
	}
	if len(p.Stages) == 0 {
		errs = append(errs, ValidationError{Field: "pipeline.stages", Message: "at least one stage is required"})
	}

	// Dependencies may only reference stages declared earlier in the
	// sequence: forward and circular references are configuration errors.
	seen := make(map[string]bool)
	for i, s := range p.Stages {
		prefix := fmt.Sprintf("pipeline.stages[%d]", i)

		if s.Name == "" {
			errs = append(errs, ValidationError{Field: prefix + ".name", Message: "is required"})
			continue
		}
		if seen[s.Name] {
			errs = append(errs, ValidationError{
				Field:   prefix + ".name",
				Message: fmt.Sprintf("duplicate stage name %q", s.Name),
			})
		}
		if s.Agent == "" {
			errs = append(errs, ValidationError{Field: prefix + ".agent", Message: "is required"})
		}
		if s.Timeout != "" {
			if _, err := time.ParseDuration(s.Timeout); err != nil {
				errs = append(errs, ValidationError{
					Field:   prefix + ".timeout",
					Message: fmt.Sprintf("invalid duration %q", s.Timeout),
				})
			}
		}
		if s.MaxRetries != nil && *s.MaxRetries < 0 {
			errs = append(errs, ValidationError{Field: prefix + ".max_retries", Message: "must be >= 0"})
		}

		for _, dep := range s.Dependencies {
			if dep == s.Name {
				errs = append(errs, ValidationError{
					Field:   prefix + ".dependencies",
					Message: fmt.Sprintf("stage %q depends on itself", s.Name),
				})
				continue
			}
			if !seen[dep] {
				errs = append(errs, ValidationError{
					Field:   prefix + ".dependencies",
					Message: fmt.Sprintf("references %q which is not an earlier stage", dep),
				})
			}
		}

		seen[s.Name] = true
	}

	return errs
}
