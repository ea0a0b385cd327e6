package orchestrator

import "fmt"

// DependencyError means a stage could not start because a prerequisite stage
// has no successful output, or a verification gate it depends on rejected the
// work. It is never retried.
type DependencyError struct {
	Stage      string
	Dependency string
	Unverified bool
}

func (e *DependencyError) Error() string {
	if e.Unverified {
		return fmt.Sprintf("stage %s: dependency %s did not verify", e.Stage, e.Dependency)
	}
	return fmt.Sprintf("stage %s: dependency %s has no completed output", e.Stage, e.Dependency)
}

// StageError means a stage's agent kept failing until the retry budget was
// spent.
type StageError struct {
	Stage    string
	Attempts int
	Err      error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s failed after %d attempts: %v", e.Stage, e.Attempts, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// ValidationError means a stage's agent returned, but its output failed the
// stage's acceptance rules. Validation runs once per successful attempt and
// is never retried.
type ValidationError struct {
	Stage  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("stage %s output rejected: %s", e.Stage, e.Reason)
}
