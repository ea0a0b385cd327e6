// Package orchestrator drives the analysis pipeline: it validates stage
// dependencies against the audit log, executes agents under per-stage
// timeouts with a bounded retry budget, validates their output, and halts the
// whole run on the first unrecoverable failure.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Arshim28/nbfc-system/internal/agent"
	"github.com/Arshim28/nbfc-system/internal/audit"
	"github.com/Arshim28/nbfc-system/internal/config"
)

// Summary is the outcome of one pipeline run.
type Summary struct {
	Pipeline       string    `json:"pipeline"`
	Company        string    `json:"company"`
	TotalStages    int       `json:"total_stages"`
	Completed      []string  `json:"completed_stages"`
	Failed         []string  `json:"failed_stages"`
	CompletionRate float64   `json:"completion_rate"`
	StartedAt      time.Time `json:"started_at"`
	FinishedAt     time.Time `json:"finished_at"`
	Elapsed        float64   `json:"elapsed_seconds"`
}

// Orchestrator runs the configured stage sequence. One orchestrator serves
// one run; the audit log it owns accumulates the run's full history.
type Orchestrator struct {
	pipeline *config.Pipeline
	agents   map[string]agent.Agent
	log      *audit.Log
	logger   *slog.Logger

	// sleep is swapped out in tests so retry backoff does not stall them.
	sleep func(ctx context.Context, d time.Duration) error

	// events mirrors stage transitions to an external sink (the run
	// history database). Nil when no sink is attached.
	events func(stage, agentName, status, detail string)
}

// New builds an orchestrator for the pipeline. Every stage's agent must be
// present in the roster.
func New(pipeline *config.Pipeline, roster map[string]agent.Agent) (*Orchestrator, error) {
	for i := range pipeline.Stages {
		if _, ok := roster[pipeline.Stages[i].Agent]; !ok {
			return nil, fmt.Errorf("stage %s: no agent named %q", pipeline.Stages[i].Name, pipeline.Stages[i].Agent)
		}
	}
	return &Orchestrator{
		pipeline: pipeline,
		agents:   roster,
		log:      audit.New(),
		logger:   slog.Default().With("component", "orchestrator", "pipeline", pipeline.Name),
		sleep:    sleepCtx,
	}, nil
}

// AuditLog exposes the run's audit trail for persistence and inspection.
func (o *Orchestrator) AuditLog() *audit.Log {
	return o.log
}

// UseAuditLog swaps in an existing audit trail so a run can pick up where a
// saved log left off.
func (o *Orchestrator) UseAuditLog(l *audit.Log) {
	o.log = l
}

// SetEventSink attaches a sink that receives every stage transition.
func (o *Orchestrator) SetEventSink(fn func(stage, agentName, status, detail string)) {
	o.events = fn
}

// record appends to the audit log and mirrors the transition to the sink.
func (o *Orchestrator) record(agentName, stage string, data map[string]any, status audit.Status, details string) {
	o.log.Record(agentName, stage, data, status, details)
	if o.events != nil {
		o.events(stage, agentName, status.String(), details)
	}
}

// Run executes every stage in order. It returns a summary either way; the
// error is non-nil when a stage failed and the pipeline halted.
func (o *Orchestrator) Run(ctx context.Context, params agent.Params) (*Summary, error) {
	started := time.Now()
	o.logger.Info("pipeline starting", "stages", len(o.pipeline.Stages), "company", o.pipeline.Company)

	var completed, failed []string
	var runErr error

	for i := range o.pipeline.Stages {
		stage := &o.pipeline.Stages[i]

		if err := o.checkDependencies(stage); err != nil {
			o.record(stage.Agent, stage.Name, nil, audit.StatusFailed, err.Error())
			failed = append(failed, stage.Name)
			runErr = err
			break
		}

		payload, err := o.executeWithRetry(ctx, stage, params)
		if err != nil {
			failed = append(failed, stage.Name)
			runErr = err
			break
		}

		status := audit.StatusCompleted
		if stage.IsVerificationGate() && payload.Verified() {
			status = audit.StatusVerified
		}
		o.record(stage.Agent, stage.Name, payload, status, stage.Description)
		completed = append(completed, stage.Name)
		o.logger.Info("stage completed", "stage", stage.Name, "status", status.String())
	}

	finished := time.Now()
	summary := &Summary{
		Pipeline:       o.pipeline.Name,
		Company:        o.pipeline.Company,
		TotalStages:    len(o.pipeline.Stages),
		Completed:      completed,
		Failed:         failed,
		CompletionRate: float64(len(completed)) / float64(len(o.pipeline.Stages)),
		StartedAt:      started,
		FinishedAt:     finished,
		Elapsed:        finished.Sub(started).Seconds(),
	}

	if runErr != nil {
		o.logger.Error("pipeline halted", "failed_stage", failed[len(failed)-1], "error", runErr)
		return summary, runErr
	}
	o.logger.Info("pipeline complete", "stages", len(completed), "elapsed", summary.Elapsed)
	return summary, nil
}

// checkDependencies verifies every prerequisite stage has successful output
// in the audit log, and that verification-gate prerequisites actually
// verified the work they checked.
func (o *Orchestrator) checkDependencies(stage *config.Stage) error {
	for _, dep := range stage.Dependencies {
		data, ok := o.log.StageData(dep)
		if !ok {
			return &DependencyError{Stage: stage.Name, Dependency: dep}
		}
		depStage := o.pipeline.FindStage(dep)
		if depStage != nil && depStage.IsVerificationGate() && !agent.Payload(data).Verified() {
			return &DependencyError{Stage: stage.Name, Dependency: dep, Unverified: true}
		}
	}
	return nil
}

// executeWithRetry runs the stage's agent up to MaxRetries+1 times. Each
// attempt gets a fresh timeout context. A failed attempt is recorded in the
// audit log before the backoff; output validation runs once per successful
// attempt and its rejection is final.
func (o *Orchestrator) executeWithRetry(ctx context.Context, stage *config.Stage, params agent.Params) (agent.Payload, error) {
	ag := o.agents[stage.Agent]
	attempts := stage.Retries() + 1
	timeout := stage.TimeoutDuration(defaultTimeout(o.pipeline))
	backoffBase := o.pipeline.Defaults.BackoffBaseDuration()

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		o.logger.Info("stage starting", "stage", stage.Name, "attempt", attempt, "of", attempts)
		o.record(ag.Name(), stage.Name, nil, audit.StatusRunning,
			fmt.Sprintf("attempt %d/%d", attempt, attempts))

		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		startAt := time.Now()
		payload, err := ag.Execute(attemptCtx, o.log, params)
		cancel()
		elapsed := time.Since(startAt)

		if err == nil {
			if msg, flagged := payload.ErrIndicator(); flagged {
				err = fmt.Errorf("agent reported error: %s", msg)
			}
		}

		if err != nil {
			lastErr = err
			o.record(ag.Name(), stage.Name, nil, audit.StatusFailed, err.Error())
			o.logger.Warn("stage attempt failed",
				"stage", stage.Name, "attempt", attempt, "elapsed", elapsed, "error", err)

			if ctx.Err() != nil {
				return nil, fmt.Errorf("stage %s: %w", stage.Name, ctx.Err())
			}
			if attempt < attempts {
				if serr := o.sleep(ctx, backoffBase*time.Duration(attempt)); serr != nil {
					return nil, fmt.Errorf("stage %s: %w", stage.Name, serr)
				}
			}
			continue
		}

		if verr := validateOutput(stage, payload); verr != nil {
			o.record(ag.Name(), stage.Name, nil, audit.StatusFailed, verr.Error())
			return nil, verr
		}
		return payload, nil
	}

	return nil, &StageError{Stage: stage.Name, Attempts: attempts, Err: lastErr}
}

// validateOutput applies the stage's acceptance rules to a returned payload.
func validateOutput(stage *config.Stage, payload agent.Payload) error {
	rules := stage.Accept
	for _, field := range rules.RequiredFields {
		if _, ok := payload.At(field); !ok {
			return &ValidationError{Stage: stage.Name, Reason: fmt.Sprintf("missing required field %q", field)}
		}
	}
	if rules.RequireVerified {
		if _, ok := payload[agent.VerifiedKey]; !ok {
			return &ValidationError{Stage: stage.Name, Reason: "missing verification verdict"}
		}
	}
	for field, min := range rules.MinItems {
		if got := payload.LenAt(field); got < min {
			return &ValidationError{Stage: stage.Name,
				Reason: fmt.Sprintf("field %q has %d items, need at least %d", field, got, min)}
		}
	}
	for field, min := range rules.MinFloat {
		if got := payload.FloatAt(field); got < min {
			return &ValidationError{Stage: stage.Name,
				Reason: fmt.Sprintf("field %q is %g, need at least %g", field, got, min)}
		}
	}
	return nil
}

func defaultTimeout(p *config.Pipeline) time.Duration {
	if d, err := time.ParseDuration(p.Defaults.Timeout); err == nil {
		return d
	}
	return 15 * time.Minute
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
