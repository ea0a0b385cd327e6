// Package audit holds the append-only record of every stage attempt in a
// pipeline run. The log is the sole communication channel between stages:
// agents read the most recent successful payload of a prior stage and write
// their own result back. Entries are never mutated or deleted.
package audit

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// Entry is one row in the audit log: a single attempt of a single stage.
type Entry struct {
	Timestamp time.Time      `json:"timestamp"`
	Agent     string         `json:"agent"`
	Stage     string         `json:"stage"`
	Status    Status         `json:"status"`
	Data      map[string]any `json:"data"`
	Details   string         `json:"details"`
	Elapsed   float64        `json:"elapsed_time"` // seconds since log start
}

// Log is an append-only sequence of entries, ordered by insertion.
type Log struct {
	entries      []Entry
	start        time.Time
	currentStage string
	logger       *slog.Logger
}

// New creates an empty log whose elapsed clock starts now.
func New() *Log {
	return &Log{
		start:  time.Now(),
		logger: slog.Default().With("component", "audit"),
	}
}

// SetLogger substitutes the slog logger used for the per-record line.
func (l *Log) SetLogger(logger *slog.Logger) {
	if logger != nil {
		l.logger = logger
	}
}

// Record appends an entry. It never fails for a valid status; the payload is
// stored as-is and is opaque to the log.
func (l *Log) Record(agent, stage string, data map[string]any, status Status, details string) {
	entry := Entry{
		Timestamp: time.Now(),
		Agent:     agent,
		Stage:     stage,
		Status:    status,
		Data:      data,
		Details:   details,
		Elapsed:   time.Since(l.start).Seconds(),
	}
	l.entries = append(l.entries, entry)
	l.currentStage = stage

	if details != "" {
		l.logger.Info("stage event", "agent", agent, "stage", stage, "status", status.String(), "details", details)
	} else {
		l.logger.Info("stage event", "agent", agent, "stage", stage, "status", status.String())
	}
}

// StageData returns the payload of the most recent entry for stage whose
// status is completed or verified. Entries with other statuses are skipped
// during the reverse scan, so a later failed attempt cannot hide an earlier
// success.
func (l *Log) StageData(stage string) (map[string]any, bool) {
	for i := len(l.entries) - 1; i >= 0; i-- {
		e := l.entries[i]
		if e.Stage == stage && e.Status.IsSuccess() {
			return e.Data, true
		}
	}
	return nil, false
}

// AgentData is StageData keyed by agent identity.
func (l *Log) AgentData(agent string) (map[string]any, bool) {
	for i := len(l.entries) - 1; i >= 0; i-- {
		e := l.entries[i]
		if e.Agent == agent && e.Status.IsSuccess() {
			return e.Data, true
		}
	}
	return nil, false
}

// Entries returns a snapshot copy of the full history.
func (l *Log) Entries() []Entry {
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the number of recorded entries.
func (l *Log) Len() int {
	return len(l.entries)
}

// CurrentStage returns the stage of the most recently recorded entry.
func (l *Log) CurrentStage() string {
	return l.currentStage
}

// Start returns the instant the log's elapsed clock started.
func (l *Log) Start() time.Time {
	return l.start
}

// StagesWithStatus returns, in insertion order, the distinct stage names that
// have at least one entry with the given status.
func (l *Log) StagesWithStatus(status Status) []string {
	seen := make(map[string]bool)
	var stages []string
	for _, e := range l.entries {
		if e.Status == status && !seen[e.Stage] {
			seen[e.Stage] = true
			stages = append(stages, e.Stage)
		}
	}
	return stages
}

// wireEntry is the persisted form: timestamps as RFC3339 strings, statuses as
// their wire names.
type wireEntry struct {
	Timestamp string         `json:"timestamp"`
	Agent     string         `json:"agent"`
	Stage     string         `json:"stage"`
	Status    Status         `json:"status"`
	Data      map[string]any `json:"data"`
	Details   string         `json:"details"`
	Elapsed   float64        `json:"elapsed_time"`
}

// SaveFile serialises the full entry sequence as a JSON array.
func (l *Log) SaveFile(path string) error {
	wire := make([]wireEntry, len(l.entries))
	for i, e := range l.entries {
		wire[i] = wireEntry{
			Timestamp: e.Timestamp.Format(time.RFC3339Nano),
			Agent:     e.Agent,
			Stage:     e.Stage,
			Status:    e.Status,
			Data:      e.Data,
			Details:   e.Details,
			Elapsed:   e.Elapsed,
		}
	}

	data, err := json.MarshalIndent(wire, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal audit log: %w", err)
	}
	data = append(data, '\n')

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write audit log: %w", err)
	}
	return nil
}

// LoadFile reads a previously saved log. Lookups on the reloaded log resolve
// identically to the in-memory original.
func LoadFile(path string) (*Log, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var wire []wireEntry
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("unmarshal audit log %s: %w", path, err)
	}

	l := New()
	for _, w := range wire {
		ts, err := time.Parse(time.RFC3339Nano, w.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("parse timestamp %q: %w", w.Timestamp, err)
		}
		l.entries = append(l.entries, Entry{
			Timestamp: ts,
			Agent:     w.Agent,
			Stage:     w.Stage,
			Status:    w.Status,
			Data:      w.Data,
			Details:   w.Details,
			Elapsed:   w.Elapsed,
		})
	}
	if len(l.entries) > 0 {
		l.start = l.entries[0].Timestamp
		l.currentStage = l.entries[len(l.entries)-1].Stage
	}
	return l, nil
}
