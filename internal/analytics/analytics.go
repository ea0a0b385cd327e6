// Package analytics aggregates the run history database into operational
// stats on stage durations, retry behavior and daily throughput.
package analytics

import (
	"database/sql"
	"fmt"
	"math"
	"sort"
	"time"
)

// DB is the interface for database queries used by analytics.
type DB interface {
	Conn() *sql.DB
}

// timestamp formats to try when parsing timestamps from the database
var timestampFormats = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05Z",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.000",
}

func parseTimestamp(s string) (time.Time, error) {
	for _, f := range timestampFormats {
		if t, err := time.Parse(f, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp format: %q", s)
}

// StageDuration holds duration stats for a stage.
type StageDuration struct {
	Stage string  `json:"stage"`
	Count int     `json:"count"`
	Avg   float64 `json:"avg_minutes"`
	P50   float64 `json:"p50_minutes"`
	P95   float64 `json:"p95_minutes"`
}

// QueryStageDurations returns average and percentile attempt durations per
// stage. Each terminal event (completed, verified or failed) is paired with
// the most recent prior running event for the same run and stage, so every
// retry attempt is measured separately.
func QueryStageDurations(database DB, since string) ([]StageDuration, error) {
	query := `
		SELECT se1.stage, se1.timestamp as end_ts,
			(SELECT MAX(se2.timestamp) FROM stage_events se2
			 WHERE se2.run_id = se1.run_id
			 AND se2.stage = se1.stage
			 AND se2.status = 'running'
			 AND se2.id < se1.id) as start_ts
		FROM stage_events se1
		WHERE se1.status IN ('completed', 'verified', 'failed')`

	args := []interface{}{}
	if since != "" {
		query += ` AND se1.timestamp >= ?`
		args = append(args, since)
	}

	rows, err := database.Conn().Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query stage durations: %w", err)
	}
	defer rows.Close()

	stageDurations := make(map[string][]float64)
	for rows.Next() {
		var stage string
		var endTS string
		var startTS sql.NullString
		if err := rows.Scan(&stage, &endTS, &startTS); err != nil {
			return nil, fmt.Errorf("scan stage duration: %w", err)
		}
		if !startTS.Valid {
			continue
		}
		start, err := parseTimestamp(startTS.String)
		if err != nil {
			continue
		}
		end, err := parseTimestamp(endTS)
		if err != nil {
			continue
		}
		minutes := end.Sub(start).Minutes()
		if minutes > 0 {
			stageDurations[stage] = append(stageDurations[stage], minutes)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var results []StageDuration
	for stage, durations := range stageDurations {
		sort.Float64s(durations)
		results = append(results, StageDuration{
			Stage: stage,
			Count: len(durations),
			Avg:   avg(durations),
			P50:   percentile(durations, 50),
			P95:   percentile(durations, 95),
		})
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Stage < results[j].Stage
	})
	return results, nil
}

// StageReliability holds success and retry stats for a stage across runs.
type StageReliability struct {
	Stage      string  `json:"stage"`
	Executions int     `json:"executions"`
	FirstPass  float64 `json:"first_pass_pct"`
	AfterRetry float64 `json:"after_retry_pct"`
	Failed     float64 `json:"failed_pct"`
}

// QueryStageReliability returns, per stage, how often it succeeds on the
// first attempt, succeeds after retries, or exhausts its budget. One
// execution is one (run, stage) pair; attempts are its running events.
func QueryStageReliability(database DB, since string) ([]StageReliability, error) {
	query := `
		SELECT stage,
			SUM(CASE WHEN status = 'running' THEN 1 ELSE 0 END) as attempts,
			MAX(CASE WHEN status IN ('completed', 'verified') THEN 1 ELSE 0 END) as succeeded
		FROM stage_events`

	args := []interface{}{}
	if since != "" {
		query += ` WHERE timestamp >= ?`
		args = append(args, since)
	}
	query += ` GROUP BY run_id, stage`

	rows, err := database.Conn().Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query stage reliability: %w", err)
	}
	defer rows.Close()

	type counts struct {
		executions, firstPass, afterRetry, failed int
	}
	byStage := make(map[string]*counts)
	for rows.Next() {
		var stage string
		var attempts, succeeded int
		if err := rows.Scan(&stage, &attempts, &succeeded); err != nil {
			return nil, fmt.Errorf("scan stage reliability: %w", err)
		}
		c := byStage[stage]
		if c == nil {
			c = &counts{}
			byStage[stage] = c
		}
		c.executions++
		switch {
		case succeeded == 1 && attempts <= 1:
			c.firstPass++
		case succeeded == 1:
			c.afterRetry++
		default:
			c.failed++
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var results []StageReliability
	for stage, c := range byStage {
		results = append(results, StageReliability{
			Stage:      stage,
			Executions: c.executions,
			FirstPass:  pct(c.firstPass, c.executions),
			AfterRetry: pct(c.afterRetry, c.executions),
			Failed:     pct(c.failed, c.executions),
		})
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].Stage < results[j].Stage
	})
	return results, nil
}

// RunThroughput holds per-day run counts and durations.
type RunThroughput struct {
	Period         string  `json:"period"`
	Started        int     `json:"started"`
	Completed      int     `json:"completed"`
	Failed         int     `json:"failed"`
	AvgCompletion  float64 `json:"avg_completion_pct"`
	AvgDurationMin float64 `json:"avg_duration_minutes"`
}

// QueryRunThroughput returns daily run counts, average completion rate
// and average wall-clock duration for finished runs.
func QueryRunThroughput(database DB, since string) ([]RunThroughput, error) {
	query := `
		SELECT
			strftime('%Y-%m-%d', started_at) as period,
			COUNT(*) as started,
			SUM(CASE WHEN status = 'completed' THEN 1 ELSE 0 END) as completed,
			SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END) as failed,
			AVG(completion_rate) as avg_completion,
			AVG(CASE WHEN finished_at IS NOT NULL
				THEN (julianday(finished_at) - julianday(started_at)) * 24 * 60
				END) as avg_minutes
		FROM runs`

	args := []interface{}{}
	if since != "" {
		query += ` WHERE started_at >= ?`
		args = append(args, since)
	}
	query += ` GROUP BY period ORDER BY period DESC LIMIT 14`

	rows, err := database.Conn().Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query run throughput: %w", err)
	}
	defer rows.Close()

	var results []RunThroughput
	for rows.Next() {
		var rt RunThroughput
		var avgCompletion, avgMinutes sql.NullFloat64
		if err := rows.Scan(&rt.Period, &rt.Started, &rt.Completed, &rt.Failed, &avgCompletion, &avgMinutes); err != nil {
			return nil, fmt.Errorf("scan run throughput: %w", err)
		}
		if avgCompletion.Valid {
			rt.AvgCompletion = math.Round(avgCompletion.Float64*1000) / 10
		}
		if avgMinutes.Valid {
			rt.AvgDurationMin = math.Round(avgMinutes.Float64*10) / 10
		}
		results = append(results, rt)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// --- helpers ---

func avg(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return math.Round(sum/float64(len(values))*10) / 10
}

func percentile(sorted []float64, p int) float64 {
	if len(sorted) == 0 {
		return 0
	}
	rank := float64(p) / 100.0 * float64(len(sorted)-1)
	lower := int(math.Floor(rank))
	upper := int(math.Ceil(rank))
	if lower == upper || upper >= len(sorted) {
		return math.Round(sorted[lower]*10) / 10
	}
	weight := rank - float64(lower)
	return math.Round((sorted[lower]*(1-weight)+sorted[upper]*weight)*10) / 10
}

func pct(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(n)/float64(total)*1000) / 10
}
