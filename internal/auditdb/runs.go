package auditdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gtfsaudit.onebusaway.org/internal/audit"
	"gtfsaudit.onebusaway.org/internal/feed"
	"gtfsaudit.onebusaway.org/internal/logging"
)

// Run is one stored audit run without its reports.
type Run struct {
	ID        string               `json:"id"`
	Source    string               `json:"source"`
	StartedAt time.Time            `json:"started_at"`
	Duration  time.Duration        `json:"duration"`
	Score     int                  `json:"score"`
	Status    audit.Status         `json:"status"`
	Counts    map[audit.Status]int `json:"counts"`
	Feed      feed.Summary         `json:"feed"`
}

// runSummary is the JSON stored in audit_runs.summary_json.
type runSummary struct {
	Counts map[audit.Status]int `json:"counts"`
	Feed   feed.Summary         `json:"feed"`
}

// SaveRun stores the run and all its reports in one transaction.
func (c *Client) SaveRun(ctx context.Context, source string, summary audit.Summary, feedSummary feed.Summary) (err error) {
	summaryJSON, err := json.Marshal(runSummary{Counts: summary.Counts, Feed: feedSummary})
	if err != nil {
		return fmt.Errorf("error encoding run summary: %w", err)
	}

	tx, err := c.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error starting transaction: %w", err)
	}
	defer logging.SafeRollbackWithLogging(tx, c.logger, "save_run")

	_, err = tx.ExecContext(ctx,
		`INSERT INTO audit_runs (id, source, started_at, duration_ms, score, status, summary_json)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		summary.RunID, source, summary.StartedAt.UTC().Format(timeLayout),
		summary.Duration.Milliseconds(), summary.Score, string(summary.Status), string(summaryJSON),
	)
	if err != nil {
		return fmt.Errorf("error inserting run %s: %w", summary.RunID, err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO audit_reports (run_id, rule_id, file_type, status, score, report_json)
		 VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("error preparing statement: %w", err)
	}
	defer logging.SafeCloseWithLogging(stmt, c.logger, "save_run_statement")

	for _, rep := range summary.Reports {
		reportJSON, err := json.Marshal(rep)
		if err != nil {
			return fmt.Errorf("error encoding report %s: %w", rep.RuleID, err)
		}
		if _, err := stmt.ExecContext(ctx, summary.RunID, rep.RuleID, rep.FileType,
			string(rep.Status), rep.Score, string(reportJSON)); err != nil {
			return fmt.Errorf("error inserting report %s: %w", rep.RuleID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("error committing transaction: %w", err)
	}

	logging.LogOperation(c.logger, "audit_run_saved",
		slog.String("run_id", summary.RunID),
		slog.Int("reports", len(summary.Reports)))
	return nil
}

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const runColumns = `id, source, started_at, duration_ms, score, status, summary_json`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (Run, error) {
	var (
		run         Run
		startedAt   string
		durationMs  int64
		status      string
		summaryJSON string
	)
	if err := row.Scan(&run.ID, &run.Source, &startedAt, &durationMs, &run.Score, &status, &summaryJSON); err != nil {
		return Run{}, err
	}
	t, err := time.Parse(timeLayout, startedAt)
	if err != nil {
		return Run{}, fmt.Errorf("error parsing started_at of run %s: %w", run.ID, err)
	}
	var s runSummary
	if err := json.Unmarshal([]byte(summaryJSON), &s); err != nil {
		return Run{}, fmt.Errorf("error decoding summary of run %s: %w", run.ID, err)
	}
	run.StartedAt = t
	run.Duration = time.Duration(durationMs) * time.Millisecond
	run.Status = audit.Status(status)
	run.Counts = s.Counts
	run.Feed = s.Feed
	return run, nil
}

// GetRun returns the run and its reports in rule ID order.
func (c *Client) GetRun(ctx context.Context, id string) (Run, []audit.Report, error) {
	run, err := scanRun(c.DB.QueryRowContext(ctx,
		`SELECT `+runColumns+` FROM audit_runs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return Run{}, nil, err
	}

	rows, err := c.DB.QueryContext(ctx,
		`SELECT report_json FROM audit_reports WHERE run_id = ? ORDER BY rule_id`, id)
	if err != nil {
		return Run{}, nil, fmt.Errorf("error querying reports of run %s: %w", id, err)
	}
	defer rows.Close() // nolint:errcheck

	var reports []audit.Report
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return Run{}, nil, err
		}
		var rep audit.Report
		if err := json.Unmarshal([]byte(raw), &rep); err != nil {
			return Run{}, nil, fmt.Errorf("error decoding report of run %s: %w", id, err)
		}
		reports = append(reports, rep)
	}
	if err := rows.Err(); err != nil {
		return Run{}, nil, err
	}
	return run, reports, nil
}

// ListRuns returns the most recent runs first. A non-positive limit
// returns every run.
func (c *Client) ListRuns(ctx context.Context, limit int) (runs []Run, err error) {
	query := `SELECT ` + runColumns + ` FROM audit_runs ORDER BY started_at DESC, id`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := c.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error querying runs: %w", err)
	}
	defer logging.HandleDeferredError(&err, rows.Close, c.logger, "list_runs")

	runs = []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// RuleScore is one rule's outcome in a past run.
type RuleScore struct {
	RunID     string       `json:"run_id"`
	StartedAt time.Time    `json:"started_at"`
	Status    audit.Status `json:"status"`
	Score     int          `json:"score"`
}

// RuleHistory returns a rule's scores across runs, most recent first.
func (c *Client) RuleHistory(ctx context.Context, ruleID string, limit int) (history []RuleScore, err error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := c.DB.QueryContext(ctx,
		`SELECT r.run_id, a.started_at, r.status, r.score
		 FROM audit_reports r JOIN audit_runs a ON a.id = r.run_id
		 WHERE r.rule_id = ?
		 ORDER BY a.started_at DESC
		 LIMIT ?`, ruleID, limit)
	if err != nil {
		return nil, fmt.Errorf("error querying history of %s: %w", ruleID, err)
	}
	defer logging.HandleDeferredError(&err, rows.Close, c.logger, "rule_history")

	history = []RuleScore{}
	for rows.Next() {
		var (
			s         RuleScore
			startedAt string
			status    string
		)
		if err := rows.Scan(&s.RunID, &startedAt, &status, &s.Score); err != nil {
			return nil, err
		}
		if s.StartedAt, err = time.Parse(timeLayout, startedAt); err != nil {
			return nil, err
		}
		s.Status = audit.Status(status)
		history = append(history, s)
	}
	return history, rows.Err()
}

// DeleteRunsBefore removes runs started before cutoff, with their reports.
func (c *Client) DeleteRunsBefore(ctx context.Context, cutoff time.Time) (n int64, err error) {
	before := cutoff.UTC().Format(timeLayout)

	tx, err := c.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("error starting transaction: %w", err)
	}
	defer logging.SafeRollbackWithLogging(tx, c.logger, "delete_runs")

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM audit_reports WHERE run_id IN (SELECT id FROM audit_runs WHERE started_at < ?)`, before); err != nil {
		return 0, fmt.Errorf("error deleting reports: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM audit_runs WHERE started_at < ?`, before)
	if err != nil {
		return 0, fmt.Errorf("error deleting runs: %w", err)
	}
	if n, err = res.RowsAffected(); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("error committing transaction: %w", err)
	}
	return n, nil
}
