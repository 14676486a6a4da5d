// Package monitor re-audits a remote feed on a cron schedule and stores
// each run.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"gtfsaudit.onebusaway.org/internal/app"
	"gtfsaudit.onebusaway.org/internal/audit"
	"gtfsaudit.onebusaway.org/internal/feed"
	"gtfsaudit.onebusaway.org/internal/logging"
)

// DefaultRunTimeout bounds one scheduled audit, download included.
const DefaultRunTimeout = 10 * time.Minute

// Result is the outcome of the latest scheduled audit.
type Result struct {
	RunID    string        `json:"run_id,omitempty"`
	At       time.Time     `json:"at"`
	Score    int           `json:"score"`
	Status   audit.Status  `json:"status,omitempty"`
	Feed     feed.Summary  `json:"feed"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Monitor re-audits one remote feed on a cron schedule and keeps the
// latest result. Runs never overlap.
type Monitor struct {
	app           *app.Application
	feedURL       string
	schedule      cron.Schedule
	retentionDays int
	timeout       time.Duration
	cron          *cron.Cron
	logger        *slog.Logger

	mu   sync.Mutex
	last *Result
}

// New validates the schedule (standard five-field cron or a descriptor such
// as @daily) and builds a stopped monitor.
func New(a *app.Application, feedURL, schedule string, retentionDays int) (*Monitor, error) {
	if !feed.IsURL(feedURL) {
		return nil, fmt.Errorf("monitor feed must be an http(s) url, got %q", feedURL)
	}
	sched, err := cron.ParseStandard(schedule)
	if err != nil {
		return nil, fmt.Errorf("invalid monitor schedule %q: %w", schedule, err)
	}

	logger := a.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	logger = logger.With(slog.String("component", "monitor"))

	cronLogger := cronLogAdapter{logger: logger}
	m := &Monitor{
		app:           a,
		feedURL:       feedURL,
		schedule:      sched,
		retentionDays: retentionDays,
		timeout:       DefaultRunTimeout,
		logger:        logger,
		cron: cron.New(cron.WithLogger(cronLogger), cron.WithChain(
			cron.Recover(cronLogger),
			cron.SkipIfStillRunning(cronLogger),
		)),
	}
	m.cron.Schedule(sched, cron.FuncJob(m.tick))
	return m, nil
}

// Start begins scheduling in the background.
func (m *Monitor) Start() {
	logging.LogOperation(m.logger, "monitor_started",
		slog.String("feed_url", m.feedURL),
		slog.Time("next_run", m.schedule.Next(time.Now())))
	m.cron.Start()
}

// Stop halts scheduling and waits for a running audit to finish or ctx to
// expire.
func (m *Monitor) Stop(ctx context.Context) error {
	done := m.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Next returns the next scheduled time after t.
func (m *Monitor) Next(t time.Time) time.Time { return m.schedule.Next(t) }

// Last returns the latest result, if any run has completed.
func (m *Monitor) Last() (Result, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.last == nil {
		return Result{}, false
	}
	return *m.last, true
}

func (m *Monitor) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()
	// failures are recorded in Last and logged; the schedule keeps going
	_, _ = m.RunOnce(ctx)
}

// RunOnce downloads the feed, audits it with every enabled rule and stores
// the run.
func (m *Monitor) RunOnce(ctx context.Context) (Result, error) {
	started := time.Now()
	res := Result{At: started.UTC()}

	summary, loaded, err := m.audit(ctx)
	res.Duration = time.Since(started)
	if loaded != nil {
		res.Feed = loaded.Summary
	}
	if err != nil {
		res.Error = err.Error()
		logging.LogError(m.logger, "scheduled audit failed", err, slog.String("feed_url", m.feedURL))
	} else {
		res.RunID = summary.RunID
		res.Score = summary.Score
		res.Status = summary.Status
		m.prune(ctx)
	}

	m.mu.Lock()
	m.last = &res
	m.mu.Unlock()
	return res, err
}

func (m *Monitor) audit(ctx context.Context) (audit.Summary, *feed.Loaded, error) {
	loaded, err := m.app.Load(ctx, m.feedURL)
	if err != nil {
		return audit.Summary{}, nil, err
	}
	summary, err := m.app.Audit(ctx, loaded, nil)
	return summary, loaded, err
}

func (m *Monitor) prune(ctx context.Context) {
	if m.retentionDays <= 0 || m.app.Store == nil {
		return
	}
	cutoff := time.Now().AddDate(0, 0, -m.retentionDays)
	n, err := m.app.Store.DeleteRunsBefore(ctx, cutoff)
	if err != nil {
		logging.LogError(m.logger, "failed to prune audit runs", err)
		return
	}
	if n > 0 {
		logging.LogOperation(m.logger, "audit_runs_pruned", slog.Int64("deleted", n))
	}
}

// cronLogAdapter routes cron's own logging into slog.
type cronLogAdapter struct {
	logger *slog.Logger
}

func (a cronLogAdapter) Info(msg string, keysAndValues ...interface{}) {
	a.logger.Debug(msg, keysAndValues...)
}

func (a cronLogAdapter) Error(err error, msg string, keysAndValues ...interface{}) {
	if err == nil {
		err = errors.New(msg)
	}
	a.logger.Error(msg, append([]interface{}{"error", err.Error()}, keysAndValues...)...)
}
