// Package app holds the dependencies shared by the CLI, the HTTP API and
// the monitor.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"gtfsaudit.onebusaway.org/internal/appconf"
	"gtfsaudit.onebusaway.org/internal/audit"
	"gtfsaudit.onebusaway.org/internal/auditdb"
	"gtfsaudit.onebusaway.org/internal/feed"
	"gtfsaudit.onebusaway.org/internal/logging"
)

// Application holds the dependencies for our HTTP handlers, commands and
// scheduled jobs. Store is nil when runs are not persisted.
type Application struct {
	Config     *appconf.Config
	Logger     *slog.Logger
	Registry   *audit.Registry
	Store      *auditdb.Client
	HTTPClient *http.Client
}

// Aggregator returns an aggregator over rules with the configured workers,
// disabled rules and rule options. A nil rules slice means every registered
// rule.
func (app *Application) Aggregator(rules []audit.RuleDef) *audit.Aggregator {
	if rules == nil {
		rules = app.Registry.All()
	}
	opts := audit.Options{}
	if app.Config != nil {
		opts = app.Config.AuditOptions()
	}
	opts.Logger = app.logger()
	return audit.NewAggregator(rules, opts)
}

// Audit runs rules over a loaded feed and stores the run when a store is
// configured. A cancelled run is never stored.
func (app *Application) Audit(ctx context.Context, loaded *feed.Loaded, rules []audit.RuleDef) (audit.Summary, error) {
	summary, err := app.Aggregator(rules).Run(ctx, loaded.Dataset)
	if err != nil {
		return summary, err
	}
	if app.Store == nil {
		return summary, nil
	}
	if err := app.Store.SaveRun(ctx, loaded.Source, summary, loaded.Summary); err != nil {
		logging.LogError(app.logger(), "failed to save audit run", err,
			slog.String("run_id", summary.RunID),
			slog.String("source", loaded.Source))
		return summary, fmt.Errorf("saving run %s: %w", summary.RunID, err)
	}
	return summary, nil
}

// Load resolves a feed location with the application's HTTP client.
func (app *Application) Load(ctx context.Context, location string) (*feed.Loaded, error) {
	loaded, err := feed.Load(ctx, app.HTTPClient, location)
	if err != nil {
		return nil, err
	}
	logging.LogOperation(app.logger(), "feed_loaded",
		slog.String("source", location),
		slog.Int("tables", len(loaded.Summary.Tables)),
		slog.Int("size_bytes", loaded.Summary.SizeBytes))
	if loaded.Summary.ParseError != "" {
		app.logger().Warn("typed feed parse failed", slog.String("source", location), slog.String("error", loaded.Summary.ParseError))
	}
	return loaded, nil
}

func (app *Application) logger() *slog.Logger {
	if app.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return app.Logger
}

// SelectRules resolves rule IDs or names, optionally narrowed to one group.
// Both empty selects every rule and returns nil.
func (app *Application) SelectRules(keys []string, group string) ([]audit.RuleDef, error) {
	if len(keys) == 0 && group == "" {
		return nil, nil
	}
	rules := app.Registry.All()
	if len(keys) > 0 {
		selected, err := app.Registry.Select(keys...)
		if err != nil {
			return nil, err
		}
		rules = selected
	}
	if group == "" {
		return rules, nil
	}
	filtered := make([]audit.RuleDef, 0, len(rules))
	for _, r := range rules {
		if r.Group == group {
			filtered = append(filtered, r)
		}
	}
	if len(filtered) == 0 {
		return nil, fmt.Errorf("no rules in group %q (groups: %v)", group, app.Registry.Groups())
	}
	return filtered, nil
}
