package audit

import (
	"context"
	"log/slog"
	"math"
	"runtime"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"gtfsaudit.onebusaway.org/internal/dataset"
	"gtfsaudit.onebusaway.org/internal/logging"
)

// Options configure an Aggregator.
type Options struct {
	// Workers bounds concurrently running rules; zero means GOMAXPROCS.
	Workers int
	// Disabled lists rule IDs or names to skip.
	Disabled []string
	// Params apply to every rule.
	Params Params
	// RuleParams are keyed by rule ID or name and override Params.
	RuleParams map[string]Params
	Logger     *slog.Logger
}

// Aggregator runs a set of rules over one dataset and merges the reports.
type Aggregator struct {
	rules []RuleDef
	opts  Options
}

// NewAggregator returns an aggregator over rules minus the disabled ones.
func NewAggregator(rules []RuleDef, opts Options) *Aggregator {
	disabled := make(map[string]bool, len(opts.Disabled))
	for _, d := range opts.Disabled {
		disabled[d] = true
	}
	enabled := make([]RuleDef, 0, len(rules))
	for _, r := range rules {
		if disabled[r.ID] || disabled[r.Name] {
			continue
		}
		enabled = append(enabled, r)
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}
	return &Aggregator{rules: enabled, opts: opts}
}

// Rules returns the enabled rules.
func (a *Aggregator) Rules() []RuleDef { return append([]RuleDef(nil), a.rules...) }

// Summary is the merged outcome of one audit run.
type Summary struct {
	RunID     string         `json:"run_id"`
	StartedAt time.Time      `json:"started_at"`
	Duration  time.Duration  `json:"duration"`
	Reports   []Report       `json:"reports"`
	Score     int            `json:"score"`
	Status    Status         `json:"status"`
	Counts    map[Status]int `json:"counts"`
}

// ParamsFor returns the effective parameters for a rule.
func (a *Aggregator) ParamsFor(rule RuleDef) Params {
	p := Params{}.Merge(a.opts.Params)
	if byName, ok := a.opts.RuleParams[rule.Name]; ok {
		p = p.Merge(byName)
	}
	if byID, ok := a.opts.RuleParams[rule.ID]; ok {
		p = p.Merge(byID)
	}
	return p
}

// Run executes every enabled rule. Each rule writes only its own slot, so no
// locking is needed. If ctx is cancelled, rules not yet started are
// abandoned; the reports that did complete are returned along with ctx.Err().
func (a *Aggregator) Run(ctx context.Context, ds *dataset.Dataset) (Summary, error) {
	logger := a.opts.Logger
	if logger == nil {
		logger = logging.FromContext(ctx)
	}

	started := time.Now()
	runID := uuid.NewString()

	slots := make([]*Report, len(a.rules))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.opts.Workers)

	for i, rule := range a.rules {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			t0 := time.Now()
			rep := rule.Run(ds, a.ParamsFor(rule))
			slots[i] = &rep
			logging.LogDebugOperation(logger, "rule_completed",
				slog.String("run_id", runID),
				slog.String("rule_id", rule.ID),
				slog.String("status", string(rep.Status)),
				slog.Int("score", rep.Score),
				slog.Duration("duration", time.Since(t0)))
			return nil
		})
	}
	waitErr := g.Wait()

	reports := make([]Report, 0, len(slots))
	for _, s := range slots {
		if s != nil {
			reports = append(reports, *s)
		}
	}

	summary := Summarize(reports)
	summary.RunID = runID
	summary.StartedAt = started.UTC()
	summary.Duration = time.Since(started)

	logging.LogOperation(logger, "audit_completed",
		slog.String("run_id", runID),
		slog.Int("rules", len(reports)),
		slog.Int("score", summary.Score),
		slog.String("status", string(summary.Status)),
		slog.Duration("duration", summary.Duration))

	if err := ctx.Err(); err != nil {
		return summary, err
	}
	return summary, waitErr
}

// Summarize merges completed reports: the score is the rounded mean of rule
// scores and the status is the worst rule status.
func Summarize(reports []Report) Summary {
	s := Summary{
		Reports: reports,
		Score:   MaxScore,
		Status:  StatusSuccess,
		Counts: map[Status]int{
			StatusSuccess: 0,
			StatusWarning: 0,
			StatusError:   0,
		},
	}
	if len(reports) == 0 {
		return s
	}
	total := 0
	for _, r := range reports {
		total += r.Score
		s.Status = Worse(s.Status, r.Status)
		s.Counts[r.Status]++
	}
	s.Score = int(math.Round(float64(total) / float64(len(reports))))
	return s
}

// GroupByFileType partitions reports by target file type, keeping rule
// order inside each group.
func GroupByFileType(reports []Report) map[string][]Report {
	groups := make(map[string][]Report)
	for _, r := range reports {
		groups[r.FileType] = append(groups[r.FileType], r)
	}
	return groups
}

// FileTypes returns the sorted keys of a grouping.
func FileTypes(groups map[string][]Report) []string {
	return SortedKeys(groups)
}
