package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"gtfsaudit.onebusaway.org/internal/audit"
)

// AuditOptions holds options for the audit command.
type AuditOptions struct {
	Rules   []string
	Group   string
	Save    bool
	Details bool
	FailOn  string
	Params  map[string]string
}

// NewAuditCommand creates the audit command.
func NewAuditCommand() *cobra.Command {
	opts := &AuditOptions{}
	cmd := &cobra.Command{
		Use:   "audit <feed.zip|dir|url>",
		Short: "Audit a GTFS feed",
		Long: `Audit a static GTFS feed given as a zip archive, an unpacked directory or
an http(s) URL. Every rule yields a report with a 0-100 score and a status;
the overall score is the mean of rule scores and the overall status the worst
rule status.`,
		Example: `  # Audit a local archive
  gtfsaudit audit feed.zip

  # Only calendar rules, with issue details
  gtfsaudit audit feed.zip --group temporal --details

  # Selected rules, JSON output, stored in the history database
  gtfsaudit audit https://example.com/gtfs.zip --rules RI01,TC10 -o json --save

  # Override a rule option for every rule that reads it
  gtfsaudit audit feed.zip --param reference_date=20240601`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAudit(cmd, args[0], opts)
		},
	}

	cmd.Flags().StringSliceVar(&opts.Rules, "rules", nil, "Rule IDs or names to run (default: all)")
	cmd.Flags().StringVarP(&opts.Group, "group", "g", "", "Only run rules of this group (referential|temporal|geometric)")
	cmd.Flags().BoolVar(&opts.Save, "save", false, "Store the run in the history database")
	cmd.Flags().BoolVar(&opts.Details, "details", false, "Show issues and recommendations of failing rules")
	cmd.Flags().StringVar(&opts.FailOn, "fail-on", "none", "Exit non-zero at this overall status (warning|error|none)")
	cmd.Flags().StringToStringVar(&opts.Params, "param", nil, "Rule option applied to every rule (key=value)")
	cmd.Flags().Int("workers", 0, "Rules run concurrently (default: GOMAXPROCS)")
	cmd.Flags().StringSlice("disable", nil, "Rule IDs or names to skip")

	return cmd
}

func failThreshold(s string) (audit.Status, bool, error) {
	switch s {
	case "", "none":
		return "", false, nil
	case string(audit.StatusWarning):
		return audit.StatusWarning, true, nil
	case string(audit.StatusError):
		return audit.StatusError, true, nil
	}
	return "", false, fmt.Errorf("--fail-on must be warning, error or none, got %q", s)
}

func runAudit(cmd *cobra.Command, source string, opts *AuditOptions) error {
	threshold, failOn, err := failThreshold(opts.FailOn)
	if err != nil {
		return err
	}

	a, err := newApplication(cmd, opts.Save)
	if err != nil {
		return err
	}
	defer a.Close()

	if len(opts.Params) > 0 {
		if a.Config.Audit.Params == nil {
			a.Config.Audit.Params = make(map[string]any, len(opts.Params))
		}
		for k, v := range opts.Params {
			a.Config.Audit.Params[k] = v
		}
	}

	rules, err := a.SelectRules(opts.Rules, opts.Group)
	if err != nil {
		return err
	}

	loaded, err := a.Load(cmd.Context(), source)
	if err != nil {
		return err
	}

	summary, err := a.Audit(cmd.Context(), loaded, rules)
	if err != nil {
		return err
	}

	res := auditResult{Summary: summary, Source: loaded.Source, Feed: loaded.Summary}
	if err := renderSummary(out(cmd), a.Config.Output, res, opts.Details); err != nil {
		return err
	}

	if failOn && audit.Worse(summary.Status, threshold) == summary.Status {
		return fmt.Errorf("%w: overall status %s", ErrAuditFailed, summary.Status)
	}
	return nil
}
