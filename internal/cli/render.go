package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"gtfsaudit.onebusaway.org/internal/appconf"
	"gtfsaudit.onebusaway.org/internal/audit"
	"gtfsaudit.onebusaway.org/internal/auditdb"
	"gtfsaudit.onebusaway.org/internal/feed"
)

func renderJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	return t
}

// renderTableAs renders t in the requested output format. JSON never
// reaches here.
func renderTableAs(t table.Writer, format string) {
	if format == appconf.OutputMarkdown {
		t.RenderMarkdown()
		return
	}
	t.Render()
}

func statusColor(s audit.Status) text.Colors {
	switch s {
	case audit.StatusSuccess:
		return text.Colors{text.FgGreen}
	case audit.StatusWarning:
		return text.Colors{text.FgYellow}
	default:
		return text.Colors{text.FgRed}
	}
}

func statusCell(s audit.Status, format string) string {
	if format != appconf.OutputTable {
		return string(s)
	}
	return statusColor(s).Sprint(string(s))
}

func issueCount(r audit.Report) int {
	n := 0
	for _, is := range r.Issues {
		n += is.Count
	}
	return n
}

func feedLine(source string, s feed.Summary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Feed %s", source)
	if s.SizeBytes > 0 {
		fmt.Fprintf(&b, " (%s)", humanize.Bytes(uint64(s.SizeBytes)))
	}
	fmt.Fprintf(&b, ": %s routes, %s stops, %s trips",
		humanize.Comma(int64(s.Routes)), humanize.Comma(int64(s.Stops)), humanize.Comma(int64(s.Trips)))
	if s.ServiceStart != "" {
		fmt.Fprintf(&b, ", service %s to %s", s.ServiceStart, s.ServiceEnd)
	}
	return b.String()
}

// auditResult is the JSON shape of a completed audit.
type auditResult struct {
	audit.Summary
	Source string       `json:"source"`
	Feed   feed.Summary `json:"feed"`
}

func renderSummary(w io.Writer, format string, res auditResult, details bool) error {
	if format == appconf.OutputJSON {
		return renderJSON(w, res)
	}

	_, _ = fmt.Fprintln(w, feedLine(res.Source, res.Feed))
	if res.Feed.ParseError != "" {
		_, _ = fmt.Fprintf(w, "Typed parse failed: %s\n", res.Feed.ParseError)
	}
	_, _ = fmt.Fprintln(w)

	t := newTable(w)
	t.AppendHeader(table.Row{"Rule", "Name", "File", "Status", "Score", "Issues"})
	for _, r := range res.Reports {
		t.AppendRow(table.Row{r.RuleID, r.Rule, r.FileType, statusCell(r.Status, format), r.Score, humanize.Comma(int64(issueCount(r)))})
	}
	t.AppendFooter(table.Row{"", "overall", "", statusCell(res.Status, format), res.Score, ""})
	renderTableAs(t, format)

	_, _ = fmt.Fprintf(w, "\nRun %s: %d rules in %s (%d success, %d warning, %d error)\n",
		res.RunID, len(res.Reports), res.Duration.Round(time.Millisecond),
		res.Counts[audit.StatusSuccess], res.Counts[audit.StatusWarning], res.Counts[audit.StatusError])

	if details {
		renderDetails(w, format, res.Reports)
	}
	return nil
}

// renderDetails lists the issues and recommendations of every report that
// did not succeed.
func renderDetails(w io.Writer, format string, reports []audit.Report) {
	for _, r := range reports {
		if r.Status == audit.StatusSuccess && len(r.Issues) == 0 {
			continue
		}
		_, _ = fmt.Fprintf(w, "\n%s %s: %s\n", r.RuleID, r.Rule, r.Explanation.Purpose)
		if len(r.Issues) > 0 {
			t := newTable(w)
			t.AppendHeader(table.Row{"Type", "Field", "Count", "Message"})
			for _, is := range r.Issues {
				t.AppendRow(table.Row{is.Type, is.Field, humanize.Comma(int64(is.Count)), is.Message})
			}
			renderTableAs(t, format)
		}
		for _, rec := range r.Recommendations {
			_, _ = fmt.Fprintf(w, "  - %s\n", rec)
		}
	}
}

func renderRules(w io.Writer, format string, infos []audit.RuleInfo) error {
	if format == appconf.OutputJSON {
		return renderJSON(w, infos)
	}
	t := newTable(w)
	t.AppendHeader(table.Row{"ID", "Name", "Group", "File", "Options"})
	for _, info := range infos {
		t.AppendRow(table.Row{info.ID, info.Name, info.Group, info.FileType, strings.Join(info.ConfigKeys, ", ")})
	}
	renderTableAs(t, format)
	_, _ = fmt.Fprintf(w, "(%d rules)\n", len(infos))
	return nil
}

func renderRule(w io.Writer, format string, info audit.RuleInfo) error {
	if format == appconf.OutputJSON {
		return renderJSON(w, info)
	}
	_, _ = fmt.Fprintf(w, "%s %s\n", info.ID, info.Name)
	_, _ = fmt.Fprintf(w, "Group: %s\nFile:  %s\n\n%s\n", info.Group, info.FileType, info.Description)
	if len(info.ConfigKeys) > 0 {
		_, _ = fmt.Fprintf(w, "\nOptions: %s\n", strings.Join(info.ConfigKeys, ", "))
	}
	return nil
}

func renderRuns(w io.Writer, format string, runs []auditdb.Run) error {
	if format == appconf.OutputJSON {
		return renderJSON(w, runs)
	}
	if len(runs) == 0 {
		_, _ = fmt.Fprintln(w, "No audit runs recorded.")
		return nil
	}
	t := newTable(w)
	t.AppendHeader(table.Row{"Run", "Source", "Started", "Duration", "Status", "Score"})
	for _, r := range runs {
		t.AppendRow(table.Row{r.ID, r.Source, humanize.Time(r.StartedAt), r.Duration.Round(time.Millisecond),
			statusCell(r.Status, format), r.Score})
	}
	renderTableAs(t, format)
	return nil
}

func renderStoredRun(w io.Writer, format string, run auditdb.Run, reports []audit.Report, details bool) error {
	res := auditResult{
		Summary: audit.Summary{
			RunID:     run.ID,
			StartedAt: run.StartedAt,
			Duration:  run.Duration,
			Reports:   reports,
			Score:     run.Score,
			Status:    run.Status,
			Counts:    run.Counts,
		},
		Source: run.Source,
		Feed:   run.Feed,
	}
	return renderSummary(w, format, res, details)
}
