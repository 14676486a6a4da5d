package cli

import (
	"github.com/spf13/cobra"

	"gtfsaudit.onebusaway.org/internal/utils"
)

// NewHistoryCommand creates the history command.
func NewHistoryCommand() *cobra.Command {
	var (
		limit   int
		details bool
	)
	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "Show stored audit runs",
		Example: `  # Most recent runs
  gtfsaudit history --limit 10

  # One run with its reports
  gtfsaudit history 5b7c1f0e-8a5e-4b8e-9a55-7f7f0c1d2e3f --details`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				if err := utils.ValidateID(args[0]); err != nil {
					return err
				}
			}

			a, err := newApplication(cmd, true)
			if err != nil {
				return err
			}
			defer a.Close()

			if len(args) == 1 {
				run, reports, err := a.Store.GetRun(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return renderStoredRun(out(cmd), a.Config.Output, run, reports, details)
			}

			runs, err := a.Store.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			return renderRuns(out(cmd), a.Config.Output, runs)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of runs to list (0 for all)")
	cmd.Flags().BoolVar(&details, "details", false, "Show issues of failing rules")
	return cmd
}
