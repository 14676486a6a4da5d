package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"gtfsaudit.onebusaway.org/internal/audit"
	"gtfsaudit.onebusaway.org/internal/audit/catalog"
)

// NewRulesCommand creates the rules command.
func NewRulesCommand() *cobra.Command {
	var group string
	cmd := &cobra.Command{
		Use:   "rules [rule-id]",
		Short: "List audit rules",
		Example: `  # List all rules
  gtfsaudit rules

  # Rules of one group
  gtfsaudit rules --group geometric

  # One rule by ID or name
  gtfsaudit rules TC10`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFrom(cmd)
			if err != nil {
				return err
			}
			registry := catalog.Default()

			if len(args) == 1 {
				rule, ok := registry.Lookup(args[0])
				if !ok {
					return fmt.Errorf("unknown rule %q", args[0])
				}
				return renderRule(out(cmd), cfg.Output, rule.Info())
			}

			infos := registry.Infos()
			if group != "" {
				filtered := make([]audit.RuleInfo, 0, len(infos))
				for _, info := range infos {
					if info.Group == group {
						filtered = append(filtered, info)
					}
				}
				if len(filtered) == 0 {
					return fmt.Errorf("no rules in group %q (groups: %v)", group, registry.Groups())
				}
				infos = filtered
			}
			return renderRules(out(cmd), cfg.Output, infos)
		},
	}
	cmd.Flags().StringVarP(&group, "group", "g", "", "Filter by group")
	return cmd
}
