// Package cli provides the gtfsaudit command-line interface.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"gtfsaudit.onebusaway.org/internal/app"
	"gtfsaudit.onebusaway.org/internal/appconf"
	"gtfsaudit.onebusaway.org/internal/audit/catalog"
	"gtfsaudit.onebusaway.org/internal/auditdb"
	"gtfsaudit.onebusaway.org/internal/feed"
	"gtfsaudit.onebusaway.org/internal/logging"
)

// Version is set at build time.
var Version = "0.1.0"

// ErrAuditFailed is returned by audit when the overall status reaches the
// --fail-on threshold.
var ErrAuditFailed = errors.New("audit failed")

type configKey struct{}

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	var cfgFile string

	rootCmd := &cobra.Command{
		Use:   "gtfsaudit",
		Short: "Consistency audit for static GTFS feeds",
		Long: `gtfsaudit checks a static GTFS feed for referential integrity, calendar
consistency and shape plausibility, and reports a scored result per rule.`,
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "help" || cmd.Name() == "completion" || cmd.Name() == "__complete" {
				return nil
			}
			if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("error reading .env: %w", err)
			}
			cfg, err := appconf.Load(cfgFile, cmd.Flags())
			if err != nil {
				return err
			}
			cmd.SetContext(context.WithValue(cmd.Context(), configKey{}, cfg))
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default: ./gtfsaudit.yaml)")
	flags.String("env", "", "Environment (development|test|production)")
	flags.String("log-level", "", "Log level (debug|info|warn|error)")
	flags.String("log-format", "", "Log format (text|json)")
	flags.StringP("output", "o", "", "Output format (table|json|markdown)")
	flags.String("db", "", "Path to the audit history database")

	_ = rootCmd.RegisterFlagCompletionFunc("output", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{appconf.OutputTable, appconf.OutputJSON, appconf.OutputMarkdown}, cobra.ShellCompDirectiveNoFileComp
	})

	rootCmd.AddCommand(NewAuditCommand())
	rootCmd.AddCommand(NewRulesCommand())
	rootCmd.AddCommand(NewServeCommand())
	rootCmd.AddCommand(NewHistoryCommand())

	return rootCmd
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// configFrom returns the configuration loaded by the root command, or the
// defaults when a command runs standalone.
func configFrom(cmd *cobra.Command) (*appconf.Config, error) {
	if ctx := cmd.Context(); ctx != nil {
		if cfg, ok := ctx.Value(configKey{}).(*appconf.Config); ok {
			return cfg, nil
		}
	}
	return appconf.Load("", nil)
}

// newApplication wires the dependencies for a command. The store is opened
// only when withStore is set; callers must Close the returned application.
func newApplication(cmd *cobra.Command, withStore bool) (*application, error) {
	cfg, err := configFrom(cmd)
	if err != nil {
		return nil, err
	}
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	logger := logging.NewLogger(cmd.ErrOrStderr(), level, cfg.Log.Format)

	a := &app.Application{
		Config:     cfg,
		Logger:     logger,
		Registry:   catalog.Default(),
		HTTPClient: &http.Client{Timeout: feed.DefaultTimeout},
	}
	if withStore {
		store, err := auditdb.NewClient(auditdb.NewConfig(cfg.Store.Path, cfg.Environment(), level <= slog.LevelDebug), logger)
		if err != nil {
			return nil, err
		}
		a.Store = store
	}
	return &application{Application: a}, nil
}

type application struct {
	*app.Application
}

func (a *application) Close() {
	if a.Store != nil {
		logging.SafeCloseWithLogging(a.Store, a.Logger, "audit_store")
	}
}

func out(cmd *cobra.Command) io.Writer { return cmd.OutOrStdout() }
