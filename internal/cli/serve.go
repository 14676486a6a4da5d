package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"gtfsaudit.onebusaway.org/internal/logging"
	"gtfsaudit.onebusaway.org/internal/monitor"
	"gtfsaudit.onebusaway.org/internal/restapi"
)

const shutdownTimeout = 30 * time.Second

// NewServeCommand creates the serve command.
func NewServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the audit HTTP API",
		Long: `Serve the audit HTTP API. When monitor.feed_url is configured the feed is
also re-audited on monitor.schedule and every run is stored.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cmd)
		},
	}
	cmd.Flags().Int("port", 0, "API server port")
	cmd.Flags().StringSlice("api-keys", nil, "Accepted API keys (default: open)")
	cmd.Flags().Int("rate-limit", 0, "Requests per second per client (0 disables)")
	cmd.Flags().String("feed-url", "", "Feed to re-audit on a schedule")
	cmd.Flags().String("schedule", "", "Cron schedule of monitored audits")
	return cmd
}

func runServe(ctx context.Context, cmd *cobra.Command) error {
	a, err := newApplication(cmd, true)
	if err != nil {
		return err
	}
	defer a.Close()
	cfg := a.Config

	var mon *monitor.Monitor
	if cfg.Monitor.FeedURL != "" {
		mon, err = monitor.New(a.Application, cfg.Monitor.FeedURL, cfg.Monitor.Schedule, cfg.Store.RetentionDays)
		if err != nil {
			return err
		}
		mon.Start()
	}

	api := restapi.NewRestAPI(a.Application)
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      api.Handler(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  time.Minute,
		WriteTimeout: 10 * time.Minute,
		ErrorLog:     slog.NewLogLogger(a.Logger.Handler(), slog.LevelError),
	}

	errCh := make(chan error, 1)
	go func() {
		logging.LogOperation(a.Logger, "starting server",
			slog.String("addr", srv.Addr),
			slog.String("env", cfg.Environment().String()),
			slog.Int("rules", a.Registry.Len()))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if mon != nil {
			_ = mon.Stop(context.Background())
		}
		return err
	case <-ctx.Done():
	}

	logging.LogOperation(a.Logger, "shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if mon != nil {
		if err := mon.Stop(shutdownCtx); err != nil {
			logging.LogError(a.Logger, "monitor did not stop cleanly", err)
		}
	}
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}
