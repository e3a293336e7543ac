package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/evcraddock/carevisit/internal/auth"
	"github.com/evcraddock/carevisit/internal/logging"
	"github.com/evcraddock/carevisit/internal/visit"
	"github.com/evcraddock/carevisit/internal/web"
)

func newServeCmd() *cobra.Command {
	var (
		addr  string
		sweep time.Duration
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		Long: "Start the visit API server. Requests under /api/ need an API key unless " +
			"CV_DEV_MODE=true. Upcoming visits whose slot has ended are marked missed " +
			"every --sweep-interval.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), addr, sweep)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":8080", "address to listen on")
	cmd.Flags().DurationVar(&sweep, "sweep-interval", time.Minute, "how often to mark ended visits missed (0 disables)")

	return cmd
}

func runServe(parent context.Context, addr string, sweep time.Duration) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	database, err := openDB()
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer closeDB(database)

	srv := web.NewServer(database, auth.ConfigFromEnv())

	sweepCtx, cancelSweep := context.WithCancel(ctx)
	waitSweep := startSweep(sweepCtx, srv.Visits(), sweep, logging.Component("sweep"))

	err = srv.ListenAndServe(ctx, addr)

	// The sweep must be gone before the deferred close of the database.
	cancelSweep()
	waitSweep()
	return err
}

// startSweep runs the missed-visit sweep until ctx is cancelled. The
// returned func blocks until the sweep has returned. interval <= 0 runs
// nothing.
func startSweep(ctx context.Context, repo *visit.Repository, interval time.Duration, logger zerolog.Logger) (wait func()) {
	done := make(chan struct{})
	if interval <= 0 {
		close(done)
		return func() { <-done }
	}

	go func() {
		defer close(done)
		visit.SweepMissed(ctx, repo, interval, logger)
	}()
	return func() { <-done }
}
