// Package cli defines the cobra command tree for carevisit.
package cli

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/evcraddock/carevisit/internal/client"
	"github.com/evcraddock/carevisit/internal/db"
	"github.com/evcraddock/carevisit/internal/logging"
)

var (
	flagFormat   string
	flagDB       string
	flagLogLevel string
	flagLogFile  string
	flagLat      float64
	flagLong     float64
)

// NewRootCmd creates the root cobra command with global flags.
func NewRootCmd() *cobra.Command {
	var closeLog func()

	root := &cobra.Command{
		Use:   "cv",
		Short: "Track caregiver visits",
		Long: "A tool for caregivers to view their scheduled visits, check in and out " +
			"with their location, and report on each task of a visit.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			closer, err := logging.Setup(flagLogLevel, flagLogFile, true)
			if err != nil {
				return fmt.Errorf("setting up logging: %w", err)
			}
			closeLog = closer
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if closeLog != nil {
				closeLog()
			}
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flagFormat, "format", "text", "output format (text|json)")
	pf.StringVar(&flagDB, "db", "", "database path or postgres:// DSN (default: ~/.carevisit/visits.db)")
	pf.StringVar(&flagLogLevel, "log-level", "warn", "log level (debug|info|warn|error)")
	pf.StringVar(&flagLogFile, "log-file", "", "write JSON logs to this file instead of stderr")
	pf.Float64Var(&flagLat, "lat", 0, "latitude to report, overriding the configured location provider")
	pf.Float64Var(&flagLong, "long", 0, "longitude to report, overriding the configured location provider")

	root.AddCommand(
		newSchedulesCmd(),
		newShowCmd(),
		newCheckInCmd(),
		newCheckOutCmd(),
		newCancelCheckInCmd(),
		newTaskCmd(),
		newServeCmd(),
		newSeedCmd(),
		newAPIKeyCmd(),
		newLoginCmd(),
		newLogoutCmd(),
		newStatusCmd(),
		newVersionCmd(),
	)

	return root
}

// openDB opens the database using the --db flag or default path.
// Used by the server-side commands (serve, seed, apikey).
func openDB() (*db.DB, error) {
	dsn := flagDB
	if dsn == "" {
		dsn = os.Getenv("CV_DB")
	}
	if dsn == "" {
		var err error
		dsn, err = db.DefaultPath()
		if err != nil {
			return nil, err
		}
	}
	return db.Open(dsn)
}

// newAPIClient creates an HTTP client for the carevisit API.
func newAPIClient() *client.Client {
	return client.New(getServerURL(), getAPIKey())
}

// isJSON returns true if the --format flag is set to json.
func isJSON() bool {
	return flagFormat == "json"
}

// closeDB closes the database, logging any error.
func closeDB(database *db.DB) {
	if err := database.Close(); err != nil {
		log.Warn().Err(err).Msg("closing database")
	}
}
