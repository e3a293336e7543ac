package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/evcraddock/carevisit/internal/geo"
	"github.com/evcraddock/carevisit/internal/logging"
	"github.com/evcraddock/carevisit/internal/tracker"
	"github.com/evcraddock/carevisit/internal/visit"
)

// session wires the tracker core for a single visit against the API.
type session struct {
	board *tracker.Board
	ctrl  *tracker.Controller
	tasks *tracker.TaskCoordinator
}

func openSession(ctx context.Context, cmd *cobra.Command, visitID string) (*session, error) {
	provider, err := locationProvider(cmd)
	if err != nil {
		return nil, err
	}

	gw := newAPIClient()
	board := tracker.NewBoard(nil)
	logger := logging.Component("tracker")

	ctrl := tracker.NewController(visitID, gw, provider, board, tracker.WithLogger(logger))
	if err := ctrl.Load(ctx); err != nil {
		if errors.Is(err, visit.ErrNotFound) {
			return nil, fmt.Errorf("visit %s not found", visitID)
		}
		return nil, fmt.Errorf("loading visit: %w", err)
	}

	return &session{
		board: board,
		ctrl:  ctrl,
		tasks: tracker.NewTaskCoordinator(ctrl, gw, board, tracker.WithLogger(logger)),
	}, nil
}

// locationProvider returns a fixed provider when --lat/--long are given,
// otherwise the provider from the config file.
func locationProvider(cmd *cobra.Command) (geo.Provider, error) {
	flags := cmd.Flags()
	latSet, longSet := flags.Changed("lat"), flags.Changed("long")
	if latSet || longSet {
		if !latSet || !longSet {
			return nil, fmt.Errorf("--lat and --long must be given together")
		}
		c := visit.Coordinate{Lat: flagLat, Long: flagLong}
		if err := c.Validate(); err != nil {
			return nil, err
		}
		return geo.Fixed{Coordinate: c}, nil
	}

	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	p, err := geo.FromConfig(cfg.Location)
	if err != nil {
		return nil, fmt.Errorf("location config: %w", err)
	}
	return p, nil
}
