package tracker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/evcraddock/carevisit/internal/geo"
	"github.com/evcraddock/carevisit/internal/visit"
)

// Action is a lifecycle transition the caregiver can request.
type Action int

const (
	ActionCheckIn Action = iota + 1
	ActionCheckOut
	ActionCancelCheckIn
)

type actionSpec struct {
	name          string
	from          visit.Status
	needsLocation bool
	success       string
	failure       string
}

var actionSpecs = map[Action]actionSpec{
	ActionCheckIn: {
		name:          "check-in",
		from:          visit.Upcoming,
		needsLocation: true,
		success:       "Successfully checked in!",
		failure:       "Check-in failed",
	},
	ActionCheckOut: {
		name:          "check-out",
		from:          visit.InProgress,
		needsLocation: true,
		success:       "Successfully checked out!",
		failure:       "Check-out failed",
	},
	ActionCancelCheckIn: {
		name:    "cancel-check-in",
		from:    visit.InProgress,
		success: "Check-in cancelled successfully!",
		failure: "Cancel check-in failed",
	},
}

func (a Action) String() string {
	if s, ok := actionSpecs[a]; ok {
		return s.name
	}
	return fmt.Sprintf("action(%d)", int(a))
}

// NeedsLocation reports whether the action reads the device position.
func (a Action) NeedsLocation() bool {
	return actionSpecs[a].needsLocation
}

// ActionsFor returns the actions valid from status, in display order.
func ActionsFor(status visit.Status) []Action {
	switch status {
	case visit.Upcoming:
		return []Action{ActionCheckIn}
	case visit.InProgress:
		return []Action{ActionCheckOut, ActionCancelCheckIn}
	default:
		return nil
	}
}

// Controller runs the check-in/check-out lifecycle of a single visit. At
// most one action is in flight at a time; concurrent requests are rejected.
type Controller struct {
	visitID string
	gw      Gateway
	geo     geo.Provider
	board   *Board
	logger  zerolog.Logger

	mu       sync.Mutex
	visit    *visit.Visit
	stale    bool
	inFlight bool
	loadErr  error
}

// NewController creates a controller for visitID. A nil provider behaves
// like a device without location support.
func NewController(visitID string, gw Gateway, provider geo.Provider, board *Board, opts ...Option) *Controller {
	if provider == nil {
		provider = geo.Unsupported{}
	}
	if board == nil {
		board = NewBoard(nil)
	}
	o := buildOptions(opts)
	return &Controller{
		visitID: visitID,
		gw:      gw,
		geo:     provider,
		board:   board,
		logger:  o.logger.With().Str("visit_id", visitID).Logger(),
	}
}

// VisitID returns the id the controller was created for.
func (c *Controller) VisitID() string { return c.visitID }

// Board returns the notification board the controller reports to.
func (c *Controller) Board() *Board { return c.board }

// Load reads the visit for the first time. Any error leaves the controller
// without a record and is kept as the page-level load error.
func (c *Controller) Load(ctx context.Context) error {
	if c.visitID == "" {
		c.mu.Lock()
		c.loadErr = fmt.Errorf("no visit selected: %w", visit.ErrNotFound)
		c.mu.Unlock()
		return c.LoadErr()
	}

	v, err := c.gw.GetVisit(ctx, c.visitID)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.visit = nil
		c.loadErr = err
		return err
	}
	c.visit, c.stale, c.loadErr = v, false, nil
	return nil
}

// Refresh re-reads the visit. On failure the previous record is kept and
// stays stale; a not-found result becomes the load error.
func (c *Controller) Refresh(ctx context.Context) error {
	if c.visitID == "" {
		return ErrUnknownVisit
	}

	v, err := c.gw.GetVisit(ctx, c.visitID)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		if errors.Is(err, visit.ErrNotFound) {
			c.loadErr = err
		}
		return err
	}
	c.visit, c.stale, c.loadErr = v, false, nil
	return nil
}

// Visit returns the last-read record, or nil before a successful load.
func (c *Controller) Visit() *visit.Visit {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.visit
}

// Status returns the last-read status, or the empty Status if unloaded.
func (c *Controller) Status() visit.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.visit == nil {
		return ""
	}
	return c.visit.Status
}

// InFlight reports whether an action is pending.
func (c *Controller) InFlight() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inFlight
}

// Stale reports whether a mutation succeeded that the record does not yet
// reflect.
func (c *Controller) Stale() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stale
}

// LoadErr returns the error that prevents the visit from being shown.
func (c *Controller) LoadErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loadErr
}

// Actions returns the actions valid from the current status.
func (c *Controller) Actions() []Action {
	return ActionsFor(c.Status())
}

// CheckIn reads the device position and checks the caregiver in.
func (c *Controller) CheckIn(ctx context.Context) error {
	return c.Do(ctx, ActionCheckIn)
}

// CheckOut reads the device position and checks the caregiver out.
func (c *Controller) CheckOut(ctx context.Context) error {
	return c.Do(ctx, ActionCheckOut)
}

// CancelCheckIn reverts a check-in. No position is read.
func (c *Controller) CancelCheckIn(ctx context.Context) error {
	return c.Do(ctx, ActionCancelCheckIn)
}

// Do performs action. It returns an error only when the request is
// rejected without side effects; the outcome of an attempted action is
// reported on the board.
func (c *Controller) Do(ctx context.Context, action Action) error {
	spec, ok := actionSpecs[action]
	if !ok {
		return fmt.Errorf("%w: %s", ErrInvalidTransition, action)
	}
	if err := c.begin(spec); err != nil {
		return err
	}
	defer c.end()

	c.board.Clear()
	log := c.logger.With().Stringer("action", action).Logger()

	var at visit.Coordinate
	if spec.needsLocation {
		coord, err := c.geo.CurrentPosition(ctx)
		if err != nil {
			log.Debug().Err(err).Msg("location unavailable")
			c.board.Error("Failed to get location: " + err.Error())
			return nil
		}
		at = coord
	}

	if _, err := c.mutate(ctx, action, at); err != nil {
		log.Debug().Err(err).Msg("action failed")
		c.board.Error(spec.failure + ": " + err.Error())
		return nil
	}

	c.board.Success(spec.success)
	c.markStale()
	if err := c.Refresh(ctx); err != nil {
		log.Warn().Err(err).Msg("re-read after action failed")
	}
	return nil
}

func (c *Controller) begin(spec actionSpec) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.inFlight:
		return ErrActionInFlight
	case c.visitID == "" || c.visit == nil:
		return ErrUnknownVisit
	case c.visit.Status != spec.from:
		return fmt.Errorf("%w: cannot %s a visit that is %s", ErrInvalidTransition, spec.name, c.visit.Status.Label())
	}
	c.inFlight = true
	return nil
}

func (c *Controller) end() {
	c.mu.Lock()
	c.inFlight = false
	c.mu.Unlock()
}

func (c *Controller) markStale() {
	c.mu.Lock()
	c.stale = true
	c.mu.Unlock()
}

func (c *Controller) mutate(ctx context.Context, action Action, at visit.Coordinate) (*visit.Transition, error) {
	switch action {
	case ActionCheckIn:
		return c.gw.CheckIn(ctx, c.visitID, at)
	case ActionCheckOut:
		return c.gw.CheckOut(ctx, c.visitID, at)
	default:
		return c.gw.CancelCheckIn(ctx, c.visitID)
	}
}
