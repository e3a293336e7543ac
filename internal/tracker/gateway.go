// Package tracker drives a caregiver's interaction with one visit: the
// check-in/check-out lifecycle and the per-task completion workflow.
//
// Nothing here mutates visit or task status locally. Every change is a
// request to the Gateway followed by a re-read, and outcomes are reported
// through a shared Board of transient notifications.
package tracker

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/evcraddock/carevisit/internal/visit"
)

// Rejections. An operation returning one of these did nothing: no
// location read, no gateway call, no notification.
var (
	ErrActionInFlight    = errors.New("another visit action is in progress")
	ErrUnknownVisit      = errors.New("visit is not loaded")
	ErrInvalidTransition = errors.New("action not allowed in current visit status")
	ErrNotInteractive    = errors.New("tasks can only be updated while the visit is in progress")
	ErrUnknownTask       = errors.New("task not found on this visit")
	ErrTaskPending       = errors.New("task update already in progress")
)

// Gateway is the remote visit-management system. Any error is treated as a
// failure the caregiver may retry; only visit.ErrNotFound from GetVisit is
// handled specially.
type Gateway interface {
	GetVisit(ctx context.Context, visitID string) (*visit.Visit, error)
	CheckIn(ctx context.Context, visitID string, at visit.Coordinate) (*visit.Transition, error)
	CheckOut(ctx context.Context, visitID string, at visit.Coordinate) (*visit.Transition, error)
	CancelCheckIn(ctx context.Context, visitID string) (*visit.Transition, error)
	UpdateTask(ctx context.Context, taskID string, upd visit.TaskUpdate) (*visit.Task, error)
}

type options struct {
	logger zerolog.Logger
}

// Option configures a Controller or TaskCoordinator.
type Option func(*options)

// WithLogger sets the logger used for failures that are not surfaced as
// notifications, such as a failed re-read after a successful mutation.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.logger = l }
}

func buildOptions(opts []Option) options {
	o := options{logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
