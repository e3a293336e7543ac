package cli

import (
	"github.com/spf13/cobra"

	"github.com/evcraddock/carevisit/internal/tracker"
	"github.com/evcraddock/carevisit/internal/visit"
)

func newCheckInCmd() *cobra.Command {
	return newLifecycleCmd(tracker.ActionCheckIn, "checkin <visit-id>",
		"Check in to a visit",
		"Check in to an upcoming visit. The current location is read from --lat/--long "+
			"or the configured location provider.")
}

func newCheckOutCmd() *cobra.Command {
	return newLifecycleCmd(tracker.ActionCheckOut, "checkout <visit-id>",
		"Check out of a visit",
		"Check out of an in-progress visit, recording the current location.")
}

func newCancelCheckInCmd() *cobra.Command {
	return newLifecycleCmd(tracker.ActionCancelCheckIn, "cancel-checkin <visit-id>",
		"Cancel a check-in",
		"Revert an in-progress visit to upcoming. No location is read.")
}

type lifecycleOutput struct {
	Action       string       `json:"action"`
	Notification string       `json:"notification"`
	Message      string       `json:"message"`
	Visit        *visit.Visit `json:"visit,omitempty"`
}

func newLifecycleCmd(action tracker.Action, use, short, long string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Long:  long,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLifecycle(cmd, args[0], action)
		},
	}
}

func runLifecycle(cmd *cobra.Command, visitID string, action tracker.Action) error {
	ctx := cmd.Context()

	s, err := openSession(ctx, cmd, visitID)
	if err != nil {
		return err
	}

	if err := s.ctrl.Do(ctx, action); err != nil {
		return err
	}

	n := s.board.Current()
	out := cmd.OutOrStdout()

	if isJSON() {
		if err := printJSON(out, lifecycleOutput{
			Action:       action.String(),
			Notification: n.Kind.String(),
			Message:      n.Message,
			Visit:        s.ctrl.Visit(),
		}); err != nil {
			return err
		}
		if n.Kind == tracker.KindError {
			return &reportedError{msg: n.Message}
		}
		return nil
	}

	if err := printBanner(out, n); err != nil {
		return err
	}
	if v := s.ctrl.Visit(); v != nil {
		printVisitDetail(out, v, s.ctrl.Actions())
	}
	return nil
}
