package cli

import (
	"github.com/spf13/cobra"

	"github.com/evcraddock/carevisit/internal/tracker"
	"github.com/evcraddock/carevisit/internal/visit"
)

func newShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <visit-id>",
		Short: "Show visit details",
		Long:  "Show a visit with its client, check-in history, tasks and the actions available now.",
		Args:  cobra.ExactArgs(1),
		RunE:  runShow,
	}
}

type showOutput struct {
	Visit   *visit.Visit `json:"visit"`
	Actions []string     `json:"actions"`
}

func runShow(cmd *cobra.Command, args []string) error {
	s, err := openSession(cmd.Context(), cmd, args[0])
	if err != nil {
		return err
	}

	v := s.ctrl.Visit()
	actions := s.ctrl.Actions()

	if isJSON() {
		return printJSON(cmd.OutOrStdout(), showOutput{Visit: v, Actions: actionNames(actions)})
	}

	printVisitDetail(cmd.OutOrStdout(), v, actions)
	return nil
}

func actionNames(actions []tracker.Action) []string {
	names := make([]string, 0, len(actions))
	for _, a := range actions {
		names = append(names, a.String())
	}
	return names
}
