package cli

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/evcraddock/carevisit/internal/tracker"
	"github.com/evcraddock/carevisit/internal/visit"
)

func newTaskCmd() *cobra.Command {
	var feedback string

	cmd := &cobra.Command{
		Use:   "task <visit-id> <task-id|number> <yes|no>",
		Short: "Report whether a task was done",
		Long: "Report a task of an in-progress visit. Answer yes when the task was done, or " +
			"no with --feedback explaining why it was not. The task may be given by id or by " +
			"its number in `cv show`.",
		Example: "  cv task V1 2 yes\n  cv task V1 T3 no --feedback \"client declined\"",
		Args:    cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTask(cmd, args[0], args[1], args[2], feedback)
		},
	}

	cmd.Flags().StringVarP(&feedback, "feedback", "m", "", "why the task was not done (required with no)")

	return cmd
}

func runTask(cmd *cobra.Command, visitID, taskRef, answer, feedback string) error {
	ctx := cmd.Context()

	sel, err := tracker.ParseSelection(answer)
	if err != nil {
		return err
	}
	if sel == tracker.SelectNo && strings.TrimSpace(feedback) == "" {
		return fmt.Errorf("--feedback is required when answering no")
	}

	s, err := openSession(ctx, cmd, visitID)
	if err != nil {
		return err
	}

	taskID, err := resolveTask(s.ctrl.Visit(), taskRef)
	if err != nil {
		return err
	}

	if err := s.tasks.Select(ctx, taskID, sel); err != nil {
		return taskError(err, s.ctrl.Visit())
	}
	if sel == tracker.SelectNo {
		if err := s.tasks.SetDraft(taskID, feedback); err != nil {
			return taskError(err, s.ctrl.Visit())
		}
		if err := s.tasks.Confirm(ctx, taskID); err != nil {
			return taskError(err, s.ctrl.Visit())
		}
	}

	out := cmd.OutOrStdout()
	n := s.board.Current()
	if n.Kind == tracker.KindError {
		if isJSON() {
			if err := printJSON(out, s.ctrl.Visit()); err != nil {
				return err
			}
			return &reportedError{msg: n.Message}
		}
		return printBanner(out, n)
	}

	if isJSON() {
		return printJSON(out, s.ctrl.Visit())
	}

	fmt.Fprintln(out, successStyle.Render("✓ Task updated"))
	if s.tasks.AllCompleted() {
		fmt.Fprintln(out, successStyle.Render("All tasks completed!"))
	}
	return nil
}

// resolveTask accepts a task id or a 1-based position in the visit's task list.
func resolveTask(v *visit.Visit, ref string) (string, error) {
	if _, ok := v.Task(ref); ok {
		return ref, nil
	}
	if n, err := strconv.Atoi(ref); err == nil {
		if n < 1 || n > len(v.Tasks) {
			return "", fmt.Errorf("task number %d out of range (visit has %d tasks)", n, len(v.Tasks))
		}
		return v.Tasks[n-1].ID, nil
	}
	return "", fmt.Errorf("task %s not found on visit %s", ref, v.ID)
}

func taskError(err error, v *visit.Visit) error {
	if errors.Is(err, tracker.ErrNotInteractive) && v != nil {
		return fmt.Errorf("tasks can only be reported while the visit is in progress (visit is %s)", v.Status.Label())
	}
	return err
}
