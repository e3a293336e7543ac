package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/evcraddock/carevisit/internal/tracker"
	"github.com/evcraddock/carevisit/internal/visit"
)

var (
	successStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#22C55E"))
	errorStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#EF4444"))
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#0F766E"))

	statusStyles = map[visit.Status]lipgloss.Style{
		visit.Upcoming:   lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B")),
		visit.InProgress: lipgloss.NewStyle().Foreground(lipgloss.Color("#3B82F6")),
		visit.Completed:  lipgloss.NewStyle().Foreground(lipgloss.Color("#22C55E")),
		visit.Missed:     lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444")),
	}
)

const slotLayout = "Mon Jan 2 15:04"

// reportedError is a failure whose message has already been printed.
type reportedError struct {
	msg string
}

func (e *reportedError) Error() string { return e.msg }

// Reported reports whether err was already shown to the user, so the
// caller should exit non-zero without printing it again.
func Reported(err error) bool {
	var re *reportedError
	return errors.As(err, &re)
}

// printJSON marshals v as indented JSON and writes it to w.
func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printBanner prints a notification and turns an error notification into
// a reportedError.
func printBanner(w io.Writer, n tracker.Notification) error {
	switch n.Kind {
	case tracker.KindSuccess:
		fmt.Fprintln(w, successStyle.Render("✓ "+n.Message))
	case tracker.KindError:
		fmt.Fprintln(w, errorStyle.Render("✗ "+n.Message))
		return &reportedError{msg: n.Message}
	}
	return nil
}

func styledStatus(s visit.Status) string {
	if st, ok := statusStyles[s]; ok {
		return st.Render(s.Label())
	}
	return s.Label()
}

func formatSlot(s visit.Slot) string {
	from := s.From.Local()
	to := s.To.Local()
	if from.Format(time.DateOnly) == to.Format(time.DateOnly) {
		return from.Format(slotLayout) + " - " + to.Format("15:04")
	}
	return from.Format(slotLayout) + " - " + to.Format(slotLayout)
}

// formatDuration renders whole minutes compactly: 45m, 1h, 1h30m.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return d.String()
	}
	s := strings.TrimSuffix(d.Round(time.Minute).String(), "0s")
	if strings.HasSuffix(s, "h0m") {
		s = strings.TrimSuffix(s, "0m")
	}
	return s
}

// printScheduleTable prints a list of visits as a formatted table.
func printScheduleTable(w io.Writer, visits []*visit.Visit) error {
	if len(visits) == 0 {
		fmt.Fprintln(w, "No visits scheduled.")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if _, err := fmt.Fprintln(tw, "ID\tSLOT\tCLIENT\tSERVICE\tSTATUS\tTASKS"); err != nil {
		return fmt.Errorf("writing table header: %w", err)
	}
	if _, err := fmt.Fprintln(tw, "--\t----\t------\t-------\t------\t-----"); err != nil {
		return fmt.Errorf("writing table separator: %w", err)
	}

	for _, v := range visits {
		done := 0
		for _, t := range v.Tasks {
			if t.IsCompleted() {
				done++
			}
		}
		if _, err := fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d/%d\n",
			v.ID, formatSlot(v.Slot), truncate(v.Client.FullName(), 24), truncate(v.ServiceName, 24),
			v.Status.Label(), done, len(v.Tasks)); err != nil {
			return fmt.Errorf("writing table row: %w", err)
		}
	}

	if err := tw.Flush(); err != nil {
		return fmt.Errorf("flushing table: %w", err)
	}

	fmt.Fprintf(w, "\nTotal: %d visits\n", len(visits))
	return nil
}

// printVisitDetail prints a visit in text format.
func printVisitDetail(w io.Writer, v *visit.Visit, actions []tracker.Action) {
	fmt.Fprintln(w, titleStyle.Render(v.ServiceName))
	fmt.Fprintf(w, "  Visit:    %s\n", v.ID)
	fmt.Fprintf(w, "  Status:   %s\n", styledStatus(v.Status))
	fmt.Fprintf(w, "  Slot:     %s (%s)\n", formatSlot(v.Slot), formatDuration(v.Slot.Duration()))
	fmt.Fprintf(w, "  Client:   %s\n", v.Client.FullName())
	if v.Client.Email != "" {
		fmt.Fprintf(w, "  Email:    %s\n", v.Client.Email)
	}
	if addr := v.Client.Address.String(); addr != "" {
		fmt.Fprintf(w, "  Address:  %s\n", addr)
	}
	if v.Client.Address.Location.Valid {
		fmt.Fprintf(w, "  Location: %s\n", v.Client.Address.Location)
	}
	if v.CheckIn != nil {
		fmt.Fprintf(w, "  Check-in:  %s at %s\n", v.CheckIn.Time.Local().Format(slotLayout), v.CheckIn.Location)
	}
	if v.CheckOut != nil {
		fmt.Fprintf(w, "  Check-out: %s at %s\n", v.CheckOut.Time.Local().Format(slotLayout), v.CheckOut.Location)
	}
	if v.Note != "" {
		fmt.Fprintf(w, "  Note:     %s\n", v.Note)
	}

	fmt.Fprintln(w)
	printTasks(w, v)

	if len(actions) > 0 {
		names := make([]string, len(actions))
		for i, a := range actions {
			names[i] = a.String()
		}
		fmt.Fprintln(w)
		fmt.Fprintln(w, mutedStyle.Render("Available: "+strings.Join(names, ", ")))
	}
}

// printTasks prints the task list with 1-based numbers usable in `cv task`.
func printTasks(w io.Writer, v *visit.Visit) {
	if len(v.Tasks) == 0 {
		fmt.Fprintln(w, "No tasks assigned for this visit.")
		return
	}

	fmt.Fprintln(w, "Tasks:")
	for i, t := range v.Tasks {
		mark := "[ ]"
		if t.IsCompleted() {
			mark = "[x]"
		}
		fmt.Fprintf(w, "  %d. %s %s %s\n", i+1, mark, t.Title, mutedStyle.Render("("+t.ID+")"))
		if t.Description != "" {
			fmt.Fprintf(w, "       %s\n", t.Description)
		}
		if t.Feedback != "" {
			fmt.Fprintf(w, "       Not done: %s\n", t.Feedback)
		}
	}
}

// truncate shortens a string to maxLen, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
