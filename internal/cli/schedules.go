package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newSchedulesCmd() *cobra.Command {
	var (
		date      string
		caregiver string
	)

	cmd := &cobra.Command{
		Use:     "schedules",
		Aliases: []string{"ls"},
		Short:   "List scheduled visits",
		Long:    "List the visits scheduled for a caregiver on one day (default: today).",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var day time.Time
			if date != "" {
				d, err := time.Parse(time.DateOnly, date)
				if err != nil {
					return fmt.Errorf("invalid --date %q (expected YYYY-MM-DD)", date)
				}
				day = d
			}
			if caregiver == "" {
				caregiver = getCaregiverID()
			}

			visits, err := newAPIClient().ListSchedules(cmd.Context(), caregiver, day)
			if err != nil {
				return fmt.Errorf("listing schedules: %w", err)
			}

			if isJSON() {
				return printJSON(cmd.OutOrStdout(), visits)
			}
			return printScheduleTable(cmd.OutOrStdout(), visits)
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "day to list (YYYY-MM-DD, UTC)")
	cmd.Flags().StringVar(&caregiver, "caregiver", "", "caregiver id (default: from config)")

	return cmd
}
