package cli

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/evcraddock/carevisit/internal/auth"
)

func newAPIKeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apikey",
		Short: "Manage API keys in the server database",
		Long:  "Create, list and revoke API keys directly in the database the server uses.",
	}
	cmd.AddCommand(newAPIKeyCreateCmd(), newAPIKeyListCmd(), newAPIKeyRevokeCmd())
	return cmd
}

func newAPIKeyCreateCmd() *cobra.Command {
	var caregiver string

	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create an API key",
		Long:  "Create an API key. A key bound to --caregiver only sees that caregiver's visits.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			database, err := openDB()
			if err != nil {
				return fmt.Errorf("opening database: %w", err)
			}
			defer closeDB(database)

			raw, key, err := auth.NewAPIKeyStore(database).Create(cmd.Context(), args[0], caregiver)
			if err != nil {
				return fmt.Errorf("creating API key: %w", err)
			}

			out := cmd.OutOrStdout()
			if isJSON() {
				return printJSON(out, struct {
					Key    string       `json:"key"`
					APIKey *auth.APIKey `json:"api_key"`
				}{raw, key})
			}
			fmt.Fprintf(out, "Created API key %s (%s)\n", key.Name, key.ID)
			fmt.Fprintln(out, raw)
			fmt.Fprintln(out, mutedStyle.Render("Store it now; it cannot be shown again."))
			return nil
		},
	}

	cmd.Flags().StringVar(&caregiver, "caregiver", "", "caregiver id the key acts as")

	return cmd
}

func newAPIKeyListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			database, err := openDB()
			if err != nil {
				return fmt.Errorf("opening database: %w", err)
			}
			defer closeDB(database)

			keys, err := auth.NewAPIKeyStore(database).List(cmd.Context())
			if err != nil {
				return fmt.Errorf("listing API keys: %w", err)
			}

			out := cmd.OutOrStdout()
			if isJSON() {
				return printJSON(out, keys)
			}
			if len(keys) == 0 {
				fmt.Fprintln(out, "No API keys.")
				return nil
			}

			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tCAREGIVER\tPREFIX\tLAST USED")
			for _, k := range keys {
				lastUsed := "never"
				if k.LastUsedAt != nil {
					lastUsed = k.LastUsedAt.Local().Format(slotLayout)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", k.ID, k.Name, k.CaregiverID, k.KeyPrefix, lastUsed)
			}
			return tw.Flush()
		},
	}
}

func newAPIKeyRevokeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <id>",
		Short: "Revoke an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			database, err := openDB()
			if err != nil {
				return fmt.Errorf("opening database: %w", err)
			}
			defer closeDB(database)

			if err := auth.NewAPIKeyStore(database).Delete(cmd.Context(), args[0]); err != nil {
				if errors.Is(err, auth.ErrKeyNotFound) {
					return fmt.Errorf("API key %s not found", args[0])
				}
				return fmt.Errorf("revoking API key: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Revoked API key %s\n", args[0])
			return nil
		},
	}
}
