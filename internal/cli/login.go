package cli

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/evcraddock/carevisit/internal/client"
)

func newLoginCmd() *cobra.Command {
	var server string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and store an API key",
		Long: "Prompts for an API key (create one with `cv apikey create` on the server), " +
			"verifies it against the server and stores it with the caregiver it belongs to.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLogin(cmd, server)
		},
	}

	cmd.Flags().StringVar(&server, "server", "", "server URL (default: from config or http://localhost:8080)")

	return cmd
}

func runLogin(cmd *cobra.Command, serverFlag string) error {
	serverURL := serverFlag
	if serverURL == "" {
		serverURL = getServerURL()
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Logging in to %s\n", serverURL)
	fmt.Fprint(out, "Paste your API key: ")

	reader := bufio.NewReader(cmd.InOrStdin())
	key, err := reader.ReadString('\n')
	if err != nil && key == "" {
		return fmt.Errorf("reading input: %w", err)
	}

	key = strings.TrimSpace(key)
	if err := validateAPIKey(key); err != nil {
		return err
	}

	me, err := client.New(serverURL, key).Me(cmd.Context())
	if err != nil {
		return fmt.Errorf("verifying API key: %w", err)
	}

	// Load existing config to preserve other fields
	cfg, err := loadConfig()
	if err != nil {
		cfg = CLIConfig{}
	}

	cfg.APIKey = key
	cfg.CaregiverID = me.CaregiverID
	if serverFlag != "" {
		cfg.ServerURL = serverFlag
	}

	if err := saveConfig(cfg); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}

	fmt.Fprintln(out)
	if me.CaregiverID != "" {
		fmt.Fprintln(out, successStyle.Render(fmt.Sprintf("✓ Logged in as caregiver %s (key %q).", me.CaregiverID, me.Name)))
	} else {
		fmt.Fprintln(out, successStyle.Render(fmt.Sprintf("✓ API key %q saved. You're logged in!", me.Name)))
	}
	return nil
}

// validateAPIKey checks that the key is non-empty and has the expected prefix.
func validateAPIKey(key string) error {
	if key == "" {
		return fmt.Errorf("no API key provided")
	}
	if !strings.HasPrefix(key, "cv_") {
		return fmt.Errorf("invalid API key format (should start with cv_)")
	}
	return nil
}
