package cli

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/evcraddock/carevisit/internal/client"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check connection and auth status",
		Long:  "Tests the connection to the server and checks if the stored API key is valid.",
		Args:  cobra.NoArgs,
		RunE:  runStatus,
	}
}

func runStatus(cmd *cobra.Command, args []string) error {
	serverURL := getServerURL()
	apiKey := getAPIKey()
	out := cmd.OutOrStdout()

	fmt.Fprintf(out, "Server:  %s\n", serverURL)

	c := client.New(serverURL, apiKey)
	if _, err := c.Health(cmd.Context()); err != nil {
		fmt.Fprintf(out, "Status:  %s\n", errorStyle.Render(fmt.Sprintf("✗ cannot reach server (%v)", err)))
		return nil
	}

	if apiKey == "" {
		fmt.Fprintln(out, "API Key: not configured")
		fmt.Fprintln(out, "\nRun 'cv login' to authenticate.")
		return nil
	}

	prefix := apiKey
	if len(prefix) > 8 {
		prefix = prefix[:8]
	}
	fmt.Fprintf(out, "API Key: %s…\n", prefix)

	me, err := c.Me(cmd.Context())
	if err != nil {
		var apiErr *client.APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized {
			fmt.Fprintf(out, "Status:  %s\n", errorStyle.Render("✗ invalid API key"))
			fmt.Fprintln(out, "\nRun 'cv login' to re-authenticate.")
			return nil
		}
		fmt.Fprintf(out, "Status:  %s\n", errorStyle.Render(fmt.Sprintf("✗ unexpected response (%v)", err)))
		return nil
	}

	fmt.Fprintf(out, "Status:  %s\n", successStyle.Render("✓ connected and authenticated"))
	if me.CaregiverID != "" {
		fmt.Fprintf(out, "Caregiver: %s\n", me.CaregiverID)
	}
	return nil
}
