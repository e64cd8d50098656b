package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// testCmd represents the test command
var testCmd = &cobra.Command{
	Use:   "test",
	Short: "Test connection to Dmart",
	Long:  `Log in to your Dmart instance, fetch the profile of the configured user and log out again.`,
	RunE:  runTest,
}

func runTest(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	ctx := cmd.Context()

	fmt.Fprintf(out, "Testing connection to Dmart at %s...\n", cfg.Dmart.URL)

	if err := dmartClient.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer func() {
		if err := dmartClient.Disconnect(ctx); err != nil {
			logger.Warn().Err(err).Msg("Failed to disconnect")
		}
	}()

	fmt.Fprintln(out, "✓ Login successful!")

	if session, ok := dmartClient.Session(); ok && !session.ExpiresAt.IsZero() {
		fmt.Fprintf(out, "- Token expires: %s (in %s)\n",
			session.ExpiresAt.Format(time.RFC3339),
			time.Until(session.ExpiresAt).Round(time.Second))
	}

	profile, err := dmartClient.GetProfile(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "\nLogged in as %s (%s)\n", profile.GetDisplayName(), profile.Shortname)
	fmt.Fprintf(out, "- Roles: %d\n", len(profile.Roles))
	fmt.Fprintf(out, "- Groups: %d\n", len(profile.Groups))
	fmt.Fprintf(out, "- Permissions: %d\n", len(profile.Permissions))

	return nil
}
