package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/s0up4200/godmart/dmart"
	"github.com/s0up4200/godmart/filter"
)

var (
	// Command flags
	jsonOutput bool
	matchExpr  string
)

// profileCmd represents the profile command
var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Show the profile of the logged-in user",
	Long: `Show the profile of the configured Dmart user.

With --expr the profile is checked against an expression instead, and the
command fails when it does not match:

  godmart profile --expr 'hasRole("super_admin") and IsEmailVerified'`,
	RunE: runProfile,
}

func init() {
	profileCmd.Flags().BoolVar(&jsonOutput, "json", false, "print the profile as JSON")
	profileCmd.Flags().StringVarP(&matchExpr, "expr", "e", "", "expression the profile must match")
}

func runProfile(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	// Compile first so a typo fails before any request
	var f *filter.Filter
	if matchExpr != "" {
		var err error
		if f, err = filter.Compile(matchExpr); err != nil {
			return fmt.Errorf("invalid expression: %w", err)
		}
	}

	if err := dmartClient.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer func() {
		if err := dmartClient.Disconnect(ctx); err != nil {
			logger.Warn().Err(err).Msg("Failed to disconnect")
		}
	}()

	profile, err := dmartClient.GetProfile(ctx)
	if err != nil {
		return err
	}

	if f != nil {
		ok, err := f.Evaluate(profile)
		if err != nil {
			return err
		}
		logger.Debug().Str("expr", f.Expression()).Bool("match", ok).Msg("Evaluated profile expression")
		if !ok {
			return fmt.Errorf("profile %s does not match %q", profile.Shortname, f.Expression())
		}
		fmt.Fprintln(cmd.OutOrStdout(), "✓ Profile matches")
		return nil
	}

	if jsonOutput {
		return printProfileJSON(cmd.OutOrStdout(), profile)
	}

	printProfile(cmd.OutOrStdout(), profile)
	return nil
}

func printProfileJSON(out io.Writer, profile *dmart.Profile) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(struct {
		Shortname string `json:"shortname"`
		Subpath   string `json:"subpath"`
		*dmart.Profile
	}{profile.Shortname, profile.Subpath, profile})
}

func printProfile(out io.Writer, profile *dmart.Profile) {
	fmt.Fprintf(out, "%s (%s)\n", profile.GetDisplayName(), profile.Shortname)
	fmt.Fprintln(out, strings.Repeat("-", 40))

	if profile.Email != "" {
		verified := ""
		if profile.IsEmailVerified {
			verified = " [verified]"
		}
		fmt.Fprintf(out, "Email:    %s%s\n", profile.Email, verified)
	}
	if profile.Msisdn != "" {
		fmt.Fprintf(out, "Msisdn:   %s\n", profile.Msisdn)
	}
	if profile.Type != "" {
		fmt.Fprintf(out, "Type:     %s\n", profile.Type)
	}
	if profile.Language != "" {
		fmt.Fprintf(out, "Language: %s\n", profile.Language)
	}
	if len(profile.Roles) > 0 {
		fmt.Fprintf(out, "Roles:    %s\n", strings.Join(profile.Roles, ", "))
	}
	if len(profile.Groups) > 0 {
		fmt.Fprintf(out, "Groups:   %s\n", strings.Join(profile.Groups, ", "))
	}
	if profile.ForcePasswordChange {
		fmt.Fprintln(out, "⚠️  Password change required")
	}

	if len(profile.Permissions) > 0 {
		fmt.Fprintln(out, "\nPermissions:")
		keys := make([]string, 0, len(profile.Permissions))
		for key := range profile.Permissions {
			keys = append(keys, key)
		}
		slices.Sort(keys)
		for _, key := range keys {
			fmt.Fprintf(out, "  • %s: %s\n", key, strings.Join(profile.Permissions[key].AllowedActions, ", "))
		}
	}
}
