package commands

import (
	"fmt"
	"strings"

	"github.com/benvon/voiceflow/internal/database"
	"github.com/benvon/voiceflow/internal/middleware"
	"github.com/spf13/cobra"
	"github.com/ulule/limiter/v3"
)

// NewSettingsCmd creates the settings command for the hot-reloaded API settings.
func NewSettingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Manage API settings stored in the database",
		Long:  "CORS origins and the rate limit are stored in the database and picked up by running servers within a minute.",
	}
	cmd.AddCommand(newSettingCmd(
		"cors", "CORS allowed origins",
		database.SettingAllowedOrigins, "origins", "Comma-separated allowed origins",
		func(v string) (string, error) {
			origins := database.SplitList(v)
			if len(origins) == 0 {
				return "", fmt.Errorf("at least one origin is required")
			}
			return strings.Join(middleware.ParseOrigins(v), ","), nil
		},
	))
	cmd.AddCommand(newSettingCmd(
		"ratelimit", "rate limit (e.g. 5-S, 100-M, 1000-H)",
		database.SettingRateLimit, "rate", "Rate in limiter format",
		func(v string) (string, error) {
			if _, err := limiter.NewRateFromFormatted(v); err != nil {
				return "", fmt.Errorf("invalid rate %q: %w", v, err)
			}
			return v, nil
		},
	))
	return cmd
}

// newSettingCmd builds a show/set pair for one api_settings key.
func newSettingCmd(use, what, key, flag, flagUsage string, normalize func(string) (string, error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use,
		Short: "Show or update the " + what,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the stored " + what,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			db, err := openDatabase(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			value, err := database.NewAPISettingsRepository(db).Get(cmd.Context(), key)
			if err != nil {
				return err
			}
			if value == "" {
				fmt.Fprintf(cmd.OutOrStdout(), "No %s stored. Use '%s set' to add one.\n", use, use)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", key, value)
			return nil
		},
	})

	var value string
	set := &cobra.Command{
		Use:   "set",
		Short: "Update the " + what,
		RunE: func(cmd *cobra.Command, args []string) error {
			normalized, err := normalize(strings.TrimSpace(value))
			if err != nil {
				return err
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			db, err := openDatabase(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			if err := database.NewAPISettingsRepository(db).Set(cmd.Context(), key, normalized); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Updated %s.\n", key)
			return nil
		},
	}
	set.Flags().StringVar(&value, flag, "", flagUsage+" (required)")
	_ = set.MarkFlagRequired(flag)
	cmd.AddCommand(set)

	return cmd
}
