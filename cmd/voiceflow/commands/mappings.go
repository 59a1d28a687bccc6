package commands

import (
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/benvon/voiceflow/internal/database"
	"github.com/benvon/voiceflow/internal/models"
	"github.com/benvon/voiceflow/internal/validation"
	"github.com/spf13/cobra"
)

// NewMappingsCmd creates the mappings command with list, set and rm subcommands.
func NewMappingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mappings",
		Short: "Manage hashtag to Todoist project mappings",
		Long: `Stored mappings are kept in the database and override PROJECT_MAPPINGS
entries with the same tag. The first matching tag in list order wins.`,
	}
	cmd.AddCommand(newMappingsListCmd())
	cmd.AddCommand(newMappingsSetCmd())
	cmd.AddCommand(newMappingsRmCmd())
	return cmd
}

func newMappingsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the effective mappings in match order",
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

			stored, err := database.NewProjectMappingRepository(db).List(cmd.Context())
			if err != nil {
				return fmt.Errorf("list mappings: %w", err)
			}
			merged := database.MergeMappings(cfg.Settings.ProjectMappings, stored)
			if len(merged) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No project mappings configured. Use 'mappings set' to add one.")
				return nil
			}

			isStored := make(map[string]bool, len(stored))
			for _, m := range stored {
				isStored[strings.ToLower(m.Tag)] = true
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "TAG\tPROJECT ID\tPROJECT NAME\tSOURCE")
			for _, m := range merged {
				source := "config"
				if isStored[strings.ToLower(m.Tag)] {
					source = "stored"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", m.Tag, m.ProjectID, m.ProjectName, source)
			}
			return w.Flush()
		},
	}
}

func newMappingsSetCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "set <tag> <project-id>",
		Short: "Create or replace a stored mapping",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			tag, err := validation.NormalizeTag(args[0])
			if err != nil {
				return err
			}
			projectID := strings.TrimSpace(args[1])
			if projectID == "" {
				return fmt.Errorf("project id is required")
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

			m := models.ProjectMapping{Tag: tag, ProjectID: projectID, ProjectName: validation.SanitizeText(name)}
			if err := database.NewProjectMappingRepository(db).Upsert(cmd.Context(), m); err != nil {
				return fmt.Errorf("save mapping: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Mapped %s to project %s.\n", tag, projectID)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Project name, for display")
	return cmd
}

func newMappingsRmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <tag>",
		Short: "Remove a stored mapping",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tag, err := validation.NormalizeTag(args[0])
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

			err = database.NewProjectMappingRepository(db).Delete(cmd.Context(), tag)
			if errors.Is(err, database.ErrMappingNotFound) {
				return fmt.Errorf("no stored mapping for %s", tag)
			}
			if err != nil {
				return fmt.Errorf("delete mapping: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed mapping for %s.\n", tag)
			return nil
		},
	}
}
