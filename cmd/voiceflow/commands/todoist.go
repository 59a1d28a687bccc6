package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/benvon/voiceflow/internal/app"
	"github.com/benvon/voiceflow/internal/services/todoist"
	"github.com/spf13/cobra"
)

// NewTodoistCmd creates the todoist command with projects, labels and test subcommands.
func NewTodoistCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "todoist",
		Short: "Inspect the Todoist account",
		Long:  "List projects and labels, or check that TODOIST_API_TOKEN is accepted.",
	}
	cmd.AddCommand(newTodoistProjectsCmd())
	cmd.AddCommand(newTodoistLabelsCmd())
	cmd.AddCommand(newTodoistTestCmd())
	return cmd
}

func todoistClient() (*todoist.Client, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	client := app.NewTodoistClient(cfg, nil)
	if !client.Configured() {
		return nil, todoist.ErrNotConfigured
	}
	return client, nil
}

func newTodoistProjectsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "projects",
		Short: "List Todoist projects and their ids",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := todoistClient()
			if err != nil {
				return err
			}
			projects, err := client.Projects(cmd.Context())
			if err != nil {
				return fmt.Errorf("list projects: %w", err)
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tINBOX")
			for _, p := range projects {
				fmt.Fprintf(w, "%s\t%s\t%v\n", p.ID, p.Name, p.IsInbox)
			}
			return w.Flush()
		},
	}
}

func newTodoistLabelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "labels",
		Short: "List Todoist labels",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := todoistClient()
			if err != nil {
				return err
			}
			labels, err := client.Labels(cmd.Context())
			if err != nil {
				return fmt.Errorf("list labels: %w", err)
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME")
			for _, l := range labels {
				fmt.Fprintf(w, "%s\t%s\n", l.ID, l.Name)
			}
			return w.Flush()
		},
	}
}

func newTodoistTestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "test",
		Short: "Check that the Todoist token is accepted",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := todoistClient()
			if err != nil {
				return err
			}
			if err := client.Ping(cmd.Context()); err != nil {
				return fmt.Errorf("todoist rejected the request: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "✓ Todoist token accepted")
			return nil
		},
	}
}
