package commands

import (
	"fmt"
	"slices"
	"text/tabwriter"

	"github.com/benvon/voiceflow/internal/prompts"
	"github.com/spf13/cobra"
)

// NewPromptsCmd creates the prompts command.
func NewPromptsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prompts",
		Short: "Inspect prompt templates",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show [key]",
		Short: "List prompt keys, or print one template",
		Long:  "Shows the built-in templates merged with PROMPTS_FILE overrides.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			library, err := prompts.Load(cfg.PromptsFile)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if len(args) == 1 {
				if !slices.Contains(library.Keys(), args[0]) {
					return fmt.Errorf("unknown prompt key %q", args[0])
				}
				p := library.Get(args[0])
				fmt.Fprintf(out, "# %s (temperature %.2f)\n%s\n", args[0], p.Temp(), p.Template)
				return nil
			}

			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "KEY\tTEMPERATURE")
			for _, key := range library.Keys() {
				fmt.Fprintf(w, "%s\t%.2f\n", key, library.Get(key).Temp())
			}
			return w.Flush()
		},
	})
	return cmd
}
