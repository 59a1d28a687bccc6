package commands

import (
	"fmt"

	"github.com/benvon/voiceflow/internal/services/converter"
	"github.com/spf13/cobra"
)

// NewConverterCmd creates the converter command.
func NewConverterCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "converter",
		Short: "Inspect the AAC converter sidecar",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "health",
		Short: "Check that the sidecar is running with ffmpeg",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			client := converter.NewClient(cfg.Settings.ConverterHost, cfg.Settings.ConverterPort, nil)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Converter: %s\n", client.BaseURL())

			health, err := client.Health(cmd.Context())
			if err != nil {
				return fmt.Errorf("converter unreachable: %w", err)
			}
			fmt.Fprintf(out, "  Status: %s\n", health.Status)
			fmt.Fprintf(out, "  ffmpeg: %v\n", health.FFmpegAvailable)
			if health.Version != "" {
				fmt.Fprintf(out, "  Version: %s\n", health.Version)
			}
			if !health.Ready() {
				return fmt.Errorf("converter is not ready")
			}
			fmt.Fprintln(out, "✓ Converter ready")
			return nil
		},
	})
	return cmd
}
