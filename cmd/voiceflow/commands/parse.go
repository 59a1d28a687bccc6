package commands

import (
	"fmt"
	"io"
	"strings"

	"github.com/benvon/voiceflow/internal/database"
	"github.com/benvon/voiceflow/internal/directive"
	"github.com/benvon/voiceflow/internal/models"
	"github.com/benvon/voiceflow/internal/validation"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newParseCmd(opts *options) *cobra.Command {
	var blockText string

	cmd := &cobra.Command{
		Use:   "parse [transcript]",
		Short: "Show the directives found in a transcript",
		Long:  "Run the directive parser without calling any service. With no argument the transcript is read from stdin.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			transcript := ""
			if len(args) == 1 {
				transcript = args[0]
			} else {
				data, err := io.ReadAll(io.LimitReader(cmd.InOrStdin(), 1<<20))
				if err != nil {
					return fmt.Errorf("read transcript: %w", err)
				}
				transcript = string(data)
			}
			transcript = validation.SanitizeText(transcript)
			if strings.TrimSpace(transcript) == "" {
				return fmt.Errorf("transcript is empty")
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			settings := cfg.Settings

			if cfg.DatabaseURL != "" {
				log := cliLogger(opts.debug)
				db, err := openDatabase(cmd.Context(), cfg)
				if err != nil {
					return err
				}
				defer func() { _ = db.Close() }()
				stored, err := database.NewProjectMappingRepository(db).List(cmd.Context())
				if err != nil {
					log.Warn("project_mappings_load_failed", zap.Error(err))
				} else {
					settings.ProjectMappings = database.MergeMappings(settings.ProjectMappings, stored)
				}
			}

			block := validation.SanitizeText(blockText)
			d := directive.Parse(transcript, block, settings)
			return printJSON(cmd.OutOrStdout(), models.ParseResult{Directives: d, BlockTags: directive.BlockTags(block)})
		},
	}

	cmd.Flags().StringVar(&blockText, "block-text", "", "Text of the block holding the recording")
	return cmd
}
