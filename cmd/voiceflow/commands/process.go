package commands

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/benvon/voiceflow/internal/app"
	"github.com/benvon/voiceflow/internal/database"
	"github.com/benvon/voiceflow/internal/models"
	"github.com/benvon/voiceflow/internal/validation"
	"github.com/benvon/voiceflow/internal/workers"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newProcessCmd(opts *options) *cobra.Command {
	var block models.BlockRef

	cmd := &cobra.Command{
		Use:   "process",
		Short: "Process one voice note block",
		Long: `Transcribe the audio embedded in a block, write the summary page and push
the resulting Todoist tasks. The block is selected by --id or by --line.
When DATABASE_URL is set the run is recorded and stored tag mappings apply.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validation.Validate.Struct(block); err != nil {
				return fmt.Errorf("invalid block: %w", err)
			}
			if block.ID == "" && block.Line == 0 {
				return fmt.Errorf("--id or --line is required")
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.GraphDir == "" {
				return fmt.Errorf("GRAPH_DIR is required")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			ctx, cancel := context.WithTimeout(ctx, cfg.JobTimeout)
			defer cancel()

			log := cliLogger(opts.debug)
			defer func() { _ = log.Sync() }()

			deps, err := app.Build(cfg, log, opts.debug)
			if err != nil {
				return err
			}
			defer func() { _ = deps.Close() }()

			var procOpts []workers.Option
			if cfg.DatabaseURL != "" {
				db, err := openDatabase(ctx, cfg)
				if err != nil {
					return err
				}
				defer func() { _ = db.Close() }()
				procOpts = append(procOpts,
					workers.WithRunStore(database.NewRunRepository(db)),
					workers.WithMappingStore(database.NewProjectMappingRepository(db)),
				)
			}

			run, err := deps.NewProcessor(procOpts...).Start(ctx, deps.Workspace, block)
			if run != nil {
				if perr := printJSON(cmd.OutOrStdout(), run); perr != nil {
					log.Warn("failed_to_print_run", zap.Error(perr))
				}
			}
			var pipelineErr *workers.PipelineError
			if errors.As(err, &pipelineErr) {
				return fmt.Errorf("run %s: %s", run.ID, pipelineErr.Message())
			}
			return err
		},
	}

	cmd.Flags().StringVar(&block.Page, "page", "", "Graph-relative page file, e.g. journals/2026_10_14.md (required)")
	cmd.Flags().StringVar(&block.ID, "id", "", "Block id (the id:: property)")
	cmd.Flags().IntVar(&block.Line, "line", 0, "1-based line of the block when it has no id")
	_ = cmd.MarkFlagRequired("page")

	return cmd
}
