// Package commands implements the voiceflow CLI.
package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/benvon/voiceflow/internal/config"
	"github.com/benvon/voiceflow/internal/database"
	"github.com/benvon/voiceflow/internal/logger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// options are the persistent flags shared by every command.
type options struct {
	debug bool
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "voiceflow",
		Short:         "Turn voice notes in a graph into pages and Todoist tasks",
		Long:          "CLI for running the voice note pipeline and managing its integrations. Configuration is read from the environment.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolVar(&opts.debug, "debug", false, "Enable debug logging, including LLM request previews")

	root.AddCommand(newProcessCmd(opts))
	root.AddCommand(newParseCmd(opts))
	root.AddCommand(NewTodoistCmd())
	root.AddCommand(NewMappingsCmd())
	root.AddCommand(NewConverterCmd())
	root.AddCommand(NewPromptsCmd())
	root.AddCommand(NewSettingsCmd())
	return root
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// openDatabase connects and applies migrations. DATABASE_URL must be set.
func openDatabase(ctx context.Context, cfg *config.Config) (*database.DB, error) {
	if err := cfg.RequireDatabase(); err != nil {
		return nil, err
	}
	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := db.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return db, nil
}

// cliLogger writes human readable logs to stderr so stdout stays parseable.
func cliLogger(debug bool) *zap.Logger {
	l, err := logger.New(logger.Options{Debug: debug, Console: true, Component: "cli"})
	if err != nil {
		return zap.NewNop()
	}
	return l
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
