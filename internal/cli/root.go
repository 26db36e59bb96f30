// internal/cli/root.go
package cli

import (
	"context"
	"fmt"

	"backoffice-console/internal/app"
	"backoffice-console/internal/config"
	"backoffice-console/internal/pkg/logger"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// options are shared by every command. Flags override the environment.
type options struct {
	envFiles  []string
	logLevel  string
	storage   string
	storePath string

	cfg    config.AppConfig
	logger *zap.Logger
}

// NewRootCommand builds the console command tree.
func NewRootCommand() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "console",
		Short: "Back-office console session gateway",
		Long: `console signs an operator in against the user service, keeps the session
fresh, and serves the guarded back-office console.

The session is persisted in the configured storage backend, so commands share it:

  console login --username ops
  console status
  console can product:update
  console serve
  console logout`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.load()
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if opts.logger != nil {
				_ = opts.logger.Sync()
			}
		},
	}

	flags := root.PersistentFlags()
	flags.StringSliceVar(&opts.envFiles, "env-file", []string{".env"}, "dotenv files to load before reading CONSOLE_* variables")
	flags.StringVar(&opts.logLevel, "log-level", "", "override CONSOLE_LOG_LEVEL")
	flags.StringVar(&opts.storage, "storage", "", "override CONSOLE_STORAGE_BACKEND (memory, file, redis, postgres)")
	flags.StringVar(&opts.storePath, "storage-path", "", "override CONSOLE_STORAGE_PATH")

	root.AddCommand(
		newServeCmd(opts),
		newLoginCmd(opts),
		newLogoutCmd(opts),
		newStatusCmd(opts),
		newCanCmd(opts),
	)
	return root
}

// Execute runs the console CLI.
func Execute() error {
	return NewRootCommand().Execute()
}

func (o *options) load() error {
	if err := config.LoadDotEnv(o.envFiles...); err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	if o.storage != "" {
		cfg.Storage.Backend = o.storage
	}
	if o.storePath != "" {
		cfg.Storage.Path = o.storePath
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}

	o.cfg = cfg
	o.logger = log
	return nil
}

// stack wires the session core and restores the persisted session.
func (o *options) stack(ctx context.Context, bootstrap bool) (*app.Stack, error) {
	stack, err := app.Build(ctx, o.cfg, o.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to build console: %w", err)
	}
	if bootstrap {
		stack.Session.Bootstrap(ctx)
	}
	return stack, nil
}

func printf(cmd *cobra.Command, format string, args ...any) {
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), format, args...)
}
