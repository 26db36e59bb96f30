// internal/cli/serve.go
package cli

import (
	"os"
	"os/signal"
	"syscall"

	"backoffice-console/internal/app"
	"backoffice-console/internal/pkg/routes"

	"github.com/spf13/cobra"
)

func newServeCmd(opts *options) *cobra.Command {
	var addr, routesFile string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the guarded console",
		Long: `Restore the persisted session, connect to account events, and serve the
console pages and API until interrupted.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if addr != "" {
				opts.cfg.HTTPAddr = addr
			}
			if routesFile == "" {
				routesFile = opts.cfg.RoutesFile
			}

			table, err := routes.Load(routesFile)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			stack, err := opts.stack(ctx, false)
			if err != nil {
				return err
			}
			defer stack.Close()

			return app.NewServer(stack, table).Run(ctx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides CONSOLE_HTTP_ADDR)")
	cmd.Flags().StringVar(&routesFile, "routes", "", "route table YAML (overrides CONSOLE_ROUTES_FILE)")
	return cmd
}
