package cmd

import (
	"github.com/spf13/cobra"

	"github.com/devpayr/devpayr-go/internal/app"
)

func (c *cli) serveCommand() *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run an HTTP server gated by the license",
		Long: `Start a demo server whose routes are protected by the license middleware.
Health, version, metrics and /api/license routes stay reachable.

Examples:
  devpayr serve --license $KEY --secret $SECRET --port 8080
  curl localhost:8080/api/license/status`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("port") {
				c.cfg.Server.Port = port
			}
			application, err := app.NewApplication(c.cfg, c.logger)
			if err != nil {
				return err
			}
			return application.Run(cmd.Context())
		},
	}
	cmd.Flags().IntVar(&port, "port", 8080, "Listen port")
	return cmd
}
