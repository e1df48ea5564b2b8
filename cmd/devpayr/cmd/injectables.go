package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/devpayr/devpayr-go/pkg/devpayr"
)

func (c *cli) injectablesCommand() *cobra.Command {
	injectables := &cobra.Command{
		Use:   "injectables",
		Short: "List, stream and materialize injectables",
	}

	injectables.AddCommand(
		c.projectListCommand("List injectables of a project",
			func(client *devpayr.Client) projectLister { return client.Injectables() },
			"id", "name", "slug", "type", "mode"),
		c.streamCommand(),
	)
	return injectables
}

func (c *cli) streamCommand() *cobra.Command {
	var (
		process bool
		dest    string
	)
	cmd := &cobra.Command{
		Use:   "stream",
		Short: "Fetch the injectables issued to the configured license",
		Long: `Fetch the encrypted injectables for the configured license. With --process
each one is verified, decrypted and written below --dest (or the configured
injectables_path).

Examples:
  devpayr injectables stream --license $KEY --secret $SECRET
  devpayr injectables stream --process --dest ./generated`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if dest != "" {
				c.cfg.InjectablesPath = dest
			}
			client, err := c.client()
			if err != nil {
				return err
			}

			items, resp, err := client.Injectables().Stream(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if !process {
				return renderResponse(out, c.outputFormat, resp, "id", "name", "slug", "type", "mode")
			}

			report := client.ProcessInjectables(cmd.Context(), items)
			if handled, ferr := formatOutput(out, c.outputFormat, report); handled {
				if ferr != nil {
					return ferr
				}
				return report.Err()
			}
			for _, item := range report.Results {
				printStatus(out, item.OK(), fmt.Sprintf("%s → %s (%s)", item.ID, item.Target, item.Status))
			}
			return report.Err()
		},
	}
	cmd.Flags().BoolVar(&process, "process", false, "Verify, decrypt and write each injectable")
	cmd.Flags().StringVar(&dest, "dest", "", "Destination directory for --process")
	return cmd
}
