package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/devpayr/devpayr-go/pkg/devpayr"
)

func (c *cli) bootstrapCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "bootstrap",
		Short: "Validate the license the way an application does at startup",
		Long: `Run the runtime validation: cache check, remote payment check and
injectable processing. On failure the configured invalid_behavior applies,
so modal and redirect end the process with exit code 1.

Examples:
  devpayr bootstrap --license $KEY --secret $SECRET
  DEVPAYR_INVALID_BEHAVIOR=log devpayr bootstrap -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			client, err := c.client()
			if err != nil {
				return err
			}

			res, err := client.Validate(cmd.Context())
			if res == nil && err == nil {
				printStatus(out, true, "API key mode: runtime validation skipped")
				return nil
			}
			if err != nil {
				printStatus(out, false, err.Error())
				return err
			}

			if handled, ferr := formatOutput(out, c.outputFormat, res); handled {
				return ferr
			}

			printStatus(out, true, "License valid")
			fmt.Fprintf(out, "  %s %s\n", dimFmt("identity:"), res.Identity.Value)
			fmt.Fprintf(out, "  %s %t\n", dimFmt("cached:"), res.Cached)
			if res.Message != "" {
				fmt.Fprintf(out, "  %s %s\n", dimFmt("message:"), res.Message)
			}
			if res.Injectables != nil {
				printReport(out, res.Injectables)
			}
			return nil
		},
	}
}

func printReport(w io.Writer, report *devpayr.Report) {
	fmt.Fprintf(w, "  %s %d/%d processed\n", dimFmt("injectables:"), report.Succeeded(), len(report.Results))
	for _, item := range report.Failed() {
		msg := string(item.Status)
		if item.Err != nil {
			msg = item.Err.Error()
		}
		fmt.Fprintf(w, "    %s %s: %s\n", errFmt("✗"), item.ID, msg)
	}
}
