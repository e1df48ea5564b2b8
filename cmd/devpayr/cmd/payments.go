package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/devpayr/devpayr-go/pkg/devpayr"
)

func (c *cli) paymentsCommand() *cobra.Command {
	payments := &cobra.Command{
		Use:   "payments",
		Short: "Query project payment status",
	}

	var projectID string
	check := &cobra.Command{
		Use:   "check",
		Short: "Check whether the project has been paid for",
		Long: `With a license configured the project bound to that license is checked.
With only an API key, --project selects the project.

Examples:
  devpayr payments check --license $KEY --secret $SECRET
  devpayr payments check --api-key $API_KEY --secret $SECRET --project 42`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := c.client()
			if err != nil {
				return err
			}

			var status *devpayr.PaymentStatus
			switch {
			case projectID != "":
				status, err = client.Payments().CheckWithAPIKey(cmd.Context(), projectID)
			case c.cfg.License != "":
				status, err = client.Payments().CheckWithLicenseKey(cmd.Context())
			default:
				return errors.New("--project is required in API key mode")
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if handled, ferr := formatOutput(out, c.outputFormat, status.Raw); handled {
				return ferr
			}
			if status.Data.HasPaid {
				printStatus(out, true, "Project is paid")
			} else {
				printStatus(out, false, "Project is unpaid or unauthorized")
			}
			if status.Message != "" {
				fmt.Fprintf(out, "  %s %s\n", dimFmt("message:"), status.Message)
			}
			if n := len(status.Data.Injectables); n > 0 {
				fmt.Fprintf(out, "  %s %d\n", dimFmt("injectables:"), n)
			}
			return nil
		},
	}
	check.Flags().StringVar(&projectID, "project", "", "Project ID (API key mode)")

	payments.AddCommand(check)
	return payments
}
