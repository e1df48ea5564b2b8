package cmd

import (
	"context"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/devpayr/devpayr-go/pkg/devpayr"
)

func (c *cli) projectsCommand() *cobra.Command {
	projects := &cobra.Command{
		Use:   "projects",
		Short: "Manage projects (API key mode)",
	}

	projects.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List projects",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				client, err := c.client()
				if err != nil {
					return err
				}
				resp, err := client.Projects().List(cmd.Context())
				if err != nil {
					return err
				}
				return renderResponse(cmd.OutOrStdout(), c.outputFormat, resp, "id", "name", "status")
			},
		},
		&cobra.Command{
			Use:   "get <project-id>",
			Short: "Show a project",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				client, err := c.client()
				if err != nil {
					return err
				}
				resp, err := client.Projects().Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return renderResponse(cmd.OutOrStdout(), c.outputFormat, resp, "id", "name", "status")
			},
		},
	)
	return projects
}

func (c *cli) licensesCommand() *cobra.Command {
	licenses := &cobra.Command{
		Use:   "licenses",
		Short: "Manage project licenses (API key mode)",
	}

	licenses.AddCommand(
		c.projectListCommand("List licenses of a project",
			func(client *devpayr.Client) projectLister { return client.Licenses() },
			"id", "license", "status"),
		c.licenseActionCommand("revoke", "Revoke a license"),
		c.licenseActionCommand("reactivate", "Reactivate a revoked license"),
	)
	return licenses
}

func (c *cli) licenseActionCommand(action, short string) *cobra.Command {
	return &cobra.Command{
		Use:   action + " <project-id> <license-id>",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := c.client()
			if err != nil {
				return err
			}
			svc := client.Licenses()
			call := svc.Revoke
			if action == "reactivate" {
				call = svc.Reactivate
			}
			resp, err := call(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			if handled, ferr := formatOutput(cmd.OutOrStdout(), c.outputFormat, resp); handled {
				return ferr
			}
			printStatus(cmd.OutOrStdout(), true, "License "+args[1]+": "+action+" done")
			return nil
		},
	}
}

func (c *cli) domainsCommand() *cobra.Command {
	domains := &cobra.Command{
		Use:   "domains",
		Short: "Manage project domains (API key mode)",
	}
	domains.AddCommand(
		c.projectListCommand("List domains of a project",
			func(client *devpayr.Client) projectLister { return client.Domains() },
			"id", "domain", "status"),
	)
	return domains
}

// projectLister is any service listing records under a project.
type projectLister interface {
	List(ctx context.Context, projectID string, opts ...devpayr.RequestOption) (devpayr.Response, error)
}

func (c *cli) projectListCommand(short string, pick func(*devpayr.Client) projectLister, columns ...string) *cobra.Command {
	var perPage int
	cmd := &cobra.Command{
		Use:   "list <project-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := c.client()
			if err != nil {
				return err
			}
			var opts []devpayr.RequestOption
			if perPage > 0 {
				opts = append(opts, devpayr.WithRequestQuery(map[string]string{"per_page": strconv.Itoa(perPage)}))
			}
			resp, err := pick(client).List(cmd.Context(), args[0], opts...)
			if err != nil {
				return err
			}
			return renderResponse(cmd.OutOrStdout(), c.outputFormat, resp, columns...)
		},
	}
	cmd.Flags().IntVar(&perPage, "per-page", 0, "Page size (default: server or config per_page)")
	return cmd
}
