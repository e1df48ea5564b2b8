// Package cmd implements the devpayr CLI commands.
package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/devpayr/devpayr-go/internal/config"
	"github.com/devpayr/devpayr-go/internal/infrastructure"
	"github.com/devpayr/devpayr-go/pkg/devpayr"
)

var (
	okFmt   = color.New(color.FgGreen).SprintFunc()
	errFmt  = color.New(color.FgRed, color.Bold).SprintFunc()
	infoFmt = color.New(color.FgYellow).SprintFunc()
	dimFmt  = color.New(color.Faint).SprintFunc()
)

// cli holds the global flags and what PersistentPreRunE builds from them.
type cli struct {
	configPath   string
	outputFormat string
	license      string
	apiKey       string
	secret       string
	baseURL      string
	domain       string
	logLevel     string

	cfg    *config.Config
	logger *slog.Logger

	// newClient is replaced in tests
	newClient func(cfg *config.Config, opts ...devpayr.Option) (*devpayr.Client, error)
}

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	c := &cli{newClient: devpayr.New}

	root := &cobra.Command{
		Use:   "devpayr",
		Short: "DevPayr license enforcement and project management CLI",
		Long: `devpayr checks a project's license against the DevPayr API and manages
projects, licenses, domains and injectables.

Configuration is read from a YAML file (--config or DEVPAYR_CONFIG), then
DEVPAYR_* environment variables, then flags.`,
		Version:      devpayr.GetFullVersionString(),
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			switch {
			case cmd.Name() == "help", cmd.Name() == "version":
				return nil
			case cmd.HasParent() && cmd.Parent().Name() == "completion":
				return nil
			}
			return c.load()
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return infrastructure.CloseLogFiles()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&c.configPath, "config", "", "Config file path (default: search devpayr.yaml)")
	flags.StringVarP(&c.outputFormat, "output", "o", "table", "Output format: table, json, yaml")
	flags.StringVar(&c.license, "license", "", "License key (overrides DEVPAYR_LICENSE)")
	flags.StringVar(&c.apiKey, "api-key", "", "API key (overrides DEVPAYR_API_KEY)")
	flags.StringVar(&c.secret, "secret", "", "Shared secret (overrides DEVPAYR_SECRET)")
	flags.StringVar(&c.baseURL, "base-url", "", "DevPayr API base URL")
	flags.StringVar(&c.domain, "domain", "", "Domain identity to check")
	flags.StringVar(&c.logLevel, "log-level", "", "Log level: debug, info, warn, error")

	root.AddCommand(
		c.bootstrapCommand(),
		c.paymentsCommand(),
		c.projectsCommand(),
		c.licensesCommand(),
		c.domainsCommand(),
		c.injectablesCommand(),
		c.serveCommand(),
		versionCommand(),
	)
	return root
}

// Execute runs the root command.
func Execute() error {
	root := NewRootCommand()
	err := root.ExecuteContext(context.Background())
	if err != nil {
		fmt.Fprintln(os.Stderr, errFmt("Error:"), err)
	}
	return err
}

// load builds the configuration and logger once flags are parsed.
func (c *cli) load() error {
	var opts []config.Option
	if c.license != "" {
		opts = append(opts, config.WithLicense(c.license))
	}
	if c.apiKey != "" {
		opts = append(opts, config.WithAPIKey(c.apiKey))
	}
	if c.secret != "" {
		opts = append(opts, config.WithSecret(c.secret))
	}
	if c.baseURL != "" {
		opts = append(opts, config.WithBaseURL(c.baseURL))
	}
	if c.domain != "" {
		opts = append(opts, config.WithDomain(c.domain))
	}
	if c.logLevel != "" {
		level := c.logLevel
		opts = append(opts, func(cfg *config.Config) { cfg.Logging.Level = level })
	}

	cfg, err := config.Load(c.configPath, opts...)
	if err != nil {
		return err
	}

	logger, err := infrastructure.NewLogger(cfg.Logging, os.Stderr)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	slog.SetDefault(logger)
	c.cfg = cfg
	c.logger = logger
	return nil
}

func (c *cli) client(opts ...devpayr.Option) (*devpayr.Client, error) {
	return c.newClient(c.cfg, append([]devpayr.Option{devpayr.WithLogger(c.logger)}, opts...)...)
}

func versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			info := devpayr.GetVersionInfo()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s\n", devpayr.GetVersionString())
			fmt.Fprintf(out, "  %s %s\n", dimFmt("commit:"), info.GitCommit)
			fmt.Fprintf(out, "  %s %s\n", dimFmt("built:"), info.BuildTime)
			fmt.Fprintf(out, "  %s %s %s/%s\n", dimFmt("go:"), info.GoVersion, info.OS, info.Architecture)
			return nil
		},
	}
}

func printStatus(w io.Writer, ok bool, msg string) {
	if ok {
		fmt.Fprintf(w, "%s %s\n", okFmt("✓"), msg)
		return
	}
	fmt.Fprintf(w, "%s %s\n", errFmt("✗"), msg)
}
