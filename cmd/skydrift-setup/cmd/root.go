package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/skydriftlabs/skydrift-setup/internal/logger"
	"github.com/skydriftlabs/skydrift-setup/internal/service/setup"
	"github.com/skydriftlabs/skydrift-setup/internal/version"
)

var (
	// configPath to the configuration YAML file.
	configPath string
	// logLevel controls logging verbosity.
	logLevel string

	// rootCmd represents the base command for installing and supervising the agent.
	rootCmd = &cobra.Command{
		Use:   "skydrift-setup",
		Short: "Install the skydrift agent and keep its service current",
		Long: `Installs or updates the skydrift agent to the latest published release,
negotiates account credentials, reconciles the systemd unit running the agent
and follows its logs until interrupted.

Without a configuration file the published skydrift release channels and the
per-user installation root under ~/.skydrift are used.`,
		Args: cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			level, _ := logger.ParseLogLevel(logLevel)
			logger.SetLevel(level)

			options := &setup.Options{
				ConfigPath: configPath,
			}

			return setup.Run(ctx, options)
		},
	}
)

// Execute runs the skydrift-setup CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	// Setup command flags with consistent naming and descriptions.
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "", "path to configuration file (defaults apply when omitted)")
	rootCmd.Flags().StringVarP(&logLevel, "log-level", "l", "info", "logging level (debug, info, warn, error, fatal)")
}
