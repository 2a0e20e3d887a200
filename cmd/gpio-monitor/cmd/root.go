package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/gpio-monitor/internal/config"
	"github.com/oshokin/gpio-monitor/internal/service/monitor"
	"github.com/oshokin/gpio-monitor/internal/version"
)

var (
	// configPath to the configuration YAML file.
	configPath string
	// logLevel overrides the level from the configuration file.
	logLevel string

	// rootCmd represents the base command running the monitor daemon.
	rootCmd = &cobra.Command{
		Use:   "gpio-monitor",
		Short: "Monitor GPIO lines and chassis power-good status.",
		Long: `Watches the configured GPIO input lines for edge events and polls the
chassis power-good signals over IPMB.

Every edge is logged as "<line> Asserted" or "<line> Deasserted". When a line has
a target, the systemd unit is started in replace mode. One-shot lines stop after
their first event, continuous lines are re-armed until an error occurs.

Power-good status is sampled every interval (200ms by default) and published as
D-Bus properties, gRPC health services and Prometheus gauges.`,
		Args: cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			options := &monitor.Options{
				ConfigPath: configPath,
				LogLevel:   logLevel,
			}

			return monitor.Run(ctx, options)
		},
	}
)

// Execute runs the gpio-monitor CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)
	rootCmd.AddCommand(statusCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	// Setup command flags with consistent naming and descriptions.
	rootCmd.PersistentFlags().
		StringVarP(&configPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "", "override log level (debug, info, warn, error)")
}
