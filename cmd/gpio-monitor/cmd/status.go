package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/gpio-monitor/internal/service/status"
)

var (
	// statusAddress overrides the status server address from the configuration.
	statusAddress string
	// statusProperties limits the query to the given properties.
	statusProperties []string
	// statusJSON switches the output to a JSON object.
	statusJSON bool

	// statusCmd queries the running daemon for power-good status.
	statusCmd = &cobra.Command{
		Use:   "status",
		Short: "Print the power-good status published by the running monitor.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			return status.Run(ctx, &status.Options{
				ConfigPath: configPath,
				Address:    statusAddress,
				Properties: statusProperties,
				JSON:       statusJSON,
				Out:        cmd.OutOrStdout(),
			})
		},
	}
)

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	statusCmd.Flags().StringVarP(&statusAddress, "address", "a", "", "status server address (defaults to status_addr)")
	statusCmd.Flags().StringSliceVarP(&statusProperties, "property", "p", nil, "property to query (repeatable)")
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "print the report as JSON")
}
