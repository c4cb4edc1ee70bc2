package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/sleepwatch/internal/config"
	"github.com/oshokin/sleepwatch/internal/service/detector"
	"github.com/oshokin/sleepwatch/internal/version"
)

var (
	// configPath to the configuration YAML file.
	configPath string
	// model overrides the configured vision model.
	model string

	// rootCmd represents the base command for running the detector.
	rootCmd = &cobra.Command{
		Use:   "sleepwatch-detector [listen-address]",
		Short: "Run the sleep detection HTTP service.",
		Long: `Starts the HTTP service behind POST /detect.

Each request carries a base64 image which is sent to a vision model over an
OpenAI-compatible API (Groq by default). The model reply is reduced to a
status (sleeping, awake or error), a confidence label and details.

The provider key is read from the configuration or the ` + config.APIKeyEnv + ` variable.
Listen address can be provided as argument to override config (e.g., :5000).`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			var listenAddress string
			if len(args) > 0 {
				listenAddress = args[0]
			}

			options := &detector.Options{
				ConfigPath:    configPath,
				ListenAddress: listenAddress,
				Model:         model,
			}

			return detector.Run(ctx, options)
		},
	}
)

// Execute runs the sleepwatch-detector CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	rootCmd.Flags().StringVarP(&model, "model", "m", "", "vision model, overrides configuration")
}
