package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/sleepwatch/internal/config"
	"github.com/oshokin/sleepwatch/internal/service/client"
	"github.com/oshokin/sleepwatch/internal/version"
)

var (
	// cfgPath stores the configuration file path.
	cfgPath string
	// attempts bounds the number of tries.
	attempts int

	// rootCmd represents the base command for playing the test sound.
	rootCmd = &cobra.Command{
		Use:   "sleepwatch-alarm-test [watcher-address]",
		Short: "Play the test sound.",
		Long: `Plays one short tone on the watcher to check that audio works.

The tone does not start or stop the alarm. Playing it also unlocks audio on
the watcher if no sound was played yet.
Watcher address can be provided as argument or loaded from configuration file.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			// Use watcher address argument if provided, otherwise rely on config.
			var serverAddress string
			if len(args) > 0 {
				serverAddress = args[0]
			}

			options := &client.Options{
				ConfigPath:    cfgPath,
				ServerAddress: serverAddress,
				Action:        client.ActionTest,
				Attempts:      attempts,
			}

			return client.Run(ctx, options)
		},
	}
)

// Execute runs the sleepwatch-alarm-test CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	rootCmd.Flags().StringVarP(&cfgPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	rootCmd.Flags().IntVarP(&attempts, "attempts", "n", 0, "give up after this many tries, 0 retries until interrupted")
}
