package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/sleepwatch/internal/config"
	"github.com/oshokin/sleepwatch/internal/service/watcher"
	"github.com/oshokin/sleepwatch/internal/version"
)

var (
	// options collects flag values for the watcher.
	options = new(watcher.Options)

	// rootCmd represents the base command for running the watcher.
	rootCmd = &cobra.Command{
		Use:   "sleepwatch-watcher",
		Short: "Watch a camera or an image and sound an alarm when sleeping is detected.",
		Long: `Captures a still image every poll interval, sends it to the detector and sounds
a repeating two-tone alarm while the detector reports sleeping.

Images come from the camera snapshot URL in the configuration, or from --file
which is classified once. An awake verdict silences the alarm; a failed
detection leaves it as it is.

The alarm can be stopped or tested from other machines with sleepwatch-alarm-off
and sleepwatch-alarm-test (gRPC control service), or through the HTTP API when
http_addr is configured.`,
		Args: cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			return watcher.Run(ctx, options)
		},
	}
)

// Execute runs the sleepwatch-watcher CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	flags := rootCmd.Flags()

	flags.StringVarP(&options.ConfigPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	flags.StringVarP(&options.File, "file", "f", "", "classify this image once instead of polling the camera")
	flags.StringVar(&options.SnapshotURL, "snapshot-url", "", "camera snapshot URL, overrides configuration")
	flags.StringVar(&options.ClassifierURL, "classifier-url", "", "detector base URL, overrides configuration")
	flags.StringVarP(&options.ListenAddress, "listen", "l", "", "gRPC control listen address, overrides configuration")
	flags.StringVar(&options.HTTPAddress, "http", "", "HTTP API listen address, overrides configuration")
	flags.StringVar(&options.HistoryFile, "history-file", "", "path to persist detection history")
	flags.StringVar(&options.AudioBackend, "audio", "", "audio backend: speaker, beep or none")
	flags.DurationVarP(&options.Interval, "interval", "i", 0, "poll interval, overrides configuration")
	flags.BoolVar(&options.Once, "once", false, "stop polling after the first detection")
	flags.BoolVar(&options.AllowMultiple, "allow-multiple", false, "skip the single-instance check")
}
