package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/opus-provision/internal/service/pipeline"
	"github.com/oshokin/opus-provision/internal/version"
)

var (
	// configPath to the configuration YAML file.
	configPath string
	// outDir overrides the output directory from the settings.
	outDir string
	// logLevel overrides the log level from the settings.
	logLevel string

	// rootCmd represents the base command that runs the provisioning pipeline.
	rootCmd = &cobra.Command{
		Use:   "opus-provision",
		Short: "Fetch, verify, unpack and build the pinned native library",
		Long: "Download the pinned source archive, verify its digest, unpack it incrementally,\n" +
			"build the static library, generate bindings and print link directives to stdout.",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			options := &pipeline.Options{
				ConfigPath: configPath,
				OutDir:     outDir,
				LogLevel:   logLevel,
				Stdout:     cmd.OutOrStdout(),
			}

			_, err := pipeline.Run(ctx, options)

			return err
		},
	}
)

// Execute runs the opus-provision CLI and exits with non-zero status on error.
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
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&configPath, "config", "c", "", "path to configuration file (default opus-provision.yaml if present)")
	flags.StringVarP(&outDir, "out-dir", "o", "", "output directory (default out_dir setting or $OUT_DIR)")
	flags.StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
}
