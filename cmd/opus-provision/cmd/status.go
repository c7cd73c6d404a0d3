package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/oshokin/opus-provision/internal/logger"
	"github.com/oshokin/opus-provision/internal/service/status"
)

var (
	errStale           = errors.New("outputs are stale, run opus-provision again")
	errUnknownLogLevel = errors.New("unknown log level")
)

// statusCmd reports whether the last run is still current.
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report whether the outputs of the last run are current",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if logLevel != "" {
			level, ok := logger.ParseLogLevel(logLevel)
			if !ok {
				return fmt.Errorf("%w: %q", errUnknownLogLevel, logLevel)
			}

			logger.SetLevel(level)
		}

		report, err := status.Check(cmd.Context(), &status.Options{
			ConfigPath: configPath,
			OutDir:     outDir,
		})
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()

		if !report.Stale() {
			_, _ = fmt.Fprintf(out, "up to date (completed %s by %s@%s)\n",
				report.Stamp.CompletedAt.Format(time.RFC3339), report.Stamp.Actor.Username, report.Stamp.Actor.Hostname)

			return nil
		}

		for _, reason := range report.Reasons {
			_, _ = fmt.Fprintln(out, "stale:", reason)
		}

		return errStale
	},
}
