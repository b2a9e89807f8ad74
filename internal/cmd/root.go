package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/adamancini/launchkit/internal/logging"
	"github.com/adamancini/launchkit/internal/metrics"
	"github.com/adamancini/launchkit/internal/output"
)

var (
	// Global flags
	outputFormat string
	configPath   string
	metricsFile  string
	verbose      bool
	quiet        bool

	// Build information, set by Execute
	appVersion = "dev"
	appCommit  = "none"
	appDate    = "unknown"

	// appMetrics collects request and transfer metrics for --metrics-file
	appMetrics *metrics.Metrics
)

// Execute runs the launchkit CLI.
func Execute(version, commit, date string) error {
	appVersion, appCommit, appDate = version, commit, date
	appMetrics = metrics.New()

	err := newRootCmd().Execute()

	if metricsFile != "" {
		if werr := appMetrics.WriteTextfile(metricsFile); werr != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to write metrics: %v\n", werr)
		}
	}
	return err
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "launchkit",
		Short: "Verified client updates from a launch server",
		Long: `launchkit keeps client files and the launcher itself in sync with a launch server.

Every file listing, profile and launcher binary the server sends is signed;
launchkit verifies it with the server's public key before using it.`,
		Version:      appVersion,
		SilenceUsage: true,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "text", "Output format: text, json, yaml")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to Launchfile")
	rootCmd.PersistentFlags().StringVar(&metricsFile, "metrics-file", "", "Write Prometheus metrics to this file on exit")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Quiet mode (errors only)")

	// Add subcommands
	rootCmd.AddCommand(newInitCmd())
	rootCmd.AddCommand(newUpdateCmd())
	rootCmd.AddCommand(newSelfUpdateCmd())
	rootCmd.AddCommand(newProfilesCmd())
	rootCmd.AddCommand(newSnapshotsCmd())
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newCompletionCmd())

	// Register completion function for output flag
	_ = rootCmd.RegisterFlagCompletionFunc("output", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return []string{"text", "json", "yaml"}, cobra.ShellCompDirectiveNoFileComp
	})

	return rootCmd
}

// loadService loads the Launchfile and returns the service together with a
// context carrying the configured logger.
func loadService(cmd *cobra.Command) (*Service, context.Context, error) {
	svc, err := NewService(configPath, appVersion, appMetrics)
	if err != nil {
		return nil, nil, err
	}

	level := logging.LevelFor(verbose, quiet)
	if !verbose && !quiet && svc.Launchfile().Log.Level != "" {
		if level, err = logging.ParseLevel(svc.Launchfile().Log.Level); err != nil {
			return nil, nil, err
		}
	}
	log := logging.New(cmd.ErrOrStderr(), logging.Options{
		Level:   level,
		Format:  svc.Launchfile().Log.Format,
		Service: "launchkit",
		Version: appVersion,
	})
	return svc, logging.WithContext(cmd.Context(), log), nil
}

// newWriter returns an output writer for the --output flag.
func newWriter(cmd *cobra.Command) (*output.Writer, error) {
	format, err := output.ParseFormat(outputFormat)
	if err != nil {
		return nil, err
	}
	if quiet && format == output.FormatText {
		return output.NewWriter(io.Discard, format), nil
	}
	return output.NewWriter(cmd.OutOrStdout(), format), nil
}
